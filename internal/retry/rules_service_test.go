package retry

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
)

func newRulesService(t *testing.T, repo RulesRepository) RulesService {
	t.Helper()
	svc, err := NewRulesService(repo)
	if err != nil {
		t.Fatalf("NewRulesService: %v", err)
	}
	return svc
}

func TestRulesServiceCreateValidates(t *testing.T) {
	svc := newRulesService(t, newFakeRules())

	cases := []struct {
		name  string
		input RuleInput
	}{
		{"negative position", RuleInput{Position: -1, IntervalSeconds: 100}},
		{"negative interval", RuleInput{Position: 0, IntervalSeconds: -60}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.input)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
				t.Fatalf("code = %s", pkgerrors.As(err).Code())
			}
		})
	}
}

func TestRulesServiceCreateAndList(t *testing.T) {
	repo := newFakeRules()
	svc := newRulesService(t, repo)
	onHold := enums.SubscriptionStatusOnHold

	created, err := svc.Create(context.Background(), RuleInput{
		Position:        0,
		IntervalSeconds: 43200,
		SubStatus:       &onHold,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatal("rule not assigned an id")
	}

	rules, err := svc.List(context.Background(), nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("rules = %d", len(rules))
	}

	orderID := uuid.New()
	scoped, err := svc.List(context.Background(), &orderID)
	if err != nil {
		t.Fatalf("List scoped: %v", err)
	}
	if len(scoped) != 0 {
		t.Fatal("override table should start empty")
	}
}

func TestRulesServiceCreateAllowsZeroInterval(t *testing.T) {
	svc := newRulesService(t, newFakeRules())
	failed := enums.OrderStatusFailed

	created, err := svc.Create(context.Background(), RuleInput{
		Position:        0,
		IntervalSeconds: 0,
		OrderStatus:     &failed,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.IntervalSeconds != 0 {
		t.Fatalf("interval = %d", created.IntervalSeconds)
	}
}

func TestRulesServiceUpdateNotFound(t *testing.T) {
	svc := newRulesService(t, newFakeRules())

	_, err := svc.Update(context.Background(), uuid.New(), RuleInput{Position: 0, IntervalSeconds: 100})
	if err == nil {
		t.Fatal("expected not found")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("code = %s", pkgerrors.As(err).Code())
	}
}

func TestRulesServiceDeleteNotFound(t *testing.T) {
	svc := newRulesService(t, newFakeRules())

	err := svc.Delete(context.Background(), uuid.New())
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("code = %v", err)
	}
}
