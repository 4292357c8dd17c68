package retry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/renewals-backend/pkg/db"
	"github.com/angelmondragon/renewals-backend/pkg/db/models"
	"github.com/angelmondragon/renewals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/renewals-backend/pkg/errors"
)

// RuleInput captures an admin-submitted retry rule. A nil OrderID targets the
// default table; a set OrderID targets that order's override table.
type RuleInput struct {
	OrderID         *uuid.UUID
	Position        int
	IntervalSeconds int64
	OrderStatus     *enums.OrderStatus
	SubStatus       *enums.SubscriptionStatus
}

// RulesService manages the admin-maintained retry rule tables.
type RulesService interface {
	List(ctx context.Context, orderID *uuid.UUID) ([]models.RetryRule, error)
	Create(ctx context.Context, input RuleInput) (*models.RetryRule, error)
	Update(ctx context.Context, id uuid.UUID, input RuleInput) (*models.RetryRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type rulesService struct {
	repo RulesRepository
}

// NewRulesService builds a rules admin service.
func NewRulesService(repo RulesRepository) (RulesService, error) {
	if repo == nil {
		return nil, fmt.Errorf("rules repo required")
	}
	return &rulesService{repo: repo}, nil
}

func validateRuleInput(input RuleInput) error {
	if input.Position < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "position must not be negative")
	}
	if input.IntervalSeconds < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "interval must not be negative")
	}
	if input.OrderStatus != nil && !input.OrderStatus.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if input.SubStatus != nil && !input.SubStatus.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid subscription status")
	}
	return nil
}

func (s *rulesService) List(ctx context.Context, orderID *uuid.UUID) ([]models.RetryRule, error) {
	var (
		rules []models.RetryRule
		err   error
	)
	if orderID != nil {
		rules, err = s.repo.ListForOrder(ctx, *orderID)
	} else {
		rules, err = s.repo.ListDefault(ctx)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list retry rules")
	}
	return rules, nil
}

func (s *rulesService) Create(ctx context.Context, input RuleInput) (*models.RetryRule, error) {
	if err := validateRuleInput(input); err != nil {
		return nil, err
	}
	rule := &models.RetryRule{
		OrderID:         input.OrderID,
		Position:        input.Position,
		IntervalSeconds: input.IntervalSeconds,
		OrderStatus:     input.OrderStatus,
		SubStatus:       input.SubStatus,
	}
	created, err := s.repo.CreateRule(ctx, rule)
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a rule already exists at this position")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create retry rule")
	}
	return created, nil
}

func (s *rulesService) Update(ctx context.Context, id uuid.UUID, input RuleInput) (*models.RetryRule, error) {
	if err := validateRuleInput(input); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindRule(ctx, id); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "retry rule not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load retry rule")
	}
	updates := map[string]any{
		"position":         input.Position,
		"interval_seconds": input.IntervalSeconds,
		"order_status":     input.OrderStatus,
		"sub_status":       input.SubStatus,
	}
	if err := s.repo.UpdateRule(ctx, id, updates); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a rule already exists at this position")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update retry rule")
	}
	rule, err := s.repo.FindRule(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load retry rule")
	}
	return rule, nil
}

func (s *rulesService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindRule(ctx, id); err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "retry rule not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load retry rule")
	}
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete retry rule")
	}
	return nil
}
