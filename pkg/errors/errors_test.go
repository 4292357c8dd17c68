package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeDependency, cause, "fetch payment method")

	if !stdErrors.Is(err, cause) {
		t.Fatal("wrapped error should match its cause")
	}
	if err.Code() != CodeDependency {
		t.Fatalf("unexpected code: %s", err.Code())
	}
}

func TestAsFindsTypedErrorInChain(t *testing.T) {
	typed := New(CodeStateConflict, "attempt already terminal")
	wrapped := fmt.Errorf("execute retry: %w", typed)

	found := As(wrapped)
	if found == nil {
		t.Fatal("expected typed error in chain")
	}
	if found.Code() != CodeStateConflict {
		t.Fatalf("unexpected code: %s", found.Code())
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor(Code("BOGUS"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", meta.HTTPStatus)
	}
}

func TestDumpCollectsChain(t *testing.T) {
	base := stdErrors.New("boom")
	err := Wrap(CodeInternal, base, "save attempt")

	dump := Dump(err)
	if dump.Code != CodeInternal {
		t.Fatalf("unexpected code: %s", dump.Code)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected full chain, got %v", dump.Chain)
	}
}
