package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	cases := []struct {
		code      Code
		status    int
		public    string
		retryable bool
		details   bool
		expose    bool
	}{
		{CodeValidation, http.StatusBadRequest, "validation failed", false, true, true},
		{CodeUnauthorized, http.StatusUnauthorized, "authentication required", false, false, true},
		{CodeForbidden, http.StatusForbidden, "access denied", false, false, true},
		{CodeNotFound, http.StatusNotFound, "resource not found", false, false, true},
		{CodeStateConflict, http.StatusUnprocessableEntity, "state transition disallowed", false, true, true},
		{CodeIdempotency, http.StatusConflict, "idempotency key reused", false, true, true},
		{CodeInvalidTransition, http.StatusUnprocessableEntity, "invalid state transition", false, true, true},
		{CodeAlreadyResolved, http.StatusConflict, "payout already resolved", false, true, true},
		{CodeAlreadyReviewed, http.StatusConflict, "review already submitted", false, true, true},
		{CodeInternal, http.StatusInternalServerError, "internal server error", true, false, false},
		{CodeDependency, http.StatusServiceUnavailable, "dependency unavailable", true, true, false},
		{CodeLedgerUnavailable, http.StatusServiceUnavailable, "payment ledger unavailable", true, true, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			want := Metadata{
				HTTPStatus:     tc.status,
				Retryable:      tc.retryable,
				PublicMessage:  tc.public,
				DetailsAllowed: tc.details,
				ExposeMessage:  tc.expose,
			}
			if got := MetadataFor(tc.code); got != want {
				t.Fatalf("expected %+v, got %+v", want, got)
			}
		})
	}
}

func TestEveryCodeHasMetadata(t *testing.T) {
	for code, meta := range metadataByCode {
		if meta.HTTPStatus == 0 || meta.PublicMessage == "" {
			t.Fatalf("%s: incomplete metadata %+v", code, meta)
		}
		if meta.Retryable != (meta.HTTPStatus >= 500) {
			t.Fatalf("%s: expected %v, got %v", code, meta.HTTPStatus >= 500, meta.Retryable)
		}
		if meta.ExposeMessage != (meta.HTTPStatus < 500) {
			t.Fatalf("%s: expected %v, got %v", code, meta.HTTPStatus < 500, meta.ExposeMessage)
		}
	}
}

func TestUnknownCodeRendersAsInternal(t *testing.T) {
	if got := MetadataFor("SOMETHING_UNKNOWN"); got != MetadataFor(CodeInternal) {
		t.Fatalf("expected internal metadata, got %+v", got)
	}
}

func TestErrorCarriesMessageDetailsAndCause(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation || base.Message() != "missing foo" {
		t.Fatalf("unexpected error %s %q", base.Code(), base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("expected no details, got %v", base.Details())
	}
	if base.Error() != "VALIDATION_ERROR: missing foo" {
		t.Fatalf("unexpected text %q", base.Error())
	}

	if base.WithDetails(map[string]string{"field": "foo"}) != base {
		t.Fatal("WithDetails must return the receiver")
	}
	if details, _ := base.Details().(map[string]string); details["field"] != "foo" {
		t.Fatalf("expected field details, got %v", base.Details())
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "insert order")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("expected %v to wrap %v", wrapped, cause)
	}
	if wrapped.Error() != "CONFLICT: insert order: boom" {
		t.Fatalf("unexpected text %q", wrapped.Error())
	}

	if err := Wrap(CodeConflict, nil, "x").Unwrap(); err != nil {
		t.Fatalf("nil cause unwraps to nil, got %v", err)
	}
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	if e.Code() != CodeInternal {
		t.Fatalf("expected %v, got %v", CodeInternal, e.Code())
	}
	if e.Message() != "" || e.Error() != "" {
		t.Fatalf("nil error renders empty, got %q / %q", e.Message(), e.Error())
	}
	if e.Details() != nil {
		t.Fatalf("expected no details, got %v", e.Details())
	}
	if e.WithDetails("x") != nil {
		t.Fatal("WithDetails on nil stays nil")
	}
	if err := e.Unwrap(); err != nil {
		t.Fatalf("expected nil cause, got %v", err)
	}
}

func TestLookupThroughWrapChain(t *testing.T) {
	inner := New(CodeLedgerUnavailable, "capture timed out")
	outer := fmt.Errorf("release order: %w", inner)

	if As(outer) != inner {
		t.Fatalf("expected the wrapped error, got %v", As(outer))
	}
	if !IsCode(outer, CodeLedgerUnavailable) || IsCode(outer, CodeForbidden) {
		t.Fatal("IsCode must follow the wrap chain")
	}
	if got := CodeOf(outer); got != CodeLedgerUnavailable {
		t.Fatalf("expected %v, got %v", CodeLedgerUnavailable, got)
	}

	plain := stdErrors.New("plain")
	if As(plain) != nil || As(nil) != nil {
		t.Fatal("untyped errors have no typed error")
	}
	if IsCode(plain, CodeInternal) {
		t.Fatal("plain errors do not match a code")
	}
	if got := CodeOf(plain); got != CodeInternal {
		t.Fatalf("expected %v, got %v", CodeInternal, got)
	}
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	errNotFound := New(CodeNotFound, "")
	err := fmt.Errorf("load order: %w", New(CodeNotFound, "order 42 not found"))
	if !stdErrors.Is(err, errNotFound) {
		t.Fatalf("expected %v to match NOT_FOUND", err)
	}
	if stdErrors.Is(err, New(CodeConflict, "")) {
		t.Fatalf("%v must not match CONFLICT", err)
	}
}
