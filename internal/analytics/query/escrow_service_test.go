package query

import (
	"testing"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/google/uuid"
)

func TestValidateRequest(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := ValidateRequest(types.EscrowQueryRequest{Start: start, End: start.Add(24 * time.Hour)}); err != nil {
		t.Errorf("valid range: %v", err)
	}
	if err := ValidateRequest(types.EscrowQueryRequest{Start: start}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Errorf("missing end: expected validation error, got %v", err)
	}
	if err := ValidateRequest(types.EscrowQueryRequest{Start: start, End: start.Add(-time.Hour)}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Errorf("inverted range: expected validation error, got %v", err)
	}
}

func TestVendorScopeAddsParameter(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	req := types.EscrowQueryRequest{Start: start, End: start.Add(time.Hour)}

	if got := vendorClause(req); got != "TRUE" {
		t.Errorf("expected TRUE, got %q", got)
	}
	if got := len(baseParams(req)); got != 2 {
		t.Errorf("expected 2 params, got %d", got)
	}

	vendor := uuid.New()
	req.VendorID = &vendor
	if got := vendorClause(req); got != "vendor_id = @vendorID" {
		t.Errorf("unexpected clause %q", got)
	}
	params := baseParams(req)
	if len(params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(params))
	}
	if params[2].Name != "vendorID" || params[2].Value != vendor.String() {
		t.Errorf("unexpected vendor param %+v", params[2])
	}
}

func TestNewEscrowServiceValidation(t *testing.T) {
	_, err := NewEscrowService(nil, "p", "d", "t")
	if err == nil {
		t.Error("expected client to be required")
	}
}
