package analytics

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/api/responses"
	"github.com/angelmondragon/surfacemarket-backend/internal/analytics"
	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
)

const (
	day           = 24 * time.Hour
	defaultPreset = "30d"
	// maxWindow bounds explicit from/to ranges so one request cannot scan the
	// whole events table.
	maxWindow = 366 * day
)

var presets = map[string]time.Duration{
	"7d":  7 * day,
	"30d": 30 * day,
	"90d": 90 * day,
}

var clock = time.Now

// EscrowAnalytics serves the admin escrow KPIs, optionally narrowed to one vendor.
func EscrowAnalytics(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics service unavailable"))
			return
		}

		req, err := parseEscrowQuery(r.URL.Query(), clock().UTC())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := service.Query(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// parseEscrowQuery accepts either an explicit RFC3339 from/to pair or a
// preset window ending now, plus an optional vendor_id.
func parseEscrowQuery(q url.Values, now time.Time) (types.EscrowQueryRequest, error) {
	var req types.EscrowQueryRequest

	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	switch {
	case from == "" && to == "":
		preset := strings.ToLower(strings.TrimSpace(q.Get("preset")))
		if preset == "" {
			preset = defaultPreset
		}
		window, ok := presets[preset]
		if !ok {
			return req, pkgerrors.New(pkgerrors.CodeValidation, "invalid preset").
				WithDetails(map[string]any{"preset": preset, "allowed": []string{"7d", "30d", "90d"}})
		}
		req.Start, req.End = now.Add(-window), now
	case from == "" || to == "":
		return req, pkgerrors.New(pkgerrors.CodeValidation, "from and to must be provided together")
	default:
		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return req, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from timestamp")
		}
		end, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return req, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to timestamp")
		}
		start, end = start.UTC(), end.UTC()
		if end.Before(start) {
			return req, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
		}
		if end.Sub(start) > maxWindow {
			return req, pkgerrors.New(pkgerrors.CodeValidation, "range exceeds one year")
		}
		req.Start, req.End = start, end
	}

	if raw := strings.TrimSpace(q.Get("vendor_id")); raw != "" {
		vendorID, err := uuid.Parse(raw)
		if err != nil {
			return req, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor_id")
		}
		req.VendorID = &vendorID
	}
	return req, nil
}
