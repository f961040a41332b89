package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/angelmondragon/surfacemarket-backend/api/responses"
	squarewebhook "github.com/angelmondragon/surfacemarket-backend/internal/webhooks/square"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/square"
)

type squareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error
}

// SquareWebhook verifies the notification signature and applies Square
// payment events. Events without an event_id are deduplicated on the
// payment id.
func SquareWebhook(svc squareWebhookService, client squareVerifier, guard eventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := checkDeps(svc, client, guard); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payload, signature, err := readSigned(w, r, square.SignatureHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !client.VerifyWebhook(payload, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid square signature"))
			return
		}

		var event squarewebhook.SquareWebhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square event"))
			return
		}
		dedupeID := strings.TrimSpace(event.EventID)
		if dedupeID == "" {
			dedupeID = strings.TrimSpace(event.Data.ID)
		}
		if dedupeID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "square event has no id"))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"event_id": dedupeID, "event_type": event.Type})
		}
		duplicate, err := applyOnce(ctx, guard, dedupeID, func(ctx context.Context) error {
			return svc.HandleEvent(ctx, &event)
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil && !duplicate {
			logg.Info(ctx, "square event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
