package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
)

// Processor payment events are small; anything larger is rejected unread.
const maxEventBytes = 512 << 10

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// stripeSecret exposes the endpoint secret stripe's webhook package verifies with.
type stripeSecret interface {
	SigningSecret() string
}

type squareVerifier interface {
	VerifyWebhook(body []byte, signature string) bool
}

func checkDeps(svc, client, guard any) error {
	switch {
	case svc == nil:
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable")
	case client == nil:
		return pkgerrors.New(pkgerrors.CodeInternal, "processor client unavailable")
	case guard == nil:
		return pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable")
	}
	return nil
}

// readSigned returns the raw body together with the signature header.
func readSigned(w http.ResponseWriter, r *http.Request, header string) ([]byte, string, error) {
	signature := r.Header.Get(header)
	if signature == "" {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, header+" header missing")
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "event payload too large")
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body")
	}
	return payload, signature, nil
}

// applyOnce runs apply the first time eventID is seen. A failed apply frees
// the id again so the processor's redelivery is handled. duplicate is true
// when an earlier delivery already claimed the id.
func applyOnce(ctx context.Context, guard eventGuard, eventID string, apply func(context.Context) error) (duplicate bool, err error) {
	seen, err := guard.CheckAndMark(ctx, eventID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if seen {
		return true, nil
	}
	if err := apply(ctx); err != nil {
		if delErr := guard.Delete(context.WithoutCancel(ctx), eventID); delErr != nil {
			return false, errors.Join(err, delErr)
		}
		return false, err
	}
	return false, nil
}
