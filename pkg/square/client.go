// Package square wraps the Square Payments and Refunds APIs used to hold
// escrow funds as delayed-capture payments.
package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
)

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

type Client struct {
	sdk        *sqclient.Client
	locationID string
	webhook    webhookKey
	logg       *logger.Logger
}

// NewClient validates the Square settings and builds an SDK client for the
// configured environment.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square environment %q is not sandbox or production", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square access token is required")
	}
	hook, err := newWebhookKey(cfg.WebhookSecret, cfg.WebhookURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		sdk:        sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token)),
		locationID: strings.TrimSpace(cfg.LocationID),
		webhook:    hook,
		logg:       logg,
	}
	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return c, nil
}

// LocationID is the default location payments are taken at.
func (c *Client) LocationID() string {
	if c == nil {
		return ""
	}
	return c.locationID
}

func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}
	req := params.request(idempotencyKey("payment", params.IdempotencyKey))
	var payment *sq.Payment
	err := c.call(ctx, "create_payment", map[string]any{
		"location_id":  params.LocationID,
		"reference_id": params.ReferenceID,
		"amount_cents": params.AmountCents,
		"autocomplete": params.Autocomplete,
		"source_id":    params.SourceID,
	}, func(ctx context.Context) error {
		resp, err := c.sdk.Payments.Create(ctx, req)
		if err == nil {
			payment = resp.GetPayment()
		}
		return err
	})
	return payment, err
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	var payment *sq.Payment
	err := c.call(ctx, "get_payment", map[string]any{"payment_id": paymentID}, func(ctx context.Context) error {
		resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
		if err == nil {
			payment = resp.GetPayment()
		}
		return err
	})
	return payment, err
}

// CompletePayment captures a payment created with autocomplete disabled.
func (c *Client) CompletePayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	var payment *sq.Payment
	err := c.call(ctx, "complete_payment", map[string]any{"payment_id": paymentID}, func(ctx context.Context) error {
		resp, err := c.sdk.Payments.Complete(ctx, &sq.CompletePaymentRequest{PaymentID: paymentID})
		if err == nil {
			payment = resp.GetPayment()
		}
		return err
	})
	return payment, err
}

// CancelPayment voids an approved payment that was never completed.
func (c *Client) CancelPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	var payment *sq.Payment
	err := c.call(ctx, "cancel_payment", map[string]any{"payment_id": paymentID}, func(ctx context.Context) error {
		resp, err := c.sdk.Payments.Cancel(ctx, &sq.CancelPaymentsRequest{PaymentID: paymentID})
		if err == nil {
			payment = resp.GetPayment()
		}
		return err
	})
	return payment, err
}

func (c *Client) RefundPayment(ctx context.Context, params RefundCreateParams) (*sq.PaymentRefund, error) {
	req := params.request(idempotencyKey("refund", params.IdempotencyKey))
	var refund *sq.PaymentRefund
	err := c.call(ctx, "refund_payment", map[string]any{
		"payment_id":   params.PaymentID,
		"amount_cents": params.AmountCents,
	}, func(ctx context.Context) error {
		resp, err := c.sdk.Refunds.RefundPayment(ctx, req)
		if err == nil {
			refund = resp.GetRefund()
		}
		return err
	})
	return refund, err
}

// call runs one SDK request with redacted request logging and maps failures
// onto domain error codes.
func (c *Client) call(ctx context.Context, op string, fields map[string]any, do func(context.Context) error) error {
	logged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		logged[k] = redact(k, v)
	}
	logged["square_op"] = op
	ctx = c.logg.WithFields(ctx, logged)

	if err := do(ctx); err != nil {
		mapped := mapError(err, op)
		c.logg.Error(ctx, "square request failed", mapped)
		return mapped
	}
	c.logg.Debug(ctx, "square request succeeded")
	return nil
}

func idempotencyKey(prefix, provided string) string {
	if key := strings.TrimSpace(provided); key != "" {
		return key
	}
	return prefix + "-" + uuid.NewString()
}

var sensitiveFields = []string{"source", "card", "nonce", "token", "cvv", "secret", "email", "phone"}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, s := range sensitiveFields {
		if strings.Contains(lower, s) {
			return "[REDACTED]"
		}
	}
	return value
}

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

func codeForStatus(status int) pkgerrors.Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

// mapError classifies an SDK failure. Transport errors and 5xx responses map
// to CodeDependency, which callers treat as an unknown outcome.
func mapError(err error, op string) error {
	msg := "square " + strings.ReplaceAll(op, "_", " ") + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	return pkgerrors.Wrap(refineCode(codeForStatus(apiErr.StatusCode), apiErrors(apiErr)), err, msg)
}

// refineCode lets the first recognised Square error code override the
// status-derived one.
func refineCode(code pkgerrors.Code, errs []*sq.Error) pkgerrors.Code {
	for _, e := range errs {
		if e.Code == sq.ErrorCodeIdempotencyKeyReused {
			return pkgerrors.CodeIdempotency
		}
		if e.Category == sq.ErrorCategoryAuthenticationError {
			return pkgerrors.CodeUnauthorized
		}
	}
	return code
}

// apiErrors decodes the errors array Square returns with every 4xx/5xx.
func apiErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	out := body.Errors[:0]
	for _, e := range body.Errors {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
