package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// SignatureHeader carries Square's HMAC-SHA256 webhook signature.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// webhookKey verifies Square notifications. Square signs the subscription's
// notification URL followed by the raw body and base64-encodes the digest.
type webhookKey struct {
	secret []byte
	url    string
}

func newWebhookKey(secret, notificationURL string) (webhookKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return webhookKey{}, errors.New("square webhook signature key is required")
	}
	notificationURL = strings.TrimSpace(notificationURL)
	if notificationURL == "" {
		return webhookKey{}, errors.New("square webhook notification url is required")
	}
	return webhookKey{secret: []byte(secret), url: notificationURL}, nil
}

func (k webhookKey) sign(body []byte) string {
	mac := hmac.New(sha256.New, k.secret)
	mac.Write([]byte(k.url))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (k webhookKey) verify(body []byte, signature string) bool {
	if len(k.secret) == 0 || signature == "" {
		return false
	}
	return hmac.Equal([]byte(k.sign(body)), []byte(strings.TrimSpace(signature)))
}

// VerifyWebhook reports whether signature matches body for the configured
// notification URL.
func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	if c == nil {
		return false
	}
	return c.webhook.verify(body, signature)
}
