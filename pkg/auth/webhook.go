package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Webhook delivery headers. The provider delivers through Svix; the
// unbranded Standard Webhooks names are accepted as a fallback.
const (
	HeaderWebhookID        = "svix-id"
	HeaderWebhookTimestamp = "svix-timestamp"
	HeaderWebhookSignature = "svix-signature"

	// DefaultWebhookTolerance bounds how far a delivery timestamp may be
	// from the local clock, in either direction.
	DefaultWebhookTolerance = 5 * time.Minute

	webhookSecretPrefix = "whsec_"
	webhookSigVersion   = "v1"
)

// WebhookHeaders are the signature-related headers of one delivery.
type WebhookHeaders struct {
	ID        string
	Timestamp string
	Signature string
}

// WebhookHeadersFromHTTP reads the delivery headers from h.
func WebhookHeadersFromHTTP(h http.Header) WebhookHeaders {
	pick := func(primary, fallback string) string {
		if v := h.Get(primary); v != "" {
			return v
		}
		return h.Get(fallback)
	}
	return WebhookHeaders{
		ID:        pick(HeaderWebhookID, "webhook-id"),
		Timestamp: pick(HeaderWebhookTimestamp, "webhook-timestamp"),
		Signature: pick(HeaderWebhookSignature, "webhook-signature"),
	}
}

// WebhookVerifier authenticates lifecycle deliveries.
//
// The signed content is "{id}.{timestamp}.{body}", MACed with HMAC-SHA256
// under the base64-decoded secret (the "whsec_" prefix removed). The
// signature header is a space-separated list of "v1,<base64 MAC>" entries;
// any one matching entry accepts the delivery. A verifier built without a
// secret rejects every delivery.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
	metrics   *Metrics
}

// WebhookOption configures a WebhookVerifier.
type WebhookOption func(*WebhookVerifier)

// WithWebhookTolerance sets the accepted timestamp skew.
func WithWebhookTolerance(d time.Duration) WebhookOption {
	return func(v *WebhookVerifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

// WithWebhookClock overrides time.Now.
func WithWebhookClock(now func() time.Time) WebhookOption {
	return func(v *WebhookVerifier) { v.now = now }
}

// WithWebhookMetrics sets the Prometheus collectors.
func WithWebhookMetrics(m *Metrics) WebhookOption {
	return func(v *WebhookVerifier) { v.metrics = m }
}

// NewWebhookVerifier decodes secret. An empty secret is allowed and yields
// a verifier that rejects everything; an undecodable one is a
// configuration error.
func NewWebhookVerifier(secret string, opts ...WebhookOption) (*WebhookVerifier, error) {
	v := &WebhookVerifier{tolerance: DefaultWebhookTolerance, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}

	secret = strings.TrimSpace(secret)
	if secret == "" {
		return v, nil
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, webhookSecretPrefix))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration,
			"auth: webhook secret is not valid base64")
	}
	if len(key) == 0 {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "auth: webhook secret is empty")
	}
	v.secret = key
	return v, nil
}

// Configured reports whether a secret is set.
func (v *WebhookVerifier) Configured() bool {
	return len(v.secret) > 0
}

// Verify authenticates payload against h. It returns nil only when a
// secret is configured, the timestamp is within tolerance, and one v1
// signature matches. Every failure is an AUTH_008 error.
func (v *WebhookVerifier) Verify(payload []byte, h WebhookHeaders) error {
	err := v.verify(payload, h)
	if err != nil {
		v.metrics.webhook("rejected")
		return err
	}
	v.metrics.webhook("ok")
	return nil
}

func (v *WebhookVerifier) verify(payload []byte, h WebhookHeaders) error {
	if !v.Configured() {
		return webhookError("auth: webhook secret is not configured")
	}
	if h.ID == "" || h.Timestamp == "" || h.Signature == "" {
		return webhookError("auth: webhook signature headers are missing")
	}

	sec, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return webhookError("auth: webhook timestamp is not a unix time")
	}
	skew := v.now().Sub(time.Unix(sec, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return webhookError("auth: webhook timestamp is outside the tolerance window")
	}

	expected := v.mac(h.ID, h.Timestamp, payload)
	for _, entry := range strings.Fields(h.Signature) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != webhookSigVersion {
			continue
		}
		got, err := base64.StdEncoding.Strict().DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return webhookError("auth: webhook signature does not match")
}

// Sign returns the "v1,<base64>" signature entry for a delivery. It is
// used by tests and by tooling that replays deliveries locally.
func (v *WebhookVerifier) Sign(id string, ts time.Time, payload []byte) string {
	if !v.Configured() {
		return ""
	}
	mac := v.mac(id, strconv.FormatInt(ts.Unix(), 10), payload)
	return webhookSigVersion + "," + base64.StdEncoding.EncodeToString(mac)
}

func (v *WebhookVerifier) mac(id, timestamp string, payload []byte) []byte {
	m := hmac.New(sha256.New, v.secret)
	m.Write([]byte(id))
	m.Write([]byte{'.'})
	m.Write([]byte(timestamp))
	m.Write([]byte{'.'})
	m.Write(payload)
	return m.Sum(nil)
}

func webhookError(msg string) *sserr.Error {
	return sserr.New(sserr.CodeAuthenticationWebhook, msg)
}
