package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for credential verification. A
// nil *Metrics records nothing.
type Metrics struct {
	TokenVerifications *prometheus.CounterVec
	JWKSLookups        *prometheus.CounterVec
	JWKSFetches        *prometheus.CounterVec
	WebhookDeliveries  *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TokenVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "token_verifications_total",
			Help:      "Bearer token verifications, by outcome code.",
		}, []string{"result"}),
		JWKSLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "jwks_cache_lookups_total",
			Help:      "JWKS cache lookups, by hit or miss.",
		}, []string{"result"}),
		JWKSFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "jwks_fetches_total",
			Help:      "JWKS fetches from identity provider issuers, by outcome.",
		}, []string{"result"}),
		WebhookDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "webhook_signature_checks_total",
			Help:      "Webhook signature checks, by outcome.",
		}, []string{"result"}),
	}
}

func (m *Metrics) verification(result string) {
	if m != nil {
		m.TokenVerifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) jwksLookup(result string) {
	if m != nil {
		m.JWKSLookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) jwksFetch(result string) {
	if m != nil {
		m.JWKSFetches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) webhook(result string) {
	if m != nil {
		m.WebhookDeliveries.WithLabelValues(result).Inc()
	}
}
