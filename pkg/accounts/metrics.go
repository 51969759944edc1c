package accounts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provisioning paths recorded by the provisions counter.
const (
	PathExisting  = "existing"
	PathCreated   = "created"
	PathRecovered = "recovered"
)

// Metrics holds the Prometheus collectors for account resolution. A nil
// *Metrics records nothing.
type Metrics struct {
	Provisions    *prometheus.CounterVec
	WebhookEvents *prometheus.CounterVec
	UserLookups   *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Provisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "account_provisions_total",
			Help:      "Token logins resolved to an account, by path (existing, created, recovered).",
		}, []string{"path"}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "webhook_events_total",
			Help:      "Provider lifecycle events applied, by type and result.",
		}, []string{"type", "result"}),
		UserLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "provider_user_lookups_total",
			Help:      "Provider user-info lookups, by outcome.",
		}, []string{"result"}),
	}
}

func (m *Metrics) provision(path string) {
	if m != nil {
		m.Provisions.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) webhookEvent(eventType, result string) {
	if m != nil {
		m.WebhookEvents.WithLabelValues(eventType, result).Inc()
	}
}

func (m *Metrics) userLookup(result string) {
	if m != nil {
		m.UserLookups.WithLabelValues(result).Inc()
	}
}
