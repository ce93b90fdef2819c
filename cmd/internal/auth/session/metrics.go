package session

import "github.com/prometheus/client_golang/prometheus"

// Validation outcomes recorded by Metrics.
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeRenewed       = "renewed"
	OutcomeNotFound      = "not_found"
	OutcomeExpired       = "expired"
	OutcomeError         = "error"
)

// Metrics holds the Prometheus collectors for the session lifecycle.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	issued      prometheus.Counter
	validations *prometheus.CounterVec
	invalidated *prometheus.CounterVec
}

// NewMetrics creates the session collectors and registers them with reg.
// A nil reg leaves the collectors unregistered, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lucia",
			Name:      "sessions_issued_total",
			Help:      "Sessions created.",
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lucia",
			Name:      "session_validations_total",
			Help:      "Session validations by outcome.",
		}, []string{"outcome"}),
		invalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lucia",
			Name:      "sessions_invalidated_total",
			Help:      "Explicit invalidations by scope (session or user).",
		}, []string{"scope"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.issued, m.validations, m.invalidated} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

func (m *Metrics) observeValidation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeInvalidated(scope string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidated.WithLabelValues(scope).Add(float64(n))
}
