package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the proofing flows. A nil *Metrics
// is valid and records nothing, which keeps unit tests free of global
// registry collisions.
type Metrics struct {
	LettersSent        prometheus.Counter
	LetterExpirations  prometheus.Counter
	Verifications      *prometheus.CounterVec
	CallbackRejections *prometheus.CounterVec
	SyncFailures       prometheus.Counter
}

// New creates and registers all proofing metrics. Call once per process.
func New() *Metrics {
	return &Metrics{
		LettersSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idproof_letters_sent_total",
			Help: "Total number of verification letters dispatched",
		}),
		LetterExpirations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idproof_letter_expirations_total",
			Help: "Total number of letter proofing states expired and cleared",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idproof_verifications_total",
			Help: "Total number of NINs verified, by proofing method",
		}, []string{"method"}),
		CallbackRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idproof_callback_rejections_total",
			Help: "Total number of rejected OIDC authorization callbacks, by reason",
		}, []string{"reason"}),
		SyncFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idproof_sync_failures_total",
			Help: "Total number of failed sync requests after a local commit",
		}),
	}
}

func (m *Metrics) IncLettersSent() {
	if m != nil {
		m.LettersSent.Inc()
	}
}

func (m *Metrics) IncLetterExpirations() {
	if m != nil {
		m.LetterExpirations.Inc()
	}
}

func (m *Metrics) IncVerifications(method string) {
	if m != nil {
		m.Verifications.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) IncCallbackRejections(reason string) {
	if m != nil {
		m.CallbackRejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncSyncFailures() {
	if m != nil {
		m.SyncFailures.Inc()
	}
}
