package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's collectors. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	ReviewsSubmitted    *prometheus.CounterVec
	ModerationDecisions *prometheus.CounterVec
	BroadcastDeliveries *prometheus.CounterVec
	UpdatesDropped      prometheus.Counter
	HandlerErrors       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ReviewsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewbot_reviews_submitted_total",
			Help: "Reviews stored by the submission and forward flows.",
		}, []string{"source", "with_photo"}),
		ModerationDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewbot_moderation_decisions_total",
			Help: "Operator moderation actions by outcome.",
		}, []string{"outcome"}),
		BroadcastDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewbot_broadcast_deliveries_total",
			Help: "Broadcast messages by delivery result.",
		}, []string{"result"}),
		UpdatesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "reviewbot_updates_dropped_total",
			Help: "Inbound updates dropped by the rate limiter.",
		}),
		HandlerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewbot_handler_errors_total",
			Help: "Update handlers that returned an error.",
		}, []string{"handler"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
