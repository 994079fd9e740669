package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/siohaza/warden/internal/event"
	"github.com/siohaza/warden/internal/router"
)

// Metrics records warden activity. Each instance owns its collectors.
type Metrics struct {
	eventsTotal        *prometheus.CounterVec
	handlerOutcomes    *prometheus.CounterVec
	handlerDuration    *prometheus.HistogramVec
	bansTotal          *prometheus.CounterVec
	vipSlots           prometheus.Gauge
	votesTotal         prometheus.Counter
	voteAppliesTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	collectorSkipped   prometheus.Counter
}

// New registers the warden collectors on reg. Registering twice on the same
// registry panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_events_total",
				Help: "Total number of game events dispatched",
			},
			[]string{"type"},
		),
		handlerOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_handler_outcomes_total",
				Help: "Handler invocations by outcome",
			},
			[]string{"type", "handler", "status"},
		),
		handlerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_handler_duration_seconds",
				Help:    "Handler execution duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
			[]string{"handler"},
		),
		bansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_bans_total",
				Help: "Automatic bans issued",
			},
			[]string{"source"},
		),
		vipSlots: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_vip_slots",
				Help: "Last VIP slot count applied to the server",
			},
		),
		votesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_votes_total",
				Help: "Map votes registered",
			},
		),
		voteAppliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_vote_applies_total",
				Help: "Vote map apply attempts by outcome",
			},
			[]string{"outcome"},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_notifications_total",
				Help: "Webhook notifications by channel and result",
			},
			[]string{"channel", "ok"},
		),
		collectorSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_collector_skipped_total",
				Help: "Log lines skipped because they could not be decoded",
			},
		),
	}
}

var (
	once   sync.Once
	global *Metrics
)

// Default returns the process-wide Metrics registered on the default
// Prometheus registry served at /metrics.
func Default() *Metrics {
	once.Do(func() {
		global = New(prometheus.DefaultRegisterer)
	})
	return global
}

func (m *Metrics) ObserveEvent(t event.Type) {
	m.eventsTotal.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) ObserveOutcome(t event.Type, o router.Outcome) {
	m.handlerOutcomes.WithLabelValues(string(t), o.Handler, o.Status()).Inc()
	m.handlerDuration.WithLabelValues(o.Handler).Observe(o.Duration.Seconds())
}

func (m *Metrics) RecordBan(source string) {
	m.bansTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) SetVipSlots(n int) {
	m.vipSlots.Set(float64(n))
}

func (m *Metrics) RecordVote() {
	m.votesTotal.Inc()
}

func (m *Metrics) RecordVoteApply(outcome string) {
	m.voteAppliesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordNotification(channel string, ok bool) {
	m.notificationsTotal.WithLabelValues(channel, strconv.FormatBool(ok)).Inc()
}

func (m *Metrics) RecordSkippedLine() {
	m.collectorSkipped.Inc()
}
