package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus binds Recorder to a prometheus.Registerer, grounded on
// the teacher's extra/redisprometheus module (a *prometheus.Collector
// for go-redis pool stats); here the same client library instruments
// the connection engine instead of a pool.
type Prometheus struct {
	submitted prometheus.Counter
	completed prometheus.Counter
	pending   prometheus.Gauge
	pushes    prometheus.Counter
	reconnect prometheus.Counter
	roundTrip prometheus.Histogram
}

// NewPrometheus registers a full set of respmux collectors on reg and
// returns a Recorder backed by them.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	p := &Prometheus{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "commands_submitted_total",
			Help: "Commands submitted to the connection engine.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "commands_completed_total",
			Help: "Commands whose reply has been delivered to a submitter.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "engine", Name: "pending_slots",
			Help: "Slots currently in the pending FIFO.",
		}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "pushes_received_total",
			Help: "Out-of-band push frames delivered to the push channel.",
		}),
		reconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "reconnect_attempts_total",
			Help: "Reconnection attempts made after a connection loss.",
		}),
		roundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "engine", Name: "round_trip_seconds",
			Help:    "Time from a command's submission to its completion.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(p.submitted, p.completed, p.pending, p.pushes, p.reconnect, p.roundTrip)
	return p
}

func (p *Prometheus) CommandsSubmitted(n int)   { p.submitted.Add(float64(n)) }
func (p *Prometheus) CommandsCompleted(n int)   { p.completed.Add(float64(n)) }
func (p *Prometheus) PendingDepth(n int)        { p.pending.Set(float64(n)) }
func (p *Prometheus) PushesReceived(n int)      { p.pushes.Add(float64(n)) }
func (p *Prometheus) ReconnectAttempted()       { p.reconnect.Inc() }
func (p *Prometheus) RoundTrip(d time.Duration) { p.roundTrip.Observe(d.Seconds()) }

var _ Recorder = (*Prometheus)(nil)
