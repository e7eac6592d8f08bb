package robot_interaction

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("robot_interaction")

var (
	feedbackEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robot_interaction_feedback_events_total",
		Help: "Feedback events processed, by handler and control kind",
	}, []string{"handler", "instance", "kind"})

	feedbackDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robot_interaction_feedback_dropped_total",
		Help: "Feedback events dropped because their pose could not be transformed",
	}, []string{"handler", "instance", "kind"})

	solveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robot_interaction_solve_failures_total",
		Help: "Feedback events whose target could not be satisfied",
	}, []string{"handler", "instance", "kind"})

	solveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "robot_interaction_solve_duration_seconds",
		Help:    "Time spent in the solver while holding exclusive state access",
		Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"handler", "instance", "kind"})

	acquireWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "robot_interaction_exclusive_wait_seconds",
		Help:    "Time writers waited for exclusive state access",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}, []string{"handler", "instance"})

	controlsInError = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "robot_interaction_controls_in_error",
		Help: "Number of controls whose last feedback could not be applied",
	}, []string{"handler", "instance"})
)

// handlerMetrics binds the package collectors to one handler. Handler names may
// repeat, so every handler also gets its own instance label.
type handlerMetrics struct {
	acquireWait prometheus.Observer
	inError     prometheus.Gauge
	name        string
	instance    string
}

func newHandlerMetrics(name string) *handlerMetrics {
	m := &handlerMetrics{name: name, instance: uuid.NewString()}
	m.acquireWait = acquireWait.With(m.handlerLabels())
	m.inError = controlsInError.With(m.handlerLabels())
	return m
}

func (m *handlerMetrics) handlerLabels() prometheus.Labels {
	return prometheus.Labels{"handler": m.name, "instance": m.instance}
}

func (m *handlerMetrics) kindLabels(kind ControlKind) prometheus.Labels {
	return prometheus.Labels{"handler": m.name, "instance": m.instance, "kind": kind.String()}
}

func (m *handlerMetrics) event(kind ControlKind) {
	feedbackEvents.With(m.kindLabels(kind)).Inc()
}

func (m *handlerMetrics) dropped(kind ControlKind) {
	feedbackDropped.With(m.kindLabels(kind)).Inc()
}

func (m *handlerMetrics) solved(kind ControlKind, ok bool, seconds float64) {
	solveDuration.With(m.kindLabels(kind)).Observe(seconds)
	if !ok {
		solveFailures.With(m.kindLabels(kind)).Inc()
	}
}

// forget removes every series of this handler once it is closed, whatever kind
// label they carry.
func (m *handlerMetrics) forget() {
	instance := prometheus.Labels{"instance": m.instance}
	acquireWait.DeletePartialMatch(instance)
	controlsInError.DeletePartialMatch(instance)
	feedbackEvents.DeletePartialMatch(instance)
	feedbackDropped.DeletePartialMatch(instance)
	solveFailures.DeletePartialMatch(instance)
	solveDuration.DeletePartialMatch(instance)
}
