package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	// eventsTotal counts emitted events by type.
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tryon_events_total",
			Help: "Total number of pipeline events emitted, by type.",
		},
		[]string{"type"},
	)

	// phaseDuration records pipeline phase durations by event type. Only
	// events carrying a duration contribute.
	phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tryon_phase_duration_seconds",
			Help:    "Duration of pipeline phases in seconds, by event type.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(eventsTotal, phaseDuration)
}

// Emitter writes typed pipeline events to a zerolog logger and keeps the
// Prometheus aggregates current. The zero value is unusable; construct with
// NewEmitter. A nil *Emitter drops every event.
type Emitter struct {
	log zerolog.Logger
}

// NewEmitter returns an Emitter writing through log.
func NewEmitter(log zerolog.Logger) *Emitter {
	return &Emitter{log: log}
}

// Emit records one event. It assigns the timestamp and a fresh correlation
// id, bumps the per-type counter, and logs the structured record. Emit never
// fails: a panic inside the sink is swallowed so observability can never
// break the operation being observed.
func (e *Emitter) Emit(t Type, sessionID, origin string, fields map[string]any) {
	if e == nil {
		return
	}
	defer func() { _ = recover() }()

	ev := Event{
		Type:          t,
		Timestamp:     time.Now().UTC(),
		SessionID:     sessionID,
		Origin:        origin,
		CorrelationID: uuid.NewString(),
		Fields:        fields,
	}

	eventsTotal.WithLabelValues(string(t)).Inc()
	if d, ok := durationField(fields); ok {
		phaseDuration.WithLabelValues(string(t)).Observe(d.Seconds())
	}

	rec := e.log.Info()
	if t == GenerationFailed || t == Error {
		rec = e.log.Error()
	}
	rec = rec.
		Str("event_type", string(ev.Type)).
		Time("event_time", ev.Timestamp).
		Str("origin", ev.Origin).
		Str("correlation_id", ev.CorrelationID)
	if ev.SessionID != "" {
		rec = rec.Str("session_id", ev.SessionID)
	}
	if len(ev.Fields) > 0 {
		rec = rec.Fields(ev.Fields)
	}
	rec.Msg("pipeline event")
}

// durationField extracts a duration payload value if present. Both a
// time.Duration under "duration" and a millisecond count under "duration_ms"
// are recognized.
func durationField(fields map[string]any) (time.Duration, bool) {
	if fields == nil {
		return 0, false
	}
	if v, ok := fields["duration"]; ok {
		if d, ok := v.(time.Duration); ok {
			return d, true
		}
	}
	if v, ok := fields["duration_ms"]; ok {
		switch n := v.(type) {
		case int64:
			return time.Duration(n) * time.Millisecond, true
		case int:
			return time.Duration(n) * time.Millisecond, true
		case float64:
			return time.Duration(n * float64(time.Millisecond)), true
		}
	}
	return 0, false
}
