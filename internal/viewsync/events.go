package viewsync

import (
	"log/slog"
	"time"
)

// EventType names a view change pushed to subscribers.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventRegionBatch  EventType = "region_batch"
	EventRegionLoaded EventType = "region_loaded"
	EventZoomApplied  EventType = "zoom_applied"
)

// BatchPriority orders progressive-load batches for rendering.
type BatchPriority string

const (
	PriorityCritical BatchPriority = "critical"
	PriorityNormal   BatchPriority = "normal"
)

// Event is one notification emitted by the Service. Fields not relevant to
// the event type are left zero.
type Event struct {
	Type      EventType     `json:"type"`
	NodeID    string        `json:"node_id,omitempty"`
	Batch     int           `json:"batch,omitempty"`
	Priority  BatchPriority `json:"priority,omitempty"`
	Count     int           `json:"count,omitempty"`
	ZoomLevel float64       `json:"zoom_level,omitempty"`
	At        time.Time     `json:"at"`
}

// Notifier receives view events. It is called without the service lock
// held, and must not block for long.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Recorder receives operation timings and view sizes. The metrics package
// provides the prometheus implementation.
type Recorder interface {
	ObserveOperation(op string, d time.Duration)
	SetViewGauges(loaded, visible, aggregated int)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, time.Duration) {}
func (nopRecorder) SetViewGauges(int, int, int)            {}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLoadOptions replaces the default load options used when a caller
// passes nil. Invalid options are ignored.
func WithLoadOptions(o LoadOptions) Option {
	return func(s *Service) {
		if o.Validate() == nil {
			s.loadOpts = o
		}
	}
}
