package events

// Event type constants for kelindar/event.
const (
	TypeSourceChanged uint32 = iota + 1
	TypeCaptureStateChanged
	TypeCaptureError
	TypeMonitorEvent
	TypeLogEntry
	TypeCaptureMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SourceChangedEvent reports a capture device appearing or disappearing.
type SourceChangedEvent struct {
	Backend     string `json:"backend" example:"v4l2" doc:"Backend identifier"`
	Identifier  string `json:"identifier" example:"/dev/video0" doc:"Source identifier"`
	Description string `json:"description" example:"HD Pro Webcam C920" doc:"Human readable name"`
	Action      string `json:"action" example:"added" doc:"Action type: added, removed"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SourceChangedEvent.
func (e SourceChangedEvent) Type() uint32 { return TypeSourceChanged }

// CaptureStateChangedEvent reports a source lifecycle transition.
type CaptureStateChangedEvent struct {
	Backend   string `json:"backend" example:"v4l2" doc:"Backend identifier"`
	Source    string `json:"source" example:"/dev/video0" doc:"Source identifier"`
	Session   string `json:"session,omitempty" doc:"Capture session id"`
	From      string `json:"from" example:"bound" doc:"Previous state"`
	To        string `json:"to" example:"capturing" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CaptureStateChangedEvent.
func (e CaptureStateChangedEvent) Type() uint32 { return TypeCaptureStateChanged }

// CaptureErrorEvent reports the terminal error of a capture session.
type CaptureErrorEvent struct {
	Backend   string `json:"backend" example:"v4l2" doc:"Backend identifier"`
	Source    string `json:"source" example:"/dev/video0" doc:"Source identifier"`
	Session   string `json:"session" doc:"Capture session id"`
	Status    int    `json:"status" example:"-2" doc:"Error status delivered to the callback"`
	Error     string `json:"error,omitempty" example:"device lost" doc:"Detailed error description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Error timestamp"`
}

// Type returns the event type identifier for CaptureErrorEvent.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }

// MonitorEvent is an asynchronous device event seen by a backend monitor.
type MonitorEvent struct {
	Backend   string `json:"backend" example:"v4l2" doc:"Backend identifier"`
	Session   string `json:"session" doc:"Capture session id"`
	Code      string `json:"code" example:"source_changed" doc:"Event class"`
	Param1    int64  `json:"param1"`
	Param2    int64  `json:"param2"`
	Terminal  bool   `json:"terminal" doc:"Whether the event cancelled the capture"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for MonitorEvent.
func (e MonitorEvent) Type() uint32 { return TypeMonitorEvent }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"capture" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// CaptureMetricsEvent carries per-source frame counters.
type CaptureMetricsEvent struct {
	Source             string `json:"source" example:"v4l2//dev/video0" doc:"Registry key of the source"`
	Delivered          uint64 `json:"delivered" doc:"Frames handed to the callback"`
	DroppedPacer       uint64 `json:"dropped_pacer" doc:"Frames rejected by rate pacing"`
	DroppedBuffer      uint64 `json:"dropped_buffer" doc:"Frames dropped on buffer contention"`
	ConversionFailures uint64 `json:"conversion_failures" doc:"Failed pixel conversions"`
	TerminalErrors     uint64 `json:"terminal_errors" doc:"Sessions ended by an asynchronous error"`
}

// Type returns the event type identifier for CaptureMetricsEvent.
func (e CaptureMetricsEvent) Type() uint32 { return TypeCaptureMetrics }
