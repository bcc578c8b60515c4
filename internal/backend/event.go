package backend

import "fmt"

// EventCode classifies asynchronous device events.
type EventCode int

// Event codes.
const (
	EventSourceChanged EventCode = iota + 1 // signal or resolution change
	EventDeviceLost                         // Param2 == 0 removed, 1 re-arrived
	EventErrorAbort                         // the driver aborted the stream
	EventStreamError                        // unrecoverable streaming error
	EventOther
)

func (c EventCode) String() string {
	switch c {
	case EventSourceChanged:
		return "source_changed"
	case EventDeviceLost:
		return "device_lost"
	case EventErrorAbort:
		return "error_abort"
	case EventStreamError:
		return "stream_error"
	case EventOther:
		return "other"
	default:
		return fmt.Sprintf("event(%d)", int(c))
	}
}

// Event is an asynchronous notification from a running device.
type Event struct {
	Code   EventCode
	Param1 int64
	Param2 int64
	Err    error
}

// Terminal reports whether the event ends the capture session.
func (e Event) Terminal() bool {
	switch e.Code {
	case EventDeviceLost:
		return e.Param2 == 0
	case EventErrorAbort, EventStreamError:
		return true
	default:
		return false
	}
}

// Status returns the terminal error status delivered to the application
// for e.
func (e Event) Status() int {
	if e.Code == EventDeviceLost {
		return StatusDeviceLost
	}
	return StatusAborted
}

// Terminal error statuses carried by a capture callback.
const (
	StatusConversionFailed = -1
	StatusDeviceLost       = -2
	StatusAborted          = -3
)
