package vidcap

import (
	"errors"

	"github.com/smazurov/vidcap/internal/capture"
)

// Error is the coded error returned by every operation. Match with
// errors.Is against the sentinels below.
type Error = capture.Error

// Sentinels for errors.Is.
var (
	ErrAlreadyAcquired        = capture.ErrAlreadyAcquired
	ErrInvalidStateTransition = capture.ErrInvalidStateTransition
	ErrFormatUnsupported      = capture.ErrFormatUnsupported
	ErrBackendResourceFailure = capture.ErrBackendResourceFailure
	ErrOutOfMemory            = capture.ErrOutOfMemory
	ErrCaptureTerminalError   = capture.ErrCaptureTerminalError
)

// ErrShortBuffer is returned by SrcListGet when the destination cannot
// hold the last source list.
var ErrShortBuffer = errors.New("vidcap: source list buffer too small")
