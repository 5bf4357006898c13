package slc

import (
	"errors"
	"fmt"

	"github.com/danmuck/hfpag/internal/procedure"
)

var (
	ErrUnparsable               = errors.New("slc: unparsable frame")
	ErrUnexpectedInitialization = errors.New("slc: slc initialization after initialized")
	ErrUnexpectedRequest        = errors.New("slc: terminated procedure left an unanswered request")
	ErrNotInitialized           = errors.New("slc: not initialized")
	ErrNotConnected             = errors.New("slc: not connected")
	ErrAlreadyConnected         = errors.New("slc: already connected")
	ErrClosed                   = errors.New("slc: channel closed")
	ErrPolledAfterTermination   = errors.New("slc: polled after termination")
)

// ProcedureError is a failure reported by a procedure. NotifyPeer is true
// when the HF is owed an error result code.
type ProcedureError struct {
	Marker     procedure.Marker
	Err        error
	NotifyPeer bool
}

func (e *ProcedureError) Error() string {
	return fmt.Sprintf("slc: procedure %s: %v", e.Marker, e.Err)
}

func (e *ProcedureError) Unwrap() error {
	return e.Err
}

// errorKind labels err for metrics.
func errorKind(err error) string {
	var pe *ProcedureError
	switch {
	case errors.As(err, &pe):
		return "procedure"
	case errors.Is(err, ErrUnparsable):
		return "unparsable"
	case errors.Is(err, ErrUnexpectedInitialization), errors.Is(err, procedure.ErrUnknownCommand):
		return "classification"
	case errors.Is(err, ErrUnexpectedRequest):
		return "unexpected_request"
	default:
		return "other"
	}
}
