package spiflash

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrOutOfRange           = errors.New("address out of range")
	ErrMisalignedAddress    = errors.New("address not aligned to erase unit")
	ErrUnsupportedOperation = errors.New("operation not supported by chip family")
	ErrTimeout              = errors.New("timeout waiting for chip ready")
	ErrProtocolViolation    = errors.New("write enable latch still set after command")
	ErrTransportFailure     = errors.New("transport failure")

	// ErrAbandoned is returned when the context ends while a program or
	// erase is still running inside the chip. The affected region is in an
	// undefined, chip dependent state.
	ErrAbandoned = errors.New("operation abandoned, chip state unknown")
)

var kinds = []error{
	ErrOutOfRange,
	ErrMisalignedAddress,
	ErrUnsupportedOperation,
	ErrTimeout,
	ErrProtocolViolation,
	ErrAbandoned,
	ErrTransportFailure,
}

// OpError describes a failed driver operation.
type OpError struct {
	Op     string
	Offset int64 // -1 if the operation has no address

	// Completed is the number of bytes programmed before the failure.
	Completed int

	// Kind is one of the Err* values above, or a context error when the
	// operation was cancelled before any command was issued.
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	msg := "spiflash: " + e.Op
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at 0x%x", e.Offset)
	}
	if e.Completed > 0 {
		msg += fmt.Sprintf(" (%d bytes completed)", e.Completed)
	}
	switch {
	case e.Err == nil:
		msg += ": " + e.Kind.Error()
	case errors.Is(e.Err, e.Kind):
		msg += ": " + e.Err.Error()
	default:
		msg += ": " + e.Kind.Error() + ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil || e.Err == e.Kind {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func classify(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}

	/* Cancelled before anything was sent to the chip */
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}

	return ErrTransportFailure
}

func opError(op string, offset int64, completed int, err error) error {
	if err == nil {
		return nil
	}

	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}

	kind := classify(err)
	if err == kind {
		err = nil
	}

	return &OpError{
		Op:        op,
		Offset:    offset,
		Completed: completed,
		Kind:      kind,
		Err:       err,
	}
}
