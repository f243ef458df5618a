package booking

import (
	"errors"
	"fmt"
)

var (
	ErrSlotTaken = errors.New("booking: slot already taken")
	ErrNoSubject = errors.New("booking: missing subject")
)

// InvalidSelectionError rejects a request before any store I/O.
type InvalidSelectionError struct {
	Field string
	Err   error
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("booking: invalid selection (%s): %v", e.Field, e.Err)
}

func (e *InvalidSelectionError) Unwrap() error {
	return e.Err
}

// Half names one copy of a booking.
type Half string

const (
	HalfCustomer Half = "customer"
	HalfBarber   Half = "barber"
)

// PartialWriteError reports a booking where exactly one copy was written.
// Compensated is true once the written copy has been deleted again.
// Retained is true when the written copy already existed before the
// request, so it was left in place instead of compensated.
type PartialWriteError struct {
	Succeeded     Half
	Failed        Half
	Err           error
	Compensated   bool
	Retained      bool
	CompensateErr error
}

func (e *PartialWriteError) Error() string {
	msg := fmt.Sprintf("booking: %s copy written, %s copy failed: %v", e.Succeeded, e.Failed, e.Err)
	if e.Compensated {
		return msg + " (compensated)"
	}
	if e.Retained {
		return msg + " (existing copy kept)"
	}
	if e.CompensateErr != nil {
		return fmt.Sprintf("%s (compensation failed: %v)", msg, e.CompensateErr)
	}
	return msg
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

type Reason string

const (
	ReasonSlotTaken      Reason = "slot-taken"
	ReasonPartialWrite   Reason = "partial-write"
	ReasonPermanentStore Reason = "permanent-store"
)

// BookingFailure is the error of a booking that passed validation but
// could not be committed.
type BookingFailure struct {
	Reason  Reason
	Partial *PartialWriteError
	Err     error
}

func (e *BookingFailure) Error() string {
	switch {
	case e.Partial != nil:
		return fmt.Sprintf("booking failed (%s): %v", e.Reason, e.Partial)
	case e.Err != nil:
		return fmt.Sprintf("booking failed (%s): %v", e.Reason, e.Err)
	default:
		return fmt.Sprintf("booking failed (%s)", e.Reason)
	}
}

func (e *BookingFailure) Unwrap() []error {
	var errs []error
	if e.Partial != nil {
		errs = append(errs, e.Partial)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsReason reports whether err is a BookingFailure with the given reason.
func IsReason(err error, reason Reason) bool {
	var bf *BookingFailure
	return errors.As(err, &bf) && bf.Reason == reason
}
