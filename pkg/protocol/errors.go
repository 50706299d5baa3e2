package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured   = errors.New("protocol: not configured")
	ErrNotRegistered   = errors.New("protocol: agent is not registered")
	ErrNotFound        = errors.New("protocol: not found")
	ErrInvalidArgument = errors.New("protocol: invalid argument")
	ErrDeliveryFailed  = errors.New("protocol: delivery failed")
	ErrNotInitialized  = errors.New("protocol: coordinator not initialized")

	// ErrInvalidTransition is an InvalidArgument raised by the escrow and
	// message state machines.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrInvalidArgument)
)

// DeliveryError wraps a failed Gateway call.
type DeliveryError struct {
	Op  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("protocol: %s: delivery failed: %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

func deliveryFailed(op string, err error) error {
	return &DeliveryError{Op: op, Err: err}
}

// KindOf names the error class of err so hosts can render it without string
// matching. It returns "" for nil and "Internal" for foreign errors.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return "NotConfigured"
	case errors.Is(err, ErrNotRegistered):
		return "NotRegistered"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrDeliveryFailed):
		return "DeliveryFailed"
	case errors.Is(err, ErrNotInitialized):
		return "NotInitialized"
	default:
		return "Internal"
	}
}
