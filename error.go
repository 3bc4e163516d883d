package envbeacon

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAdvertisingDataOverflow is returned when a frame does not fit in the
	// 31 bytes of an advertising or scan response packet. It is detected
	// before anything is handed to the radio stack.
	ErrAdvertisingDataOverflow = errors.New("envbeacon: advertising data exceeds 31 bytes")

	// ErrNotPoweredOn is returned by operations that need the radio stack to
	// be initialized with PowerOn first.
	ErrNotPoweredOn = errors.New("envbeacon: peripheral is not powered on")

	// ErrAlreadyActive is returned when activating or reconfiguring a service
	// or characteristic that was already activated.
	ErrAlreadyActive = errors.New("envbeacon: already activated")

	// ErrNotActive is returned when writing or notifying a characteristic
	// that was never activated.
	ErrNotActive = errors.New("envbeacon: not activated")

	// ErrValueTooLong is returned when a local write exceeds the maximum value
	// length of a characteristic.
	ErrValueTooLong = errors.New("envbeacon: value exceeds characteristic max length")

	// ErrNoNotify is returned when notifying a characteristic that lacks the
	// notify property.
	ErrNoNotify = errors.New("envbeacon: characteristic does not support notify")
)

// StackError is an error code reported by the radio stack. The values follow
// the Nordic SoftDevice global error codes.
type StackError uint32

// Well-known radio stack error codes.
const (
	StackErrorInternal        StackError = 3
	StackErrorNoMem           StackError = 4
	StackErrorNotFound        StackError = 5
	StackErrorNotSupported    StackError = 6
	StackErrorInvalidParam    StackError = 7
	StackErrorInvalidState    StackError = 8
	StackErrorInvalidLength   StackError = 9
	StackErrorDataSize        StackError = 12
	StackErrorForbidden       StackError = 15
	StackErrorBusy            StackError = 17
	StackErrorNoResources     StackError = 19
	StackErrorConnCountExceed StackError = 18
)

func (e StackError) Error() string {
	switch e {
	case 0:
		return "no error"
	case 1:
		return "SVC handler is missing"
	case 2:
		return "SoftDevice has not been enabled"
	case StackErrorInternal:
		return "internal error"
	case StackErrorNoMem:
		return "no memory for operation"
	case StackErrorNotFound:
		return "not found"
	case StackErrorNotSupported:
		return "not supported"
	case StackErrorInvalidParam:
		return "invalid parameter"
	case StackErrorInvalidState:
		return "invalid state, operation disallowed in this state"
	case StackErrorInvalidLength:
		return "invalid length"
	case 10:
		return "invalid flags"
	case 11:
		return "invalid data"
	case StackErrorDataSize:
		return "invalid data size"
	case 13:
		return "operation timed out"
	case 14:
		return "null pointer"
	case StackErrorForbidden:
		return "forbidden operation"
	case 16:
		return "bad memory address"
	case StackErrorBusy:
		return "busy"
	case StackErrorConnCountExceed:
		return "maximum connection count exceeded"
	case StackErrorNoResources:
		return "not enough resources for operation"
	}
	if e < 0x1000 {
		return "other global error"
	}
	return fmt.Sprintf("stack error 0x%04x", uint32(e))
}

// makeError returns an error (using the StackError type) if the error code is
// non-zero, otherwise it returns nil.
func makeError(code uint32) error {
	if code != 0 {
		return StackError(code)
	}
	return nil
}

// ActivationError is returned when the radio stack rejects the declaration of
// a service or characteristic. It is recoverable: the caller may retry or
// continue without the feature.
type ActivationError struct {
	UUID UUID
	Err  error
}

func (e *ActivationError) Error() string {
	return "envbeacon: activate " + e.UUID.String() + ": " + e.Err.Error()
}

func (e *ActivationError) Unwrap() error { return e.Err }

// Code returns the radio stack error code behind the failure, or 0 when the
// stack did not report one.
func (e *ActivationError) Code() StackError {
	var code StackError
	if errors.As(e.Err, &code) {
		return code
	}
	return 0
}

// ServiceActivationError reports the characteristics of a service that failed
// to activate. Activation does not stop at the first failure, so the
// characteristics that succeeded stay active.
type ServiceActivationError struct {
	Service UUID

	// Commit is set when the stack refused to publish the service.
	Commit *ActivationError

	Failed []*ActivationError
}

func (e *ServiceActivationError) Error() string {
	if e.Commit == nil && len(e.Failed) == 0 {
		return "envbeacon: service " + e.Service.String() + " activation failed"
	}
	var b strings.Builder
	b.WriteString("envbeacon: service ")
	b.WriteString(e.Service.String())
	if e.Commit != nil {
		b.WriteString(": commit: ")
		b.WriteString(e.Commit.Err.Error())
	}
	if len(e.Failed) != 0 {
		fmt.Fprintf(&b, ": %d characteristic(s) failed, first: ", len(e.Failed))
		b.WriteString(e.Failed[0].Error())
	}
	return b.String()
}

// First returns the first characteristic failure, in attachment order.
func (e *ServiceActivationError) First() *ActivationError {
	if len(e.Failed) == 0 {
		return nil
	}
	return e.Failed[0]
}

func (e *ServiceActivationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed)+1)
	if e.Commit != nil {
		errs = append(errs, e.Commit)
	}
	for _, f := range e.Failed {
		errs = append(errs, f)
	}
	return errs
}

// ServiceRegistrationError is returned when a service cannot be added to the
// advertised data, typically because the advertising packet is full.
type ServiceRegistrationError struct {
	UUID UUID
	Err  error
}

func (e *ServiceRegistrationError) Error() string {
	return "envbeacon: register service " + e.UUID.String() + ": " + e.Err.Error()
}

func (e *ServiceRegistrationError) Unwrap() error { return e.Err }
