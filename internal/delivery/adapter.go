// Package delivery defines the uniform dispatch contract across the
// heterogeneous notification transports and the adapters implementing it.
// Adapters isolate transport failure modes from the worker: they never
// panic past this boundary, every transport problem comes back as an
// error value.
package delivery

import (
	"context"
	"errors"
	"fmt"
)

// Adapter is the uniform delivery contract for one channel type.
type Adapter interface {
	// Type returns the channel type this adapter serves.
	Type() string

	// Deliver sends one message. Transient transport problems are plain
	// errors; permanently undeliverable input is wrapped in
	// PermanentError so the worker can skip pointless retries.
	Deliver(ctx context.Context, recipient, subject, body string) error

	// HealthCheck probes the transport without delivering anything,
	// e.g. a credential validation call.
	HealthCheck(ctx context.Context) error
}

// PermanentError marks a delivery failure that retrying cannot fix, such
// as a structurally invalid recipient.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a permanent delivery failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is a permanent delivery failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

func invalidRecipient(channelType, recipient string) error {
	return Permanent(fmt.Errorf("invalid %s recipient %q", channelType, recipient))
}
