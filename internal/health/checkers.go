package health

import (
	"context"
	"errors"
	"fmt"
)

// Pinger is anything that can report whether its backend is reachable, such
// as the Postgres store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks p. A nil p is reported as healthy: the backend is not
// configured.
func Ping(name string, p Pinger, optional bool) Checker {
	return Checker{
		Name:     name,
		Optional: optional,
		Check: func(ctx context.Context) error {
			if p == nil {
				return nil
			}
			return p.Ping(ctx)
		},
	}
}

// Configured fails while v is nil. It guards providers that the assistant
// cannot run without.
func Configured(name string, v any) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if v == nil {
				return errors.New("not configured")
			}
			return nil
		},
	}
}

// MinCount fails while count() is below want; used for the answer index,
// which is useless when empty.
func MinCount(name string, want int, count func() int) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if n := count(); n < want {
				return fmt.Errorf("%d entries loaded, want at least %d", n, want)
			}
			return nil
		},
	}
}

// NotDegraded is an optional check that fails while degraded() is true.
func NotDegraded(name string, degraded func() bool) Checker {
	return Checker{
		Name:     name,
		Optional: true,
		Check: func(context.Context) error {
			if degraded() {
				return errors.New("degraded")
			}
			return nil
		},
	}
}
