// Package lumierr defines the sentinel error kinds shared across LumiRise's
// subsystems so callers can classify failures with errors.Is instead of
// string matching.
package lumierr

import "errors"

var (
	// ErrInvalidArgument marks an out-of-range value or missing required field.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIllegalTransition marks a state-machine trigger not legal from the
	// current state.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrNotConnected marks a publish or subscribe attempted while the MQTT
	// session is down.
	ErrNotConnected = errors.New("not connected")

	// ErrTimeout marks a bounded operation (publish, ping) that did not
	// resolve in time.
	ErrTimeout = errors.New("timeout")

	// ErrParseFailure marks a malformed status payload. Callers log and
	// discard; it never corrupts cached state.
	ErrParseFailure = errors.New("parse failure")

	// ErrTransientBroker marks a broker-reported rejection or reset the
	// supervisor absorbs and retries.
	ErrTransientBroker = errors.New("transient broker error")

	// ErrDisposed marks use of a component after it was disposed.
	ErrDisposed = errors.New("object disposed")
)
