package types

import "errors"

// Sentinel errors. Callers match them with errors.Is; producers wrap them
// with context via fmt.Errorf("...: %w", ...).
var (
	// ErrValidation marks a rejected input such as a zero interval, an
	// out-of-range threshold or a severity outside [0,1].
	ErrValidation = errors.New("validation failed")

	// ErrLifecycle marks a state-machine violation, e.g. starting a monitor
	// that is already running.
	ErrLifecycle = errors.New("invalid lifecycle transition")

	// ErrTransientIO marks a failed OS counter or file read. Long-running
	// loops log and absorb it.
	ErrTransientIO = errors.New("transient I/O failure")
)
