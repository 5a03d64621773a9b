// Package poolerr defines the closed set of error kinds returned by the
// browser pool. Every pool operation that can fail returns one of these
// sentinels, optionally wrapped with context via fmt.Errorf("...: %w", ...),
// so callers can test the kind with errors.Is.
package poolerr

import "errors"

var (
	// ErrCreationFailed means the factory could not produce or validate a
	// browser instance.
	ErrCreationFailed = errors.New("browser pool: creation failed")

	// ErrHealthCheckFailed means a previously valid instance failed its ping.
	ErrHealthCheckFailed = errors.New("browser pool: health check failed")

	// ErrShuttingDown means the operation was attempted after the pool's
	// shutdown latch was set. Never retryable.
	ErrShuttingDown = errors.New("browser pool: shutting down")

	// ErrConfigInvalid means a structural or range violation was found in
	// the pool configuration.
	ErrConfigInvalid = errors.New("browser pool: invalid configuration")
)
