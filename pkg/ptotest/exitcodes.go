// Package ptotest provides public constants for external tools integrating
// with the ptotest CLI.
package ptotest

// Exit codes returned by the ptotest CLI.
// These constants allow external tools to check exit codes symbolically
// rather than using magic numbers.
const (
	// ExitSuccess indicates every requested test passed.
	ExitSuccess = 0

	// ExitFailure indicates a test failed or a pipeline stage aborted.
	ExitFailure = 1

	// ExitConfigError indicates a configuration error (bad flags, invalid
	// configuration, incomplete artifact directory).
	ExitConfigError = 2

	// ExitEnvError indicates an environment error (frontend or runtime
	// installation not found).
	ExitEnvError = 3
)
