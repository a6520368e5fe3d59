// Package exitcodes contains the constants representing the possible
// strudelprobe exit error codes. Values should be between 0 and 125:
// https://unix.stackexchange.com/questions/418784/what-is-the-min-and-max-values-of-exit-codes-in-linux
package exitcodes

// ExitCode is just a type representing a process exit code.
type ExitCode uint8

// list of exit codes used by strudelprobe
const (
	// EvaluationException means the evaluated expression itself threw or
	// rejected. This is an expected, first-class outcome; the exception
	// message and payload are printed before exiting.
	EvaluationException ExitCode = 1

	// ProtocolUnsupported means the endpoint answered but does not expose
	// the DevTools discovery API, i.e. the debugging capability this tool
	// depends on is not available.
	ProtocolUnsupported ExitCode = 2

	// SetupFailed covers connection, selection and attach failures.
	SetupFailed ExitCode = 3
)
