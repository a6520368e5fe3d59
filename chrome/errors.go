package chrome

import (
	"errors"
	"fmt"

	"github.com/arismoko/strudelprobe/errext"
	"github.com/arismoko/strudelprobe/errext/exitcodes"
)

// ErrChannelClosed is returned when a response channel is closed before a
// reply to an in-flight command arrives.
var ErrChannelClosed = errors.New("channel closed")

// ConnectionError means the debugging endpoint could not be reached or
// returned a malformed discovery response. It is fatal to the invocation;
// the operator is expected to verify the target browser is running with
// debugging enabled and re-run.
type ConnectionError struct {
	Endpoint Endpoint
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DependencyError means the endpoint answered but does not expose the
// DevTools discovery API, so the debugging capability this tool depends on
// is unavailable. This is a setup problem, not a runtime one.
type DependencyError struct {
	Endpoint Endpoint
	Reason   string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf(
		"endpoint %s does not speak the DevTools protocol (%s); start Chromium with: chromium --remote-debugging-port=%d",
		e.Endpoint, e.Reason, e.Endpoint.Port)
}

// ExitCode implements errext.HasExitCode.
func (e *DependencyError) ExitCode() exitcodes.ExitCode {
	return exitcodes.ProtocolUnsupported
}

var _ errext.HasExitCode = &DependencyError{}
