package probe

import (
	"errors"
	"fmt"

	"github.com/arismoko/strudelprobe/errext"
	"github.com/arismoko/strudelprobe/errext/exitcodes"
)

// ErrRuntimeNotActive is returned when evaluation is requested on a session
// whose runtime was never activated, or that was already released.
var ErrRuntimeNotActive = errors.New("runtime evaluation requested on an inactive session")

// NoPagesError means the endpoint reported no inspectable pages.
type NoPagesError struct{}

func (*NoPagesError) Error() string {
	return "no inspectable pages on the devtools endpoint"
}

// NoMatchError means no page's URL or title contained the requested matcher.
type NoMatchError struct {
	Matcher string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no page matched --tab %q", e.Matcher)
}

// AttachError means the session could not bind to the chosen page or could
// not activate runtime evaluation on it.
type AttachError struct {
	PageID string
	Op     string
	Err    error
}

func (e *AttachError) Error() string {
	if e.PageID == "" {
		return fmt.Sprintf("cannot %s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("cannot %s on page %q: %s", e.Op, e.PageID, e.Err)
}

func (e *AttachError) Unwrap() error {
	return e.Err
}

// NewAttachError wraps a failure to bind to a page.
func NewAttachError(pageID string, err error) *AttachError {
	return &AttachError{PageID: pageID, Op: "attach", Err: err}
}

// ExceptionError carries an Exception outcome across an error return, for
// callers that treat a throwing expression as a failure of their own
// operation. It keeps the distinct evaluation-exception exit code.
type ExceptionError struct {
	Exception *Exception
}

func (e *ExceptionError) Error() string {
	return e.Exception.Text
}

// ExitCode implements errext.HasExitCode.
func (e *ExceptionError) ExitCode() exitcodes.ExitCode {
	return exitcodes.EvaluationException
}

var _ errext.HasExitCode = &ExceptionError{}
