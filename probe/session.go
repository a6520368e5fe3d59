package probe

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpruntime "github.com/chromedp/cdproto/runtime"

	"github.com/arismoko/strudelprobe/log"
)

// Target is the narrow capability the evaluation session needs from the
// protocol client: issuing session-scoped commands and detaching.
// chrome.Session implements it; tests substitute a fake.
type Target interface {
	cdp.Executor
	Detach(ctx context.Context) error
}

// Session evaluates expressions in the runtime of one attached page.
// Invariant: evaluation may only be requested while the runtime is active,
// and Release runs at most one detach no matter how often it is called.
type Session struct {
	target   Target
	logger   *log.Logger
	active   bool
	released bool
}

// NewSession wraps an attached target in an evaluation session. The runtime
// is not active yet; call ActivateRuntime first, or use WithSession.
func NewSession(t Target, logger *log.Logger) *Session {
	return &Session{target: t, logger: logger}
}

// ActivateRuntime enables the page's runtime domain so evaluation requests
// are accepted. Idempotent: a second call on an active session is a no-op.
func (s *Session) ActivateRuntime(ctx context.Context) error {
	if s.active {
		return nil
	}
	if err := cdpruntime.Enable().Do(cdp.WithExecutor(ctx, s.target)); err != nil {
		return &AttachError{Op: "activate runtime evaluation", Err: err}
	}
	s.active = true
	return nil
}

// Evaluate runs the expression in the page and classifies the reply. The
// expression is always evaluated as a parenthesized sub-expression so that
// object literals and multi-token input are not misparsed as statements.
// Promise results are awaited before classification; the context is the only
// deadline, so a hung expression blocks until the caller cancels.
func (s *Session) Evaluate(ctx context.Context, expression string) (Outcome, error) {
	if !s.active {
		return Outcome{}, ErrRuntimeNotActive
	}

	wrapped := "(" + expression + ")"
	s.logger.Debugf("probe:eval", "%s", wrapped)

	action := cdpruntime.Evaluate(wrapped).
		WithReturnByValue(true).
		WithAwaitPromise(true)
	result, exc, err := action.Do(cdp.WithExecutor(ctx, s.target))
	if err != nil {
		return Outcome{}, fmt.Errorf("evaluating %q: %w", expression, err)
	}

	outcome := Classify(result, exc)
	s.logger.Debugf("probe:eval", "-> %s", outcome.Kind)
	return outcome, nil
}

// EvaluateData evaluates the expression and returns plain data: the decoded
// value for serializable results, the remote-object metadata otherwise. A
// thrown or rejected expression comes back as an *ExceptionError.
func (s *Session) EvaluateData(ctx context.Context, expression string) (interface{}, error) {
	outcome, err := s.Evaluate(ctx, expression)
	if err != nil {
		return nil, err
	}
	switch outcome.Kind {
	case KindException:
		return nil, &ExceptionError{Exception: outcome.Exception}
	case KindValue:
		return outcome.Value, nil
	default:
		return outcome.Remote, nil
	}
}

// Release detaches from the page. Best effort: teardown errors are logged
// and swallowed so they cannot mask the operation's real outcome. Only the
// first call detaches; later calls do nothing.
func (s *Session) Release(ctx context.Context) {
	if s.released {
		return
	}
	s.released = true
	s.active = false
	if err := s.target.Detach(ctx); err != nil {
		s.logger.Warnf("probe", "detach failed: %s", err)
	}
}

// WithSession runs fn with an activated evaluation session on the target,
// guaranteeing release on every exit path, including evaluation failures and
// panics inside fn.
func WithSession(ctx context.Context, t Target, logger *log.Logger, fn func(*Session) error) error {
	s := NewSession(t, logger)
	defer s.Release(ctx)
	if err := s.ActivateRuntime(ctx); err != nil {
		return err
	}
	return fn(s)
}
