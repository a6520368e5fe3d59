package probe

import (
	"context"
	"errors"
	"fmt"
	"testing"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arismoko/strudelprobe/errext"
	"github.com/arismoko/strudelprobe/log"
)

// fakeTarget implements Target in-memory, replying to Runtime commands with
// canned protocol JSON.
type fakeTarget struct {
	evalReply   string
	evalErr     error
	enableErr   error
	detachErr   error
	enableCalls int
	detachCalls int
	expressions []string
}

func (f *fakeTarget) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	switch method {
	case cdpruntime.CommandEnable:
		f.enableCalls++
		return f.enableErr
	case cdpruntime.CommandEvaluate:
		p, ok := params.(*cdpruntime.EvaluateParams)
		if !ok {
			return fmt.Errorf("unexpected params type %T", params)
		}
		f.expressions = append(f.expressions, p.Expression)
		if f.evalErr != nil {
			return f.evalErr
		}
		return easyjson.Unmarshal([]byte(f.evalReply), res)
	}
	return fmt.Errorf("unexpected method %q", method)
}

func (f *fakeTarget) Detach(ctx context.Context) error {
	f.detachCalls++
	return f.detachErr
}

func TestActivateRuntimeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTarget{}
	s := NewSession(ft, log.NewNullLogger())

	require.NoError(t, s.ActivateRuntime(ctx))
	require.NoError(t, s.ActivateRuntime(ctx))
	assert.Equal(t, 1, ft.enableCalls, "re-activation must not hit the wire again")
}

func TestActivateRuntimeFailure(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTarget{enableErr: errors.New("target gone")}
	s := NewSession(ft, log.NewNullLogger())

	err := s.ActivateRuntime(ctx)
	require.Error(t, err)

	var attachErr *AttachError
	assert.ErrorAs(t, err, &attachErr)
}

func TestEvaluateRequiresActiveRuntime(t *testing.T) {
	s := NewSession(&fakeTarget{}, log.NewNullLogger())
	_, err := s.Evaluate(context.Background(), "1+1")
	assert.ErrorIs(t, err, ErrRuntimeNotActive)
}

func TestEvaluateValue(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTarget{evalReply: `{"result":{"type":"number","value":2,"description":"2"}}`}
	s := NewSession(ft, log.NewNullLogger())
	require.NoError(t, s.ActivateRuntime(ctx))

	outcome, err := s.Evaluate(ctx, "1+1")
	require.NoError(t, err)
	assert.Equal(t, KindValue, outcome.Kind)
	assert.Equal(t, float64(2), outcome.Value)
}

func TestEvaluateWrapsExpression(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTarget{evalReply: `{"result":{"type":"number","value":2}}`}
	s := NewSession(ft, log.NewNullLogger())
	require.NoError(t, s.ActivateRuntime(ctx))

	_, err := s.Evaluate(ctx, "{a: 1}")
	require.NoError(t, err)
	require.Len(t, ft.expressions, 1)
	// Parenthesized so object literals are not parsed as blocks.
	assert.Equal(t, "({a: 1})", ft.expressions[0])
}

func TestEvaluateException(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTarget{evalReply: `{
		"result": {"type":"object","subtype":"error","className":"TypeError"},
		"exceptionDetails": {
			"exceptionId": 1,
			"text": "Uncaught",
			"lineNumber": 0,
			"columnNumber": 0,
			"exception": {
				"type": "object",
				"subtype": "error",
				"className": "TypeError",
				"description": "TypeError: Cannot read properties of undefined (reading 'prop')"
			}
		}
	}`}
	s := NewSession(ft, log.NewNullLogger())
	require.NoError(t, s.ActivateRuntime(ctx))

	outcome, err := s.Evaluate(ctx, "({}).nonexistent.prop")
	require.NoError(t, err)
	require.Equal(t, KindException, outcome.Kind)
	assert.NotEmpty(t, outcome.Exception.Text)
	assert.Contains(t, outcome.Exception.Detail, "Cannot read properties")
}

func TestEvaluateUnserializable(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTarget{evalReply: `{"result":{"type":"function","className":"Function","description":"() => {}","objectId":"obj-1"}}`}
	s := NewSession(ft, log.NewNullLogger())
	require.NoError(t, s.ActivateRuntime(ctx))

	outcome, err := s.Evaluate(ctx, "(() => {})")
	require.NoError(t, err)
	require.Equal(t, KindUnserializable, outcome.Kind)
	assert.Equal(t, "function", outcome.Remote.Type)
	assert.Equal(t, "() => {}", outcome.Remote.Description)
}

func TestEvaluateDataException(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTarget{evalReply: `{"exceptionDetails":{"exceptionId":1,"text":"Uncaught","lineNumber":0,"columnNumber":0}}`}
	s := NewSession(ft, log.NewNullLogger())
	require.NoError(t, s.ActivateRuntime(ctx))

	_, err := s.EvaluateData(ctx, "boom()")
	require.Error(t, err)

	var excErr *ExceptionError
	require.ErrorAs(t, err, &excErr)

	var ecerr errext.HasExitCode
	require.ErrorAs(t, err, &ecerr)
	assert.EqualValues(t, 1, ecerr.ExitCode())
}

func TestReleaseRunsDetachOnce(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTarget{}
	s := NewSession(ft, log.NewNullLogger())

	s.Release(ctx)
	s.Release(ctx)
	assert.Equal(t, 1, ft.detachCalls)
}

func TestReleaseSwallowsDetachError(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTarget{detachErr: errors.New("already detached")}
	s := NewSession(ft, log.NewNullLogger())

	// Must not panic or surface the teardown error.
	s.Release(ctx)
	assert.Equal(t, 1, ft.detachCalls)
}

func TestWithSessionReleasesOnEveryExitPath(t *testing.T) {
	ctx := context.Background()

	t.Run("normal return", func(t *testing.T) {
		ft := &fakeTarget{evalReply: `{"result":{"type":"number","value":2}}`}
		err := WithSession(ctx, ft, log.NewNullLogger(), func(s *Session) error {
			_, err := s.Evaluate(ctx, "1+1")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, ft.detachCalls)
	})

	t.Run("activation failure", func(t *testing.T) {
		ft := &fakeTarget{enableErr: errors.New("no runtime")}
		err := WithSession(ctx, ft, log.NewNullLogger(), func(s *Session) error {
			t.Fatal("fn must not run when activation fails")
			return nil
		})
		require.Error(t, err)
		assert.Equal(t, 1, ft.detachCalls)
	})

	t.Run("evaluation protocol failure", func(t *testing.T) {
		ft := &fakeTarget{evalErr: errors.New("connection lost")}
		err := WithSession(ctx, ft, log.NewNullLogger(), func(s *Session) error {
			_, err := s.Evaluate(ctx, "1+1")
			return err
		})
		require.Error(t, err)
		assert.Equal(t, 1, ft.detachCalls)
	})

	t.Run("caller-level failure", func(t *testing.T) {
		ft := &fakeTarget{}
		err := WithSession(ctx, ft, log.NewNullLogger(), func(s *Session) error {
			return errors.New("unrelated")
		})
		require.Error(t, err)
		assert.Equal(t, 1, ft.detachCalls)
	})
}

func TestPresetExpressions(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTarget{evalReply: `{"result":{"type":"string","value":"[object Map]"}}`}
	s := NewSession(ft, log.NewNullLogger())
	require.NoError(t, s.ActivateRuntime(ctx))

	report, err := InspectSoundMap(ctx, s)
	require.NoError(t, err)
	require.Len(t, ft.expressions, 4)
	assert.Equal(t, "(Object.prototype.toString.call(window.soundMap))", ft.expressions[0])
	assert.Equal(t, "(typeof window.soundMap?.get)", ft.expressions[1])
	assert.Equal(t, "(typeof window.soundMap?.entries)", ft.expressions[2])
	assert.Contains(t, ft.expressions[3], "Object.keys(obj).slice(0, 50)")
	assert.Equal(t, "[object Map]", report.Type)

	ft.expressions = nil
	val, err := ListGlobals(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "[object Map]", val)
	require.Len(t, ft.expressions, 1)
	assert.Contains(t, ft.expressions[0], "/sound|sample/i")
	assert.Contains(t, ft.expressions[0], "slice(0, 200)")
}
