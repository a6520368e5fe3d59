package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapturingLogger() (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	ll := logrus.New()
	ll.SetOutput(buf)
	ll.SetLevel(logrus.DebugLevel)
	return New(ll, nil), buf
}

func TestLogfIncludesCategory(t *testing.T) {
	l, buf := newCapturingLogger()
	l.Debugf("cdp:recv", "got %d bytes", 42)

	out := buf.String()
	assert.Contains(t, out, "cdp:recv")
	assert.Contains(t, out, "got 42 bytes")
	assert.Contains(t, out, "goroutine")
}

func TestCategoryFilter(t *testing.T) {
	l, buf := newCapturingLogger()
	require.NoError(t, l.SetCategoryFilter("^probe"))

	l.Debugf("cdp:recv", "hidden")
	l.Debugf("probe:eval", "shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestSetCategoryFilterInvalid(t *testing.T) {
	l, _ := newCapturingLogger()
	err := l.SetCategoryFilter("([")
	require.ErrorContains(t, err, "invalid log category filter")

	require.NoError(t, l.SetCategoryFilter(""))
}

func TestSetLevel(t *testing.T) {
	l, buf := newCapturingLogger()
	require.NoError(t, l.SetLevel("warning"))
	assert.False(t, l.DebugMode())

	l.Debugf("cdp", "quiet")
	assert.Empty(t, buf.String())

	require.NoError(t, l.SetLevel("debug"))
	assert.True(t, l.DebugMode())

	require.Error(t, l.SetLevel("nonsense"))
}

func TestNullLoggerDiscards(t *testing.T) {
	l := NewNullLogger()
	l.Errorf("cdp", "this should go nowhere")
}
