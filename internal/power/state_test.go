package power

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStateKeysAndLabels(t *testing.T) {
	assert.Equal(t, "plugged_in", AC.Key())
	assert.Equal(t, "on_battery", Battery.Key())
	assert.Equal(t, "unknown", Unknown.Key())
	assert.Equal(t, "Plugged In", AC.Label())
	assert.Equal(t, "On Battery", Battery.Label())
	assert.Equal(t, []State{AC, Battery}, States)
	assert.False(t, Unknown.Valid())
}

func TestParseState(t *testing.T) {
	for in, want := range map[string]State{
		"ac":         AC,
		"plugged_in": AC,
		"Battery":    Battery,
		"on_battery": Battery,
	} {
		got, err := ParseState(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseState("unknown")
	assert.Error(t, err)
}

func TestLineStatusState(t *testing.T) {
	s, ok := LineOffline.State()
	assert.True(t, ok)
	assert.Equal(t, Battery, s)

	s, ok = LineOnline.State()
	assert.True(t, ok)
	assert.Equal(t, AC, s)

	for _, l := range []LineStatus{LineUnknown, 2, 7} {
		_, ok := l.State()
		assert.False(t, ok, "line status %d", l)
	}
}

type stubReader struct {
	line LineStatus
	err  error
}

func (r stubReader) LineStatus() (LineStatus, error) { return r.line, r.err }

func TestCurrent(t *testing.T) {
	s, err := Current(stubReader{line: LineOnline})
	require.NoError(t, err)
	assert.Equal(t, AC, s)

	s, err = Current(stubReader{line: LineUnknown})
	require.NoError(t, err)
	assert.Equal(t, Unknown, s)

	boom := errors.New("boom")
	_, err = Current(stubReader{err: boom})
	assert.ErrorIs(t, err, boom)
}

func nopLogger() *zap.Logger { return zap.NewNop() }
