package executor

import (
	"bytes"
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell")
	}
}

func TestRun_CapturesStdout(t *testing.T) {
	skipOnWindows(t)

	res, err := New(0).Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	skipOnWindows(t)

	res, err := New(0).Run(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops\n", res.Stderr)
}

func TestRun_MissingBinary(t *testing.T) {
	res, err := New(0).Run(context.Background(), "volt-definitely-not-a-command")
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestRun_Timeout(t *testing.T) {
	skipOnWindows(t)

	start := time.Now()
	res, err := New(50*time.Millisecond).Run(context.Background(), "sh", "-c", "sleep 5")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRun_TimeoutWithGrandchildHoldingPipes(t *testing.T) {
	skipOnWindows(t)

	start := time.Now()
	res, err := New(50*time.Millisecond).Run(context.Background(), "sh", "-c", "(sleep 5; echo late) & sleep 5")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), waitDelay+2*time.Second)
	assert.NotContains(t, res.Stdout, "late")
}

func TestLimitedWriter_Truncates(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 4}

	n, err := lw.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	n, err = lw.Write([]byte("gh"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, "abcd", buf.String())
	assert.False(t, strings.Contains(buf.String(), "e"))
}
