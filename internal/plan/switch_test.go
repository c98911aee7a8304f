package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltpower/volt/internal/executor"
)

func TestSwitcherActivate(t *testing.T) {
	r := &fakeRunner{}
	err := NewSwitcher(r, Options{}).Activate(context.Background(), MustParseID(powerSaver))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"powercfg", "/S", powerSaver}}, r.calls)
}

func TestSwitcherActivate_Failure(t *testing.T) {
	r := &fakeRunner{res: executor.Result{ExitCode: 87, Stderr: "Invalid Parameters"}}
	err := NewSwitcher(r, Options{}).Activate(context.Background(), MustParseID(powerSaver))

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 87, cmdErr.ExitCode)
	assert.Equal(t, []string{"/S", powerSaver}, cmdErr.Args)
	assert.Len(t, r.calls, 1, "no retry")
}
