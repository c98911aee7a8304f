package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltpower/volt/internal/config"
	"github.com/voltpower/volt/internal/executor"
	"github.com/voltpower/volt/internal/monitor"
	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
)

const listing = `Existing Power Schemes (* Active)
-----------------------------------
Power Scheme GUID: 381b4222-f694-41f0-9685-ff5bb260df2e  (Balanced) *
Power Scheme GUID: a1841308-3541-4fab-bc81-f71556f20b4a  (Power saver)
`

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) (executor.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	if len(args) > 0 && args[0] == "/L" {
		return executor.Result{Stdout: listing}, nil
	}
	return executor.Result{}, nil
}

func (r *fakeRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fixedReader power.LineStatus

func (f fixedReader) LineStatus() (power.LineStatus, error) { return power.LineStatus(f), nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.PrefsFile = filepath.Join(t.TempDir(), "power_plans.json")
	cfg.StatusAddr = ""
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func TestHeadlessRun(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	a := New(cfg, nil, "test", WithRunner(runner), WithPower(fixedReader(power.LineOnline), nil))

	snap, err := a.Catalog.List(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Plans, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, false) }()

	saver := plan.MustParseID("a1841308-3541-4fab-bc81-f71556f20b4a")
	require.NoError(t, a.Monitor.Dispatch(context.Background(), monitor.SetPreference{State: power.AC, Plan: saver}))

	assert.Contains(t, runner.Calls(), "powercfg /S a1841308-3541-4fab-bc81-f71556f20b4a")
	data, err := os.ReadFile(cfg.PrefsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"plugged_in": "a1841308-3541-4fab-bc81-f71556f20b4a"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestApplyOnStartUsesSavedPlan(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.PrefsFile,
		[]byte(`{"plugged_in": null, "on_battery": "a1841308-3541-4fab-bc81-f71556f20b4a"}`), 0o600))
	cfg.ApplyOnStart = true

	runner := &fakeRunner{}
	a := New(cfg, nil, "test", WithRunner(runner), WithPower(fixedReader(power.LineOffline), nil))
	assert.Equal(t, power.Battery, a.Monitor.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, false) }()

	// A round trip through the queue runs after the startup activation.
	require.NoError(t, a.Monitor.Dispatch(context.Background(), monitor.SetPreference{State: power.AC, Plan: plan.MustParseID("381b4222-f694-41f0-9685-ff5bb260df2e")}))
	assert.Equal(t, []string{"powercfg /S a1841308-3541-4fab-bc81-f71556f20b4a"}, runner.Calls())

	cancel()
	require.NoError(t, <-done)
}

func TestStatusServerWired(t *testing.T) {
	cfg := testConfig(t)
	cfg.StatusAddr = "127.0.0.1:0"
	a := New(cfg, nil, "test", WithRunner(&fakeRunner{}), WithPower(fixedReader(power.LineOnline), nil))
	require.NotNil(t, a.Status)
	assert.Equal(t, "plugged_in", a.Status.Status().State)

	cfg = testConfig(t)
	a = New(cfg, nil, "test", WithRunner(&fakeRunner{}), WithPower(fixedReader(power.LineOnline), nil))
	assert.Nil(t, a.Status)
}
