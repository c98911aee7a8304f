package plan

import (
	"context"

	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/executor"
)

// Switcher makes a plan the active one. It never retries; callers decide
// what a failure means.
type Switcher struct {
	runner executor.Runner
	opts   Options
}

// NewSwitcher creates a Switcher that runs commands through runner.
func NewSwitcher(runner executor.Runner, opts Options) *Switcher {
	return &Switcher{runner: runner, opts: opts.withDefaults()}
}

// Activate runs "powercfg /S <id>". Any start failure or non-zero exit is
// returned as a *CommandError.
func (s *Switcher) Activate(ctx context.Context, id ID) error {
	args := []string{switchFlag, id.String()}
	res, err := s.runner.Run(ctx, s.opts.Command, args...)
	if err != nil {
		return &CommandError{Command: s.opts.Command, Args: args, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	if res.ExitCode != 0 {
		return &CommandError{Command: s.opts.Command, Args: args, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	s.opts.Logger.Debug("plan activated", zap.Stringer("plan", id))
	return nil
}
