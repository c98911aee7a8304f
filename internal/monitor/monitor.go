// Package monitor follows the host's power source and applies the plan
// saved for it.
//
// Every notification, activation and preference write runs on one
// goroutine fed by a single queue. Transitions are therefore processed in
// arrival order, and a user selection can never interleave with an
// activation triggered by a transition.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/metrics"
	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
)

const defaultQueueSize = 64

// ErrStopped is returned by Dispatch once the monitor has exited.
var ErrStopped = errors.New("monitor stopped")

// Preferences is the subset of the preference store the monitor needs.
type Preferences interface {
	Get(state power.State) (plan.ID, bool)
	Set(state power.State, id plan.ID) error
}

// Activator switches the active plan.
type Activator interface {
	Activate(ctx context.Context, id plan.ID) error
}

// Config wires a Monitor.
type Config struct {
	Reader    power.Reader
	Hook      power.Hook // nil disables OS notifications
	Prefs     Preferences
	Activator Activator
	Logger    *zap.Logger

	// ApplyOnStart activates the saved plan for the initial state once
	// before the first notification is processed.
	ApplyOnStart bool
	QueueSize    int
}

type request struct {
	cmd   Command // nil for an OS notification
	reply chan error
}

// Monitor is the power source state machine.
type Monitor struct {
	reader       power.Reader
	hook         power.Hook
	prefs        Preferences
	activator    Activator
	log          *zap.Logger
	applyOnStart bool

	queue   chan request
	pending chan struct{} // one coalesced notification when queue is full
	stopped chan struct{}
	runOnce sync.Once

	stateMu sync.RWMutex
	state   power.State

	subsMu sync.Mutex
	subs   []func(Event)
}

// New creates a Monitor. The initial state is read synchronously from
// cfg.Reader; if that fails the monitor starts in power.Unknown and the
// first successful reading counts as a transition.
func New(cfg Config) *Monitor {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	m := &Monitor{
		reader:       cfg.Reader,
		hook:         cfg.Hook,
		prefs:        cfg.Prefs,
		activator:    cfg.Activator,
		log:          log,
		applyOnStart: cfg.ApplyOnStart,
		queue:        make(chan request, size),
		pending:      make(chan struct{}, 1),
		stopped:      make(chan struct{}),
	}

	initial, err := power.Current(cfg.Reader)
	if err != nil {
		log.Warn("initial power state unavailable", zap.Error(err))
	}
	m.setState(initial)
	log.Info("initial power state", zap.Stringer("state", initial))
	return m
}

// State returns the last observed power source.
func (m *Monitor) State() power.State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

func (m *Monitor) setState(s power.State) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()

	switch s {
	case power.AC:
		metrics.PowerState.Set(1)
	case power.Battery:
		metrics.PowerState.Set(0)
	default:
		metrics.PowerState.Set(-1)
	}
}

// Subscribe registers fn for every Event. Listeners run on the monitor
// goroutine: they must return quickly and must not call Dispatch.
func (m *Monitor) Subscribe(fn func(Event)) {
	m.subsMu.Lock()
	m.subs = append(m.subs, fn)
	m.subsMu.Unlock()
}

func (m *Monitor) publish(ev Event) {
	ev.At = time.Now()
	m.subsMu.Lock()
	subs := append([]func(Event){}, m.subs...)
	m.subsMu.Unlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("event listener panicked", zap.Any("panic", r))
				}
			}()
			fn(ev)
		}()
	}
}

// Notify queues an OS power-status notification and never blocks. When
// the queue is full, notifications collapse into a single pending re-read.
func (m *Monitor) Notify() {
	select {
	case <-m.stopped:
		return
	default:
	}
	select {
	case m.queue <- request{}:
		return
	default:
	}
	select {
	case m.pending <- struct{}{}:
		m.log.Debug("notification queue full; coalescing")
	default:
	}
}

// Dispatch queues cmd behind any pending notifications and waits for its
// result.
func (m *Monitor) Dispatch(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return errors.New("nil command")
	}
	reply := make(chan error, 1)
	select {
	case m.queue <- request{cmd: cmd, reply: reply}:
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		select {
		case err := <-reply:
			return err
		default:
			return ErrStopped
		}
	}
}

// Run processes notifications and commands until ctx is done. It starts
// the OS hook, if any, and stops it before returning. Run may be called
// once.
func (m *Monitor) Run(ctx context.Context) error {
	started := false
	m.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("monitor already ran")
	}

	hookStarted := false
	if m.hook != nil {
		if err := m.hook.Start(m.Notify); err != nil {
			m.log.Error("power notifications unavailable; following user selections only", zap.Error(err))
		} else {
			hookStarted = true
		}
	}
	defer func() {
		// Close stopped first so a hook goroutine blocked in Notify can
		// return, then wait for the hook to unregister.
		close(m.stopped)
		if hookStarted {
			m.hook.Stop()
		}
		m.log.Info("monitor stopped")
	}()

	if m.applyOnStart {
		_ = m.guard(func() error {
			m.applySaved(ctx, m.State(), OriginStartup)
			return nil
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-m.queue:
			m.handle(ctx, req)
		case <-m.pending:
			m.handle(ctx, request{})
		}
	}
}

func (m *Monitor) handle(ctx context.Context, req request) {
	err := m.guard(func() error {
		switch c := req.cmd.(type) {
		case nil:
			m.handleNotification(ctx)
			return nil
		case SetPreference:
			return m.setPreference(ctx, c)
		case ActivateNow:
			return m.activate(ctx, c.Plan, OriginUser, m.State())
		default:
			return fmt.Errorf("unknown command %T", c)
		}
	})
	if req.reply != nil {
		req.reply <- err
	}
}

// guard keeps a panicking collaborator from killing the monitor goroutine.
func (m *Monitor) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("recovered from panic", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return fn()
}

func (m *Monitor) handleNotification(ctx context.Context) {
	metrics.Notifications.Inc()

	line, err := m.reader.LineStatus()
	if err != nil {
		m.log.Warn("reading power status", zap.Error(err))
		return
	}

	prev := m.State()
	next, ok := line.State()
	if !ok {
		m.log.Debug("ignoring power indicator", zap.Uint8("ac_line_status", uint8(line)))
		next = prev
	}

	changed := next != prev
	if changed {
		metrics.Transitions.WithLabelValues(next.Key()).Inc()
		m.log.Info("power source changed", zap.Stringer("from", prev), zap.Stringer("to", next))
		m.applySaved(ctx, next, OriginTransition)
	}

	m.setState(next)
	m.publish(Event{Kind: EventState, Previous: prev, Current: next, Changed: changed})
}

// applySaved activates the plan saved for state, if there is one.
func (m *Monitor) applySaved(ctx context.Context, state power.State, origin Origin) {
	if !state.Valid() {
		return
	}
	id, ok := m.prefs.Get(state)
	if !ok {
		m.log.Debug("no plan saved", zap.Stringer("state", state))
		return
	}
	// Failures are logged and published by activate.
	_ = m.activate(ctx, id, origin, state)
}

func (m *Monitor) setPreference(ctx context.Context, c SetPreference) error {
	if !c.State.Valid() {
		return fmt.Errorf("cannot bind a plan to state %q", c.State)
	}
	id := c.Plan

	setErr := m.prefs.Set(c.State, id)
	if setErr != nil {
		metrics.PreferenceWrites.WithLabelValues(metrics.ResultError).Inc()
		m.log.Error("saving preference", zap.Stringer("state", c.State), zap.Stringer("plan", id), zap.Error(setErr))
		m.publish(Event{Kind: EventPreferenceFailed, State: c.State, Plan: &id, Err: setErr})
	} else {
		metrics.PreferenceWrites.WithLabelValues(metrics.ResultOK).Inc()
		m.log.Info("preference saved", zap.Stringer("state", c.State), zap.Stringer("plan", id))
		m.publish(Event{Kind: EventPreferenceSaved, State: c.State, Plan: &id})
	}

	// Activate only what the store now holds; a store that rolled back on a
	// write failure leaves the old binding in place.
	if c.State != m.State() {
		return setErr
	}
	if held, ok := m.prefs.Get(c.State); !ok || held != id {
		return setErr
	}
	return errors.Join(setErr, m.activate(ctx, id, OriginUser, c.State))
}

// activate switches to id. state is the power source the activation is
// for, which during a transition is not yet the recorded one.
func (m *Monitor) activate(ctx context.Context, id plan.ID, origin Origin, state power.State) error {
	start := time.Now()
	err := m.activator.Activate(ctx, id)
	metrics.ActivationLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.Activations.WithLabelValues(string(origin), metrics.ResultError).Inc()
		m.log.Error("activating plan", zap.Stringer("plan", id), zap.String("origin", string(origin)), zap.Error(err))
		m.publish(Event{Kind: EventActivationFailed, Current: state, Origin: origin, Plan: &id, Err: err})
		return err
	}
	metrics.Activations.WithLabelValues(string(origin), metrics.ResultOK).Inc()
	m.log.Info("plan activated", zap.Stringer("plan", id), zap.String("origin", string(origin)))
	m.publish(Event{Kind: EventActivated, Current: state, Origin: origin, Plan: &id})
	return nil
}
