package tray

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/monitor"
	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
	"github.com/voltpower/volt/internal/prefs"
)

// Catalog lists the installed plans.
type Catalog interface {
	List(ctx context.Context) (plan.Snapshot, error)
}

// Preferences supplies the saved bindings.
type Preferences interface {
	Snapshot() prefs.Map
}

// Monitor is the part of the power source monitor the tray drives.
type Monitor interface {
	State() power.State
	Subscribe(fn func(monitor.Event))
	Dispatch(ctx context.Context, cmd monitor.Command) error
}

// Notifier raises desktop notifications.
type Notifier interface {
	Notify(title, text string) error
}

// View draws a Menu.
type View interface {
	Render(Menu)
}

// Controller rebuilds the menu from fresh catalog reads and turns clicks
// into monitor commands.
type Controller struct {
	catalog  Catalog
	prefs    Preferences
	mon      Monitor
	notifier Notifier // nil disables notifications
	log      *zap.Logger

	refresh chan struct{}
	alerts  chan monitor.Event
}

// NewController wires a Controller and subscribes it to monitor events.
func NewController(catalog Catalog, p Preferences, mon Monitor, notifier Notifier, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		catalog:  catalog,
		prefs:    p,
		mon:      mon,
		notifier: notifier,
		log:      log,
		refresh:  make(chan struct{}, 1),
		alerts:   make(chan monitor.Event, 8),
	}
	mon.Subscribe(c.onEvent)
	return c
}

// onEvent runs on the monitor goroutine and must not block.
func (c *Controller) onEvent(ev monitor.Event) {
	c.requestRefresh()
	if ev.Kind == monitor.EventActivationFailed || ev.Kind == monitor.EventPreferenceFailed {
		select {
		case c.alerts <- ev:
		default:
		}
	}
}

func (c *Controller) requestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Build reads the catalog and lays out the menu. A catalog failure yields a
// menu with empty groups and CatalogErr set.
func (c *Controller) Build(ctx context.Context) Menu {
	state := c.mon.State()
	snap, err := c.catalog.List(ctx)
	if err != nil {
		c.log.Error("listing plans", zap.Error(err))
		m := BuildMenu(state, plan.Snapshot{}, c.prefs.Snapshot())
		m.CatalogErr = err
		return m
	}
	return BuildMenu(state, snap, c.prefs.Snapshot())
}

// Select saves id for state through the monitor, which also activates it
// when state is the observed one.
func (c *Controller) Select(ctx context.Context, state power.State, id plan.ID) error {
	defer c.requestRefresh()
	err := c.mon.Dispatch(ctx, monitor.SetPreference{State: state, Plan: id})
	if err != nil {
		c.log.Error("applying selection", zap.Stringer("state", state), zap.Stringer("plan", id), zap.Error(err))
	}
	return err
}

// Loop renders the menu once, then again after every monitor event and
// selection, and raises notifications for failures until ctx is done.
func (c *Controller) Loop(ctx context.Context, v View) {
	v.Render(c.Build(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.refresh:
			v.Render(c.Build(ctx))
		case ev := <-c.alerts:
			c.alert(ev)
		}
	}
}

func (c *Controller) alert(ev monitor.Event) {
	if c.notifier == nil {
		return
	}
	var title, text string
	switch ev.Kind {
	case monitor.EventActivationFailed:
		title = "Volt: could not switch power plan"
		text = fmt.Sprintf("Switching to %s failed: %v", planName(ev.Plan), ev.Err)
	case monitor.EventPreferenceFailed:
		title = "Volt: could not save preference"
		text = fmt.Sprintf("Saving the %s plan failed: %v", ev.State.Label(), ev.Err)
	default:
		return
	}
	if err := c.notifier.Notify(title, text); err != nil {
		c.log.Warn("desktop notification failed", zap.Error(err))
	}
}

func planName(id *plan.ID) string {
	if id == nil {
		return "plan"
	}
	return id.String()
}
