package tray

import (
	"context"
	"sync"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
)

// slotRef addresses one plan entry: group index and position.
type slotRef struct {
	group, slot int
}

// systrayView renders a Menu with getlantern/systray. systray cannot remove
// items, so each submenu keeps a pool of checkbox slots that are retitled,
// shown and hidden on every render.
type systrayView struct {
	log *zap.Logger

	mu      sync.Mutex
	states  []power.State
	parents []*systray.MenuItem
	slots   [][]*systray.MenuItem
	plans   [][]plan.ID
	errItem *systray.MenuItem
	current power.State

	clicks chan slotRef
	done   chan struct{}
	wg     sync.WaitGroup
}

// Run shows the tray icon until "Exit volt" is clicked or ctx is done.
// It blocks and must be called from the main goroutine.
func Run(ctx context.Context, ctl *Controller, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	v := &systrayView{
		log:     log,
		current: power.Unknown,
		clicks:  make(chan slotRef),
		done:    make(chan struct{}),
	}

	systray.Run(func() { v.onReady(ctx, ctl) }, cancel)

	close(v.done)
	v.wg.Wait()
	log.Info("tray closed")
}

func (v *systrayView) onReady(ctx context.Context, ctl *Controller) {
	systray.SetIcon(Icon(power.Unknown))
	systray.SetTitle(appName)
	systray.SetTooltip(appName)

	v.mu.Lock()
	for _, st := range power.States {
		v.states = append(v.states, st)
		v.parents = append(v.parents, systray.AddMenuItem(st.Label(), ""))
		v.slots = append(v.slots, nil)
		v.plans = append(v.plans, nil)
	}
	v.errItem = systray.AddMenuItem("Power plans unavailable", "")
	v.errItem.Disable()
	v.errItem.Hide()
	v.mu.Unlock()

	systray.AddSeparator()
	quit := systray.AddMenuItem(exitTitle, "Stop switching power plans and exit")

	v.wg.Add(3)
	go func() {
		defer v.wg.Done()
		ctl.Loop(ctx, v)
	}()
	go func() {
		defer v.wg.Done()
		v.dispatch(ctx, ctl)
	}()
	go func() {
		defer v.wg.Done()
		select {
		case <-quit.ClickedCh:
			v.log.Info("exit requested from tray")
		case <-ctx.Done():
		}
		systray.Quit()
	}()
}

// Render implements View.
func (v *systrayView) Render(m Menu) {
	v.mu.Lock()
	defer v.mu.Unlock()

	systray.SetTooltip(m.Tooltip)
	systray.SetTitle(m.Title)
	if cur := currentState(m); cur != v.current {
		v.current = cur
		systray.SetIcon(Icon(cur))
	}

	if m.CatalogErr != nil {
		v.errItem.SetTooltip(m.CatalogErr.Error())
		v.errItem.Show()
	} else {
		v.errItem.Hide()
	}

	for i, g := range m.Groups {
		if i >= len(v.parents) {
			break
		}
		v.parents[i].SetTitle(g.Title)
		v.plans[i] = v.plans[i][:0]

		for j, it := range g.Items {
			if j == len(v.slots[i]) {
				item := v.parents[i].AddSubMenuItemCheckbox(it.Title, "", it.Checked)
				v.slots[i] = append(v.slots[i], item)
				v.wg.Add(1)
				go v.watch(slotRef{group: i, slot: j}, item)
			}
			item := v.slots[i][j]
			title := it.Title
			if it.Active {
				title += " (active)"
			}
			item.SetTitle(title)
			item.SetTooltip(it.Plan.String())
			if it.Checked {
				item.Check()
			} else {
				item.Uncheck()
			}
			item.Show()
			v.plans[i] = append(v.plans[i], it.Plan)
		}
		for j := len(g.Items); j < len(v.slots[i]); j++ {
			v.slots[i][j].Hide()
		}
	}
}

func currentState(m Menu) power.State {
	for _, g := range m.Groups {
		if g.Current {
			return g.State
		}
	}
	return power.Unknown
}

// watch forwards clicks on one slot to the dispatcher.
func (v *systrayView) watch(ref slotRef, item *systray.MenuItem) {
	defer v.wg.Done()
	for {
		select {
		case <-v.done:
			return
		case <-item.ClickedCh:
			select {
			case v.clicks <- ref:
			case <-v.done:
				return
			}
		}
	}
}

// dispatch resolves clicked slots to plans and hands them to the
// controller, one at a time.
func (v *systrayView) dispatch(ctx context.Context, ctl *Controller) {
	for {
		select {
		case <-v.done:
			return
		case ref := <-v.clicks:
			state, id, ok := v.resolve(ref)
			if !ok {
				continue
			}
			_ = ctl.Select(ctx, state, id)
		}
	}
}

func (v *systrayView) resolve(ref slotRef) (power.State, plan.ID, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if ref.group >= len(v.plans) || ref.slot >= len(v.plans[ref.group]) {
		return power.Unknown, plan.ID{}, false
	}
	return v.states[ref.group], v.plans[ref.group][ref.slot], true
}
