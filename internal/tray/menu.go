// Package tray renders the system tray menu: one submenu per power source
// listing every plan, with the saved preference checked.
package tray

import (
	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
	"github.com/voltpower/volt/internal/prefs"
)

const (
	appName   = "Volt"
	exitTitle = "Exit volt"
)

// Item is one selectable plan inside a group.
type Item struct {
	Plan    plan.ID
	Title   string
	Checked bool // saved preference for the group's state
	Active  bool // the plan the OS currently runs
}

// Group is the submenu for one power source.
type Group struct {
	State   power.State
	Title   string
	Current bool // the monitor currently observes this state
	Items   []Item
}

// Menu is everything the tray shows.
type Menu struct {
	Title   string
	Tooltip string
	Groups  []Group
	// CatalogErr is set when the plan list could not be read; the groups are
	// then empty.
	CatalogErr error
}

// BuildMenu lays out the menu for the observed state, a catalog snapshot
// and the saved preferences.
func BuildMenu(current power.State, snap plan.Snapshot, saved prefs.Map) Menu {
	m := Menu{
		Title:   appName + " - " + current.Label(),
		Tooltip: appName + " - " + current.Label(),
	}
	for _, st := range power.States {
		g := Group{State: st, Title: st.Label(), Current: st == current}
		if g.Current {
			g.Title = "● " + g.Title
		}
		want, hasPref := saved.Get(st)
		for _, p := range snap.Plans {
			g.Items = append(g.Items, Item{
				Plan:    p.ID,
				Title:   p.Name,
				Checked: hasPref && p.ID == want,
				Active:  snap.IsActive(p.ID),
			})
		}
		m.Groups = append(m.Groups, g)
	}
	return m
}
