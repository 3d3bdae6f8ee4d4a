// Package selection tracks the conversations picked for bulk actions.
package selection

import (
	"sort"
	"sync"
)

// State is a snapshot of the selection.
type State struct {
	Selected      []string `json:"selected"`
	SelectionMode bool     `json:"selection_mode"`
}

// Covers reports whether ids is non-empty and every id in it is selected.
func (s State) Covers(ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		i := sort.SearchStrings(s.Selected, id)
		if i == len(s.Selected) || s.Selected[i] != id {
			return false
		}
	}
	return true
}

// Controller owns the selection set and selection mode. Any change that makes
// the set non-empty turns selection mode on; a toggle that empties the set
// turns it off. EnterMode may leave the mode on with nothing selected.
type Controller struct {
	mu        sync.Mutex
	selected  map[string]struct{}
	mode      bool
	observers map[int]func(State)
	nextID    int
}

// NewController creates an empty controller.
func NewController() *Controller {
	return &Controller{
		selected:  make(map[string]struct{}),
		observers: make(map[int]func(State)),
	}
}

// Toggle adds or removes id.
func (c *Controller) Toggle(id string) State {
	return c.update(func() {
		if _, ok := c.selected[id]; ok {
			delete(c.selected, id)
			if len(c.selected) == 0 {
				c.mode = false
			}
			return
		}
		c.selected[id] = struct{}{}
		c.mode = true
	})
}

// SelectAll replaces the selection with the visible ids and enters
// selection mode.
func (c *Controller) SelectAll(visible []string) State {
	return c.update(func() {
		c.selected = make(map[string]struct{}, len(visible))
		for _, id := range visible {
			c.selected[id] = struct{}{}
		}
		c.mode = true
	})
}

// Clear empties the selection and leaves selection mode.
func (c *Controller) Clear() State {
	return c.update(func() {
		c.selected = make(map[string]struct{})
		c.mode = false
	})
}

// EnterMode turns selection mode on without changing the set.
func (c *Controller) EnterMode() State {
	return c.update(func() {
		c.mode = true
	})
}

// Remove drops ids from the selection. Selection mode is unchanged.
func (c *Controller) Remove(ids ...string) State {
	return c.update(func() {
		for _, id := range ids {
			delete(c.selected, id)
		}
	})
}

// Retain drops every selected id not in visible. Selection mode is unchanged.
func (c *Controller) Retain(visible []string) State {
	keep := make(map[string]struct{}, len(visible))
	for _, id := range visible {
		keep[id] = struct{}{}
	}
	return c.update(func() {
		for id := range c.selected {
			if _, ok := keep[id]; !ok {
				delete(c.selected, id)
			}
		}
	})
}

// IsSelected reports whether id is selected.
func (c *Controller) IsSelected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.selected[id]
	return ok
}

// IsAllSelected reports whether every visible id is selected.
func (c *Controller) IsAllSelected(visible []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(visible) == 0 {
		return false
	}
	for _, id := range visible {
		if _, ok := c.selected[id]; !ok {
			return false
		}
	}
	return true
}

// Snapshot returns the current state with ids sorted.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to be called after every change. The returned
// function unsubscribes.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Controller) update(mutate func()) State {
	c.mu.Lock()
	before := c.snapshotLocked()
	mutate()
	after := c.snapshotLocked()
	observers := make([]func(State), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	if !equal(before, after) {
		for _, fn := range observers {
			fn(after)
		}
	}
	return after
}

func (c *Controller) snapshotLocked() State {
	ids := make([]string, 0, len(c.selected))
	for id := range c.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return State{Selected: ids, SelectionMode: c.mode}
}

func equal(a, b State) bool {
	if a.SelectionMode != b.SelectionMode || len(a.Selected) != len(b.Selected) {
		return false
	}
	for i := range a.Selected {
		if a.Selected[i] != b.Selected[i] {
			return false
		}
	}
	return true
}
