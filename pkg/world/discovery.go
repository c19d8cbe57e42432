package world

import (
	"sort"
	"sync"
)

// Discovery records which entities a single player has uncovered. The
// graph itself never changes; scanning and probing reveal pieces of it.
type Discovery struct {
	mu      sync.Mutex
	visible map[string]bool // entity id (host/org/contact)
}

// NewDiscovery creates an empty discovery set.
func NewDiscovery() *Discovery {
	return &Discovery{visible: make(map[string]bool)}
}

// Reveal marks an entity as visible to the player. Revealing twice is a
// no-op.
func (d *Discovery) Reveal(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visible[id] = true
}

// Visible reports whether the player has uncovered the entity.
func (d *Discovery) Visible(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible[id]
}

// VisibleIDs returns the sorted list of revealed entity IDs.
func (d *Discovery) VisibleIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.visible))
	for id := range d.visible {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Restore replaces the discovery set, used when loading a saved session.
func (d *Discovery) Restore(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visible = make(map[string]bool, len(ids))
	for _, id := range ids {
		d.visible[id] = true
	}
}
