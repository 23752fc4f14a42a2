package orch

import "sync"

// dedup remembers the last size event ids.
type dedup struct {
	mu    sync.Mutex
	size  int
	seen  map[string]struct{}
	order []string
	next  int
}

func newDedup(size int) *dedup {
	return &dedup{
		size:  size,
		seen:  make(map[string]struct{}, size),
		order: make([]string, 0, size),
	}
}

// Seen records id and reports whether it was already recorded.
func (d *dedup) Seen(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	if len(d.order) < d.size {
		d.order = append(d.order, id)
	} else {
		delete(d.seen, d.order[d.next])
		d.order[d.next] = id
		d.next = (d.next + 1) % d.size
	}
	d.seen[id] = struct{}{}
	return false
}
