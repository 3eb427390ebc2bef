package diag

import (
	"slices"
	"sync"
)

const bagCeiling = 0xFFFF

// Bag collects diagnostics up to a limit. Diagnostics past the limit are
// counted, not kept. A Bag is safe for concurrent use.
type Bag struct {
	mu      sync.Mutex
	items   []Diagnostic
	max     int
	dropped int
}

// NewBag returns a bag holding at most max diagnostics; max <= 0 means the
// ceiling of 65535.
func NewBag(max int) *Bag {
	if max <= 0 || max > bagCeiling {
		max = bagCeiling
	}
	return &Bag{items: make([]Diagnostic, 0, min(max, 64)), max: max}
}

// Add сохраняет d, если лимит не исчерпан; иначе только считает её.
func (b *Bag) Add(d Diagnostic) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.max {
		b.dropped++
		return false
	}
	b.items = append(b.items, d)
	return true
}

// Dropped is the number of diagnostics refused because the bag was full,
// including those refused by merged bags.
func (b *Bag) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Bag) HasErrors() bool   { return b.atLeast(SevError) }
func (b *Bag) HasWarnings() bool { return b.atLeast(SevWarning) }

func (b *Bag) atLeast(sev Severity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.ContainsFunc(b.items, func(d Diagnostic) bool { return d.Severity >= sev })
}

func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Items returns a copy of the collected diagnostics.
func (b *Bag) Items() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.items)
}

// Merge moves everything other holds into b. Unit bags are merged after the
// units finish, so b grows past its limit rather than losing a unit's
// findings; the ceiling still applies.
func (b *Bag) Merge(other *Bag) {
	if other == nil || other == b {
		return
	}
	other.mu.Lock()
	items, dropped := slices.Clone(other.items), other.dropped
	other.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped += dropped
	if room := bagCeiling - len(b.items); len(items) > room {
		b.dropped += len(items) - room
		items = items[:room]
	}
	b.max = max(b.max, len(b.items)+len(items))
	b.items = append(b.items, items...)
}

// Sort orders by location, then severity (most severe first), then code.
func (b *Bag) Sort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	slices.SortStableFunc(b.items, func(x, y Diagnostic) int {
		switch {
		case x.Primary != y.Primary:
			if x.Primary.Less(y.Primary) {
				return -1
			}
			return 1
		case x.Severity != y.Severity:
			return int(y.Severity) - int(x.Severity)
		}
		return int(x.Code) - int(y.Code)
	})
}

// Dedup keeps the first of diagnostics sharing code, location and message.
func (b *Bag) Dedup() {
	type key struct {
		code Code
		loc  Location
		msg  string
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[key]struct{}, len(b.items))
	b.items = slices.DeleteFunc(b.items, func(d Diagnostic) bool {
		k := key{d.Code, d.Primary, d.Message}
		if _, dup := seen[k]; dup {
			return true
		}
		seen[k] = struct{}{}
		return false
	})
}
