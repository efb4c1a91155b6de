package barrier

import "sort"

// Barrier tracks which of an expected set of participants have acknowledged.
// It is satisfied once every expected id has acknowledged, or nothing is expected.
type Barrier struct {
	expected map[string]struct{}
	acked    map[string]struct{}
}

// New creates a barrier expecting ids.
func New(ids ...string) *Barrier {
	b := &Barrier{}
	b.Reset(ids...)
	return b
}

// Reset clears acknowledgments and replaces the expected set.
func (b *Barrier) Reset(ids ...string) {
	b.expected = make(map[string]struct{}, len(ids))
	b.acked = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		b.expected[id] = struct{}{}
	}
}

// Acknowledge records id if it is expected and reports whether the barrier is now satisfied.
func (b *Barrier) Acknowledge(id string) bool {
	if _, ok := b.expected[id]; ok {
		b.acked[id] = struct{}{}
	}
	return b.Satisfied()
}

// Add puts id back into the expected set. An earlier acknowledgment by id still counts.
func (b *Barrier) Add(id string) {
	b.expected[id] = struct{}{}
}

// Remove drops id from the expected set and reports whether the barrier is now satisfied.
func (b *Barrier) Remove(id string) bool {
	delete(b.expected, id)
	return b.Satisfied()
}

// Retain keeps only expected ids for which eligible returns true.
func (b *Barrier) Retain(eligible func(id string) bool) bool {
	for id := range b.expected {
		if !eligible(id) {
			delete(b.expected, id)
		}
	}
	return b.Satisfied()
}

// Satisfied reports whether every expected id has acknowledged.
func (b *Barrier) Satisfied() bool {
	for id := range b.expected {
		if _, ok := b.acked[id]; !ok {
			return false
		}
	}
	return true
}

// Expects reports whether id is still part of the expected set.
func (b *Barrier) Expects(id string) bool {
	_, ok := b.expected[id]
	return ok
}

// Pending returns expected ids that have not acknowledged yet, sorted.
func (b *Barrier) Pending() []string {
	out := make([]string, 0, len(b.expected))
	for id := range b.expected {
		if _, ok := b.acked[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Expected returns the expected ids, sorted.
func (b *Barrier) Expected() []string {
	out := make([]string, 0, len(b.expected))
	for id := range b.expected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
