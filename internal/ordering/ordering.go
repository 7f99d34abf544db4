// Package ordering plans mutations of dense, 1-based sibling orderings.
//
// A scope is the set of records sharing one parent (modules of a course,
// videos of a module). The invariant maintained by every plan is that the
// positions of a scope with N live items are exactly {1..N}: no duplicates,
// no gaps. Plans are computed against an in-memory snapshot of the scope and
// executed by repositories inside a single transaction that holds row locks
// on the snapshot, so the snapshot cannot go stale between plan and apply.
package ordering

import (
	"errors"
	"fmt"
	"sort"
)

// Item is one sibling record inside an ordered scope.
type Item struct {
	ID       string
	Position int
}

// Update assigns an explicit position to one item.
type Update struct {
	ID       string
	Position int
}

// Shift moves every item whose current position lies in [From, To] by Delta.
// The bounds are inclusive; a shift with From > To touches nothing.
type Shift struct {
	From  int
	To    int
	Delta int
}

// Empty reports whether the shift covers no positions.
func (s Shift) Empty() bool {
	return s.From > s.To
}

// Apply returns a copy of items with the shift applied. It does not touch
// items outside the range.
func (s Shift) Apply(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	if s.Empty() {
		return out
	}
	for i := range out {
		if out[i].Position >= s.From && out[i].Position <= s.To {
			out[i].Position += s.Delta
		}
	}
	return out
}

var (
	// ErrPositionOutOfRange marks a requested position outside the legal
	// bounds of the scope.
	ErrPositionOutOfRange = errors.New("ordering: position out of range")
	// ErrUnknownItem marks an id that is not part of the scope.
	ErrUnknownItem = errors.New("ordering: item not in scope")
	// ErrNotPermutation marks a reorder whose id set or target positions do
	// not exactly cover the scope.
	ErrNotPermutation = errors.New("ordering: assignment is not a permutation of the scope")
)

// NextPosition returns the append slot for the scope: one past the highest
// live position, or 1 for an empty scope.
func NextPosition(items []Item) int {
	max := 0
	for _, it := range items {
		if it.Position > max {
			max = it.Position
		}
	}
	return max + 1
}

// PlanInsert computes the landing position for a new item that wants the
// given slot, plus the right-shift that must be applied to existing siblings
// first. Desired positions past the end clamp to an append; zero and
// negative positions are rejected.
func PlanInsert(items []Item, desired int) (int, Shift, error) {
	if desired <= 0 {
		return 0, Shift{}, fmt.Errorf("%w: desired position %d", ErrPositionOutOfRange, desired)
	}
	n := len(items)
	if desired > n+1 {
		desired = n + 1
	}
	return desired, Shift{From: desired, To: n, Delta: 1}, nil
}

// PlanMove computes the sibling shift for moving one item to newPos. The
// returned shift covers only the displaced siblings; the moved item itself
// is written to newPos by the caller. Moving an item onto its current
// position yields an empty shift.
//
// The range bounds are the whole subtlety: moving right displaces
// (old, newPos] down by one, moving left displaces [newPos, old) up by one.
// Either range excludes the moved item's own slot, so no id exclusion is
// needed when the shift is executed as a single range update.
func PlanMove(items []Item, id string, newPos int) (Shift, error) {
	old := 0
	for _, it := range items {
		if it.ID == id {
			old = it.Position
			break
		}
	}
	if old == 0 {
		return Shift{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if newPos < 1 || newPos > len(items) {
		return Shift{}, fmt.Errorf("%w: new position %d with %d siblings", ErrPositionOutOfRange, newPos, len(items))
	}
	switch {
	case newPos > old:
		return Shift{From: old + 1, To: newPos, Delta: -1}, nil
	case newPos < old:
		return Shift{From: newPos, To: old - 1, Delta: 1}, nil
	default:
		return Shift{From: 1, To: 0}, nil
	}
}

// PlanRemove computes the compaction shift that closes the gap left by
// deleting the given item.
func PlanRemove(items []Item, id string) (Shift, error) {
	pos := 0
	for _, it := range items {
		if it.ID == id {
			pos = it.Position
			break
		}
	}
	if pos == 0 {
		return Shift{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	return Shift{From: pos + 1, To: len(items), Delta: -1}, nil
}

// PlanReorder validates that want assigns every scope member exactly one of
// the positions 1..N and returns the updates for items whose position
// actually changes, ordered by target position. Nothing may be applied when
// an error is returned.
func PlanReorder(items []Item, want map[string]int) ([]Update, error) {
	if len(want) != len(items) {
		return nil, fmt.Errorf("%w: %d assignments for %d siblings", ErrNotPermutation, len(want), len(items))
	}
	seen := make(map[int]string, len(want))
	updates := make([]Update, 0, len(items))
	for _, it := range items {
		pos, ok := want[it.ID]
		if !ok {
			return nil, fmt.Errorf("%w: missing id %s", ErrNotPermutation, it.ID)
		}
		if pos < 1 || pos > len(items) {
			return nil, fmt.Errorf("%w: position %d for id %s", ErrNotPermutation, pos, it.ID)
		}
		if prev, dup := seen[pos]; dup {
			return nil, fmt.Errorf("%w: position %d assigned to both %s and %s", ErrNotPermutation, pos, prev, it.ID)
		}
		seen[pos] = it.ID
		if pos != it.Position {
			updates = append(updates, Update{ID: it.ID, Position: pos})
		}
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].Position < updates[j].Position })
	return updates, nil
}

// Validate checks the density invariant: positions of items must be exactly
// {1..N}. Repositories call it after locking a scope to detect corruption
// before compounding it.
func Validate(items []Item) error {
	seen := make(map[int]struct{}, len(items))
	for _, it := range items {
		if it.Position < 1 || it.Position > len(items) {
			return fmt.Errorf("%w: position %d with %d siblings", ErrPositionOutOfRange, it.Position, len(items))
		}
		if _, dup := seen[it.Position]; dup {
			return fmt.Errorf("duplicate position %d in scope", it.Position)
		}
		seen[it.Position] = struct{}{}
	}
	return nil
}
