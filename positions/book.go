package positions

import (
	"fmt"
	"sync"
)

// Book is an owned, versioned collection of positions. Mutations go through
// AddPosition/RemovePosition only; reads take a consistent snapshot, so
// aggregation and scenario PnL never observe a half-applied change.
// Insertion order is preserved for display; aggregation does not depend
// on it.
type Book struct {
	mu        sync.RWMutex
	revision  uint64
	nextID    uint64
	positions []Position
}

// BookSnapshot is an immutable copy of a book at one revision.
type BookSnapshot struct {
	Revision  uint64     `json:"revision"`
	Positions []Position `json:"positions"`
}

func NewBook() *Book {
	return &Book{}
}

// AddPosition appends a position and bumps the revision. A blank ID is
// assigned; a caller-supplied ID must not collide with an existing one.
func (b *Book) AddPosition(p Position) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p.ID == "" {
		b.nextID++
		p.ID = fmt.Sprintf("pos-%d", b.nextID)
	} else {
		for _, existing := range b.positions {
			if existing.ID == p.ID {
				return "", fmt.Errorf("%w: duplicate position id %q", ErrInvalidInput, p.ID)
			}
		}
	}

	b.positions = append(b.positions, p)
	b.revision++
	return p.ID, nil
}

// RemovePosition deletes a position by id and bumps the revision.
func (b *Book) RemovePosition(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, p := range b.positions {
		if p.ID == id {
			b.positions = append(b.positions[:i], b.positions[i+1:]...)
			b.revision++
			return nil
		}
	}
	return fmt.Errorf("position %q not found", id)
}

// UpdateGreeks replaces the per-unit greeks, spot and market price of one
// position, bumping the revision. Used by the pricing layer when a fresh
// market snapshot arrives.
func (b *Book) UpdateGreeks(id string, greeks Greeks, spot, marketPrice float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.positions {
		if b.positions[i].ID == id {
			b.positions[i].Greeks = greeks
			b.positions[i].Spot = spot
			b.positions[i].MarketPrice = marketPrice
			b.revision++
			return nil
		}
	}
	return fmt.Errorf("position %q not found", id)
}

// Snapshot copies the current positions under the read lock.
func (b *Book) Snapshot() BookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	positions := make([]Position, len(b.positions))
	copy(positions, b.positions)
	return BookSnapshot{Revision: b.revision, Positions: positions}
}

// IsEmpty reports whether the snapshot holds no positions.
func (s BookSnapshot) IsEmpty() bool {
	return len(s.Positions) == 0
}

// AggregateGreeks is the field-wise weighted sum of per-unit greeks scaled
// by quantity. An empty book aggregates to all zeros. The result is a pure
// projection of the snapshot; it is recomputed, never patched.
func (s BookSnapshot) AggregateGreeks() Greeks {
	var total Greeks
	for _, p := range s.Positions {
		total = total.Add(p.Greeks.Scale(p.Quantity))
	}
	return total
}
