// Package memory provides an in-memory payment.Mirror: an arena of records
// with a per-product index kept in display order.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/pullpay/id"
	"github.com/xraph/pullpay/payment"
)

// Compile-time interface check.
var _ payment.Mirror = (*Mirror)(nil)

type Mirror struct {
	mu sync.RWMutex

	arena     []payment.Record
	byProduct map[id.ProductID][]int // arena offsets ordered by payment.Less
	byCharge  map[string]int
}

func New() *Mirror {
	return &Mirror{
		byProduct: make(map[id.ProductID][]int),
		byCharge:  make(map[string]int),
	}
}

func (m *Mirror) Append(_ context.Context, r *payment.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ChargeID.String()
	if _, ok := m.byCharge[key]; ok {
		return nil
	}

	off := len(m.arena)
	m.arena = append(m.arena, *r)
	m.byCharge[key] = off

	idx := m.byProduct[r.ProductID]
	at := sort.Search(len(idx), func(i int) bool {
		return payment.Less(r, &m.arena[idx[i]])
	})
	idx = append(idx, 0)
	copy(idx[at+1:], idx[at:])
	idx[at] = off
	m.byProduct[r.ProductID] = idx

	return nil
}

func (m *Mirror) QueryByProduct(_ context.Context, productID id.ProductID, opts payment.QueryOpts) ([]*payment.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*payment.Record, 0)
	skipped := 0
	for _, off := range m.byProduct[productID] {
		r := m.arena[off]
		if !opts.Match(&r) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		result = append(result, &r)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

// Reset drops a product's records and compacts the arena.
func (m *Mirror) Reset(_ context.Context, productID id.ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byProduct[productID]; !ok {
		return nil
	}

	arena := make([]payment.Record, 0, len(m.arena))
	remap := make(map[int]int, len(m.arena))
	for off, r := range m.arena {
		if r.ProductID == productID {
			delete(m.byCharge, r.ChargeID.String())
			continue
		}
		remap[off] = len(arena)
		m.byCharge[r.ChargeID.String()] = len(arena)
		arena = append(arena, r)
	}

	delete(m.byProduct, productID)
	for pid, idx := range m.byProduct {
		for i, off := range idx {
			idx[i] = remap[off]
		}
		m.byProduct[pid] = idx
	}
	m.arena = arena

	return nil
}

// Len returns the number of mirrored records.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.arena)
}
