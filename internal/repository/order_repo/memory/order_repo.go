// Package memory holds an in-memory ProcessedOrderRepository used by
// tests and by the dev store mode, where losing results on restart is
// acceptable.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"orderflow/internal/repository/order_repo"
)

type memoryProcessedOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*order_repo.ProcessedOrder
}

func NewProcessedOrderRepository() order_repo.ProcessedOrderRepository {
	return &memoryProcessedOrderRepository{
		orders: make(map[string]*order_repo.ProcessedOrder),
	}
}

func (r *memoryProcessedOrderRepository) Upsert(ctx context.Context, order *order_repo.ProcessedOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stored := *order
	stored.UpdatedAt = now
	if existing, ok := r.orders[order.HashID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.Items = append([]order_repo.ProcessedItem(nil), order.Items...)
	r.orders[order.HashID] = &stored
	return nil
}

func (r *memoryProcessedOrderRepository) GetByHashID(ctx context.Context, hashID string) (*order_repo.ProcessedOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[hashID]
	if !ok {
		return nil, order_repo.ErrNotFound
	}
	copied := *order
	copied.Items = append([]order_repo.ProcessedItem(nil), order.Items...)
	return &copied, nil
}

func (r *memoryProcessedOrderRepository) List(ctx context.Context, limit, offset int) ([]*order_repo.ProcessedOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*order_repo.ProcessedOrder, 0, len(r.orders))
	for _, order := range r.orders {
		all = append(all, order)
	}
	// Newest first, matching the postgres ordering.
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].HashID < all[j].HashID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	out := make([]*order_repo.ProcessedOrder, len(all))
	for i, order := range all {
		copied := *order
		copied.Items = append([]order_repo.ProcessedItem(nil), order.Items...)
		out[i] = &copied
	}
	return out, nil
}
