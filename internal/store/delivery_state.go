package store

import (
	"context"
	"encoding/json"
	"fmt"

	"smartshuffle/internal/core"
	"smartshuffle/internal/kv"
)

// DeliveryStateKey is the single key holding the in-flight delivery.
const DeliveryStateKey = "queue_delivery_state"

// DeliveryStateStore implements core.DeliveryStateStore.
type DeliveryStateStore struct {
	kv kv.Store
}

func NewDeliveryStateStore(store kv.Store) *DeliveryStateStore {
	return &DeliveryStateStore{kv: store}
}

// Load returns (nil, nil) when no delivery record exists.
func (s *DeliveryStateStore) Load(ctx context.Context) (*core.QueueDeliveryState, error) {
	raw, err := s.kv.Get(ctx, DeliveryStateKey)
	if kv.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load delivery state: %w", core.ErrStorage, err)
	}

	var state core.QueueDeliveryState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: failed to decode delivery state: %w", core.ErrStorage, err)
	}
	return &state, nil
}

func (s *DeliveryStateStore) Save(ctx context.Context, state *core.QueueDeliveryState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: failed to encode delivery state: %w", core.ErrStorage, err)
	}
	if err := s.kv.Set(ctx, DeliveryStateKey, raw); err != nil {
		return fmt.Errorf("%w: failed to save delivery state: %w", core.ErrStorage, err)
	}
	return nil
}

func (s *DeliveryStateStore) Delete(ctx context.Context) error {
	if err := s.kv.Delete(ctx, DeliveryStateKey); err != nil {
		return fmt.Errorf("%w: failed to delete delivery state: %w", core.ErrStorage, err)
	}
	return nil
}
