package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultFalsePositiveRate is the Bloom filter rate used by NewDeliveredSetFor.
const DefaultFalsePositiveRate = 0.001

// DeliveredSet tracks the track IDs handed to the playback device during one delivery.
// The Bloom filter short-circuits misses; the map is authoritative.
type DeliveredSet struct {
	trackIDs               map[string]struct{}
	bloom                  *bloom.BloomFilter
	order                  *lru.Cache[string, struct{}]
	mutex                  sync.RWMutex
	capacity               uint
	bloomFalsePositiveRate float64
}

// NewDeliveredSet creates a set sized for capacity IDs. Capacity below 1 is raised to 1.
func NewDeliveredSet(capacity int, bloomFalsePositiveRate float64) *DeliveredSet {
	if capacity < 1 {
		capacity = 1
	}

	order, _ := lru.New[string, struct{}](capacity)

	return &DeliveredSet{
		trackIDs:               make(map[string]struct{}, capacity),
		bloom:                  bloom.NewWithEstimates(uint(capacity), bloomFalsePositiveRate),
		order:                  order,
		capacity:               uint(capacity),
		bloomFalsePositiveRate: bloomFalsePositiveRate,
	}
}

// NewDeliveredSetFor matches the factory signature the delivery orchestrator expects.
func NewDeliveredSetFor(capacity int) *DeliveredSet {
	return NewDeliveredSet(capacity, DefaultFalsePositiveRate)
}

func (ds *DeliveredSet) Has(trackID string) bool {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()

	if !ds.bloom.TestString(trackID) {
		return false
	}

	_, exists := ds.trackIDs[trackID]
	return exists
}

// Add is idempotent. Empty IDs are ignored.
func (ds *DeliveredSet) Add(trackID string) {
	if trackID == "" {
		return
	}

	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	ds.addUnsafe(trackID)
}

// Load replaces the contents with trackIDs.
func (ds *DeliveredSet) Load(trackIDs []string) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	ds.clearUnsafe()
	for _, trackID := range trackIDs {
		if trackID != "" {
			ds.addUnsafe(trackID)
		}
	}
}

func (ds *DeliveredSet) Size() int {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return len(ds.trackIDs)
}

// IDs returns the delivered IDs in insertion order.
func (ds *DeliveredSet) IDs() []string {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return ds.order.Keys()
}

// addUnsafe requires lock
func (ds *DeliveredSet) addUnsafe(trackID string) {
	if _, exists := ds.trackIDs[trackID]; exists {
		return
	}

	if uint(ds.order.Len()) >= ds.capacity {
		ds.evictOldestUnsafe()
	}

	ds.trackIDs[trackID] = struct{}{}
	ds.bloom.AddString(trackID)
	ds.order.Add(trackID, struct{}{})
}

// clearUnsafe requires lock
func (ds *DeliveredSet) clearUnsafe() {
	ds.trackIDs = make(map[string]struct{}, ds.capacity)
	ds.bloom = bloom.NewWithEstimates(ds.capacity, ds.bloomFalsePositiveRate)
	ds.order.Purge()
}

// evictOldestUnsafe requires lock
func (ds *DeliveredSet) evictOldestUnsafe() {
	oldestKey, _, ok := ds.order.GetOldest()
	if !ok {
		return
	}

	delete(ds.trackIDs, oldestKey)
	ds.order.Remove(oldestKey)
}
