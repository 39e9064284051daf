package device

import "sync"

// Store is the shared device-state cache, bucketed by category.
//
// Two actors mutate it: the poll merge (ReplaceAll, atomically swapping
// every bucket) and the push patch (Patch, in-place field mutation on an
// existing entry only). Both run on the sync coordinator's goroutine;
// push events reach that goroutine through a channel hand-off, never by
// direct mutation from the transport thread. The RWMutex makes concurrent
// reads from consumer goroutines safe against that single writer.
//
// All read methods return deep copies, so callers can never corrupt the
// cache by mutating what they were handed.
type Store struct {
	mu      sync.RWMutex
	buckets map[Category]map[string]*Device
}

// NewStore creates an empty store with every category bucket present.
func NewStore() *Store {
	s := &Store{}
	s.buckets = emptyBuckets()
	return s
}

func emptyBuckets() map[Category]map[string]*Device {
	buckets := make(map[Category]map[string]*Device, len(AllCategories()))
	for _, c := range AllCategories() {
		buckets[c] = make(map[string]*Device)
	}
	return buckets
}

// ReplaceAll atomically replaces every category bucket with the polled
// result. Consumers never observe a partially-rebuilt bucket: the swap
// happens under the write lock in one assignment.
//
// Categories absent from the argument become empty buckets, so a device
// that disappeared from the cloud also disappears here.
func (s *Store) ReplaceAll(polled map[Category]map[string]*Device) {
	fresh := emptyBuckets()
	for cat, devices := range polled {
		bucket, ok := fresh[cat]
		if !ok {
			// Unknown categories are not representable in the store.
			continue
		}
		for id, d := range devices {
			bucket[id] = d.DeepCopy()
		}
	}

	s.mu.Lock()
	s.buckets = fresh
	s.mu.Unlock()
}

// Patch applies a partial state update to an already-known device.
//
// Patching never inserts: if the id is not present in the category bucket
// the call is a no-op and returns false. A push update must not
// materialize a device ahead of the next poll.
//
// Returns:
//   - bool: true if a device was found and patched
func (s *Store) Patch(cat Category, id string, patch State) bool {
	if len(patch) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[cat]
	if !ok {
		return false
	}
	d, ok := bucket[id]
	if !ok {
		return false
	}

	if d.State == nil {
		d.State = make(State, len(patch))
	}
	d.State.Merge(patch.DeepCopy())
	return true
}

// Get retrieves a device by id, searching all category buckets.
// The returned device is a deep copy; callers can safely modify it.
func (s *Store) Get(id string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, bucket := range s.buckets {
		if d, ok := bucket[id]; ok {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

// GetInCategory retrieves a device by id from a specific category bucket.
// The returned device is a deep copy; callers can safely modify it.
func (s *Store) GetInCategory(cat Category, id string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bucket, ok := s.buckets[cat]; ok {
		if d, ok := bucket[id]; ok {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

// AllByCategory returns a deep copy of every bucket.
func (s *Store) AllByCategory() map[Category]map[string]*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Category]map[string]*Device, len(s.buckets))
	for cat, bucket := range s.buckets {
		devices := make(map[string]*Device, len(bucket))
		for id, d := range bucket {
			devices[id] = d.DeepCopy()
		}
		out[cat] = devices
	}
	return out
}

// Category returns a deep copy of one bucket.
func (s *Store) Category(cat Category) map[string]*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.buckets[cat]
	devices := make(map[string]*Device, len(bucket))
	for id, d := range bucket {
		devices[id] = d.DeepCopy()
	}
	return devices
}

// Len returns the total number of devices across all buckets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, bucket := range s.buckets {
		total += len(bucket)
	}
	return total
}

// CategoryLen returns the number of devices in one bucket.
func (s *Store) CategoryLen(cat Category) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets[cat])
}
