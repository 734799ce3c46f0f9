package qtree

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/qtree/models"
	"github.com/google/uuid"
)

// Registry is a corner index table that outlives a single batch. A corner
// keeps its index until Reset, so features stored per index stay valid
// across batches that touch overlapping geometry.
//
// Every mutation holds the registry lock exclusively; lookups wait while the
// table grows.
type Registry struct {
	id       string
	capacity int

	mutex   sync.RWMutex
	indices map[uint64]int
	corners []models.Corner
	closed  bool
}

// NewRegistry creates an empty registry holding at most capacity corners.
// A capacity of zero or less means unbounded.
func NewRegistry(capacity int) *Registry {
	if capacity < 0 {
		capacity = 0
	}

	r := &Registry{
		id:       uuid.NewString(),
		capacity: capacity,
		indices:  make(map[uint64]int),
	}
	instrumentRegistryOpen()

	logs.WithTag("registry_id", r.id).
		WithTag("capacity", capacity).
		Info("corner registry created")
	return r
}

func (r *Registry) ID() string {
	return r.id
}

func (r *Registry) Capacity() int {
	return r.capacity
}

// Assign returns the index of every corner, allocating indices for corners
// the registry has not seen yet. Either all corners get an index or, on
// error, the registry is left untouched.
func (r *Registry) Assign(corners ...models.Corner) ([]int, error) {
	keys := make([]uint64, len(corners))
	for i, c := range corners {
		if !c.Valid() {
			return nil, errors.New("corner is outside its lattice").
				WithType(ErrTypeOutOfDomain).
				WithTag("level", c.Level).
				WithTag("x", c.X).
				WithTag("y", c.Y)
		}
		keys[i] = c.Key()
	}

	unique, pos := dedupHashed(keys)
	indices, err := r.assign(unique)
	if err != nil {
		return nil, err
	}

	res := make([]int, len(corners))
	for i, p := range pos {
		res[i] = indices[p]
	}
	return res, nil
}

// assign is Assign for distinct, valid corner keys. New corners get
// indices in the order of keys.
func (r *Registry) assign(keys []uint64) ([]int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return nil, errors.New("registry is closed").
			WithType(ErrTypeRegistryClosed).
			WithTag("registry_id", r.id)
	}

	var missing int
	for _, k := range keys {
		if _, ok := r.indices[k]; !ok {
			missing++
		}
	}

	if r.capacity > 0 && len(r.corners)+missing > r.capacity {
		return nil, errors.New("corner registry is full").
			WithType(ErrTypeCapacityExceeded).
			WithTag("registry_id", r.id).
			WithTag("capacity", r.capacity).
			WithTag("len", len(r.corners)).
			WithTag("new_corners", missing)
	}

	indices := make([]int, len(keys))
	for i, k := range keys {
		idx, ok := r.indices[k]
		if !ok {
			idx = len(r.corners)
			r.indices[k] = idx
			r.corners = append(r.corners, models.CornerFromKey(k))
		}
		indices[i] = idx
	}

	instrumentRegistryGrowth(missing)
	return indices, nil
}

// Lookup returns the index of a corner that was already assigned.
func (r *Registry) Lookup(c models.Corner) (int, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !c.Valid() {
		return 0, false
	}
	idx, ok := r.indices[c.Key()]
	return idx, ok
}

// Corner returns the corner registered under index.
func (r *Registry) Corner(index int) (models.Corner, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if index < 0 || index >= len(r.corners) {
		return models.Corner{}, false
	}
	return r.corners[index], true
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.corners)
}

// Corners returns a copy of the registered corners, ordered by index.
func (r *Registry) Corners() []models.Corner {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	corners := make([]models.Corner, len(r.corners))
	copy(corners, r.corners)
	return corners
}

// Reset forgets every corner. Indices start again from zero.
func (r *Registry) Reset() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return errors.New("registry is closed").
			WithType(ErrTypeRegistryClosed).
			WithTag("registry_id", r.id)
	}

	instrumentRegistryGrowth(-len(r.corners))
	logs.WithTag("registry_id", r.id).
		WithTag("len", len(r.corners)).
		Info("corner registry reset")

	r.indices = make(map[uint64]int)
	r.corners = nil
	return nil
}

// Close destroys the registry. Later calls to Assign and Reset fail with a
// registry_closed error. Closing twice is a no-op.
func (r *Registry) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return
	}

	instrumentRegistryGrowth(-len(r.corners))
	instrumentRegistryClose()
	logs.WithTag("registry_id", r.id).
		WithTag("len", len(r.corners)).
		Info("corner registry closed")

	r.closed = true
	r.indices = nil
	r.corners = nil
}
