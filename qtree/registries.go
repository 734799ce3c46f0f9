package qtree

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Registries is a set of independent registries addressed by ID.
type Registries struct {
	maxRegistries int
	maxCorners    int

	mutex      sync.RWMutex
	registries map[string]*Registry
}

// NewRegistries creates an empty set that holds at most maxRegistries
// registries of at most maxCorners corners each. Zero or less means
// unbounded.
func NewRegistries(maxRegistries, maxCorners int) *Registries {
	if maxCorners < 0 {
		maxCorners = 0
	}

	return &Registries{
		maxRegistries: maxRegistries,
		maxCorners:    maxCorners,
		registries:    make(map[string]*Registry),
	}
}

// Create adds a new registry with the given corner capacity. A capacity of
// zero or less takes the corner bound of the set.
func (s *Registries) Create(capacity int) (*Registry, error) {
	if capacity <= 0 {
		capacity = s.maxCorners
	}

	if s.maxCorners > 0 && capacity > s.maxCorners {
		return nil, errors.New("registry capacity is above the corner bound").
			WithType(ErrTypeInvalidConfig).
			WithTag("capacity", capacity).
			WithTag("max_corners", s.maxCorners)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.maxRegistries > 0 && len(s.registries) >= s.maxRegistries {
		return nil, errors.New("too many registries").
			WithType(ErrTypeCapacityExceeded).
			WithTag("max_registries", s.maxRegistries)
	}

	r := NewRegistry(capacity)
	s.registries[r.ID()] = r
	return r, nil
}

func (s *Registries) Get(id string) (*Registry, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	r, ok := s.registries[id]
	if !ok {
		return nil, errors.New("registry not found").
			WithType(ErrTypeRegistryNotFound).
			WithTag("registry_id", id)
	}
	return r, nil
}

// Destroy closes and removes a registry. It reports whether the registry
// existed.
func (s *Registries) Destroy(id string) bool {
	s.mutex.Lock()
	r, ok := s.registries[id]
	delete(s.registries, id)
	s.mutex.Unlock()

	if ok {
		r.Close()
	}
	return ok
}

// MaxCorners returns the corner bound of the registries in the set, zero
// when unbounded.
func (s *Registries) MaxCorners() int {
	return s.maxCorners
}

func (s *Registries) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.registries)
}

// Close destroys every registry in the set.
func (s *Registries) Close() {
	s.mutex.Lock()
	registries := s.registries
	s.registries = make(map[string]*Registry)
	s.mutex.Unlock()

	for _, r := range registries {
		r.Close()
	}
}
