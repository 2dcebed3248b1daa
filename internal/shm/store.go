// Package shm provides the process-local rendition of the shared-memory
// segment: typed, reference-counted, named numeric arrays and the store
// that owns them.
package shm

import (
	"fmt"
	"sync"

	"github.com/hpcvis/vizcore/internal/scalar"
	"go.uber.org/zap"
)

// ScalarMismatchError reports an array found under the requested name with a
// different element type.
type ScalarMismatchError struct {
	Name     string
	Expected scalar.Type
	Actual   scalar.Type
}

func (e *ScalarMismatchError) Error() string {
	return fmt.Sprintf("shm: array %q holds %s, requested %s", e.Name, e.Actual, e.Expected)
}

// Store owns the arrays of one segment and maintains the name lookup.
// Lookup plus refcount increment is atomic relative to destruction.
type Store struct {
	log   *zap.Logger
	alloc Allocator
	ns    *nameSpace

	mu     sync.Mutex
	arrays map[string]AnyArray
}

// NewStore builds a store backed by alloc. rank distinguishes name spaces
// of cooperating processes.
func NewStore(log *zap.Logger, alloc Allocator, rank int) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if alloc == nil {
		alloc = NewAllocator(0)
	}
	return &Store{
		log:    log.Named("shm"),
		alloc:  alloc,
		ns:     newNameSpace(rank),
		arrays: make(map[string]AnyArray),
	}
}

// ArrayName mints a fresh unique array name.
func (s *Store) ArrayName() string { return s.ns.arrayName() }

// ObjectName mints a fresh unique object name. Object records live in the
// object store but share the segment's name space.
func (s *Store) ObjectName() string { return s.ns.objectName() }

// NumArrays reports the number of published arrays.
func (s *Store) NumArrays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.arrays)
}

// Allocator exposes the backing segment for introspection.
func (s *Store) Allocator() Allocator { return s.alloc }

// Create allocates a typed array of size elements, publishes it under name
// (or a fresh unique name when empty) and returns a handle holding one
// strong reference.
func Create[T Element](s *Store, name string, size int) (*Array[T], error) {
	return CreateTagged[T](s, name, size, TagOf[T]())
}

// CreateTagged is Create with an explicit wire tag; celltree node arrays
// use it to fix their per-dimension tag.
func CreateTagged[T Element](s *Store, name string, size int, tag scalar.Type) (*Array[T], error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("shm: cannot create array of invalid type")
	}
	if name == "" {
		name = s.ns.arrayName()
	}
	a := &Array[T]{
		name:  name,
		tag:   tag,
		store: s,
		exact: defaultExact(tag),
		dim:   [3]uint64{0, 1, 1},
	}
	if err := a.Resize(size); err != nil {
		return nil, err
	}
	a.refs.Store(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.arrays[name]; exists {
		s.alloc.Release(a.reservedBytes())
		return nil, fmt.Errorf("shm: array name %q already in use", name)
	}
	s.arrays[name] = a
	return a, nil
}

// FindAndRef looks up name and takes a strong reference in one step.
// It returns (nil, nil) when no array of that name exists and a
// ScalarMismatchError when the stored element type differs from T.
func FindAndRef[T Element](s *Store, name string) (*Array[T], error) {
	return FindAndRefTagged[T](s, name, TagOf[T]())
}

// FindAndRefTagged is FindAndRef with an explicit wire tag; celltree node
// arrays of different dimensionality share one element type and are told
// apart by tag.
func FindAndRefTagged[T Element](s *Store, name string, tag scalar.Type) (*Array[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.arrays[name]
	if !ok {
		return nil, nil
	}
	a, ok := entry.(*Array[T])
	if !ok || a.Tag() != tag {
		return nil, &ScalarMismatchError{Name: name, Expected: tag, Actual: entry.Tag()}
	}
	// A concurrent release may already have decided to destroy the entry;
	// do not resurrect it.
	if a.RefCount() <= 0 {
		return nil, nil
	}
	a.addRef()
	return a, nil
}

// FindAndRefAny looks up name without a type expectation and takes a
// strong reference; callers downcast to their concrete array type.
func (s *Store) FindAndRefAny(name string) (AnyArray, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.arrays[name]
	if !ok || entry.RefCount() <= 0 {
		return nil, false
	}
	entry.addRef()
	return entry, true
}

// FindTag reports the tag stored under name, if any.
func (s *Store) FindTag(name string) (scalar.Type, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.arrays[name]
	if !ok {
		return scalar.None, false
	}
	return entry.Tag(), true
}

func (s *Store) removeArray(a AnyArray) {
	s.mu.Lock()
	if a.RefCount() > 0 {
		// Revived by a concurrent FindAndRef before we took the lock.
		s.mu.Unlock()
		return
	}
	delete(s.arrays, a.Name())
	s.mu.Unlock()
	s.alloc.Release(a.reservedBytes())
	s.log.Debug("array destroyed", zap.String("name", a.Name()))
}
