package object

import (
	"fmt"
	"sync"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/shm"
	"go.uber.org/zap"
)

// Store owns the object records of one process and provides the
// name→object lookup. Arrays live in the shm store; the two share a name
// space.
type Store struct {
	log *zap.Logger
	shm *shm.Store

	mu      sync.Mutex
	objects map[string]Object
}

// NewStore builds an object store on top of the array store.
func NewStore(log *zap.Logger, shmStore *shm.Store) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:     log.Named("objects"),
		shm:     shmStore,
		objects: make(map[string]Object),
	}
}

// Shm exposes the backing array store.
func (s *Store) Shm() *shm.Store { return s.shm }

// NewName mints a fresh unique object name.
func (s *Store) NewName() string { return s.shm.ObjectName() }

// publish registers obj under its name; names are unique for the record's
// lifetime.
func (s *Store) publish(obj Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := obj.Name()
	if _, exists := s.objects[name]; exists {
		return fmt.Errorf("object: name %q already in use", name)
	}
	s.objects[name] = obj
	return nil
}

func (s *Store) remove(name string, obj Object) {
	s.mu.Lock()
	if cur, ok := s.objects[name]; ok && cur == obj {
		delete(s.objects, name)
	}
	s.mu.Unlock()
	s.log.Debug("object destroyed", zap.String("name", name))
}

// Lookup returns a strong reference to the named object. With onlyComplete
// set, incomplete objects are filtered.
func (s *Store) Lookup(name string, onlyComplete bool) (Object, bool) {
	s.mu.Lock()
	obj, ok := s.objects[name]
	if ok && obj.RefCount() <= 0 {
		ok = false
	}
	if ok && onlyComplete && !obj.IsComplete() {
		ok = false
	}
	if ok {
		obj.Ref()
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return obj, true
}

// NumObjects reports the number of published objects.
func (s *Store) NumObjects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Create builds an empty instance of the given type under name (or a fresh
// unique name when empty) and publishes it.
func (s *Store) Create(typeTag int32, name string) (Object, error) {
	if name == "" {
		name = s.NewName()
	}
	obj, err := createByTag(typeTag, s, name)
	if err != nil {
		return nil, err
	}
	if err := s.publish(obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// System adapts the store to the archive loader's view: lookups do not
// filter incomplete objects, so in-flight records deduplicate.
func (s *Store) System() archive.ObjectSystem { return system{s} }

type system struct{ s *Store }

func (a system) CreateEmpty(typeTag int32, name string) (archive.Object, error) {
	return a.s.Create(typeTag, name)
}

func (a system) Lookup(name string) (archive.Object, bool) {
	obj, ok := a.s.Lookup(name, false)
	if !ok {
		return nil, false
	}
	return obj, true
}

func (a system) NewName() string { return a.s.NewName() }
