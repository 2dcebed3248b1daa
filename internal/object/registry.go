package object

import (
	"fmt"
	"sync"
)

// Type tags of the concrete object types. Tags are persisted; their values
// never change.
const (
	TypeEmpty            int32 = 1
	TypePlaceholder      int32 = 11
	TypeTexture1D        int32 = 16
	TypePoints           int32 = 18
	TypeLines            int32 = 20
	TypeTriangles        int32 = 22
	TypePolygons         int32 = 23
	TypeUnstructuredGrid int32 = 24
	TypeUniformGrid      int32 = 25
	TypeRectilinearGrid  int32 = 26
	TypeStructuredGrid   int32 = 27
	TypeQuads            int32 = 28
	TypeLayerGrid        int32 = 29
	TypeVertexOwnerList  int32 = 95
	TypeCelltree1        int32 = 96
	TypeCelltree2        int32 = 97
	TypeCelltree3        int32 = 98
	TypeNormals          int32 = 99
	// TypeVecBase starts the block of Vec tags: base + scalar*3 + dim-1.
	TypeVecBase int32 = 100
)

// TypeNotRegisteredError reports an unknown object type tag.
type TypeNotRegisteredError struct {
	Tag int32
}

func (e *TypeNotRegisteredError) Error() string {
	return fmt.Sprintf("object: type %d not registered", e.Tag)
}

type registryEntry struct {
	name   string
	create func(store *Store, name string) Object
}

var (
	registryMu sync.RWMutex
	registry   = make(map[int32]registryEntry)
)

// register records a constructor for a type tag. Registration is
// idempotent; conflicting re-registration panics at init time.
func register(tag int32, name string, create func(store *Store, name string) Object) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if prev, exists := registry[tag]; exists {
		if prev.name != name {
			panic(fmt.Sprintf("object: tag %d registered as both %q and %q", tag, prev.name, name))
		}
		return
	}
	registry[tag] = registryEntry{name: name, create: create}
}

// TypeName returns the registered name of a tag.
func TypeName(tag int32) string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if e, ok := registry[tag]; ok {
		return e.name
	}
	return fmt.Sprintf("unknown(%d)", tag)
}

// Registered reports whether a tag has a constructor.
func Registered(tag int32) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[tag]
	return ok
}

func createByTag(tag int32, store *Store, name string) (Object, error) {
	registryMu.RLock()
	e, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, &TypeNotRegisteredError{Tag: tag}
	}
	return e.create(store, name), nil
}
