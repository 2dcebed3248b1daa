// Package archive serializes objects and their transitive references into
// self-describing byte streams, and reconstructs them with deferred
// fetching of missing pieces.
package archive

import (
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
)

// Object is the contract the object layer fulfills towards the archive:
// it can write and read its own body and tracks unresolved references.
type Object interface {
	Name() string
	TypeTag() int32
	IsComplete() bool

	// UnresolvedReference and ReferenceResolved adjust the completion
	// counter; the loader drives them while references are in flight.
	UnresolvedReference()
	ReferenceResolved()

	// AddCompletionObserver registers a hook run once the unresolved
	// counter reaches zero; it fires immediately when already complete.
	AddCompletionObserver(func())

	SaveTo(w *ObjectWriter) error
	LoadFrom(r *ObjectReader) error
}

// ObjectSystem is what the loader needs from the object store and type
// catalog: lookup by name and construction of empty instances by tag.
type ObjectSystem interface {
	// CreateEmpty builds and publishes an empty object of the given type
	// under name. Unknown tags yield a TypeNotRegistered error.
	CreateEmpty(typeTag int32, name string) (Object, error)
	// Lookup returns a published object and takes a strong reference.
	Lookup(name string) (Object, bool)
	// NewName mints a fresh local object name for renaming on load.
	NewName() string
}

// ArrayCompletionHandler is invoked with the local (translated) name of a
// fetched array.
type ArrayCompletionHandler func(localName string)

// ObjectCompletionHandler is invoked with a fetched, complete object.
type ObjectCompletionHandler func(obj Object)

// Fetcher resolves names into array or object blobs, possibly
// asynchronously, and owns the archive→local name translations.
type Fetcher interface {
	RequestArray(name string, tag scalar.Type, done ArrayCompletionHandler)
	RequestObject(name string, done ObjectCompletionHandler)

	RenameObjects() bool
	// TranslateObjectName and TranslateArrayName map an archive name to
	// the local one; the empty string means "not yet translated".
	TranslateObjectName(name string) string
	TranslateArrayName(name string) string
	RegisterObjectNameTranslation(archiveName, localName string)
	RegisterArrayNameTranslation(archiveName, localName string)
}

// Saver receives the referenced entities encountered while an object is
// serialized, so they can travel as separate blobs instead of inline
// records.
type Saver interface {
	SaveArray(name string, tag scalar.Type, arr shm.AnyArray)
	SaveObject(name string, obj Object)
	IsObjectSaved(name string) bool
	IsArraySaved(name string) bool
}
