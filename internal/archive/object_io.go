package archive

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
)

// ObjectWriter is handed to an object's SaveTo. Besides the primitive
// encoders it records every referenced array and object so the writer can
// emit or delegate their blobs afterwards.
type ObjectWriter struct {
	buf
	w *Writer
}

// ArrayRef records a strong array reference: role and name go into the
// body, the blob itself travels separately (inline or via the saver).
func (ow *ObjectWriter) ArrayRef(role string, arr shm.AnyArray) {
	ow.String(role)
	if arr == nil {
		ow.String("")
		ow.U32(uint32(scalar.None))
		return
	}
	ow.String(arr.Name())
	ow.U32(uint32(arr.Tag()))
	ow.w.pendArray(arr)
}

// ObjectRef records a strong object reference by name.
func (ow *ObjectWriter) ObjectRef(role string, obj Object) {
	ow.String(role)
	if obj == nil {
		ow.String("")
		return
	}
	ow.String(obj.Name())
	ow.w.pendObject(obj)
}

// ObjectReader is handed to an object's LoadFrom. References resolve
// against the local store; misses increment the owner's unresolved counter
// and queue a fetch.
type ObjectReader struct {
	rbuf
	loader *Loader
	owner  Object
}

func (or *ObjectReader) expectRole(role string) bool {
	got := or.String("role")
	if or.err != nil {
		return false
	}
	if got != role {
		or.err = fmt.Errorf("archive: reference role mismatch: stream has %q, object expects %q", got, role)
		return false
	}
	return true
}

// ArrayRef resolves one array reference. bind is called with a strong
// reference, immediately when the array is local, or later from the fetch
// completion path; bind(nil) marks a null reference.
func (or *ObjectReader) ArrayRef(role string, bind func(shm.AnyArray) error) {
	if !or.expectRole(role) {
		return
	}
	name := or.String("array name")
	tag := scalar.Type(or.U32("array tag"))
	if or.err != nil {
		return
	}
	if name == "" {
		or.err = bind(nil)
		return
	}
	or.loader.resolveArray(or.owner, name, tag, bind)
}

// ObjectRef resolves one object reference, analogous to ArrayRef.
func (or *ObjectReader) ObjectRef(role string, bind func(Object) error) {
	if !or.expectRole(role) {
		return
	}
	name := or.String("object name")
	if or.err != nil {
		return
	}
	if name == "" {
		or.err = bind(nil)
		return
	}
	or.loader.resolveObject(or.owner, name, bind)
}

// Err surfaces the sticky parse error.
func (or *ObjectReader) Err() error { return or.err }

// Fail records a structural error detected by the object's own loader.
func (or *ObjectReader) Fail(err error) {
	if or.err == nil {
		or.err = err
	}
}
