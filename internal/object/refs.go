package object

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/shm"
)

// arrayRef writes one typed array reference, tolerating nil fields.
func arrayRef[T shm.Element](w *archive.ObjectWriter, role string, a *shm.Array[T]) {
	if a == nil {
		w.ArrayRef(role, nil)
		return
	}
	w.ArrayRef(role, a)
}

// bindArray reads one array reference into dst. The bound reference is
// owned by the field until releaseChildren.
func bindArray[T shm.Element](r *archive.ObjectReader, role string, dst **shm.Array[T]) {
	r.ArrayRef(role, func(a shm.AnyArray) error {
		if a == nil {
			*dst = nil
			return nil
		}
		typed, ok := a.(*shm.Array[T])
		if !ok {
			a.Unref()
			return &shm.ScalarMismatchError{Name: a.Name(), Expected: shm.TagOf[T](), Actual: a.Tag()}
		}
		*dst = typed
		return nil
	})
}

// objRef writes one object reference.
func objRef(w *archive.ObjectWriter, role string, obj Object) {
	if obj == nil {
		w.ObjectRef(role, nil)
		return
	}
	w.ObjectRef(role, obj)
}

// bindObject reads one object reference into dst, transferring ownership
// of the resolved reference to the field.
func bindObject(r *archive.ObjectReader, role string, dst *Object) {
	r.ObjectRef(role, func(o archive.Object) error {
		if o == nil {
			*dst = nil
			return nil
		}
		obj, ok := o.(Object)
		if !ok {
			return fmt.Errorf("reference %q resolved to a foreign object", role)
		}
		*dst = obj
		return nil
	})
}

func unrefArray[T shm.Element](a **shm.Array[T]) {
	if *a != nil {
		(*a).Unref()
		*a = nil
	}
}

func unrefObject(o *Object) {
	if *o != nil {
		(*o).Unref()
		*o = nil
	}
}

// refArray copies a field reference, bumping the count.
func refArray[T shm.Element](a *shm.Array[T]) *shm.Array[T] {
	if a == nil {
		return nil
	}
	return a.Ref()
}

func refObject(o Object) Object {
	if o == nil {
		return nil
	}
	return o.Ref()
}
