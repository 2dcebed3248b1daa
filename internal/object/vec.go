package object

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/shm"
	"github.com/hpcvis/vizcore/internal/validate"
)

// Mapping places data values on a grid.
const (
	MappingUnspecified int32 = iota
	MappingVertex
	MappingElement
)

type vecElem interface {
	~int8 | ~uint8 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// Scalar kind indices inside the Vec tag block.
const (
	vecKindChar int32 = iota
	vecKindInt8
	vecKindUInt8
	vecKindInt32
	vecKindUInt32
	vecKindInt64
	vecKindUInt64
	vecKindFloat32
	vecKindFloat64
	numVecKinds
)

// VecTag computes the type tag of a Vec with the given scalar kind and
// channel count (1..3).
func VecTag(kind int32, channels int) int32 {
	return TypeVecBase + kind*3 + int32(channels-1)
}

// Vec is a field of up to three parallel per-vertex or per-cell channels,
// optionally mapped onto a grid.
type Vec[T vecElem] struct {
	Record
	grid    Object
	mapping int32
	ch      int
	arr     [3]*shm.Array[T]
}

func (v *Vec[T]) initVec(self Object, store *Store, name string, tag int32, ch int) {
	v.ch = ch
	v.init(self, store, name, tag)
}

func newVec[T vecElem](store *Store, name string, tag int32, ch int) *Vec[T] {
	v := &Vec[T]{}
	v.initVec(v, store, name, tag, ch)
	return v
}

// Channels reports the channel count.
func (v *Vec[T]) Channels() int { return v.ch }

// X, Y and Z expose the channel arrays; unused channels are nil.
func (v *Vec[T]) X() *shm.Array[T] { return v.arr[0] }
func (v *Vec[T]) Y() *shm.Array[T] { return v.arr[1] }
func (v *Vec[T]) Z() *shm.Array[T] { return v.arr[2] }

// Channel returns channel c.
func (v *Vec[T]) Channel(c int) *shm.Array[T] { return v.arr[c] }

// SetSize allocates (if needed) and resizes every channel to n elements.
func (v *Vec[T]) SetSize(n int) error {
	for c := 0; c < v.ch; c++ {
		if v.arr[c] == nil {
			a, err := shm.Create[T](v.store.Shm(), "", n)
			if err != nil {
				return err
			}
			v.arr[c] = a
			continue
		}
		if err := v.arr[c].Resize(n); err != nil {
			return err
		}
	}
	return nil
}

// Size reports the element count of the first channel.
func (v *Vec[T]) Size() int {
	if v.arr[0] == nil {
		return 0
	}
	return v.arr[0].Size()
}

// Grid returns the grid reference without transferring ownership.
func (v *Vec[T]) Grid() Object { return v.grid }

// SetGrid replaces the grid reference.
func (v *Vec[T]) SetGrid(grid Object) {
	old := v.grid
	v.grid = refObject(grid)
	if old != nil {
		old.Unref()
	}
}

func (v *Vec[T]) Mapping() int32     { return v.mapping }
func (v *Vec[T]) SetMapping(m int32) { v.mapping = m }

func (v *Vec[T]) saveVec(w *archive.ObjectWriter) {
	v.saveCommon(w)
	objRef(w, "grid", v.grid)
	w.I32(v.mapping)
	w.U32(uint32(v.ch))
	roles := [3]string{"x", "y", "z"}
	for c := 0; c < v.ch; c++ {
		arrayRef(w, roles[c], v.arr[c])
	}
}

func (v *Vec[T]) loadVec(r *archive.ObjectReader) {
	v.loadCommon(r)
	bindObject(r, "grid", &v.grid)
	v.mapping = r.I32("mapping")
	ch := int(r.U32("channels"))
	if r.Err() == nil && ch != v.ch {
		r.Fail(fmt.Errorf("vector channel mismatch: stream has %d, type has %d", ch, v.ch))
		return
	}
	roles := [3]string{"x", "y", "z"}
	for c := 0; c < v.ch; c++ {
		bindArray(r, roles[c], &v.arr[c])
	}
}

func (v *Vec[T]) SaveTo(w *archive.ObjectWriter) error {
	v.saveVec(w)
	return nil
}

func (v *Vec[T]) LoadFrom(r *archive.ObjectReader) error {
	v.loadVec(r)
	return r.Err()
}

func (v *Vec[T]) copyVecFrom(src *Vec[T]) {
	v.grid = refObject(src.grid)
	v.mapping = src.mapping
	for c := 0; c < src.ch; c++ {
		v.arr[c] = refArray(src.arr[c])
	}
}

func (v *Vec[T]) copyDataFrom(src Object) error {
	sv, ok := src.(*Vec[T])
	if !ok {
		return fmt.Errorf("clone source %q is not a matching vector type", src.Name())
	}
	v.copyVecFrom(sv)
	return nil
}

func (v *Vec[T]) releaseVec() {
	unrefObject(&v.grid)
	for c := range v.arr {
		unrefArray(&v.arr[c])
	}
}

func (v *Vec[T]) releaseChildren() { v.releaseVec() }

func (v *Vec[T]) checkVec() error {
	if err := validate.Enum("mapping", int64(v.mapping),
		[]int64{int64(MappingUnspecified), int64(MappingVertex), int64(MappingElement)}, v.Name()); err != nil {
		return err
	}
	size := v.Size()
	roles := [3]string{"x", "y", "z"}
	for c := 0; c < v.ch; c++ {
		if v.arr[c] == nil {
			continue
		}
		if err := validate.Size(roles[c], v.arr[c].Size(), size, v.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vec[T]) Check() error { return v.checkVec() }

func registerVecs[T vecElem](kind int32, base string) {
	for dim := 1; dim <= 3; dim++ {
		tag := VecTag(kind, dim)
		name := fmt.Sprintf("%s%d", base, dim)
		d := dim
		register(tag, name, func(store *Store, n string) Object {
			return newVec[T](store, n, tag, d)
		})
	}
}

func init() {
	registerVecs[int8](vecKindChar, "vec_char")
	registerVecs[int8](vecKindInt8, "vec_int8")
	registerVecs[uint8](vecKindUInt8, "vec_uint8")
	registerVecs[int32](vecKindInt32, "vec_int32")
	registerVecs[uint32](vecKindUInt32, "vec_uint32")
	registerVecs[int64](vecKindInt64, "vec_int64")
	registerVecs[uint64](vecKindUInt64, "vec_uint64")
	registerVecs[float32](vecKindFloat32, "vec_float32")
	registerVecs[float64](vecKindFloat64, "vec_float64")
}

// NewVec creates and publishes a standalone field with the given scalar
// kind index and channel count.
func NewVec[T vecElem](store *Store, kind int32, channels, size int) (*Vec[T], error) {
	obj, err := store.Create(VecTag(kind, channels), "")
	if err != nil {
		return nil, err
	}
	v, ok := obj.(*Vec[T])
	if !ok {
		obj.Unref()
		return nil, fmt.Errorf("object: vec kind %d does not hold the requested element type", kind)
	}
	if err := v.SetSize(size); err != nil {
		obj.Unref()
		return nil, err
	}
	return v, nil
}
