package object

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
	"github.com/hpcvis/vizcore/internal/validate"
)

// VertexOwnerList maps each vertex to the cells using it: an offset list
// per vertex into a flat cell list. Geometries attach it for reverse
// lookups; the owning geometry is found by name through the store, never
// by a strong back-edge.
type VertexOwnerList struct {
	Record
	vertexList *shm.Array[scalar.Index] // per vertex: first entry, plus end sentinel
	cellList   *shm.Array[scalar.Index]
}

// NewVertexOwnerList creates and publishes an owner list for numVertices
// vertices and numEntries cell entries.
func NewVertexOwnerList(store *Store, numVertices, numEntries int) (*VertexOwnerList, error) {
	obj, err := store.Create(TypeVertexOwnerList, "")
	if err != nil {
		return nil, err
	}
	v := obj.(*VertexOwnerList)
	vl, err := shm.Create[scalar.Index](store.Shm(), "", numVertices+1)
	if err != nil {
		v.Unref()
		return nil, err
	}
	cl, err := shm.Create[scalar.Index](store.Shm(), "", numEntries)
	if err != nil {
		vl.Unref()
		v.Unref()
		return nil, err
	}
	v.vertexList, v.cellList = vl, cl
	return v, nil
}

// VertexList and CellList expose the arrays.
func (v *VertexOwnerList) VertexList() *shm.Array[scalar.Index] { return v.vertexList }
func (v *VertexOwnerList) CellList() *shm.Array[scalar.Index]   { return v.cellList }

// NumVertices reports the vertex count.
func (v *VertexOwnerList) NumVertices() int {
	if v.vertexList == nil || v.vertexList.Size() == 0 {
		return 0
	}
	return v.vertexList.Size() - 1
}

func (v *VertexOwnerList) SaveTo(w *archive.ObjectWriter) error {
	v.saveCommon(w)
	arrayRef(w, "vl", v.vertexList)
	arrayRef(w, "cl", v.cellList)
	return nil
}

func (v *VertexOwnerList) LoadFrom(r *archive.ObjectReader) error {
	v.loadCommon(r)
	bindArray(r, "vl", &v.vertexList)
	bindArray(r, "cl", &v.cellList)
	return r.Err()
}

func (v *VertexOwnerList) copyDataFrom(src Object) error {
	sv, ok := src.(*VertexOwnerList)
	if !ok {
		return fmt.Errorf("clone source %q is not a vertex owner list", src.Name())
	}
	v.vertexList = refArray(sv.vertexList)
	v.cellList = refArray(sv.cellList)
	return nil
}

func (v *VertexOwnerList) releaseChildren() {
	unrefArray(&v.vertexList)
	unrefArray(&v.cellList)
}

func (v *VertexOwnerList) Check() error {
	if v.vertexList == nil {
		return nil
	}
	vl := v.vertexList.Data()
	if err := validate.Monotonic("vl", vl, v.Name()); err != nil {
		return err
	}
	end := scalar.Index(0)
	if v.cellList != nil {
		end = scalar.Index(v.cellList.Size())
	}
	return validate.Range("vl", vl, 0, end, v.Name())
}

func init() {
	register(TypeVertexOwnerList, "vertexownerlist", func(store *Store, name string) Object {
		v := &VertexOwnerList{}
		v.init(v, store, name, TypeVertexOwnerList)
		return v
	})
}
