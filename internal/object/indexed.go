package object

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
	"github.com/hpcvis/vizcore/internal/validate"
)

// Attachment keys used by indexed geometries.
const (
	AttachmentCelltree        = "celltree"
	AttachmentVertexOwnerList = "vertexownerlist"
)

// Indexed is the variable-arity cell layout: an element list of offsets
// into the connectivity list, which indexes the vertices.
type Indexed struct {
	Coords
	el *shm.Array[scalar.Index] // per element: first corner, plus end sentinel
	cl *shm.Array[scalar.Index]
}

func (x *Indexed) initIndexed(self Object, store *Store, name string, tag int32) {
	x.initCoords(self, store, name, tag)
}

// ElementList and Connectivity expose the index arrays.
func (x *Indexed) ElementList() *shm.Array[scalar.Index]  { return x.el }
func (x *Indexed) Connectivity() *shm.Array[scalar.Index] { return x.cl }

// NumElements reports the cell count.
func (x *Indexed) NumElements() int {
	if x.el == nil || x.el.Size() == 0 {
		return 0
	}
	return x.el.Size() - 1
}

// NumCorners reports the connectivity length.
func (x *Indexed) NumCorners() int {
	if x.cl == nil {
		return 0
	}
	return x.cl.Size()
}

// SetNumElements sizes the element list for n cells (n+1 offsets).
func (x *Indexed) SetNumElements(n int) error {
	if x.el == nil {
		a, err := shm.Create[scalar.Index](x.store.Shm(), "", n+1)
		if err != nil {
			return err
		}
		x.el = a
		return nil
	}
	return x.el.Resize(n + 1)
}

// SetNumCorners sizes the connectivity list.
func (x *Indexed) SetNumCorners(n int) error {
	if x.cl == nil {
		a, err := shm.Create[scalar.Index](x.store.Shm(), "", n)
		if err != nil {
			return err
		}
		x.cl = a
		return nil
	}
	return x.cl.Resize(n)
}

func (x *Indexed) saveIndexed(w *archive.ObjectWriter) {
	x.saveCoords(w)
	arrayRef(w, "el", x.el)
	arrayRef(w, "cl", x.cl)
}

func (x *Indexed) loadIndexed(r *archive.ObjectReader) {
	x.loadCoords(r)
	bindArray(r, "el", &x.el)
	bindArray(r, "cl", &x.cl)
}

func (x *Indexed) copyIndexedFrom(src *Indexed) {
	x.copyCoordsFrom(&src.Coords)
	x.el = refArray(src.el)
	x.cl = refArray(src.cl)
}

func (x *Indexed) releaseIndexed() {
	x.releaseCoords()
	unrefArray(&x.el)
	unrefArray(&x.cl)
}

func (x *Indexed) checkIndexed() error {
	if err := x.checkCoords(); err != nil {
		return err
	}
	if x.el != nil && x.el.Size() > 0 {
		el := x.el.Data()
		if err := validate.Monotonic("el", el, x.Name()); err != nil {
			return err
		}
		if err := validate.Range("el", el, 0, scalar.Index(x.NumCorners()), x.Name()); err != nil {
			return err
		}
	}
	if x.cl != nil && x.NumVertices() > 0 {
		if err := validate.Range("cl", x.cl.Data(), 0, scalar.Index(x.NumVertices()-1), x.Name()); err != nil {
			return err
		}
	}
	return validate.IndexOverflow("corners", uint64(x.NumCorners()), x.Name())
}

func (x *Indexed) SaveTo(w *archive.ObjectWriter) error {
	x.saveIndexed(w)
	return nil
}

func (x *Indexed) LoadFrom(r *archive.ObjectReader) error {
	x.loadIndexed(r)
	return r.Err()
}

func (x *Indexed) copyDataFrom(src Object) error {
	sx, ok := src.(*Indexed)
	if !ok {
		return fmt.Errorf("clone source %q is not an indexed geometry", src.Name())
	}
	x.copyIndexedFrom(sx)
	return nil
}

func (x *Indexed) releaseChildren() { x.releaseIndexed() }

func (x *Indexed) Check() error { return x.checkIndexed() }

// Lines and Polygons share the indexed layout under their own tags.
func newIndexed(store *Store, tag int32, numElements, numCorners, numVertices int) (*Indexed, error) {
	obj, err := store.Create(tag, "")
	if err != nil {
		return nil, err
	}
	x := obj.(*Indexed)
	if err := x.SetSize(numVertices); err != nil {
		x.Unref()
		return nil, err
	}
	if err := x.SetNumElements(numElements); err != nil {
		x.Unref()
		return nil, err
	}
	if err := x.SetNumCorners(numCorners); err != nil {
		x.Unref()
		return nil, err
	}
	return x, nil
}

// NewLines creates and publishes a polyline set.
func NewLines(store *Store, numElements, numCorners, numVertices int) (*Indexed, error) {
	return newIndexed(store, TypeLines, numElements, numCorners, numVertices)
}

// NewPolygons creates and publishes a polygon set.
func NewPolygons(store *Store, numElements, numCorners, numVertices int) (*Indexed, error) {
	return newIndexed(store, TypePolygons, numElements, numCorners, numVertices)
}

// UnstructuredGrid adds a per-cell type byte to the indexed layout.
type UnstructuredGrid struct {
	Indexed
	tl *shm.Array[uint8]
}

// Unstructured cell types.
const (
	CellNone       uint8 = 0
	CellBar        uint8 = 1
	CellTriangle   uint8 = 2
	CellQuad       uint8 = 3
	CellTetrahedron uint8 = 4
	CellPyramid    uint8 = 5
	CellPrism      uint8 = 6
	CellHexahedron uint8 = 7
	CellPolyhedron uint8 = 8
	cellTypeMax    uint8 = CellPolyhedron
)

// NewUnstructuredGrid creates and publishes an unstructured grid.
func NewUnstructuredGrid(store *Store, numElements, numCorners, numVertices int) (*UnstructuredGrid, error) {
	obj, err := store.Create(TypeUnstructuredGrid, "")
	if err != nil {
		return nil, err
	}
	u := obj.(*UnstructuredGrid)
	if err := u.SetSize(numVertices); err != nil {
		u.Unref()
		return nil, err
	}
	if err := u.SetNumElements(numElements); err != nil {
		u.Unref()
		return nil, err
	}
	if err := u.SetNumCorners(numCorners); err != nil {
		u.Unref()
		return nil, err
	}
	return u, nil
}

// TypeList exposes the per-cell type bytes.
func (u *UnstructuredGrid) TypeList() *shm.Array[uint8] { return u.tl }

// SetNumElements sizes the element and type lists together.
func (u *UnstructuredGrid) SetNumElements(n int) error {
	if err := u.Indexed.SetNumElements(n); err != nil {
		return err
	}
	if u.tl == nil {
		a, err := shm.Create[uint8](u.store.Shm(), "", n)
		if err != nil {
			return err
		}
		u.tl = a
		return nil
	}
	return u.tl.Resize(n)
}

func (u *UnstructuredGrid) SaveTo(w *archive.ObjectWriter) error {
	u.saveIndexed(w)
	arrayRef(w, "tl", u.tl)
	return nil
}

func (u *UnstructuredGrid) LoadFrom(r *archive.ObjectReader) error {
	u.loadIndexed(r)
	bindArray(r, "tl", &u.tl)
	return r.Err()
}

func (u *UnstructuredGrid) copyDataFrom(src Object) error {
	su, ok := src.(*UnstructuredGrid)
	if !ok {
		return fmt.Errorf("clone source %q is not an unstructured grid", src.Name())
	}
	u.copyIndexedFrom(&su.Indexed)
	u.tl = refArray(su.tl)
	return nil
}

func (u *UnstructuredGrid) releaseChildren() {
	u.releaseIndexed()
	unrefArray(&u.tl)
}

func (u *UnstructuredGrid) Check() error {
	if err := u.checkIndexed(); err != nil {
		return err
	}
	if u.tl != nil {
		if err := validate.Size("tl", u.tl.Size(), u.NumElements(), u.Name()); err != nil {
			return err
		}
		if err := validate.Range("tl", u.tl.Data(), CellNone, cellTypeMax, u.Name()); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	register(TypeLines, "lines", func(store *Store, name string) Object {
		x := &Indexed{}
		x.initIndexed(x, store, name, TypeLines)
		return x
	})
	register(TypePolygons, "polygons", func(store *Store, name string) Object {
		x := &Indexed{}
		x.initIndexed(x, store, name, TypePolygons)
		return x
	})
	register(TypeUnstructuredGrid, "unstructuredgrid", func(store *Store, name string) Object {
		u := &UnstructuredGrid{}
		u.initIndexed(u, store, name, TypeUnstructuredGrid)
		return u
	})
}
