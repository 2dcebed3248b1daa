package object

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
	"github.com/hpcvis/vizcore/internal/validate"
)

// StructuredGridBase is the capability shared by all structured grids:
// axis-aligned division counts and ghost-layer widths.
type StructuredGridBase interface {
	NumDivisions() [3]scalar.Index
	NumGhostLayers(dim int, top bool) scalar.Index
}

// gridBase carries the structured extent and ghost layers.
type gridBase struct {
	div    [3]scalar.Index
	ghosts [3][2]scalar.Index
}

func (g *gridBase) NumDivisions() [3]scalar.Index { return g.div }

func (g *gridBase) SetNumDivisions(div [3]scalar.Index) { g.div = div }

func (g *gridBase) NumGhostLayers(dim int, top bool) scalar.Index {
	if top {
		return g.ghosts[dim][1]
	}
	return g.ghosts[dim][0]
}

func (g *gridBase) SetNumGhostLayers(dim int, bottom, top scalar.Index) {
	g.ghosts[dim] = [2]scalar.Index{bottom, top}
}

func (g *gridBase) saveGridBase(w *archive.ObjectWriter) {
	for d := 0; d < 3; d++ {
		w.U32(g.div[d])
		w.U32(g.ghosts[d][0])
		w.U32(g.ghosts[d][1])
	}
}

func (g *gridBase) loadGridBase(r *archive.ObjectReader) {
	for d := 0; d < 3; d++ {
		g.div[d] = r.U32("divisions")
		g.ghosts[d][0] = r.U32("ghost bottom")
		g.ghosts[d][1] = r.U32("ghost top")
	}
}

// UniformGrid is an axis-aligned box divided evenly; it stores extents
// only, no arrays.
type UniformGrid struct {
	Record
	gridBase
	min, max [3]scalar.Scalar
}

// NewUniformGrid creates and publishes a uniform grid with the given
// divisions.
func NewUniformGrid(store *Store, div [3]scalar.Index, min, max [3]scalar.Scalar) (*UniformGrid, error) {
	obj, err := store.Create(TypeUniformGrid, "")
	if err != nil {
		return nil, err
	}
	u := obj.(*UniformGrid)
	u.div = div
	u.min, u.max = min, max
	return u, nil
}

// Bounds returns the box extents.
func (u *UniformGrid) Bounds() (min, max [3]scalar.Scalar) { return u.min, u.max }

func (u *UniformGrid) SaveTo(w *archive.ObjectWriter) error {
	u.saveCommon(w)
	u.saveGridBase(w)
	for d := 0; d < 3; d++ {
		w.F64(float64(u.min[d]))
		w.F64(float64(u.max[d]))
	}
	return nil
}

func (u *UniformGrid) LoadFrom(r *archive.ObjectReader) error {
	u.loadCommon(r)
	u.loadGridBase(r)
	for d := 0; d < 3; d++ {
		u.min[d] = scalar.Scalar(r.F64("min"))
		u.max[d] = scalar.Scalar(r.F64("max"))
	}
	return r.Err()
}

func (u *UniformGrid) copyDataFrom(src Object) error {
	su, ok := src.(*UniformGrid)
	if !ok {
		return fmt.Errorf("clone source %q is not a uniform grid", src.Name())
	}
	u.gridBase = su.gridBase
	u.min, u.max = su.min, su.max
	return nil
}

func (u *UniformGrid) releaseChildren() {}

func (u *UniformGrid) Check() error {
	for d := 0; d < 3; d++ {
		if u.min[d] > u.max[d] {
			return validate.Range(fmt.Sprintf("extent[%d]", d),
				[]scalar.Scalar{u.min[d]}, scalar.Scalar(-1e38), u.max[d], u.Name())
		}
	}
	return nil
}

// RectilinearGrid stores one coordinate array per axis.
type RectilinearGrid struct {
	Record
	gridBase
	coords [3]*shm.Array[scalar.Scalar]
}

// NewRectilinearGrid creates and publishes a rectilinear grid with the
// given divisions per axis.
func NewRectilinearGrid(store *Store, div [3]scalar.Index) (*RectilinearGrid, error) {
	obj, err := store.Create(TypeRectilinearGrid, "")
	if err != nil {
		return nil, err
	}
	g := obj.(*RectilinearGrid)
	g.div = div
	for d := 0; d < 3; d++ {
		a, err := shm.Create[scalar.Scalar](store.Shm(), "", int(div[d]))
		if err != nil {
			g.Unref()
			return nil, err
		}
		g.coords[d] = a
	}
	return g, nil
}

// Coords returns the coordinate array of one axis.
func (g *RectilinearGrid) Coords(dim int) *shm.Array[scalar.Scalar] { return g.coords[dim] }

func (g *RectilinearGrid) SaveTo(w *archive.ObjectWriter) error {
	g.saveCommon(w)
	g.saveGridBase(w)
	roles := [3]string{"x", "y", "z"}
	for d := 0; d < 3; d++ {
		arrayRef(w, roles[d], g.coords[d])
	}
	return nil
}

func (g *RectilinearGrid) LoadFrom(r *archive.ObjectReader) error {
	g.loadCommon(r)
	g.loadGridBase(r)
	roles := [3]string{"x", "y", "z"}
	for d := 0; d < 3; d++ {
		bindArray(r, roles[d], &g.coords[d])
	}
	return r.Err()
}

func (g *RectilinearGrid) copyDataFrom(src Object) error {
	sg, ok := src.(*RectilinearGrid)
	if !ok {
		return fmt.Errorf("clone source %q is not a rectilinear grid", src.Name())
	}
	g.gridBase = sg.gridBase
	for d := 0; d < 3; d++ {
		g.coords[d] = refArray(sg.coords[d])
	}
	return nil
}

func (g *RectilinearGrid) releaseChildren() {
	for d := range g.coords {
		unrefArray(&g.coords[d])
	}
}

func (g *RectilinearGrid) Check() error {
	for d := 0; d < 3; d++ {
		if g.coords[d] == nil {
			continue
		}
		if err := validate.Size(fmt.Sprintf("coords[%d]", d), g.coords[d].Size(), int(g.div[d]), g.Name()); err != nil {
			return err
		}
		if err := validate.Monotonic(fmt.Sprintf("coords[%d]", d), g.coords[d].Data(), g.Name()); err != nil {
			return err
		}
	}
	return nil
}

// StructuredGrid is a curvilinear grid: explicit coordinates plus a
// structured extent.
type StructuredGrid struct {
	Coords
	gridBase
}

// NewStructuredGrid creates and publishes a structured grid.
func NewStructuredGrid(store *Store, div [3]scalar.Index) (*StructuredGrid, error) {
	obj, err := store.Create(TypeStructuredGrid, "")
	if err != nil {
		return nil, err
	}
	g := obj.(*StructuredGrid)
	g.div = div
	n := int(div[0]) * int(div[1]) * int(div[2])
	if err := g.SetSize(n); err != nil {
		g.Unref()
		return nil, err
	}
	return g, nil
}

func (g *StructuredGrid) SaveTo(w *archive.ObjectWriter) error {
	g.saveCoords(w)
	g.saveGridBase(w)
	return nil
}

func (g *StructuredGrid) LoadFrom(r *archive.ObjectReader) error {
	g.loadCoords(r)
	g.loadGridBase(r)
	return r.Err()
}

func (g *StructuredGrid) copyDataFrom(src Object) error {
	sg, ok := src.(*StructuredGrid)
	if !ok {
		return fmt.Errorf("clone source %q is not a structured grid", src.Name())
	}
	g.copyCoordsFrom(&sg.Coords)
	g.gridBase = sg.gridBase
	return nil
}

func (g *StructuredGrid) releaseChildren() { g.releaseCoords() }

func (g *StructuredGrid) Check() error {
	if err := g.checkCoords(); err != nil {
		return err
	}
	want := int(g.div[0]) * int(g.div[1]) * int(g.div[2])
	return validate.Size("coords", g.NumVertices(), want, g.Name())
}

// LayerGrid is uniform in x and y with an explicit z sample per layer
// vertex.
type LayerGrid struct {
	Record
	gridBase
	min, max [2]scalar.Scalar
	z        *shm.Array[scalar.Scalar]
}

// NewLayerGrid creates and publishes a layered grid.
func NewLayerGrid(store *Store, div [3]scalar.Index, min, max [2]scalar.Scalar) (*LayerGrid, error) {
	obj, err := store.Create(TypeLayerGrid, "")
	if err != nil {
		return nil, err
	}
	g := obj.(*LayerGrid)
	g.div = div
	g.min, g.max = min, max
	n := int(div[0]) * int(div[1]) * int(div[2])
	a, err := shm.Create[scalar.Scalar](store.Shm(), "", n)
	if err != nil {
		g.Unref()
		return nil, err
	}
	g.z = a
	return g, nil
}

// Z returns the layer heights.
func (g *LayerGrid) Z() *shm.Array[scalar.Scalar] { return g.z }

func (g *LayerGrid) SaveTo(w *archive.ObjectWriter) error {
	g.saveCommon(w)
	g.saveGridBase(w)
	for d := 0; d < 2; d++ {
		w.F64(float64(g.min[d]))
		w.F64(float64(g.max[d]))
	}
	arrayRef(w, "z", g.z)
	return nil
}

func (g *LayerGrid) LoadFrom(r *archive.ObjectReader) error {
	g.loadCommon(r)
	g.loadGridBase(r)
	for d := 0; d < 2; d++ {
		g.min[d] = scalar.Scalar(r.F64("min"))
		g.max[d] = scalar.Scalar(r.F64("max"))
	}
	bindArray(r, "z", &g.z)
	return r.Err()
}

func (g *LayerGrid) copyDataFrom(src Object) error {
	sg, ok := src.(*LayerGrid)
	if !ok {
		return fmt.Errorf("clone source %q is not a layer grid", src.Name())
	}
	g.gridBase = sg.gridBase
	g.min, g.max = sg.min, sg.max
	g.z = refArray(sg.z)
	return nil
}

func (g *LayerGrid) releaseChildren() { unrefArray(&g.z) }

func (g *LayerGrid) Check() error {
	if g.z == nil {
		return nil
	}
	want := int(g.div[0]) * int(g.div[1]) * int(g.div[2])
	return validate.Size("z", g.z.Size(), want, g.Name())
}

func init() {
	register(TypeUniformGrid, "uniformgrid", func(store *Store, name string) Object {
		u := &UniformGrid{}
		u.init(u, store, name, TypeUniformGrid)
		return u
	})
	register(TypeRectilinearGrid, "rectilineargrid", func(store *Store, name string) Object {
		g := &RectilinearGrid{}
		g.init(g, store, name, TypeRectilinearGrid)
		return g
	})
	register(TypeStructuredGrid, "structuredgrid", func(store *Store, name string) Object {
		g := &StructuredGrid{}
		g.initCoords(g, store, name, TypeStructuredGrid)
		return g
	})
	register(TypeLayerGrid, "layergrid", func(store *Store, name string) Object {
		g := &LayerGrid{}
		g.init(g, store, name, TypeLayerGrid)
		return g
	})
}
