package object

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
	"github.com/hpcvis/vizcore/internal/validate"
)

// Ngons holds fixed-arity cells (triangles or quads): coordinates plus one
// connectivity list whose length is a multiple of the arity. An empty
// connectivity list addresses the vertices directly.
type Ngons struct {
	Coords
	arity int
	cl    *shm.Array[scalar.Index]
}

func (g *Ngons) initNgons(self Object, store *Store, name string, tag int32, arity int) {
	g.arity = arity
	g.initCoords(self, store, name, tag)
}

// Connectivity returns the corner list.
func (g *Ngons) Connectivity() *shm.Array[scalar.Index] { return g.cl }

// SetNumCorners allocates the connectivity list for n corners.
func (g *Ngons) SetNumCorners(n int) error {
	if g.cl == nil {
		a, err := shm.Create[scalar.Index](g.store.Shm(), "", n)
		if err != nil {
			return err
		}
		g.cl = a
		return nil
	}
	return g.cl.Resize(n)
}

// NumCorners reports the corner count.
func (g *Ngons) NumCorners() int {
	if g.cl == nil {
		return 0
	}
	return g.cl.Size()
}

// NumElements reports the cell count.
func (g *Ngons) NumElements() int {
	if n := g.NumCorners(); n > 0 {
		return n / g.arity
	}
	return g.NumVertices() / g.arity
}

func (g *Ngons) SaveTo(w *archive.ObjectWriter) error {
	g.saveCoords(w)
	arrayRef(w, "cl", g.cl)
	return nil
}

func (g *Ngons) LoadFrom(r *archive.ObjectReader) error {
	g.loadCoords(r)
	bindArray(r, "cl", &g.cl)
	return r.Err()
}

func (g *Ngons) copyDataFrom(src Object) error {
	sg, ok := src.(*Ngons)
	if !ok {
		return fmt.Errorf("clone source %q is not an n-gon mesh", src.Name())
	}
	g.copyCoordsFrom(&sg.Coords)
	g.cl = refArray(sg.cl)
	return nil
}

func (g *Ngons) releaseChildren() {
	g.releaseCoords()
	unrefArray(&g.cl)
}

func (g *Ngons) Check() error {
	if err := g.checkCoords(); err != nil {
		return err
	}
	n := g.NumCorners()
	if n%g.arity != 0 {
		return validate.Size("cl", n, n-n%g.arity, g.Name())
	}
	if g.cl != nil && g.NumVertices() > 0 {
		if err := validate.Range("cl", g.cl.Data(), 0, scalar.Index(g.NumVertices()-1), g.Name()); err != nil {
			return err
		}
	}
	return validate.IndexOverflow("corners", uint64(n), g.Name())
}

// Triangles is the Ngons alias for three-corner meshes; quad meshes are
// Ngons values built by NewQuads.
type Triangles = Ngons

func newNgons(store *Store, tag int32, arity, numCorners, numVertices int) (*Ngons, error) {
	obj, err := store.Create(tag, "")
	if err != nil {
		return nil, err
	}
	g := obj.(*Ngons)
	if err := g.SetSize(numVertices); err != nil {
		g.Unref()
		return nil, err
	}
	if err := g.SetNumCorners(numCorners); err != nil {
		g.Unref()
		return nil, err
	}
	return g, nil
}

// NewTriangles creates and publishes a triangle mesh.
func NewTriangles(store *Store, numCorners, numVertices int) (*Ngons, error) {
	return newNgons(store, TypeTriangles, 3, numCorners, numVertices)
}

// NewQuads creates and publishes a quad mesh.
func NewQuads(store *Store, numCorners, numVertices int) (*Ngons, error) {
	return newNgons(store, TypeQuads, 4, numCorners, numVertices)
}

func init() {
	register(TypeTriangles, "triangles", func(store *Store, name string) Object {
		g := &Ngons{}
		g.initNgons(g, store, name, TypeTriangles, 3)
		return g
	})
	register(TypeQuads, "quads", func(store *Store, name string) Object {
		g := &Ngons{}
		g.initNgons(g, store, name, TypeQuads, 4)
		return g
	})
}
