package object

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/validate"
)

// Coords carries three coordinate channels plus an optional normals
// reference; every explicit geometry builds on it.
type Coords struct {
	Vec[scalar.Scalar]
	normals Object
}

func (c *Coords) initCoords(self Object, store *Store, name string, tag int32) {
	c.initVec(self, store, name, tag, 3)
}

// NumVertices reports the vertex count.
func (c *Coords) NumVertices() int { return c.Size() }

// Normals returns the normals reference without transferring ownership.
func (c *Coords) Normals() Object { return c.normals }

// SetNormals replaces the normals reference.
func (c *Coords) SetNormals(n Object) {
	old := c.normals
	c.normals = refObject(n)
	if old != nil {
		old.Unref()
	}
}

func (c *Coords) saveCoords(w *archive.ObjectWriter) {
	c.saveVec(w)
	objRef(w, "normals", c.normals)
}

func (c *Coords) loadCoords(r *archive.ObjectReader) {
	c.loadVec(r)
	bindObject(r, "normals", &c.normals)
}

func (c *Coords) copyCoordsFrom(src *Coords) {
	c.copyVecFrom(&src.Vec)
	c.normals = refObject(src.normals)
}

func (c *Coords) releaseCoords() {
	c.releaseVec()
	unrefObject(&c.normals)
}

func (c *Coords) checkCoords() error {
	if err := c.checkVec(); err != nil {
		return err
	}
	if c.normals != nil {
		if err := validate.SubObject("normals", c.normals, c.Name()); err != nil {
			return err
		}
	}
	return nil
}

// Points is a cloud of vertices.
type Points struct {
	Coords
}

// NewPoints creates and publishes a point cloud with numVertices vertices.
func NewPoints(store *Store, numVertices int) (*Points, error) {
	obj, err := store.Create(TypePoints, "")
	if err != nil {
		return nil, err
	}
	p := obj.(*Points)
	if err := p.SetSize(numVertices); err != nil {
		p.Unref()
		return nil, err
	}
	return p, nil
}

func (p *Points) SaveTo(w *archive.ObjectWriter) error {
	p.saveCoords(w)
	return nil
}

func (p *Points) LoadFrom(r *archive.ObjectReader) error {
	p.loadCoords(r)
	return r.Err()
}

func (p *Points) copyDataFrom(src Object) error {
	sp, ok := src.(*Points)
	if !ok {
		return fmt.Errorf("clone source %q is not a point cloud", src.Name())
	}
	p.copyCoordsFrom(&sp.Coords)
	return nil
}

func (p *Points) releaseChildren() { p.releaseCoords() }

func (p *Points) Check() error { return p.checkCoords() }

// Normals are per-vertex direction vectors, stored as coordinates.
type Normals struct {
	Coords
}

// NewNormals creates and publishes a normals field.
func NewNormals(store *Store, numNormals int) (*Normals, error) {
	obj, err := store.Create(TypeNormals, "")
	if err != nil {
		return nil, err
	}
	n := obj.(*Normals)
	if err := n.SetSize(numNormals); err != nil {
		n.Unref()
		return nil, err
	}
	return n, nil
}

func (n *Normals) SaveTo(w *archive.ObjectWriter) error {
	n.saveCoords(w)
	return nil
}

func (n *Normals) LoadFrom(r *archive.ObjectReader) error {
	n.loadCoords(r)
	return r.Err()
}

func (n *Normals) copyDataFrom(src Object) error {
	sn, ok := src.(*Normals)
	if !ok {
		return fmt.Errorf("clone source %q is not a normals field", src.Name())
	}
	n.copyCoordsFrom(&sn.Coords)
	return nil
}

func (n *Normals) releaseChildren() { n.releaseCoords() }

func (n *Normals) Check() error { return n.checkCoords() }

func init() {
	register(TypePoints, "points", func(store *Store, name string) Object {
		p := &Points{}
		p.initCoords(p, store, name, TypePoints)
		return p
	})
	register(TypeNormals, "normals", func(store *Store, name string) Object {
		n := &Normals{}
		n.initCoords(n, store, name, TypeNormals)
		return n
	})
}
