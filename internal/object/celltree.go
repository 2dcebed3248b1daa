package object

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
	"github.com/hpcvis/vizcore/internal/validate"
)

// Celltree is a bounding-interval hierarchy over the cells of a grid,
// attached to geometries for spatial lookup. The dimension (1..3) fixes
// both the node layout tag and the leaf sentinel.
type Celltree struct {
	Record
	dims     int
	nodes    *shm.Array[scalar.CelltreeNode]
	cells    *shm.Array[scalar.Index]
	min, max [3]scalar.Scalar
}

// CelltreeInterface is the capability of geometries that can carry a
// celltree attachment.
type CelltreeInterface interface {
	HasCelltree() bool
	Celltree() (Object, bool)
}

func celltreeTag(dims int) int32 {
	switch dims {
	case 1:
		return TypeCelltree1
	case 2:
		return TypeCelltree2
	case 3:
		return TypeCelltree3
	}
	return TypeCelltree3
}

func celltreeNodeTag(dims int) scalar.Type {
	switch dims {
	case 1:
		return scalar.CelltreeNode1
	case 2:
		return scalar.CelltreeNode2
	}
	return scalar.CelltreeNode3
}

// NewCelltree creates and publishes a celltree of the given dimension over
// numCells cells.
func NewCelltree(store *Store, dims, numNodes, numCells int) (*Celltree, error) {
	obj, err := store.Create(celltreeTag(dims), "")
	if err != nil {
		return nil, err
	}
	ct := obj.(*Celltree)
	nodes, err := shm.CreateTagged[scalar.CelltreeNode](store.Shm(), "", numNodes, celltreeNodeTag(dims))
	if err != nil {
		ct.Unref()
		return nil, err
	}
	cells, err := shm.Create[scalar.Index](store.Shm(), "", numCells)
	if err != nil {
		nodes.Unref()
		ct.Unref()
		return nil, err
	}
	ct.nodes, ct.cells = nodes, cells
	return ct, nil
}

// Dimensions reports the tree dimension.
func (c *Celltree) Dimensions() int { return c.dims }

// Nodes and Cells expose the tree arrays.
func (c *Celltree) Nodes() *shm.Array[scalar.CelltreeNode] { return c.nodes }
func (c *Celltree) Cells() *shm.Array[scalar.Index]        { return c.cells }

// Bounds returns the overall extents.
func (c *Celltree) Bounds() (min, max [3]scalar.Scalar) { return c.min, c.max }

// SetBounds stores the overall extents.
func (c *Celltree) SetBounds(min, max [3]scalar.Scalar) { c.min, c.max = min, max }

func (c *Celltree) SaveTo(w *archive.ObjectWriter) error {
	c.saveCommon(w)
	w.U32(uint32(c.dims))
	for d := 0; d < 3; d++ {
		w.F64(float64(c.min[d]))
		w.F64(float64(c.max[d]))
	}
	arrayRef(w, "nodes", c.nodes)
	arrayRef(w, "cells", c.cells)
	return nil
}

func (c *Celltree) LoadFrom(r *archive.ObjectReader) error {
	c.loadCommon(r)
	dims := int(r.U32("dimensions"))
	if r.Err() == nil && dims != c.dims {
		r.Fail(fmt.Errorf("celltree dimension mismatch: stream has %d, type has %d", dims, c.dims))
		return r.Err()
	}
	for d := 0; d < 3; d++ {
		c.min[d] = scalar.Scalar(r.F64("min"))
		c.max[d] = scalar.Scalar(r.F64("max"))
	}
	bindArray(r, "nodes", &c.nodes)
	bindArray(r, "cells", &c.cells)
	return r.Err()
}

func (c *Celltree) copyDataFrom(src Object) error {
	sc, ok := src.(*Celltree)
	if !ok || sc.dims != c.dims {
		return fmt.Errorf("clone source %q is not a %d-dimensional celltree", src.Name(), c.dims)
	}
	c.nodes = refArray(sc.nodes)
	c.cells = refArray(sc.cells)
	c.min, c.max = sc.min, sc.max
	return nil
}

func (c *Celltree) releaseChildren() {
	unrefArray(&c.nodes)
	unrefArray(&c.cells)
}

func (c *Celltree) Check() error {
	if c.nodes == nil || c.nodes.Size() == 0 {
		return nil
	}
	numNodes := scalar.Index(c.nodes.Size())
	numCells := scalar.Index(c.cells.Size())
	for i, n := range c.nodes.Data() {
		if n.IsLeaf(c.dims) {
			if uint64(n.Start)+uint64(n.Size) > uint64(numCells) {
				return validate.Range(fmt.Sprintf("nodes[%d].start+size", i),
					[]scalar.Index{n.Start + n.Size}, 0, numCells, c.Name())
			}
			continue
		}
		if err := validate.Range(fmt.Sprintf("nodes[%d].dim", i),
			[]scalar.Index{n.Dim}, 0, scalar.Index(c.dims), c.Name()); err != nil {
			return err
		}
		if err := validate.Range(fmt.Sprintf("nodes[%d].child", i),
			[]scalar.Index{n.Right()}, 0, numNodes-1, c.Name()); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	for dims := 1; dims <= 3; dims++ {
		d := dims
		register(celltreeTag(d), fmt.Sprintf("celltree%d", d), func(store *Store, name string) Object {
			c := &Celltree{dims: d}
			c.init(c, store, name, celltreeTag(d))
			return c
		})
	}
}
