package object

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
)

// Cell accessors shared by the element-bearing geometries, plus the
// reverse-lookup builder for vertex owner lists.

// CellVertices returns the vertex indices of cell elem.
func (g *Ngons) CellVertices(elem int) []scalar.Index {
	if g.cl != nil && g.cl.Size() > 0 {
		return g.cl.Data()[elem*g.arity : (elem+1)*g.arity]
	}
	// Without a connectivity list, vertices are used in order.
	out := make([]scalar.Index, g.arity)
	for i := range out {
		out[i] = scalar.Index(elem*g.arity + i)
	}
	return out
}

// CellVertices returns the vertex indices of cell elem.
func (x *Indexed) CellVertices(elem int) []scalar.Index {
	el := x.el.Data()
	return x.cl.Data()[el[elem]:el[elem+1]]
}

// CellNumVertices reports how many corners cell elem has.
func (x *Indexed) CellNumVertices(elem int) int {
	el := x.el.Data()
	return int(el[elem+1] - el[elem])
}

// CellTypeName names an unstructured cell type byte.
func CellTypeName(t uint8) string {
	switch t {
	case CellNone:
		return "none"
	case CellBar:
		return "bar"
	case CellTriangle:
		return "triangle"
	case CellQuad:
		return "quad"
	case CellTetrahedron:
		return "tetrahedron"
	case CellPyramid:
		return "pyramid"
	case CellPrism:
		return "prism"
	case CellHexahedron:
		return "hexahedron"
	case CellPolyhedron:
		return "polyhedron"
	}
	return fmt.Sprintf("cell(%d)", t)
}

// cellVertexCounts is the corner count per fixed-arity cell type; 0 means
// variable.
var cellVertexCounts = map[uint8]int{
	CellBar:         2,
	CellTriangle:    3,
	CellQuad:        4,
	CellTetrahedron: 4,
	CellPyramid:     5,
	CellPrism:       6,
	CellHexahedron:  8,
}

// CheckCellSizes verifies that each cell's corner span matches its type.
func (u *UnstructuredGrid) CheckCellSizes() error {
	if u.tl == nil || u.el == nil {
		return nil
	}
	tl := u.tl.Data()
	for elem := 0; elem < u.NumElements(); elem++ {
		want, fixed := cellVertexCounts[tl[elem]]
		if !fixed {
			continue
		}
		if got := u.CellNumVertices(elem); got != want {
			return fmt.Errorf("object: cell %d is a %s with %d corners, expected %d",
				elem, CellTypeName(tl[elem]), got, want)
		}
	}
	return nil
}

// BuildVertexOwnerList derives the vertex→cell reverse mapping of an
// indexed geometry and publishes it. The result is typically attached
// under AttachmentVertexOwnerList.
func BuildVertexOwnerList(store *Store, x *Indexed) (*VertexOwnerList, error) {
	numVerts := x.NumVertices()
	numElems := x.NumElements()

	counts := make([]scalar.Index, numVerts+1)
	for elem := 0; elem < numElems; elem++ {
		for _, v := range x.CellVertices(elem) {
			counts[v+1]++
		}
	}
	for i := 1; i <= numVerts; i++ {
		counts[i] += counts[i-1]
	}
	total := int(counts[numVerts])

	vol, err := NewVertexOwnerList(store, numVerts, total)
	if err != nil {
		return nil, err
	}
	copy(vol.VertexList().Data(), counts)

	fill := make([]scalar.Index, numVerts)
	cellList := vol.CellList().Data()
	for elem := 0; elem < numElems; elem++ {
		for _, v := range x.CellVertices(elem) {
			cellList[counts[v]+fill[v]] = scalar.Index(elem)
			fill[v]++
		}
	}
	return vol, nil
}

// CellsOfVertex reports the cells using vertex v.
func (v *VertexOwnerList) CellsOfVertex(vertex int) []scalar.Index {
	vl := v.vertexList.Data()
	return v.cellList.Data()[vl[vertex]:vl[vertex+1]]
}

// CellBoundsOf computes per-cell extents of an indexed geometry, the input
// a celltree build wants.
func CellBoundsOf(x *Indexed) []CellBounds {
	xs, ys, zs := x.X().Data(), x.Y().Data(), x.Z().Data()
	out := make([]CellBounds, x.NumElements())
	for elem := range out {
		verts := x.CellVertices(elem)
		b := CellBounds{
			Min: [3]scalar.Scalar{xs[verts[0]], ys[verts[0]], zs[verts[0]]},
			Max: [3]scalar.Scalar{xs[verts[0]], ys[verts[0]], zs[verts[0]]},
		}
		for _, v := range verts[1:] {
			for d, coord := range [3]scalar.Scalar{xs[v], ys[v], zs[v]} {
				if coord < b.Min[d] {
					b.Min[d] = coord
				}
				if coord > b.Max[d] {
					b.Max[d] = coord
				}
			}
		}
		out[elem] = b
	}
	return out
}

// Bounds computes the coordinate extents through the arrays' min/max
// caches, refreshing them as needed.
func (c *Coords) Bounds() (min, max [3]scalar.Scalar) {
	arrs := [3]*shm.Array[scalar.Scalar]{c.X(), c.Y(), c.Z()}
	for d, arr := range arrs {
		if arr == nil || arr.Size() == 0 {
			continue
		}
		if !arr.BoundsValid() {
			arr.UpdateBounds()
		}
		min[d] = scalar.Scalar(arr.Min())
		max[d] = scalar.Scalar(arr.Max())
	}
	return min, max
}
