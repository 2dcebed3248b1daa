package object

import (
	"github.com/hpcvis/vizcore/internal/scalar"
)

// Celltree construction: a bounding-interval hierarchy built by splitting
// each node at the centre of its cell midpoints' extent along the widest
// axis. Nodes of at most celltreeLeafCells cells become leaves; a larger
// node whose midpoints cannot be separated by that split also stays a leaf.
// Inner nodes record the extrema of their two subvolumes along the split
// dimension so traversal can prune intervals.

const celltreeLeafCells = 8

// CellBounds reports one cell's axis-aligned extents.
type CellBounds struct {
	Min, Max [3]scalar.Scalar
}

type celltreeBuilder struct {
	dims   int
	bounds []CellBounds
	cells  []scalar.Index
	nodes  []scalar.CelltreeNode
}

// BuildCelltree constructs a celltree of the given dimension over the cell
// extents and publishes it in the store. The cell list is a permutation of
// 0..len(bounds)-1 grouped by leaf.
func BuildCelltree(store *Store, dims int, bounds []CellBounds) (*Celltree, error) {
	b := &celltreeBuilder{
		dims:   dims,
		bounds: bounds,
		cells:  make([]scalar.Index, len(bounds)),
	}
	for i := range b.cells {
		b.cells[i] = scalar.Index(i)
	}
	if len(bounds) > 0 {
		b.nodes = append(b.nodes, scalar.NewCelltreeLeaf(dims, 0, scalar.Index(len(bounds))))
		b.split(0)
	}

	ct, err := NewCelltree(store, dims, len(b.nodes), len(b.cells))
	if err != nil {
		return nil, err
	}
	copy(ct.Nodes().Data(), b.nodes)
	copy(ct.Cells().Data(), b.cells)

	min, max := overallBounds(bounds)
	ct.SetBounds(min, max)
	return ct, nil
}

func overallBounds(bounds []CellBounds) (min, max [3]scalar.Scalar) {
	if len(bounds) == 0 {
		return min, max
	}
	min, max = bounds[0].Min, bounds[0].Max
	for _, b := range bounds[1:] {
		for d := 0; d < 3; d++ {
			if b.Min[d] < min[d] {
				min[d] = b.Min[d]
			}
			if b.Max[d] > max[d] {
				max[d] = b.Max[d]
			}
		}
	}
	return min, max
}

func (b *celltreeBuilder) mid(cell scalar.Index, dim int) scalar.Scalar {
	bb := &b.bounds[cell]
	return (bb.Min[dim] + bb.Max[dim]) / 2
}

// split turns leaf node into an inner node when it holds enough cells,
// recursing into both children.
func (b *celltreeBuilder) split(node int) {
	n := b.nodes[node]
	if int(n.Size) <= celltreeLeafCells {
		return
	}
	start, size := n.Start, n.Size
	seg := b.cells[start : start+size]

	// Split along the widest extent of the cell midpoints.
	dim := 0
	var widest scalar.Scalar = -1
	var lo, hi scalar.Scalar
	for d := 0; d < b.dims; d++ {
		dlo, dhi := b.mid(seg[0], d), b.mid(seg[0], d)
		for _, c := range seg[1:] {
			m := b.mid(c, d)
			if m < dlo {
				dlo = m
			}
			if m > dhi {
				dhi = m
			}
		}
		if dhi-dlo > widest {
			widest = dhi - dlo
			dim = d
			lo, hi = dlo, dhi
		}
	}
	if widest <= 0 {
		// Degenerate cloud of identical midpoints stays a leaf.
		return
	}

	pivot := (lo + hi) / 2
	left := 0
	for i := 0; i < len(seg); i++ {
		if b.mid(seg[i], dim) <= pivot {
			seg[left], seg[i] = seg[i], seg[left]
			left++
		}
	}
	if left == 0 || left == len(seg) {
		return
	}

	lmax := b.bounds[seg[0]].Max[dim]
	for _, c := range seg[:left] {
		if b.bounds[c].Max[dim] > lmax {
			lmax = b.bounds[c].Max[dim]
		}
	}
	rmin := b.bounds[seg[left]].Min[dim]
	for _, c := range seg[left:] {
		if b.bounds[c].Min[dim] < rmin {
			rmin = b.bounds[c].Min[dim]
		}
	}

	child := scalar.Index(len(b.nodes))
	b.nodes = append(b.nodes,
		scalar.NewCelltreeLeaf(b.dims, start, scalar.Index(left)),
		scalar.NewCelltreeLeaf(b.dims, start+scalar.Index(left), size-scalar.Index(left)))
	b.nodes[node] = scalar.NewCelltreeInner(scalar.Index(dim), lmax, rmin, child)

	b.split(int(child))
	b.split(int(child) + 1)
}

// LeafCells walks the tree and calls visit with each leaf's cell slice.
func (c *Celltree) LeafCells(visit func(cells []scalar.Index)) {
	if c.nodes == nil || c.nodes.Size() == 0 {
		return
	}
	nodes := c.nodes.Data()
	cells := c.cells.Data()
	var walk func(i scalar.Index)
	walk = func(i scalar.Index) {
		n := &nodes[i]
		if n.IsLeaf(c.dims) {
			visit(cells[n.Start : n.Start+n.Size])
			return
		}
		walk(n.Left())
		walk(n.Right())
	}
	walk(0)
}

// AttachCelltree builds a celltree over the geometry's cell extents and
// attaches it under the conventional key.
func AttachCelltree(store *Store, geo Object, bounds []CellBounds, dims int) (*Celltree, error) {
	ct, err := BuildCelltree(store, dims, bounds)
	if err != nil {
		return nil, err
	}
	if err := geo.Base().AddAttachment(AttachmentCelltree, ct); err != nil {
		ct.Unref()
		return nil, err
	}
	return ct, nil
}
