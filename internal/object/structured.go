package object

import "github.com/hpcvis/vizcore/internal/scalar"

// Index arithmetic shared by the structured grids: vertices are numbered
// x-fastest over the division counts, cells over divisions-1.

// NumGridVertices reports the vertex count of the structured extent.
func (g *gridBase) NumGridVertices() int {
	return int(g.div[0]) * int(g.div[1]) * int(g.div[2])
}

// NumGridCells reports the cell count of the structured extent.
func (g *gridBase) NumGridCells() int {
	n := 1
	for d := 0; d < 3; d++ {
		if g.div[d] > 1 {
			n *= int(g.div[d] - 1)
		}
	}
	return n
}

// VertexIndex flattens structured coordinates into a vertex number.
func (g *gridBase) VertexIndex(x, y, z scalar.Index) scalar.Index {
	return (z*g.div[1]+y)*g.div[0] + x
}

// VertexCoordinates inverts VertexIndex.
func (g *gridBase) VertexCoordinates(v scalar.Index) (x, y, z scalar.Index) {
	x = v % g.div[0]
	v /= g.div[0]
	y = v % g.div[1]
	z = v / g.div[1]
	return x, y, z
}

// CellIndex flattens structured cell coordinates into a cell number.
func (g *gridBase) CellIndex(x, y, z scalar.Index) scalar.Index {
	cx, cy := g.div[0]-1, g.div[1]-1
	if cx == 0 {
		cx = 1
	}
	if cy == 0 {
		cy = 1
	}
	return (z*cy+y)*cx + x
}

// IsGhostVertex reports whether the structured coordinate lies inside a
// ghost layer.
func (g *gridBase) IsGhostVertex(x, y, z scalar.Index) bool {
	coords := [3]scalar.Index{x, y, z}
	for d := 0; d < 3; d++ {
		if coords[d] < g.ghosts[d][0] {
			return true
		}
		if coords[d]+g.ghosts[d][1] >= g.div[d] {
			return true
		}
	}
	return false
}

// VertexPosition interpolates the spatial position of a structured vertex
// of a uniform grid.
func (u *UniformGrid) VertexPosition(v scalar.Index) [3]scalar.Scalar {
	x, y, z := u.VertexCoordinates(v)
	coords := [3]scalar.Index{x, y, z}
	var out [3]scalar.Scalar
	for d := 0; d < 3; d++ {
		if u.div[d] <= 1 {
			out[d] = u.min[d]
			continue
		}
		t := scalar.Scalar(coords[d]) / scalar.Scalar(u.div[d]-1)
		out[d] = u.min[d] + t*(u.max[d]-u.min[d])
	}
	return out
}

// VertexPosition looks up the position of a structured vertex of a
// rectilinear grid.
func (g *RectilinearGrid) VertexPosition(v scalar.Index) [3]scalar.Scalar {
	x, y, z := g.VertexCoordinates(v)
	coords := [3]scalar.Index{x, y, z}
	var out [3]scalar.Scalar
	for d := 0; d < 3; d++ {
		if g.coords[d] != nil && int(coords[d]) < g.coords[d].Size() {
			out[d] = g.coords[d].At(int(coords[d]))
		}
	}
	return out
}
