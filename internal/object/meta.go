package object

import "github.com/hpcvis/vizcore/internal/archive"

// Meta is the bookkeeping block every object carries: pipeline position,
// temporal placement, provenance and the model transform.
type Meta struct {
	Block             int32
	NumBlocks         int32
	Timestep          int32
	NumTimesteps      int32
	AnimationStep     int32
	NumAnimationSteps int32
	Iteration         int32
	Generation        int32
	Creator           int32
	RealTime          float64
	Transform         [16]float64
}

// NewMeta returns metadata with the conventional "unset" markers and an
// identity transform.
func NewMeta() Meta {
	m := Meta{
		Block:         -1,
		NumBlocks:     -1,
		Timestep:      -1,
		NumTimesteps:  -1,
		AnimationStep: -1,
		Iteration:     -1,
		Generation:    -1,
		Creator:       -1,
	}
	m.Transform[0], m.Transform[5], m.Transform[10], m.Transform[15] = 1, 1, 1, 1
	return m
}

func (m *Meta) save(w *archive.ObjectWriter) {
	w.I32(m.Block)
	w.I32(m.NumBlocks)
	w.I32(m.Timestep)
	w.I32(m.NumTimesteps)
	w.I32(m.AnimationStep)
	w.I32(m.NumAnimationSteps)
	w.I32(m.Iteration)
	w.I32(m.Generation)
	w.I32(m.Creator)
	w.F64(m.RealTime)
	for _, v := range m.Transform {
		w.F64(v)
	}
}

func (m *Meta) load(r *archive.ObjectReader) {
	m.Block = r.I32("block")
	m.NumBlocks = r.I32("numBlocks")
	m.Timestep = r.I32("timestep")
	m.NumTimesteps = r.I32("numTimesteps")
	m.AnimationStep = r.I32("animationStep")
	m.NumAnimationSteps = r.I32("numAnimationSteps")
	m.Iteration = r.I32("iteration")
	m.Generation = r.I32("generation")
	m.Creator = r.I32("creator")
	m.RealTime = r.F64("realTime")
	for i := range m.Transform {
		m.Transform[i] = r.F64("transform")
	}
}
