package object

// Capability bundles concrete types opt into. The store hands out plain
// Objects; operations needing a capability downcast through these.

// GeometryInterface marks objects carrying explicit vertices.
type GeometryInterface interface {
	NumVertices() int
}

// ElementInterface marks objects built from cells.
type ElementInterface interface {
	NumElements() int
}

// HasCelltree reports whether a celltree is attached.
func (x *Indexed) HasCelltree() bool { return x.HasAttachment(AttachmentCelltree) }

// Celltree returns the attached celltree.
func (x *Indexed) Celltree() (Object, bool) { return x.GetAttachment(AttachmentCelltree) }

// HasVertexOwnerList reports whether an owner list is attached.
func (x *Indexed) HasVertexOwnerList() bool { return x.HasAttachment(AttachmentVertexOwnerList) }

// VertexOwnerList returns the attached owner list.
func (x *Indexed) VertexOwnerList() (Object, bool) {
	return x.GetAttachment(AttachmentVertexOwnerList)
}

// HasCelltree reports whether a celltree is attached.
func (g *Ngons) HasCelltree() bool { return g.HasAttachment(AttachmentCelltree) }

// Celltree returns the attached celltree.
func (g *Ngons) Celltree() (Object, bool) { return g.GetAttachment(AttachmentCelltree) }

var (
	_ GeometryInterface  = (*Points)(nil)
	_ GeometryInterface  = (*Ngons)(nil)
	_ ElementInterface   = (*Ngons)(nil)
	_ ElementInterface   = (*Indexed)(nil)
	_ CelltreeInterface  = (*Indexed)(nil)
	_ CelltreeInterface  = (*Ngons)(nil)
	_ StructuredGridBase = (*UniformGrid)(nil)
	_ StructuredGridBase = (*RectilinearGrid)(nil)
	_ StructuredGridBase = (*StructuredGrid)(nil)
	_ StructuredGridBase = (*LayerGrid)(nil)
)
