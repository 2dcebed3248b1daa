package object

// CloneType builds an empty, published instance of the same concrete type
// under a fresh name.
func (b *Record) CloneType() (Object, error) {
	return b.store.Create(b.typeTag, "")
}

// Clone deep-copies the record under a fresh name. Attribute lists are
// copied, attachments and arrays are shared by reference count.
func (b *Record) Clone() (Object, error) {
	clone, err := b.store.Create(b.typeTag, "")
	if err != nil {
		return nil, err
	}
	clone.SetMeta(*b.Meta())
	clone.Base().CopyAttributes(b.self, true)
	clone.Base().CopyAttachments(b.self, true)
	if err := clone.copyDataFrom(b.self); err != nil {
		clone.Unref()
		return nil, err
	}
	return clone, nil
}
