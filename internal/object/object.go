// Package object implements the typed object graph: records carrying
// metadata, attributes, attachments, and strong references to shared
// arrays and other objects.
package object

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hpcvis/vizcore/internal/archive"
)

// Object is the behavior every concrete type provides. The common record
// lives in Record, retrieved via Base(); concrete types add their arrays and references.
type Object interface {
	archive.Object

	Base() *Record
	Meta() *Meta
	SetMeta(Meta)

	// Ref and Unref manage the record's lifetime; the last drop removes
	// it from the store and releases every owned array and reference.
	Ref() Object
	Unref()
	RefCount() int32

	// Unresolved reports the number of outstanding references.
	Unresolved() int32

	// CloneType yields an empty instance of the same concrete type under
	// a fresh name.
	CloneType() (Object, error)
	// Clone deep-copies the record under a fresh name; arrays are shared
	// by refcount, not copied.
	Clone() (Object, error)

	// Check validates the record's invariants.
	Check() error

	// copyDataFrom shallow-copies the type-specific block of src, taking
	// references. src has the same concrete type.
	copyDataFrom(src Object) error
	// releaseChildren drops all owned array and object references.
	releaseChildren()
}

// Record is the common part of every object record.
type Record struct {
	self    Object // concrete wrapper, set at construction
	name    string
	typeTag int32
	store   *Store

	refs       atomic.Int32
	unresolved atomic.Int32

	completionMu sync.Mutex
	observers    []func()

	metaMu sync.Mutex
	meta   Meta

	attrMu     sync.Mutex
	attributes map[string][]string

	// attachMu guards the attachment map. Traversals snapshot under the
	// lock and walk outside it, so save/load can visit attachments of an
	// object that is itself being visited.
	attachMu    sync.Mutex
	attachments map[string]Object
}

func (b *Record) init(self Object, store *Store, name string, typeTag int32) {
	b.self = self
	b.store = store
	b.name = name
	b.typeTag = typeTag
	b.attributes = make(map[string][]string)
	b.attachments = make(map[string]Object)
	b.meta = NewMeta()
	b.refs.Store(1)
}

func (b *Record) Base() *Record    { return b }
func (b *Record) Name() string   { return b.name }
func (b *Record) TypeTag() int32 { return b.typeTag }

func (b *Record) Meta() *Meta {
	b.metaMu.Lock()
	defer b.metaMu.Unlock()
	m := b.meta
	return &m
}

func (b *Record) SetMeta(m Meta) {
	b.metaMu.Lock()
	defer b.metaMu.Unlock()
	b.meta = m
}

// --- lifetime ---------------------------------------------------------------

func (b *Record) Ref() Object {
	b.refs.Add(1)
	return b.self
}

func (b *Record) RefCount() int32 { return b.refs.Load() }

func (b *Record) Unref() {
	n := b.refs.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("object: %q released below zero", b.name))
	}
	if n > 0 {
		return
	}
	if b.store != nil {
		b.store.remove(b.name, b.self)
	}
	b.attachMu.Lock()
	attachments := b.attachments
	b.attachments = make(map[string]Object)
	b.attachMu.Unlock()
	for _, att := range attachments {
		att.Unref()
	}
	b.self.releaseChildren()
}

// --- completion -------------------------------------------------------------

// IsComplete reports whether all references have been resolved.
func (b *Record) IsComplete() bool { return b.unresolved.Load() == 0 }

// Unresolved reports the number of outstanding references.
func (b *Record) Unresolved() int32 { return b.unresolved.Load() }

// UnresolvedReference counts one more reference whose target is not yet
// available.
func (b *Record) UnresolvedReference() { b.unresolved.Add(1) }

// ReferenceResolved counts a resolution; reaching zero fires the
// completion observers on the calling thread.
func (b *Record) ReferenceResolved() {
	n := b.unresolved.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("object: %q resolved more references than requested", b.name))
	}
	if n == 0 {
		b.fireCompletion()
	}
}

func (b *Record) fireCompletion() {
	b.completionMu.Lock()
	obs := b.observers
	b.observers = nil
	b.completionMu.Unlock()
	for _, fn := range obs {
		fn()
	}
}

// AddCompletionObserver runs fn once the object becomes complete, or
// immediately if it already is.
func (b *Record) AddCompletionObserver(fn func()) {
	b.completionMu.Lock()
	if b.unresolved.Load() == 0 {
		b.completionMu.Unlock()
		fn()
		return
	}
	b.observers = append(b.observers, fn)
	b.completionMu.Unlock()
}

// --- attributes -------------------------------------------------------------

// AddAttribute appends value to the ordered list stored under key.
func (b *Record) AddAttribute(key, value string) {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	b.attributes[key] = append(b.attributes[key], value)
}

// SetAttributeList replaces the list stored under key.
func (b *Record) SetAttributeList(key string, values []string) {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	b.attributes[key] = append([]string(nil), values...)
}

// GetAttributes returns the list stored under key.
func (b *Record) GetAttributes(key string) []string {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	return append([]string(nil), b.attributes[key]...)
}

// Attribute concatenates the list stored under key.
func (b *Record) Attribute(key string) string {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	out := ""
	for _, v := range b.attributes[key] {
		out += v
	}
	return out
}

// HasAttribute reports whether key is present.
func (b *Record) HasAttribute(key string) bool {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	_, ok := b.attributes[key]
	return ok
}

// GetAttributeList returns all attribute keys.
func (b *Record) GetAttributeList() []string {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	keys := make([]string, 0, len(b.attributes))
	for k := range b.attributes {
		keys = append(keys, k)
	}
	return keys
}

// CopyAttributes copies src's attributes; replace overwrites existing
// keys, otherwise they are kept.
func (b *Record) CopyAttributes(src Object, replace bool) {
	sb := src.Base()
	sb.attrMu.Lock()
	snapshot := make(map[string][]string, len(sb.attributes))
	for k, v := range sb.attributes {
		snapshot[k] = append([]string(nil), v...)
	}
	sb.attrMu.Unlock()

	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	for k, v := range snapshot {
		if _, exists := b.attributes[k]; exists && !replace {
			continue
		}
		b.attributes[k] = v
	}
}

// --- attachments ------------------------------------------------------------

// AddAttachment stores a strong reference to obj under key; a duplicate
// key is refused.
func (b *Record) AddAttachment(key string, obj Object) error {
	b.attachMu.Lock()
	defer b.attachMu.Unlock()
	if _, exists := b.attachments[key]; exists {
		return fmt.Errorf("object: attachment %q already present on %q", key, b.name)
	}
	b.attachments[key] = obj.Ref()
	return nil
}

// GetAttachment returns a strong reference to the attachment under key.
func (b *Record) GetAttachment(key string) (Object, bool) {
	b.attachMu.Lock()
	defer b.attachMu.Unlock()
	obj, ok := b.attachments[key]
	if !ok {
		return nil, false
	}
	return obj.Ref(), true
}

// HasAttachment reports whether key is attached.
func (b *Record) HasAttachment(key string) bool {
	b.attachMu.Lock()
	defer b.attachMu.Unlock()
	_, ok := b.attachments[key]
	return ok
}

// RemoveAttachment drops the attachment under key.
func (b *Record) RemoveAttachment(key string) bool {
	b.attachMu.Lock()
	obj, ok := b.attachments[key]
	delete(b.attachments, key)
	b.attachMu.Unlock()
	if ok {
		obj.Unref()
	}
	return ok
}

// CopyAttachments copies src's attachments, taking references; replace
// overwrites existing keys.
func (b *Record) CopyAttachments(src Object, replace bool) {
	for key, obj := range src.Base().attachmentSnapshot() {
		b.attachMu.Lock()
		old, exists := b.attachments[key]
		if exists && !replace {
			b.attachMu.Unlock()
			obj.Unref()
			continue
		}
		b.attachments[key] = obj
		b.attachMu.Unlock()
		if exists {
			old.Unref()
		}
	}
}

// attachmentSnapshot returns the attachments with one extra reference
// each; callers walk the snapshot without holding the lock.
func (b *Record) attachmentSnapshot() map[string]Object {
	b.attachMu.Lock()
	defer b.attachMu.Unlock()
	out := make(map[string]Object, len(b.attachments))
	for k, v := range b.attachments {
		out[k] = v.Ref()
	}
	return out
}

// --- serialization of the common record ------------------------------------

func (b *Record) saveCommon(w *archive.ObjectWriter) {
	b.metaMu.Lock()
	meta := b.meta
	b.metaMu.Unlock()
	meta.save(w)

	b.attrMu.Lock()
	keys := make([]string, 0, len(b.attributes))
	for k := range b.attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.U32(uint32(len(keys)))
	for _, k := range keys {
		w.String(k)
		vals := b.attributes[k]
		w.U32(uint32(len(vals)))
		for _, v := range vals {
			w.String(v)
		}
	}
	b.attrMu.Unlock()

	attachments := b.attachmentSnapshot()
	akeys := make([]string, 0, len(attachments))
	for k := range attachments {
		akeys = append(akeys, k)
	}
	sort.Strings(akeys)
	w.U32(uint32(len(akeys)))
	for _, k := range akeys {
		w.String(k)
		w.ObjectRef("attachment", attachments[k])
	}
	for _, obj := range attachments {
		obj.Unref()
	}
}

func (b *Record) loadCommon(r *archive.ObjectReader) {
	var meta Meta
	meta.load(r)
	b.SetMeta(meta)

	nattr := r.U32("attribute count")
	for i := uint32(0); i < nattr && r.Err() == nil; i++ {
		key := r.String("attribute key")
		n := r.U32("attribute list length")
		vals := make([]string, 0, n)
		for j := uint32(0); j < n && r.Err() == nil; j++ {
			vals = append(vals, r.String("attribute value"))
		}
		b.SetAttributeList(key, vals)
	}

	natt := r.U32("attachment count")
	for i := uint32(0); i < natt && r.Err() == nil; i++ {
		key := r.String("attachment key")
		r.ObjectRef("attachment", func(o archive.Object) error {
			if o == nil {
				return nil
			}
			obj, ok := o.(Object)
			if !ok {
				return fmt.Errorf("attachment %q is not an object", key)
			}
			err := b.AddAttachment(key, obj)
			obj.Unref() // AddAttachment took its own reference
			return err
		})
	}
}
