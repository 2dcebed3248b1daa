package object

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/archive"
)

// Empty is the null object: metadata only.
type Empty struct {
	Record
}

// NewEmpty creates and publishes an empty object.
func NewEmpty(store *Store) (*Empty, error) {
	obj, err := store.Create(TypeEmpty, "")
	if err != nil {
		return nil, err
	}
	return obj.(*Empty), nil
}

func (e *Empty) SaveTo(w *archive.ObjectWriter) error {
	e.saveCommon(w)
	return nil
}

func (e *Empty) LoadFrom(r *archive.ObjectReader) error {
	e.loadCommon(r)
	return r.Err()
}

func (e *Empty) copyDataFrom(src Object) error {
	if _, ok := src.(*Empty); !ok {
		return fmt.Errorf("clone source %q is not empty", src.Name())
	}
	return nil
}

func (e *Empty) releaseChildren() {}

func (e *Empty) Check() error { return nil }

// Placeholder stands in for an object whose payload lives elsewhere: it
// carries the original name and type plus stand-ins for the geometry
// pieces, so pipelines can route it without the data.
type Placeholder struct {
	Record
	originalName string
	originalType int32

	geometry Object
	normals  Object
	texture  Object
}

// NewPlaceholder creates and publishes a placeholder for the named
// original.
func NewPlaceholder(store *Store, originalName string, originalType int32) (*Placeholder, error) {
	obj, err := store.Create(TypePlaceholder, "")
	if err != nil {
		return nil, err
	}
	p := obj.(*Placeholder)
	p.originalName = originalName
	p.originalType = originalType
	return p, nil
}

// Original reports the stood-in name and type.
func (p *Placeholder) Original() (string, int32) { return p.originalName, p.originalType }

// Geometry, PlaceholderNormals and Texture return the piece stand-ins.
func (p *Placeholder) Geometry() Object { return p.geometry }
func (p *Placeholder) PlaceholderNormals() Object { return p.normals }
func (p *Placeholder) Texture() Object  { return p.texture }

// SetPieces installs the stand-ins for the geometry parts.
func (p *Placeholder) SetPieces(geometry, normals, texture Object) {
	for _, pair := range []struct {
		dst *Object
		src Object
	}{{&p.geometry, geometry}, {&p.normals, normals}, {&p.texture, texture}} {
		old := *pair.dst
		*pair.dst = refObject(pair.src)
		if old != nil {
			old.Unref()
		}
	}
}

func (p *Placeholder) SaveTo(w *archive.ObjectWriter) error {
	p.saveCommon(w)
	w.String(p.originalName)
	w.I32(p.originalType)
	objRef(w, "geometry", p.geometry)
	objRef(w, "normals", p.normals)
	objRef(w, "texture", p.texture)
	return nil
}

func (p *Placeholder) LoadFrom(r *archive.ObjectReader) error {
	p.loadCommon(r)
	p.originalName = r.String("original name")
	p.originalType = r.I32("original type")
	bindObject(r, "geometry", &p.geometry)
	bindObject(r, "normals", &p.normals)
	bindObject(r, "texture", &p.texture)
	return r.Err()
}

func (p *Placeholder) copyDataFrom(src Object) error {
	sp, ok := src.(*Placeholder)
	if !ok {
		return fmt.Errorf("clone source %q is not a placeholder", src.Name())
	}
	p.originalName = sp.originalName
	p.originalType = sp.originalType
	p.geometry = refObject(sp.geometry)
	p.normals = refObject(sp.normals)
	p.texture = refObject(sp.texture)
	return nil
}

func (p *Placeholder) releaseChildren() {
	unrefObject(&p.geometry)
	unrefObject(&p.normals)
	unrefObject(&p.texture)
}

func (p *Placeholder) Check() error { return nil }

func init() {
	register(TypeEmpty, "empty", func(store *Store, name string) Object {
		e := &Empty{}
		e.init(e, store, name, TypeEmpty)
		return e
	})
	register(TypePlaceholder, "placeholder", func(store *Store, name string) Object {
		p := &Placeholder{}
		p.init(p, store, name, TypePlaceholder)
		return p
	})
}
