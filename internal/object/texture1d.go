package object

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
	"github.com/hpcvis/vizcore/internal/validate"
)

// Texture1D maps a scalar field through a one-dimensional RGBA lookup
// table: per-vertex texture coordinates plus the pixel strip.
type Texture1D struct {
	Vec[scalar.Scalar]
	pixels   *shm.Array[uint8]
	min, max float64
}

// NewTexture1D creates and publishes a texture with width RGBA texels over
// the value range [min, max].
func NewTexture1D(store *Store, width int, min, max float64) (*Texture1D, error) {
	obj, err := store.Create(TypeTexture1D, "")
	if err != nil {
		return nil, err
	}
	t := obj.(*Texture1D)
	px, err := shm.Create[uint8](store.Shm(), "", width*4)
	if err != nil {
		t.Unref()
		return nil, err
	}
	t.pixels = px
	t.min, t.max = min, max
	return t, nil
}

// Pixels returns the RGBA strip.
func (t *Texture1D) Pixels() *shm.Array[uint8] { return t.pixels }

// Width reports the texel count.
func (t *Texture1D) Width() int {
	if t.pixels == nil {
		return 0
	}
	return t.pixels.Size() / 4
}

// Range returns the mapped value range.
func (t *Texture1D) Range() (min, max float64) { return t.min, t.max }

func (t *Texture1D) SaveTo(w *archive.ObjectWriter) error {
	t.saveVec(w)
	w.F64(t.min)
	w.F64(t.max)
	arrayRef(w, "pixels", t.pixels)
	return nil
}

func (t *Texture1D) LoadFrom(r *archive.ObjectReader) error {
	t.loadVec(r)
	t.min = r.F64("range min")
	t.max = r.F64("range max")
	bindArray(r, "pixels", &t.pixels)
	return r.Err()
}

func (t *Texture1D) copyDataFrom(src Object) error {
	st, ok := src.(*Texture1D)
	if !ok {
		return fmt.Errorf("clone source %q is not a 1d texture", src.Name())
	}
	t.copyVecFrom(&st.Vec)
	t.pixels = refArray(st.pixels)
	t.min, t.max = st.min, st.max
	return nil
}

func (t *Texture1D) releaseChildren() {
	t.releaseVec()
	unrefArray(&t.pixels)
}

func (t *Texture1D) Check() error {
	if err := t.checkVec(); err != nil {
		return err
	}
	if t.pixels != nil {
		n := t.pixels.Size()
		if err := validate.Size("pixels", n, n-n%4, t.Name()); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	register(TypeTexture1D, "texture1d", func(store *Store, name string) Object {
		t := &Texture1D{}
		t.initVec(t, store, name, TypeTexture1D, 1)
		return t
	})
}
