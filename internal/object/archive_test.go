package object

import (
	"testing"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/codec"
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	shm  *shm.Store
	objs *Store
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	s := shm.NewStore(nil, shm.NewAllocator(1<<26), 0)
	return &testEnv{shm: s, objs: NewStore(nil, s)}
}

func makePoints(t *testing.T, env *testEnv, n int) *Points {
	t.Helper()
	p, err := NewPoints(env.objs, n)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		v := float32(i)
		p.X().Data()[i] = v
		p.Y().Data()[i] = v
		p.Z().Data()[i] = v
	}
	return p
}

func saveBundle(t *testing.T, objs ...Object) *archive.DeepSaver {
	t.Helper()
	saver := archive.NewDeepSaver(nil, codec.DefaultSettings())
	for _, o := range objs {
		saver.SaveObject(o.Name(), o)
	}
	return saver
}

func TestDeepSaveLoadWithRenaming(t *testing.T) {
	src := newEnv(t)
	p := makePoints(t, src, 10)
	defer p.Unref()
	p.AddAttribute("species", "pressure")

	saver := saveBundle(t, p)
	bundle := archive.EncodeBundle(saver.Directory(), codec.CompressionZstd)

	dst := newEnv(t)
	bc, err := archive.DecodeBundle(bundle)
	require.NoError(t, err)
	fetcher := bc.Fetcher(nil, dst.shm, dst.objs.System())
	fetcher.SetRenameObjects(true)

	var loaded Object
	fetcher.RequestObject(p.Name(), func(o archive.Object) {
		loaded = o.(Object)
	})
	require.NotNil(t, loaded, "object must complete synchronously from a full bundle")
	fetcher.ReleaseArrays()

	assert.NotEqual(t, p.Name(), loaded.Name())
	assert.True(t, loaded.IsComplete())
	assert.Equal(t, int32(0), loaded.Unresolved())
	assert.Equal(t, int32(1), loaded.RefCount())

	lp, ok := loaded.(*Points)
	require.True(t, ok)
	require.Equal(t, 10, lp.NumVertices())
	for i := 0; i < 10; i++ {
		assert.Equal(t, float32(i), lp.X().At(i))
		assert.Equal(t, float32(i), lp.Y().At(i))
		assert.Equal(t, float32(i), lp.Z().At(i))
	}
	assert.Equal(t, []string{"pressure"}, lp.GetAttributes("species"))

	// Array names were translated as well.
	assert.NotEqual(t, p.X().Name(), lp.X().Name())
	loaded.Unref()
}

func TestDeferredResolution(t *testing.T) {
	src := newEnv(t)
	field, err := NewVec[float32](src.objs, vecKindFloat32, 1, 5)
	require.NoError(t, err)
	defer field.Unref()
	for i := 0; i < 5; i++ {
		field.X().Data()[i] = float32(i) * 2
	}

	saver := saveBundle(t, field)
	entries := saver.Directory()

	// Hand the loader the object blob only.
	var arrayEntry archive.DirEntry
	objects := make(map[string][]byte)
	for _, e := range entries {
		if e.IsArray {
			arrayEntry = e
			continue
		}
		objects[e.Name] = e.Data
	}
	require.NotEmpty(t, arrayEntry.Name)

	dst := newEnv(t)
	fetcher := archive.NewDeepFetcher(nil, dst.shm, dst.objs.System(), objects, nil, nil, nil)
	fetcher.SetRenameObjects(true)

	completed := false
	var loadedObj archive.Object
	fetcher.RequestObject(field.Name(), func(o archive.Object) {
		completed = true
		loadedObj = o
	})
	assert.False(t, completed)

	obj, err := fetcher.LoadObject(field.Name())
	require.NoError(t, err)
	loaded := obj.(Object)
	assert.False(t, loaded.IsComplete())
	assert.Equal(t, int32(1), loaded.Unresolved())

	// Feeding the missing array blob resolves the reference and fires the
	// completion callback.
	fetcher.FeedArray(arrayEntry.Name, arrayEntry.Data, codec.CompressionNone, 0)
	assert.True(t, loaded.IsComplete())
	assert.Equal(t, int32(0), loaded.Unresolved())
	require.True(t, completed)
	assert.Equal(t, loaded.Name(), loadedObj.Name())

	lf := loaded.(*Vec[float32])
	require.Equal(t, 5, lf.Size())
	assert.Equal(t, float32(8), lf.X().At(4))
	fetcher.ReleaseArrays()
	loaded.Unref()
}

func TestCodecFallbackForCharVector(t *testing.T) {
	src := newEnv(t)
	v, err := NewVec[int8](src.objs, vecKindChar, 1, 500)
	require.NoError(t, err)
	defer v.Unref()
	for i := 0; i < 500; i++ {
		v.X().Data()[i] = int8(i % 100)
	}

	settings := codec.DefaultSettings()
	settings.Mode = codec.Zfp
	saver := archive.NewDeepSaver(nil, settings)
	saver.SaveObject(v.Name(), v)

	dst := newEnv(t)
	bc, err := archive.DecodeBundle(archive.EncodeBundle(saver.Directory(), codec.CompressionNone))
	require.NoError(t, err)
	fetcher := bc.Fetcher(nil, dst.shm, dst.objs.System())
	fetcher.SetRenameObjects(true)

	var loaded Object
	fetcher.RequestObject(v.Name(), func(o archive.Object) { loaded = o.(Object) })
	require.NotNil(t, loaded)
	defer loaded.Unref()
	fetcher.ReleaseArrays()

	lv := loaded.(*Vec[int8])
	require.Equal(t, 500, lv.Size())
	for i := 0; i < 500; i++ {
		require.Equal(t, int8(i%100), lv.X().At(i))
	}
}

func TestAttachmentDAGSharedOnLoad(t *testing.T) {
	src := newEnv(t)
	a := makePoints(t, src, 3)
	defer a.Unref()
	b := makePoints(t, src, 4)
	defer b.Unref()
	n, err := NewNormals(src.objs, 3)
	require.NoError(t, err)
	defer n.Unref()

	require.NoError(t, a.AddAttachment("norm", n))
	require.NoError(t, b.AddAttachment("norm", n))

	saver := saveBundle(t, a, b)
	entries := saver.Directory()
	objectCount := 0
	for _, e := range entries {
		if !e.IsArray {
			objectCount++
		}
	}
	// A, B, and exactly one copy of N.
	assert.Equal(t, 3, objectCount)

	dst := newEnv(t)
	bc, err := archive.DecodeBundle(archive.EncodeBundle(entries, codec.CompressionLZ4))
	require.NoError(t, err)
	fetcher := bc.Fetcher(nil, dst.shm, dst.objs.System())
	fetcher.SetRenameObjects(true)

	var la, lb Object
	fetcher.RequestObject(a.Name(), func(o archive.Object) { la = o.(Object) })
	fetcher.RequestObject(b.Name(), func(o archive.Object) { lb = o.(Object) })
	require.NotNil(t, la)
	require.NotNil(t, lb)
	fetcher.ReleaseArrays()

	na, ok := la.Base().GetAttachment("norm")
	require.True(t, ok)
	nb, ok := lb.Base().GetAttachment("norm")
	require.True(t, ok)
	assert.Equal(t, na.Name(), nb.Name())
	assert.GreaterOrEqual(t, na.RefCount(), int32(2))
	na.Unref()
	nb.Unref()
	la.Unref()
	lb.Unref()
}

func TestSaveLoadSaveByteStable(t *testing.T) {
	src := newEnv(t)
	p := makePoints(t, src, 6)
	defer p.Unref()
	p.AddAttribute("module", "probe")
	p.AddAttribute("module", "trace")

	s1, err := archive.SaveToStream(p, codec.DefaultSettings())
	require.NoError(t, err)

	dst := newEnv(t)
	loaded, fetcher, err := archive.LoadFromStream(nil, s1, dst.shm, dst.objs.System(), false)
	require.NoError(t, err)
	lobj := loaded.(Object)
	require.True(t, lobj.IsComplete())
	// Names are preserved without renaming.
	assert.Equal(t, p.Name(), lobj.Name())

	s2, err := archive.SaveToStream(lobj, codec.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	fetcher.ReleaseArrays()
	lobj.Unref()
}

func TestLoadIntoExistingStoreReusesArrays(t *testing.T) {
	env := newEnv(t)
	p := makePoints(t, env, 8)
	defer p.Unref()

	s1, err := archive.SaveToStream(p, codec.DefaultSettings())
	require.NoError(t, err)

	// Loading without renaming into the same store reuses the live
	// entities instead of duplicating them.
	loaded, fetcher, err := archive.LoadFromStream(nil, s1, env.shm, env.objs.System(), false)
	require.NoError(t, err)
	defer fetcher.ReleaseArrays()
	lobj := loaded.(Object)
	defer lobj.Unref()

	assert.Equal(t, p.Name(), lobj.Name())
	assert.Same(t, any(p.X()), any(lobj.(*Points).X()))
}

func TestUnknownTypeTagRejected(t *testing.T) {
	env := newEnv(t)
	_, err := env.objs.Create(12345, "")
	var typeErr *TypeNotRegisteredError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, int32(12345), typeErr.Tag)
}

func TestCelltreeRoundTrip(t *testing.T) {
	src := newEnv(t)
	ct, err := NewCelltree(src.objs, 3, 3, 4)
	require.NoError(t, err)
	defer ct.Unref()

	nodes := ct.Nodes().Data()
	nodes[0] = scalar.NewCelltreeInner(1, 2.5, 1.5, 1)
	nodes[1] = scalar.NewCelltreeLeaf(3, 0, 2)
	nodes[2] = scalar.NewCelltreeLeaf(3, 2, 2)
	cells := ct.Cells().Data()
	for i := range cells {
		cells[i] = scalar.Index(i)
	}
	ct.SetBounds([3]scalar.Scalar{0, 0, 0}, [3]scalar.Scalar{1, 2, 3})
	require.NoError(t, ct.Check())

	saver := saveBundle(t, ct)
	dst := newEnv(t)
	bc, err := archive.DecodeBundle(archive.EncodeBundle(saver.Directory(), codec.CompressionNone))
	require.NoError(t, err)
	fetcher := bc.Fetcher(nil, dst.shm, dst.objs.System())
	fetcher.SetRenameObjects(true)

	var loaded Object
	fetcher.RequestObject(ct.Name(), func(o archive.Object) { loaded = o.(Object) })
	require.NotNil(t, loaded)
	defer loaded.Unref()
	fetcher.ReleaseArrays()

	lct := loaded.(*Celltree)
	assert.Equal(t, 3, lct.Dimensions())
	require.Equal(t, 3, lct.Nodes().Size())
	assert.Equal(t, nodes[0], lct.Nodes().At(0))
	assert.Equal(t, nodes[1], lct.Nodes().At(1))
	min, max := lct.Bounds()
	assert.Equal(t, scalar.Scalar(3), max[2])
	assert.Equal(t, scalar.Scalar(0), min[0])
	require.NoError(t, lct.Check())
}

func TestBoundsAuthoritativeOnLoad(t *testing.T) {
	src := newEnv(t)
	p := makePoints(t, src, 10)
	defer p.Unref()
	p.X().UpdateBounds()

	saver := saveBundle(t, p)
	dst := newEnv(t)
	bc, err := archive.DecodeBundle(archive.EncodeBundle(saver.Directory(), codec.CompressionNone))
	require.NoError(t, err)
	fetcher := bc.Fetcher(nil, dst.shm, dst.objs.System())
	fetcher.SetRenameObjects(true)

	var loaded Object
	fetcher.RequestObject(p.Name(), func(o archive.Object) { loaded = o.(Object) })
	require.NotNil(t, loaded)
	defer loaded.Unref()
	fetcher.ReleaseArrays()

	lp := loaded.(*Points)
	// Serialized extremes arrive as-is; unsaved caches stay invalid.
	require.True(t, lp.X().BoundsValid())
	assert.Equal(t, float64(0), lp.X().Min())
	assert.Equal(t, float64(9), lp.X().Max())
	assert.False(t, lp.Y().BoundsValid())
}

func TestDeferredObjectReference(t *testing.T) {
	src := newEnv(t)
	field, err := NewVec[float32](src.objs, vecKindFloat32, 1, 5)
	require.NoError(t, err)
	defer field.Unref()
	grid, err := NewUniformGrid(src.objs, [3]scalar.Index{2, 2, 2},
		[3]scalar.Scalar{0, 0, 0}, [3]scalar.Scalar{1, 1, 1})
	require.NoError(t, err)
	defer grid.Unref()
	field.SetGrid(grid)
	field.SetMapping(MappingVertex)

	saver := saveBundle(t, field)
	entries := saver.Directory()

	var gridEntry archive.DirEntry
	objects := make(map[string][]byte)
	arrays := make(map[string][]byte)
	for _, e := range entries {
		switch {
		case e.IsArray:
			arrays[e.Name] = e.Data
		case e.Name == grid.Name():
			gridEntry = e
		default:
			objects[e.Name] = e.Data
		}
	}
	require.NotEmpty(t, gridEntry.Name)

	dst := newEnv(t)
	fetcher := archive.NewDeepFetcher(nil, dst.shm, dst.objs.System(), objects, arrays, nil, nil)
	fetcher.SetRenameObjects(true)

	obj, err := fetcher.LoadObject(field.Name())
	require.NoError(t, err)
	loaded := obj.(Object)
	assert.False(t, loaded.IsComplete())
	assert.Equal(t, int32(1), loaded.Unresolved())

	fetcher.FeedObject(gridEntry.Name, gridEntry.Data, codec.CompressionNone, 0)
	assert.True(t, loaded.IsComplete())

	lf := loaded.(*Vec[float32])
	require.NotNil(t, lf.Grid())
	assert.Equal(t, TypeUniformGrid, lf.Grid().TypeTag())
	assert.Equal(t, MappingVertex, lf.Mapping())
	fetcher.ReleaseArrays()
	loaded.Unref()
}
