package object

import (
	"sync"
	"testing"

	"github.com/hpcvis/vizcore/internal/archive"
	"github.com/hpcvis/vizcore/internal/codec"
	"github.com/hpcvis/vizcore/internal/shm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorruptObjectBlobDropsOnlyThatEntry(t *testing.T) {
	src := newEnv(t)
	a := makePoints(t, src, 3)
	defer a.Unref()
	b := makePoints(t, src, 4)
	defer b.Unref()

	saver := saveBundle(t, a, b)
	bc, err := archive.DecodeBundle(archive.EncodeBundle(saver.Directory(), codec.CompressionNone))
	require.NoError(t, err)

	// Truncate one object blob; the other must still load.
	bc.Objects[a.Name()] = bc.Objects[a.Name()][:8]

	dst := newEnv(t)
	fetcher := bc.Fetcher(nil, dst.shm, dst.objs.System())
	fetcher.SetRenameObjects(true)

	_, err = fetcher.LoadObject(a.Name())
	assert.Error(t, err)

	var lb Object
	fetcher.RequestObject(b.Name(), func(o archive.Object) { lb = o.(Object) })
	require.NotNil(t, lb)
	defer lb.Unref()
	fetcher.ReleaseArrays()
	assert.Equal(t, 4, lb.(*Points).NumVertices())
}

func TestUnknownTypeTagInBlob(t *testing.T) {
	src := newEnv(t)
	p := makePoints(t, src, 2)
	defer p.Unref()

	saver := saveBundle(t, p)
	bc, err := archive.DecodeBundle(archive.EncodeBundle(saver.Directory(), codec.CompressionNone))
	require.NoError(t, err)

	// The type tag sits right after the record framing; forge it.
	blob := bc.Objects[p.Name()]
	forged := append([]byte(nil), blob...)
	// header(9) + kind(1) + name_len(4) + name + body_len(8) → tag
	off := 9 + 1 + 4 + len(p.Name()) + 8
	forged[off] = 0xff
	forged[off+1] = 0xff
	bc.Objects[p.Name()] = forged

	dst := newEnv(t)
	fetcher := bc.Fetcher(nil, dst.shm, dst.objs.System())
	fetcher.SetRenameObjects(true)

	_, err = fetcher.LoadObject(p.Name())
	var typeErr *TypeNotRegisteredError
	require.ErrorAs(t, err, &typeErr)
	// Nothing half-constructed leaked into the store.
	assert.Equal(t, 0, dst.objs.NumObjects())
}

func TestMalformedArrayBlobLeavesOwnerIncomplete(t *testing.T) {
	src := newEnv(t)
	field, err := NewVec[float32](src.objs, vecKindFloat32, 1, 8)
	require.NoError(t, err)
	defer field.Unref()

	saver := saveBundle(t, field)
	bc, err := archive.DecodeBundle(archive.EncodeBundle(saver.Directory(), codec.CompressionNone))
	require.NoError(t, err)
	for name := range bc.Arrays {
		bc.Arrays[name] = bc.Arrays[name][:4]
	}

	dst := newEnv(t)
	fetcher := bc.Fetcher(nil, dst.shm, dst.objs.System())
	fetcher.SetRenameObjects(true)

	obj, err := fetcher.LoadObject(field.Name())
	require.NoError(t, err)
	loaded := obj.(Object)
	defer loaded.Unref()
	// There is no failed state: the object stays incomplete and can be
	// introspected.
	assert.False(t, loaded.IsComplete())
	assert.Equal(t, int32(1), loaded.Unresolved())
}

func TestConcurrentResolution(t *testing.T) {
	env := newEnv(t)
	p := makePoints(t, env, 1)
	defer p.Unref()

	const refs = 64
	for i := 0; i < refs; i++ {
		p.UnresolvedReference()
	}
	fired := make(chan struct{})
	p.AddCompletionObserver(func() { close(fired) })

	// Resolutions may arrive from any thread; the decrementing goroutine
	// fires the hook.
	var wg sync.WaitGroup
	for i := 0; i < refs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.ReferenceResolved()
		}()
	}
	wg.Wait()
	select {
	case <-fired:
	default:
		t.Fatal("completion hook did not fire")
	}
	assert.True(t, p.IsComplete())
}

func TestConcurrentFindAndRef(t *testing.T) {
	env := newEnv(t)
	p := makePoints(t, env, 16)
	name := p.X().Name()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				arr, err := shm.FindAndRef[float32](env.shm, name)
				if err != nil || arr == nil {
					continue
				}
				arr.Unref()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), p.X().RefCount())
	p.Unref()
}
