package archive

import (
	"fmt"
	"sync"

	"github.com/hpcvis/vizcore/internal/codec"
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
	"go.uber.org/zap"
)

// DeepFetcher resolves names against a bundle of blobs. Decodes run at most
// once per blob name at a time and are deterministic for a given bundle; a
// malformed blob is logged and dropped without failing the rest.
type DeepFetcher struct {
	log  *zap.Logger
	objs ObjectSystem

	objects     map[string][]byte
	arrays      map[string][]byte
	compression map[string]codec.MessageCompression
	rawSize     map[string]uint64

	loader *Loader

	mu          sync.Mutex
	cond        *sync.Cond
	rename      bool
	transObject map[string]string
	transArray  map[string]string

	// inflight keys ("a:"/"o:" + name) limit decoding to one concurrent
	// decode per blob; nested decodes of other names stay possible.
	inflight map[string]struct{}

	// pending requests for blobs not yet in the bundle; replayed when the
	// transport feeds the missing piece.
	pendingArrays  map[string][]pendingArray
	pendingObjects map[string][]ObjectCompletionHandler
}

type pendingArray struct {
	tag  scalar.Type
	done ArrayCompletionHandler
}

// NewDeepFetcher builds a fetcher over a bundle. compression and rawSize
// carry the per-entry message-framing metadata; entries absent from them
// are taken as uncompressed.
func NewDeepFetcher(log *zap.Logger, store *shm.Store, objs ObjectSystem,
	objects, arrays map[string][]byte,
	compression map[string]codec.MessageCompression, rawSize map[string]uint64) *DeepFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	if objects == nil {
		objects = make(map[string][]byte)
	}
	if arrays == nil {
		arrays = make(map[string][]byte)
	}
	if compression == nil {
		compression = make(map[string]codec.MessageCompression)
	}
	if rawSize == nil {
		rawSize = make(map[string]uint64)
	}
	f := &DeepFetcher{
		log:         log.Named("deep-fetcher"),
		objs:        objs,
		objects:     objects,
		arrays:      arrays,
		compression: compression,
		rawSize:     rawSize,
		transObject:    make(map[string]string),
		transArray:     make(map[string]string),
		inflight:       make(map[string]struct{}),
		pendingArrays:  make(map[string][]pendingArray),
		pendingObjects: make(map[string][]ObjectCompletionHandler),
	}
	f.cond = sync.NewCond(&f.mu)
	f.loader = NewLoader(log, store, objs, f)
	return f
}

func (f *DeepFetcher) beginDecode(key string) {
	f.mu.Lock()
	for {
		if _, busy := f.inflight[key]; !busy {
			break
		}
		f.cond.Wait()
	}
	f.inflight[key] = struct{}{}
	f.mu.Unlock()
}

func (f *DeepFetcher) endDecode(key string) {
	f.mu.Lock()
	delete(f.inflight, key)
	f.cond.Broadcast()
	f.mu.Unlock()
}

// SetRenameObjects switches translation of incoming names to fresh local
// ones on or off.
func (f *DeepFetcher) SetRenameObjects(rename bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rename = rename
}

func (f *DeepFetcher) RenameObjects() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rename
}

func (f *DeepFetcher) TranslateObjectName(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.rename {
		return name
	}
	return f.transObject[name]
}

func (f *DeepFetcher) TranslateArrayName(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.rename {
		return name
	}
	return f.transArray[name]
}

func (f *DeepFetcher) RegisterObjectNameTranslation(archiveName, localName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transObject[archiveName] = localName
}

func (f *DeepFetcher) RegisterArrayNameTranslation(archiveName, localName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transArray[archiveName] = localName
}

// ObjectTranslations and ArrayTranslations snapshot the tables, so they can
// travel alongside flushed directories.
func (f *DeepFetcher) ObjectTranslations() map[string]string { return copyMap(f, f.transObject) }
func (f *DeepFetcher) ArrayTranslations() map[string]string  { return copyMap(f, f.transArray) }

// SetObjectTranslations and SetArrayTranslations seed the tables.
func (f *DeepFetcher) SetObjectTranslations(m map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range m {
		f.transObject[k] = v
	}
}

func (f *DeepFetcher) SetArrayTranslations(m map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range m {
		f.transArray[k] = v
	}
}

func copyMap(f *DeepFetcher, m map[string]string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// unwrap reverses the per-entry message compression and the record framing
// of one blob.
func (f *DeepFetcher) unwrap(name string, data []byte, wantKind uint8) ([]byte, error) {
	f.mu.Lock()
	comp := f.compression[name]
	rawSize := f.rawSize[name]
	f.mu.Unlock()
	raw := data
	if comp != codec.CompressionNone {
		var err error
		raw, err = codec.DecompressPayload(comp, data, int(rawSize))
		if err != nil {
			return nil, err
		}
	}
	rest, err := checkHeader(raw)
	if err != nil {
		return nil, err
	}
	kind, recName, body, _, err := nextRecord(rest)
	if err != nil {
		return nil, err
	}
	if kind != wantKind || recName != name {
		return nil, fmt.Errorf("blob %q carries record %q of kind %d", name, recName, kind)
	}
	return body, nil
}

// RequestArray decodes the named array blob and reports the local name on
// success. Missing or malformed blobs leave the owner incomplete.
func (f *DeepFetcher) RequestArray(name string, tag scalar.Type, done ArrayCompletionHandler) {
	f.mu.Lock()
	data, ok := f.arrays[name]
	if !ok {
		// Not an error: the owner stays incomplete until the blob is fed.
		f.pendingArrays[name] = append(f.pendingArrays[name], pendingArray{tag: tag, done: done})
		f.mu.Unlock()
		f.log.Debug("array blob not yet in bundle", zap.String("array", name))
		return
	}
	f.mu.Unlock()
	f.beginDecode("a:" + name)
	body, err := f.unwrap(name, data, kindArray)
	var local string
	if err == nil {
		local, err = f.loader.LoadArrayBlob(name, body)
	}
	f.endDecode("a:" + name)
	if err != nil {
		f.log.Warn("array blob dropped", zap.String("array", name),
			zap.Stringer("tag", tag), zap.Error(err))
		return
	}
	done(local)
}

// RequestObject decodes the named object blob and reports the object once
// it is complete. Requests for blobs not yet in the bundle are parked
// until the piece is fed.
func (f *DeepFetcher) RequestObject(name string, done ObjectCompletionHandler) {
	f.mu.Lock()
	if _, ok := f.objects[name]; !ok {
		f.pendingObjects[name] = append(f.pendingObjects[name], done)
		f.mu.Unlock()
		f.log.Debug("object blob not yet in bundle", zap.String("object", name))
		return
	}
	f.mu.Unlock()
	obj, err := f.LoadObject(name)
	if err != nil {
		f.log.Warn("object blob dropped", zap.String("object", name), zap.Error(err))
		return
	}
	obj.AddCompletionObserver(func() { done(obj) })
}

// FeedArray adds a late-arriving array blob and replays the parked
// requests for it.
func (f *DeepFetcher) FeedArray(name string, data []byte, comp codec.MessageCompression, rawSize uint64) {
	f.mu.Lock()
	f.arrays[name] = data
	f.compression[name] = comp
	f.rawSize[name] = rawSize
	parked := f.pendingArrays[name]
	delete(f.pendingArrays, name)
	f.mu.Unlock()
	for _, p := range parked {
		f.RequestArray(name, p.tag, p.done)
	}
}

// FeedObject adds a late-arriving object blob and replays the parked
// requests for it.
func (f *DeepFetcher) FeedObject(name string, data []byte, comp codec.MessageCompression, rawSize uint64) {
	f.mu.Lock()
	f.objects[name] = data
	f.compression[name] = comp
	f.rawSize[name] = rawSize
	parked := f.pendingObjects[name]
	delete(f.pendingObjects, name)
	f.mu.Unlock()
	for _, done := range parked {
		f.RequestObject(name, done)
	}
}

// LoadObject decodes the named object blob and returns it even while still
// incomplete.
func (f *DeepFetcher) LoadObject(name string) (Object, error) {
	f.mu.Lock()
	data, ok := f.objects[name]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object blob %q not in bundle", name)
	}
	f.beginDecode("o:" + name)
	defer f.endDecode("o:" + name)
	body, err := f.unwrap(name, data, kindObject)
	if err != nil {
		return nil, err
	}
	return f.loader.LoadObjectBlob(name, body)
}

// ReleaseArrays drops the fetcher's strong references to materialized
// arrays.
func (f *DeepFetcher) ReleaseArrays() { f.loader.ReleaseArrays() }
