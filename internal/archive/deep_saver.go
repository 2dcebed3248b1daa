package archive

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/hpcvis/vizcore/internal/codec"
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
	"go.uber.org/zap"
)

// DeepSaver collects a closed set of object and array blobs for transport.
// Each entity serializes into its own stream; references recurse back into
// the saver, deduplicated by name. Entries flushed to the archived sets are
// assumed available remotely and are not re-sent.
type DeepSaver struct {
	log      *zap.Logger
	settings codec.Settings

	mu              sync.Mutex
	objects         map[string][]byte
	arrays          map[string][]byte
	archivedObjects map[string]struct{}
	archivedArrays  map[string]struct{}
}

// NewDeepSaver builds an empty saver with the given field compression
// settings.
func NewDeepSaver(log *zap.Logger, settings codec.Settings) *DeepSaver {
	if log == nil {
		log = zap.NewNop()
	}
	return &DeepSaver{
		log:             log.Named("deep-saver"),
		settings:        settings,
		objects:         make(map[string][]byte),
		arrays:          make(map[string][]byte),
		archivedObjects: make(map[string]struct{}),
		archivedArrays:  make(map[string]struct{}),
	}
}

// SetCompressionSettings replaces the per-field settings for subsequent
// saves.
func (s *DeepSaver) SetCompressionSettings(settings codec.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// IsObjectSaved consults both the live map and the archived set.
func (s *DeepSaver) IsObjectSaved(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objectSavedLocked(name)
}

func (s *DeepSaver) objectSavedLocked(name string) bool {
	if _, ok := s.objects[name]; ok {
		return true
	}
	_, ok := s.archivedObjects[name]
	return ok
}

// IsArraySaved consults both the live map and the archived set.
func (s *DeepSaver) IsArraySaved(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arraySavedLocked(name)
}

func (s *DeepSaver) arraySavedLocked(name string) bool {
	if _, ok := s.arrays[name]; ok {
		return true
	}
	_, ok := s.archivedArrays[name]
	return ok
}

// SaveObject serializes obj recursively unless it is already saved or
// archived.
func (s *DeepSaver) SaveObject(name string, obj Object) {
	s.mu.Lock()
	if s.objectSavedLocked(name) {
		s.mu.Unlock()
		return
	}
	// Claim the slot before recursing so reference diamonds terminate.
	s.objects[name] = nil
	settings := s.settings
	s.mu.Unlock()

	w := NewWriter(s, settings)
	if err := w.SaveObject(obj); err != nil {
		s.log.Error("object blob dropped", zap.String("object", name), zap.Error(err))
		s.mu.Lock()
		delete(s.objects, name)
		s.mu.Unlock()
		return
	}
	blob := w.Bytes()

	s.mu.Lock()
	s.objects[name] = blob
	s.mu.Unlock()
	s.log.Debug("object saved", zap.String("object", name),
		zap.Int("bytes", len(blob)), zap.Uint64("digest", xxhash.Sum64(blob)))
}

// SaveArray serializes one array blob unless already saved or archived.
func (s *DeepSaver) SaveArray(name string, tag scalar.Type, arr shm.AnyArray) {
	s.mu.Lock()
	if s.arraySavedLocked(name) {
		s.mu.Unlock()
		return
	}
	s.arrays[name] = nil
	settings := s.settings
	s.mu.Unlock()

	body, err := appendArrayBody(nil, arr, &settings)
	if err != nil {
		s.log.Error("array blob dropped", zap.String("array", name), zap.Error(err))
		s.mu.Lock()
		delete(s.arrays, name)
		s.mu.Unlock()
		return
	}
	blob := appendRecord(appendHeader(nil), kindArray, name, body)

	s.mu.Lock()
	s.arrays[name] = blob
	s.mu.Unlock()
	s.log.Debug("array saved", zap.String("array", name), zap.Stringer("tag", tag),
		zap.Int("bytes", len(blob)), zap.Uint64("digest", xxhash.Sum64(blob)))
}

// DirEntry is one bundle entry: a named blob that is either an array or an
// object stream.
type DirEntry struct {
	Name    string
	IsArray bool
	Data    []byte
}

// Directory snapshots the current live blobs, objects first.
func (s *DeepSaver) Directory() []DirEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]DirEntry, 0, len(s.objects)+len(s.arrays))
	for name, data := range s.objects {
		entries = append(entries, DirEntry{Name: name, Data: data})
	}
	for name, data := range s.arrays {
		entries = append(entries, DirEntry{Name: name, IsArray: true, Data: data})
	}
	return entries
}

// FlushDirectory moves the live entries into the archived sets; subsequent
// saves of the same names become no-ops.
func (s *DeepSaver) FlushDirectory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.objects {
		s.archivedObjects[name] = struct{}{}
	}
	for name := range s.arrays {
		s.archivedArrays[name] = struct{}{}
	}
	s.objects = make(map[string][]byte)
	s.arrays = make(map[string][]byte)
}

// SavedObjects and SavedArrays expose the archived sets, so a transport
// can carry the dedup state across messages.
func (s *DeepSaver) SavedObjects() []string { return keysOf(s, s.archivedObjects) }
func (s *DeepSaver) SavedArrays() []string  { return keysOf(s, s.archivedArrays) }

// SetSavedObjects and SetSavedArrays seed the archived sets.
func (s *DeepSaver) SetSavedObjects(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.archivedObjects[n] = struct{}{}
	}
}

func (s *DeepSaver) SetSavedArrays(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.archivedArrays[n] = struct{}{}
	}
}

func keysOf(s *DeepSaver, m map[string]struct{}) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
