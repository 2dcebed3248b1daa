package archive

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/codec"
	"github.com/hpcvis/vizcore/internal/shm"
)

// Writer serializes objects into a record stream. It walks the reference
// DAG depth-first and emits every referenced array exactly once per
// archive; with a Saver attached, referenced blobs are delegated instead
// of inlined.
type Writer struct {
	saver    Saver
	settings codec.Settings

	stream         []byte
	writtenObjects map[string]struct{}
	writtenArrays  map[string]struct{}

	pendingArrays  []shm.AnyArray
	pendingObjects []Object
	pendingSeen    map[string]struct{}
}

// NewWriter builds a Writer. saver may be nil for self-contained streams.
func NewWriter(saver Saver, settings codec.Settings) *Writer {
	return &Writer{
		saver:          saver,
		settings:       settings,
		stream:         appendHeader(nil),
		writtenObjects: make(map[string]struct{}),
		writtenArrays:  make(map[string]struct{}),
		pendingSeen:    make(map[string]struct{}),
	}
}

func (w *Writer) pendArray(arr shm.AnyArray) {
	if _, ok := w.pendingSeen["a:"+arr.Name()]; ok {
		return
	}
	w.pendingSeen["a:"+arr.Name()] = struct{}{}
	w.pendingArrays = append(w.pendingArrays, arr)
}

func (w *Writer) pendObject(obj Object) {
	if _, ok := w.pendingSeen["o:"+obj.Name()]; ok {
		return
	}
	w.pendingSeen["o:"+obj.Name()] = struct{}{}
	w.pendingObjects = append(w.pendingObjects, obj)
}

// SaveObject emits obj and everything it references.
func (w *Writer) SaveObject(obj Object) error {
	if err := w.saveObjectRecord(obj); err != nil {
		return err
	}
	return w.drain()
}

func (w *Writer) saveObjectRecord(obj Object) error {
	name := obj.Name()
	if _, done := w.writtenObjects[name]; done {
		return nil
	}
	ow := &ObjectWriter{w: w}
	ow.I32(obj.TypeTag())
	if err := obj.SaveTo(ow); err != nil {
		return fmt.Errorf("serialize object %q: %w", name, err)
	}
	w.stream = appendRecord(w.stream, kindObject, name, ow.b)
	w.writtenObjects[name] = struct{}{}
	return nil
}

// SaveArray emits one array record; repeats are deduplicated by name.
func (w *Writer) SaveArray(arr shm.AnyArray) error {
	name := arr.Name()
	if _, done := w.writtenArrays[name]; done {
		return nil
	}
	body, err := appendArrayBody(nil, arr, &w.settings)
	if err != nil {
		return err
	}
	w.stream = appendRecord(w.stream, kindArray, name, body)
	w.writtenArrays[name] = struct{}{}
	return nil
}

func (w *Writer) drain() error {
	for len(w.pendingArrays) > 0 || len(w.pendingObjects) > 0 {
		arrays := w.pendingArrays
		w.pendingArrays = nil
		for _, arr := range arrays {
			if w.saver != nil {
				w.saver.SaveArray(arr.Name(), arr.Tag(), arr)
				continue
			}
			if err := w.SaveArray(arr); err != nil {
				return err
			}
		}
		objects := w.pendingObjects
		w.pendingObjects = nil
		for _, obj := range objects {
			if w.saver != nil {
				w.saver.SaveObject(obj.Name(), obj)
				continue
			}
			if err := w.saveObjectRecord(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

// Bytes returns the finished stream.
func (w *Writer) Bytes() []byte { return w.stream }

// SaveToStream serializes obj and its transitive references into one
// self-contained archive.
func SaveToStream(obj Object, settings codec.Settings) ([]byte, error) {
	w := NewWriter(nil, settings)
	if err := w.SaveObject(obj); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
