package archive

import (
	"encoding/binary"
	"fmt"

	"github.com/hpcvis/vizcore/internal/codec"
	"github.com/hpcvis/vizcore/internal/shm"
	"go.uber.org/zap"
)

// Bundle wire form: u64 n_entries, then per entry
// `u8 is_array | u32 name_len | name | u8 compression_mode | u64 raw_size |
// u64 data_size | data`.

// EncodeBundle serializes a directory snapshot, wrapping every entry with
// the requested message compression. Entries that do not shrink are kept
// raw; the per-entry mode byte records what actually happened.
func EncodeBundle(entries []DirEntry, mode codec.MessageCompression) []byte {
	out := binary.LittleEndian.AppendUint64(nil, uint64(len(entries)))
	for _, e := range entries {
		used, data := codec.CompressPayload(mode, e.Data)
		if e.IsArray {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
		out = binary.LittleEndian.AppendUint32(out, uint32(len(e.Name)))
		out = append(out, e.Name...)
		out = append(out, byte(used))
		out = binary.LittleEndian.AppendUint64(out, uint64(len(e.Data)))
		out = binary.LittleEndian.AppendUint64(out, uint64(len(data)))
		out = append(out, data...)
	}
	return out
}

// BundleContents is the parsed form of a bundle, ready to feed a
// DeepFetcher.
type BundleContents struct {
	Objects     map[string][]byte
	Arrays      map[string][]byte
	Compression map[string]codec.MessageCompression
	RawSize     map[string]uint64
}

// DecodeBundle parses a serialized directory.
func DecodeBundle(data []byte) (*BundleContents, error) {
	r := rbuf{b: data}
	n := r.U64("entry count")
	bc := &BundleContents{
		Objects:     make(map[string][]byte),
		Arrays:      make(map[string][]byte),
		Compression: make(map[string]codec.MessageCompression),
		RawSize:     make(map[string]uint64),
	}
	for i := uint64(0); i < n; i++ {
		isArray := r.Bool("entry kind")
		name := r.String("entry name")
		comp := codec.MessageCompression(r.U8("compression mode"))
		rawSize := r.U64("raw size")
		dataSize := r.U64("data size")
		payload := r.take(int(dataSize), "entry data")
		if r.err != nil {
			return nil, fmt.Errorf("bundle entry %d: %w", i, r.err)
		}
		if isArray {
			bc.Arrays[name] = payload
		} else {
			bc.Objects[name] = payload
		}
		bc.Compression[name] = comp
		bc.RawSize[name] = rawSize
	}
	return bc, nil
}

// Fetcher builds a DeepFetcher over the bundle contents.
func (bc *BundleContents) Fetcher(log *zap.Logger, store *shm.Store, objs ObjectSystem) *DeepFetcher {
	return NewDeepFetcher(log, store, objs, bc.Objects, bc.Arrays, bc.Compression, bc.RawSize)
}

// LoadFromStream reconstructs the root object of a self-contained archive
// stream written by SaveToStream. The first object record is the root. The
// returned fetcher holds the loader state; release its arrays when done.
func LoadFromStream(log *zap.Logger, data []byte, store *shm.Store, objs ObjectSystem, rename bool) (Object, *DeepFetcher, error) {
	rest, err := checkHeader(data)
	if err != nil {
		return nil, nil, err
	}
	objects := make(map[string][]byte)
	arrays := make(map[string][]byte)
	root := ""
	for len(rest) > 0 {
		kind, name, body, tail, err := nextRecord(rest)
		if err != nil {
			return nil, nil, err
		}
		rest = tail
		// Blobs re-wrap each record so the fetcher sees uniform streams.
		blob := appendRecord(appendHeader(nil), kind, name, body)
		switch kind {
		case kindObject:
			objects[name] = blob
			if root == "" {
				root = name
			}
		case kindArray:
			arrays[name] = blob
		default:
			return nil, nil, fmt.Errorf("archive: unknown record kind %d", kind)
		}
	}
	if root == "" {
		return nil, nil, fmt.Errorf("archive: stream carries no object record")
	}
	f := NewDeepFetcher(log, store, objs, objects, arrays, nil, nil)
	f.SetRenameObjects(rename)
	obj, err := f.LoadObject(root)
	if err != nil {
		return nil, nil, err
	}
	return obj, f, nil
}
