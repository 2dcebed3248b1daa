package archive

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hpcvis/vizcore/internal/codec"
	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/hpcvis/vizcore/internal/shm"
)

// Array record body:
//
//	u32 tag | u64 size | u8 exact | 3*u64 dim | u8 mode |
//	u64 payload_len | payload | u8 bounds_valid | f64 min | f64 max
//
// The mode byte records the codec that actually ran, so the reader can
// reverse it without out-of-band metadata.

func appendTypedArrayBody[T numericElement](dst []byte, arr *shm.Array[T], s *codec.Settings) []byte {
	w := buf{b: dst}
	w.U32(uint32(arr.Tag()))
	w.U64(uint64(arr.Size()))
	w.Bool(arr.Exact())
	sx, sy, sz := arr.DimensionHint()
	w.U64(sx)
	w.U64(sy)
	w.U64(sz)

	mode, payload := codec.CompressField(arr.Data(), arr.Tag(), [3]uint64{sx, sy, sz}, arr.Exact(), s)
	w.U8(uint8(mode))
	w.Bytes(payload)

	w.Bool(arr.BoundsValid())
	if arr.BoundsValid() {
		w.F64(arr.Min())
		w.F64(arr.Max())
	} else {
		w.F64(0)
		w.F64(0)
	}
	return w.b
}

func appendNodeArrayBody(dst []byte, arr *shm.Array[scalar.CelltreeNode]) []byte {
	w := buf{b: dst}
	w.U32(uint32(arr.Tag()))
	w.U64(uint64(arr.Size()))
	w.Bool(arr.Exact())
	sx, sy, sz := arr.DimensionHint()
	w.U64(sx)
	w.U64(sy)
	w.U64(sz)

	// Record arrays never pass through a field codec.
	w.U8(uint8(codec.Uncompressed))
	payload := make([]byte, 0, arr.Size()*24)
	for _, n := range arr.Data() {
		payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(n.Lmax))
		payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(n.Rmin))
		payload = binary.LittleEndian.AppendUint32(payload, n.Start)
		payload = binary.LittleEndian.AppendUint32(payload, n.Size)
		payload = binary.LittleEndian.AppendUint32(payload, n.Dim)
		payload = binary.LittleEndian.AppendUint32(payload, n.Child)
	}
	w.Bytes(payload)

	w.Bool(false)
	w.F64(0)
	w.F64(0)
	return w.b
}

// appendArrayBody dispatches on the concrete element type.
func appendArrayBody(dst []byte, arr shm.AnyArray, s *codec.Settings) ([]byte, error) {
	switch a := arr.(type) {
	case *shm.Array[int8]:
		return appendTypedArrayBody(dst, a, s), nil
	case *shm.Array[uint8]:
		return appendTypedArrayBody(dst, a, s), nil
	case *shm.Array[int32]:
		return appendTypedArrayBody(dst, a, s), nil
	case *shm.Array[uint32]:
		return appendTypedArrayBody(dst, a, s), nil
	case *shm.Array[int64]:
		return appendTypedArrayBody(dst, a, s), nil
	case *shm.Array[uint64]:
		return appendTypedArrayBody(dst, a, s), nil
	case *shm.Array[float32]:
		return appendTypedArrayBody(dst, a, s), nil
	case *shm.Array[float64]:
		return appendTypedArrayBody(dst, a, s), nil
	case *shm.Array[scalar.CelltreeNode]:
		return appendNodeArrayBody(dst, a), nil
	}
	return nil, fmt.Errorf("archive: array %q has unsupported element type %s", arr.Name(), arr.Tag())
}

type numericElement interface {
	~int8 | ~uint8 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

type arrayBody struct {
	tag         scalar.Type
	size        uint64
	exact       bool
	dim         [3]uint64
	mode        codec.Mode
	payload     []byte
	boundsValid bool
	min, max    float64
}

func parseArrayBody(body []byte) (*arrayBody, error) {
	r := rbuf{b: body}
	ab := &arrayBody{}
	ab.tag = scalar.Type(r.U32("tag"))
	ab.size = r.U64("size")
	ab.exact = r.Bool("exact")
	ab.dim[0] = r.U64("dim")
	ab.dim[1] = r.U64("dim")
	ab.dim[2] = r.U64("dim")
	ab.mode = codec.Mode(r.U8("mode"))
	ab.payload = r.Bytes("payload")
	ab.boundsValid = r.Bool("bounds flag")
	ab.min = r.F64("min")
	ab.max = r.F64("max")
	if r.err != nil {
		return nil, r.err
	}
	if !ab.tag.Valid() {
		return nil, fmt.Errorf("archive: unknown scalar tag %d", ab.tag)
	}
	return ab, nil
}

func materializeTyped[T numericElement](store *shm.Store, local string, ab *arrayBody) (shm.AnyArray, error) {
	if arr, err := shm.FindAndRefTagged[T](store, local, ab.tag); err != nil {
		return nil, err
	} else if arr != nil {
		return arr, nil
	}
	arr, err := shm.CreateTagged[T](store, local, int(ab.size), ab.tag)
	if err != nil {
		return nil, err
	}
	if err := codec.DecompressField(arr.Data(), ab.payload, ab.mode); err != nil {
		arr.Unref()
		return nil, err
	}
	arr.SetExact(ab.exact)
	if ab.dim[0] != 0 {
		arr.SetDimensionHint(ab.dim[0], ab.dim[1], ab.dim[2])
	}
	if ab.boundsValid {
		arr.SetBounds(ab.min, ab.max)
	}
	return arr, nil
}

func materializeNodes(store *shm.Store, local string, ab *arrayBody) (shm.AnyArray, error) {
	if arr, err := shm.FindAndRefTagged[scalar.CelltreeNode](store, local, ab.tag); err != nil {
		return nil, err
	} else if arr != nil {
		return arr, nil
	}
	if len(ab.payload) != int(ab.size)*24 {
		return nil, fmt.Errorf("archive: celltree node payload is %d bytes, want %d", len(ab.payload), ab.size*24)
	}
	arr, err := shm.CreateTagged[scalar.CelltreeNode](store, local, int(ab.size), ab.tag)
	if err != nil {
		return nil, err
	}
	data := arr.Data()
	for i := range data {
		p := ab.payload[i*24:]
		data[i] = scalar.CelltreeNode{
			Lmax:  math.Float32frombits(binary.LittleEndian.Uint32(p)),
			Rmin:  math.Float32frombits(binary.LittleEndian.Uint32(p[4:])),
			Start: binary.LittleEndian.Uint32(p[8:]),
			Size:  binary.LittleEndian.Uint32(p[12:]),
			Dim:   binary.LittleEndian.Uint32(p[16:]),
			Child: binary.LittleEndian.Uint32(p[20:]),
		}
	}
	return arr, nil
}

// materializeArray reuses or constructs the array under its local name and
// returns a strong reference held by the loader.
func materializeArray(store *shm.Store, local string, ab *arrayBody) (shm.AnyArray, error) {
	switch ab.tag {
	case scalar.Int8:
		return materializeTyped[int8](store, local, ab)
	case scalar.UInt8:
		return materializeTyped[uint8](store, local, ab)
	case scalar.Int32:
		return materializeTyped[int32](store, local, ab)
	case scalar.UInt32:
		return materializeTyped[uint32](store, local, ab)
	case scalar.Int64:
		return materializeTyped[int64](store, local, ab)
	case scalar.UInt64:
		return materializeTyped[uint64](store, local, ab)
	case scalar.Float32:
		return materializeTyped[float32](store, local, ab)
	case scalar.Float64:
		return materializeTyped[float64](store, local, ab)
	case scalar.CelltreeNode1, scalar.CelltreeNode2, scalar.CelltreeNode3:
		return materializeNodes(store, local, ab)
	}
	return nil, fmt.Errorf("archive: unknown scalar tag %d", ab.tag)
}
