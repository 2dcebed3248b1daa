package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// numeric covers the element types the array codecs operate on.
type numeric interface {
	~int8 | ~uint8 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// rawBits returns the value's bit pattern, widened to 64 bits.
func rawBits[T numeric](v T) uint64 {
	switch x := any(v).(type) {
	case int8:
		return uint64(uint8(x))
	case uint8:
		return uint64(x)
	case int32:
		return uint64(uint32(x))
	case uint32:
		return uint64(x)
	case int64:
		return uint64(x)
	case uint64:
		return x
	case float32:
		return uint64(math.Float32bits(x))
	case float64:
		return math.Float64bits(x)
	}
	return 0
}

// fromRaw is the inverse of rawBits.
func fromRaw[T numeric](u uint64) T {
	var v T
	switch any(v).(type) {
	case int8:
		return T(int8(uint8(u)))
	case uint8:
		return T(uint8(u))
	case int32:
		return T(int32(uint32(u)))
	case uint32:
		return T(uint32(u))
	case int64:
		return T(int64(u))
	case uint64:
		return T(u)
	case float32:
		return any(math.Float32frombits(uint32(u))).(T)
	case float64:
		return any(math.Float64frombits(u)).(T)
	}
	return v
}

func isFloat[T numeric]() bool {
	var v T
	switch any(v).(type) {
	case float32, float64:
		return true
	}
	return false
}

func elemBytes[T numeric]() int {
	var v T
	switch any(v).(type) {
	case int8, uint8:
		return 1
	case int32, uint32, float32:
		return 4
	}
	return 8
}

// PredictEncode applies the per-element predictive transform: integers are
// delta-coded against the previous element of the same channel, floats XOR
// their bit pattern with it. The output byte stream has the same length as
// the input data. channels (1..6) selects the interleaving; planar emits
// one plane per channel instead of interleaved element records.
func PredictEncode[T numeric](data []T, channels int, planar bool) []byte {
	if channels < 1 || channels > 6 || len(data)%channels != 0 {
		channels = 1
	}
	elem := elemBytes[T]()
	xor := isFloat[T]()
	n := len(data) / channels
	out := make([]byte, len(data)*elem)

	for c := 0; c < channels; c++ {
		var prev uint64
		for i := 0; i < n; i++ {
			cur := rawBits(data[i*channels+c])
			var d uint64
			if xor {
				d = cur ^ prev
			} else {
				d = cur - prev
			}
			prev = cur

			var off int
			if planar {
				off = (c*n + i) * elem
			} else {
				off = (i*channels + c) * elem
			}
			putLE(out[off:off+elem], d)
		}
	}
	return out
}

// PredictDecode inverts PredictEncode into dst, which carries the element
// count.
func PredictDecode[T numeric](dst []T, payload []byte, channels int, planar bool) error {
	if channels < 1 || channels > 6 || len(dst)%channels != 0 {
		channels = 1
	}
	elem := elemBytes[T]()
	if len(payload) != len(dst)*elem {
		return fmt.Errorf("predict: payload is %d bytes, want %d", len(payload), len(dst)*elem)
	}
	xor := isFloat[T]()
	n := len(dst) / channels
	mask := ^uint64(0)
	if elem < 8 {
		mask = (1 << (uint(elem) * 8)) - 1
	}

	for c := 0; c < channels; c++ {
		var prev uint64
		for i := 0; i < n; i++ {
			var off int
			if planar {
				off = (c*n + i) * elem
			} else {
				off = (i*channels + c) * elem
			}
			d := getLE(payload[off : off+elem])
			var cur uint64
			if xor {
				cur = d ^ prev
			} else {
				cur = (d + prev) & mask
			}
			prev = cur
			dst[i*channels+c] = fromRaw[T](cur)
		}
	}
	return nil
}

func putLE(b []byte, v uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func getLE(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}
