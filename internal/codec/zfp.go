package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// The lossy codecs write a full header (magic, element count, quantization
// parameters) in front of the bit stream so that decoding needs no
// side-channel metadata.

const (
	zfpMagic      = 0x50465a56 // "VZFP"
	szMagic       = 0x33535a56 // "VZS3"
	bigWhoopMagic = 0x50574256 // "VBWP"
)

// zfpMinElements is the threshold below which the writer falls back to Raw;
// the transform overhead dominates for tiny arrays.
const zfpMinElements = 1000

func toFloat64[T numeric](data []T) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

func fromFloat64[T numeric](dst []T, src []float64) {
	round := !isFloat[T]()
	for i, v := range src {
		if round {
			v = math.Round(v)
		}
		dst[i] = T(v)
	}
}

// quantPack uniformly quantizes values into nbits-wide steps over
// [min, min+step*(2^nbits-1)] and appends header plus bit stream to out.
func quantPack(out []byte, values []float64, nbits uint, min, step float64) []byte {
	var hdr [17]byte
	hdr[0] = byte(nbits)
	binary.LittleEndian.PutUint64(hdr[1:9], math.Float64bits(min))
	binary.LittleEndian.PutUint64(hdr[9:17], math.Float64bits(step))
	out = append(out, hdr[:]...)

	w := bitWriter{buf: out}
	limit := uint64(1)<<nbits - 1
	for _, v := range values {
		var q uint64
		if step > 0 {
			d := (v - min) / step
			if d > 0 {
				q = uint64(d + 0.5)
			}
			if q > limit {
				q = limit
			}
		}
		w.write(q, nbits)
	}
	return w.flush()
}

// quantUnpack reads a quantPack stream of n values.
func quantUnpack(payload []byte, n int) ([]float64, int, error) {
	if len(payload) < 17 {
		return nil, 0, fmt.Errorf("quantized stream truncated")
	}
	nbits := uint(payload[0])
	if nbits == 0 || nbits > 64 {
		return nil, 0, fmt.Errorf("quantized stream has invalid bit width %d", nbits)
	}
	min := math.Float64frombits(binary.LittleEndian.Uint64(payload[1:9]))
	step := math.Float64frombits(binary.LittleEndian.Uint64(payload[9:17]))
	need := (n*int(nbits) + 7) / 8
	if len(payload) < 17+need {
		return nil, 0, fmt.Errorf("quantized stream truncated: %d of %d bytes", len(payload)-17, need)
	}
	r := bitReader{buf: payload[17:]}
	values := make([]float64, n)
	for i := range values {
		values[i] = min + float64(r.read(nbits))*step
	}
	return values, 17 + need, nil
}

func zfpParams(s *Settings, lo, hi float64) (nbits uint, step float64, err error) {
	span := hi - lo
	switch s.ZfpMode {
	case ZfpFixedRate:
		bits := int(math.Round(s.ZfpRate))
		if bits < 1 {
			bits = 1
		}
		if bits > 64 {
			bits = 64
		}
		nbits = uint(bits)
	case ZfpPrecision:
		bits := s.ZfpPrecision
		if bits < 1 {
			bits = 1
		}
		if bits > 64 {
			bits = 64
		}
		nbits = uint(bits)
	case ZfpAccuracy:
		if s.ZfpAccuracy <= 0 {
			return 0, 0, fmt.Errorf("zfp: accuracy must be positive")
		}
		step = 2 * s.ZfpAccuracy
		levels := span/step + 1
		bits := uint(1)
		for float64(uint64(1)<<bits) < levels && bits < 64 {
			bits++
		}
		return bits, step, nil
	default:
		return 0, 0, fmt.Errorf("zfp: invalid mode %d", s.ZfpMode)
	}
	if span > 0 {
		step = span / float64(uint64(1)<<nbits-1)
	}
	return nbits, step, nil
}

// zfpEncode compresses a 1-3D numeric array by uniform range quantization.
// The dimension hint fixes the field extent recorded in the header.
func zfpEncode[T numeric](data []T, dim [3]uint64, s *Settings) ([]byte, error) {
	if len(data) < zfpMinElements {
		return nil, fmt.Errorf("zfp: %d elements below threshold %d", len(data), zfpMinElements)
	}
	if dim[0] == 0 {
		return nil, fmt.Errorf("zfp: array carries no dimension hint")
	}
	values := toFloat64(data)
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	nbits, step, err := zfpParams(s, lo, hi)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4+8+24+len(values)*int(nbits)/8+18)
	out = binary.LittleEndian.AppendUint32(out, zfpMagic)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(values)))
	for _, d := range dim {
		out = binary.LittleEndian.AppendUint64(out, d)
	}
	return quantPack(out, values, nbits, lo, step), nil
}

// zfpDecode reverses zfpEncode into dst.
func zfpDecode[T numeric](dst []T, payload []byte) error {
	if len(payload) < 4+8+24 {
		return fmt.Errorf("zfp: payload truncated")
	}
	if binary.LittleEndian.Uint32(payload) != zfpMagic {
		return fmt.Errorf("zfp: bad magic")
	}
	n := binary.LittleEndian.Uint64(payload[4:])
	if int(n) != len(dst) {
		return fmt.Errorf("zfp: payload carries %d elements, want %d", n, len(dst))
	}
	values, _, err := quantUnpack(payload[4+8+24:], len(dst))
	if err != nil {
		return fmt.Errorf("zfp: %w", err)
	}
	fromFloat64(dst, values)
	return nil
}
