package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// szBound derives the absolute error bound from the configured error
// control and the value range.
func szBound(s *Settings, span float64, n int) (float64, error) {
	abs := s.SzAbsError
	rel := s.SzRelError * span
	var eb float64
	switch s.SzError {
	case SzAbs:
		eb = abs
	case SzRel:
		eb = rel
	case SzAbsAndRel:
		eb = math.Min(abs, rel)
	case SzAbsOrRel:
		eb = math.Max(abs, rel)
	case SzPsnr:
		eb = span * math.Pow(10, -s.SzPsnrError/20)
	case SzL2:
		if n > 0 {
			eb = s.SzL2Error / math.Sqrt(float64(n))
		}
	default:
		return 0, fmt.Errorf("sz3: invalid error control %d", s.SzError)
	}
	if eb <= 0 || math.IsNaN(eb) {
		return 0, fmt.Errorf("sz3: error bound collapsed to %g", eb)
	}
	return eb, nil
}

// szEncode compresses with a Lorenzo-style predictor: each value is
// predicted from its reconstructed predecessor and the residual is
// quantized against the error bound and varint-coded. The reconstruction
// error of every element stays within the bound.
func szEncode[T numeric](data []T, s *Settings) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("sz3: empty array")
	}
	values := toFloat64(data)
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	eb, err := szBound(s, hi-lo, len(values))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4+8+8+len(values))
	out = binary.LittleEndian.AppendUint32(out, szMagic)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(values)))
	out = binary.LittleEndian.AppendUint64(out, math.Float64bits(eb))

	var tmp [binary.MaxVarintLen64]byte
	pred := 0.0
	for _, v := range values {
		q := math.Round((v - pred) / (2 * eb))
		if math.Abs(q) > float64(math.MaxInt64/2) {
			return nil, fmt.Errorf("sz3: residual overflow")
		}
		rec := pred + q*2*eb
		pred = rec
		n := binary.PutVarint(tmp[:], int64(q))
		out = append(out, tmp[:n]...)
	}
	return out, nil
}

// szDecode reverses szEncode into dst.
func szDecode[T numeric](dst []T, payload []byte) error {
	if len(payload) < 4+8+8 {
		return fmt.Errorf("sz3: payload truncated")
	}
	if binary.LittleEndian.Uint32(payload) != szMagic {
		return fmt.Errorf("sz3: bad magic")
	}
	n := binary.LittleEndian.Uint64(payload[4:])
	if int(n) != len(dst) {
		return fmt.Errorf("sz3: payload carries %d elements, want %d", n, len(dst))
	}
	eb := math.Float64frombits(binary.LittleEndian.Uint64(payload[12:]))
	stream := payload[20:]

	values := make([]float64, len(dst))
	pred := 0.0
	for i := range values {
		q, used := binary.Varint(stream)
		if used <= 0 {
			return fmt.Errorf("sz3: residual stream truncated at element %d", i)
		}
		stream = stream[used:]
		pred += float64(q) * 2 * eb
		values[i] = pred
	}
	fromFloat64(dst, values)
	return nil
}
