package codec

import (
	"fmt"

	"github.com/hpcvis/vizcore/internal/scalar"
)

// CodecError reports an encode or decode failure of a named codec. The
// writer recovers by downgrading to Raw; the reader surfaces it for the
// offending blob.
type CodecError struct {
	Codec  string
	Reason error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec %s failed: %v", e.Codec, e.Reason)
}

func (e *CodecError) Unwrap() error { return e.Reason }

func rawEncode[T numeric](data []T) []byte {
	elem := elemBytes[T]()
	out := make([]byte, len(data)*elem)
	for i, v := range data {
		putLE(out[i*elem:(i+1)*elem], rawBits(v))
	}
	return out
}

func rawDecode[T numeric](dst []T, payload []byte) error {
	elem := elemBytes[T]()
	if len(payload) != len(dst)*elem {
		return fmt.Errorf("raw: payload is %d bytes, want %d", len(payload), len(dst)*elem)
	}
	for i := range dst {
		dst[i] = fromRaw[T](getLE(payload[i*elem : (i+1)*elem]))
	}
	return nil
}

// CompressField encodes one array with the writer's settings. The exact
// flag and unsupported type/shape combinations downgrade lossy modes to
// Raw; a failing codec does the same. The returned mode is what actually
// got recorded, never an aborted write.
func CompressField[T numeric](data []T, tag scalar.Type, dim [3]uint64, exact bool, s *Settings) (Mode, []byte) {
	mode := s.Mode
	if !mode.Lossless() && (exact || !tag.Lossy()) {
		mode = Uncompressed
	}
	if mode == BigWhoop && !tag.Float() {
		mode = Uncompressed
	}

	var payload []byte
	var err error
	switch mode {
	case Predict:
		payload = PredictEncode(data, 1, false)
	case Zfp:
		payload, err = zfpEncode(data, dim, s)
	case Sz:
		payload, err = szEncode(data, s)
	case BigWhoop:
		payload, err = bigWhoopEncode(data, s)
	}
	if err != nil {
		mode = Uncompressed
	}
	if mode == Uncompressed {
		payload = rawEncode(data)
	}
	return mode, payload
}

// DecompressField decodes a payload written by CompressField into dst,
// which must already carry the element count from the archive header.
func DecompressField[T numeric](dst []T, payload []byte, mode Mode) error {
	var err error
	switch mode {
	case Uncompressed:
		err = rawDecode(dst, payload)
	case Predict:
		err = PredictDecode(dst, payload, 1, false)
	case Zfp:
		err = zfpDecode(dst, payload)
	case Sz:
		err = szDecode(dst, payload)
	case BigWhoop:
		err = bigWhoopDecode(dst, payload)
	default:
		err = fmt.Errorf("unknown field compression mode %d", mode)
	}
	if err != nil {
		return &CodecError{Codec: mode.String(), Reason: err}
	}
	return nil
}
