package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// MessageCompression wraps whole payload buffers at the message-framing
// level, after any per-array or per-tile codec ran. The wrapper is recorded
// in the surrounding message header, never inside the payload.
type MessageCompression uint8

const (
	CompressionNone MessageCompression = iota
	CompressionLZ4
	CompressionZstd
)

func (c MessageCompression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	}
	return "invalid"
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// CompressPayload wraps data with the requested compression. When the
// wrapped form is not smaller, or the compressor fails, the payload is
// passed through unchanged and the returned mode says so.
func CompressPayload(mode MessageCompression, data []byte) (MessageCompression, []byte) {
	switch mode {
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil || n == 0 || n >= len(data) {
			return CompressionNone, data
		}
		return CompressionLZ4, dst[:n]
	case CompressionZstd:
		dst := zstdEncoder.EncodeAll(data, nil)
		if len(dst) >= len(data) {
			return CompressionNone, data
		}
		return CompressionZstd, dst
	}
	return CompressionNone, data
}

// DecompressPayload unwraps a payload. rawSize is the pre-compression size
// recorded in the message header; it bounds the LZ4 output buffer.
func DecompressPayload(mode MessageCompression, data []byte, rawSize int) ([]byte, error) {
	switch mode {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		dst := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, &CodecError{Codec: "lz4", Reason: err}
		}
		if n != rawSize {
			return nil, &CodecError{Codec: "lz4", Reason: fmt.Errorf("expanded to %d bytes, want %d", n, rawSize)}
		}
		return dst, nil
	case CompressionZstd:
		dst, err := zstdDecoder.DecodeAll(data, make([]byte, 0, rawSize))
		if err != nil {
			return nil, &CodecError{Codec: "zstd", Reason: err}
		}
		return dst, nil
	}
	return nil, &CodecError{Codec: "message", Reason: fmt.Errorf("unknown compression mode %d", mode)}
}
