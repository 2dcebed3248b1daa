package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageCompressionRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("tiles and arrays compress well "), 100)

	for _, mode := range []MessageCompression{CompressionLZ4, CompressionZstd} {
		used, wrapped := CompressPayload(mode, data)
		require.Equal(t, mode, used, mode.String())
		assert.Less(t, len(wrapped), len(data), mode.String())

		raw, err := DecompressPayload(used, wrapped, len(data))
		require.NoError(t, err)
		assert.Equal(t, data, raw)
	}
}

func TestMessageCompressionIncompressible(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := make([]byte, 512)
	rng.Read(data)

	for _, mode := range []MessageCompression{CompressionLZ4, CompressionZstd} {
		used, wrapped := CompressPayload(mode, data)
		// The wrapper records that nothing was applied.
		assert.Equal(t, CompressionNone, used)
		assert.Equal(t, data, wrapped)
	}
}

func TestMessageCompressionNone(t *testing.T) {
	data := []byte("pass through")
	used, wrapped := CompressPayload(CompressionNone, data)
	assert.Equal(t, CompressionNone, used)
	raw, err := DecompressPayload(used, wrapped, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, raw)
}

func TestDecompressPayloadSizeMismatch(t *testing.T) {
	data := bytes.Repeat([]byte("abcd"), 64)
	used, wrapped := CompressPayload(CompressionLZ4, data)
	require.Equal(t, CompressionLZ4, used)
	_, err := DecompressPayload(CompressionLZ4, wrapped, len(data)+4)
	assert.Error(t, err)
}
