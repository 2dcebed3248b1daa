package codec

import (
	"math"
	"testing"

	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeStrings(t *testing.T) {
	assert.Equal(t, "uncompressed", Uncompressed.String())
	assert.Equal(t, "zfp", Zfp.String())
	assert.Equal(t, "bigwhoop", BigWhoop.String())
	assert.Equal(t, "invalid", Mode(99).String())
	assert.True(t, Predict.Lossless())
	assert.False(t, Sz.Lossless())
}

func TestZfpFixedRateShrinks(t *testing.T) {
	data := gradient(8192)
	s := DefaultSettings()
	s.Mode = Zfp
	s.ZfpMode = ZfpFixedRate
	s.ZfpRate = 8

	mode, payload := CompressField(data, scalar.Float32, [3]uint64{8192, 1, 1}, false, &s)
	require.Equal(t, Zfp, mode)
	// 8 bits per value against 32-bit input.
	assert.Less(t, len(payload), len(data)*4)

	dec := make([]float32, len(data))
	require.NoError(t, DecompressField(dec, payload, Zfp))
	for i := range data {
		assert.InDelta(t, data[i], dec[i], 1.0/200, "element %d", i)
	}
}

func TestSzErrorControls(t *testing.T) {
	data := make([]float64, 2048)
	for i := range data {
		data[i] = math.Cos(float64(i) / 30)
	}

	controls := []struct {
		name string
		err  SzError
		tol  float64
	}{
		{"rel", SzRel, 2 * 1e-4 * 2}, // rel error of a span-2 signal
		{"abs", SzAbs, 1e-3 + 1e-12},
		{"absAndRel", SzAbsAndRel, 1e-3 + 1e-12},
		{"absOrRel", SzAbsOrRel, 1e-3 + 1e-12},
		{"psnr", SzPsnr, 1},
		{"l2", SzL2, 1e-1},
	}
	for _, tc := range controls {
		s := DefaultSettings()
		s.Mode = Sz
		s.SzError = tc.err

		mode, payload := CompressField(data, scalar.Float64, [3]uint64{2048, 1, 1}, false, &s)
		require.Equal(t, Sz, mode, tc.name)
		dec := make([]float64, len(data))
		require.NoError(t, DecompressField(dec, payload, Sz), tc.name)
		for i := range data {
			require.InDelta(t, data[i], dec[i], tc.tol, "%s element %d", tc.name, i)
		}
	}
}

func TestBigWhoopBadRateRejected(t *testing.T) {
	data := gradient(256)
	s := DefaultSettings()
	s.Mode = BigWhoop
	s.BigWhoopRate = "fast"

	// The writer downgrades instead of aborting.
	mode, payload := CompressField(data, scalar.Float32, [3]uint64{256, 1, 1}, false, &s)
	assert.Equal(t, Uncompressed, mode)
	dec := make([]float32, len(data))
	require.NoError(t, DecompressField(dec, payload, mode))
	assert.Equal(t, data, dec)
}

func TestDecompressUnknownMode(t *testing.T) {
	dst := make([]float32, 4)
	err := DecompressField(dst, []byte{1, 2, 3}, Mode(42))
	var cerr *CodecError
	require.ErrorAs(t, err, &cerr)
}

func TestIntegerLossyRoundTrip(t *testing.T) {
	data := make([]int32, 3000)
	for i := range data {
		data[i] = int32(i * 3)
	}
	s := DefaultSettings()
	s.Mode = Sz
	s.SzError = SzAbs
	s.SzAbsError = 0.5

	mode, payload := CompressField(data, scalar.Int32, [3]uint64{3000, 1, 1}, false, &s)
	require.Equal(t, Sz, mode)
	dec := make([]int32, len(data))
	require.NoError(t, DecompressField(dec, payload, Sz))
	// With a half-unit bound, integers reconstruct exactly after rounding.
	assert.Equal(t, data, dec)
}
