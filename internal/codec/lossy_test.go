package codec

import (
	"math"
	"testing"

	"github.com/hpcvis/vizcore/internal/scalar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i) / float32(n-1)
	}
	return out
}

func TestZfpPrecisionBound(t *testing.T) {
	data := gradient(4096)
	s := DefaultSettings()
	s.Mode = Zfp
	s.ZfpMode = ZfpPrecision
	s.ZfpPrecision = 16

	mode, payload := CompressField(data, scalar.Float32, [3]uint64{64, 64, 1}, false, &s)
	require.Equal(t, Zfp, mode)
	assert.Less(t, len(payload), len(data)*4)

	dec := make([]float32, len(data))
	require.NoError(t, DecompressField(dec, payload, Zfp))
	for i := range data {
		assert.InDelta(t, data[i], dec[i], math.Pow(2, -12), "element %d", i)
	}
}

func TestZfpAccuracyBound(t *testing.T) {
	data := gradient(2000)
	s := DefaultSettings()
	s.Mode = Zfp
	s.ZfpMode = ZfpAccuracy
	s.ZfpAccuracy = 1e-4

	mode, payload := CompressField(data, scalar.Float32, [3]uint64{2000, 1, 1}, false, &s)
	require.Equal(t, Zfp, mode)
	dec := make([]float32, len(data))
	require.NoError(t, DecompressField(dec, payload, Zfp))
	for i := range data {
		assert.InDelta(t, data[i], dec[i], 2.1e-4, "element %d", i)
	}
}

func TestZfpSmallArrayFallsBackToRaw(t *testing.T) {
	data := gradient(500)
	s := DefaultSettings()
	s.Mode = Zfp

	mode, payload := CompressField(data, scalar.Float32, [3]uint64{500, 1, 1}, false, &s)
	assert.Equal(t, Uncompressed, mode)
	dec := make([]float32, len(data))
	require.NoError(t, DecompressField(dec, payload, mode))
	assert.Equal(t, data, dec)
}

func TestLossyRejectedForUnsupportedType(t *testing.T) {
	// A char vector must downgrade to Raw even when Zfp is selected.
	data := make([]int8, 500)
	for i := range data {
		data[i] = int8(i)
	}
	s := DefaultSettings()
	s.Mode = Zfp

	mode, payload := CompressField(data, scalar.Int8, [3]uint64{500, 1, 1}, true, &s)
	assert.Equal(t, Uncompressed, mode)
	dec := make([]int8, len(data))
	require.NoError(t, DecompressField(dec, payload, mode))
	assert.Equal(t, data, dec)
}

func TestExactForcesLossless(t *testing.T) {
	data := gradient(4096)
	s := DefaultSettings()
	s.Mode = Zfp

	mode, payload := CompressField(data, scalar.Float32, [3]uint64{4096, 1, 1}, true, &s)
	assert.Equal(t, Uncompressed, mode)
	dec := make([]float32, len(data))
	require.NoError(t, DecompressField(dec, payload, mode))
	assert.Equal(t, data, dec)
}

func TestSzAbsoluteBound(t *testing.T) {
	data := make([]float64, 3000)
	for i := range data {
		data[i] = math.Sin(float64(i) / 50)
	}
	s := DefaultSettings()
	s.Mode = Sz
	s.SzError = SzAbs
	s.SzAbsError = 1e-3

	mode, payload := CompressField(data, scalar.Float64, [3]uint64{3000, 1, 1}, false, &s)
	require.Equal(t, Sz, mode)
	assert.Less(t, len(payload), len(data)*8)

	dec := make([]float64, len(data))
	require.NoError(t, DecompressField(dec, payload, Sz))
	for i := range data {
		assert.InDelta(t, data[i], dec[i], 1e-3+1e-12, "element %d", i)
	}
}

func TestBigWhoopFloatsOnly(t *testing.T) {
	ints := make([]int64, 100)
	s := DefaultSettings()
	s.Mode = BigWhoop
	mode, _ := CompressField(ints, scalar.Int64, [3]uint64{100, 1, 1}, false, &s)
	assert.Equal(t, Uncompressed, mode)
}

func TestBigWhoopRoundTrip(t *testing.T) {
	data := make([]float32, 1024)
	for i := range data {
		data[i] = float32(math.Sin(float64(i) / 100))
	}
	s := DefaultSettings()
	s.Mode = BigWhoop
	s.BigWhoopRate = "24"
	s.BigWhoopNPar = 2

	mode, payload := CompressField(data, scalar.Float32, [3]uint64{1024, 1, 1}, false, &s)
	require.Equal(t, BigWhoop, mode)

	dec := make([]float32, len(data))
	require.NoError(t, DecompressField(dec, payload, BigWhoop))
	for i := range data {
		assert.InDelta(t, data[i], dec[i], 1e-3, "element %d", i)
	}
}

func TestHaarRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 8, 100} {
		a := make([]float64, n)
		for i := range a {
			a[i] = float64(i*i%17) - 8
		}
		orig := append([]float64(nil), a...)
		haarForward(a)
		haarInverse(a)
		for i := range a {
			assert.InDelta(t, orig[i], a[i], 1e-9, "n=%d element %d", n, i)
		}
	}
}
