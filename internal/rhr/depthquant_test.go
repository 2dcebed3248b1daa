package rhr

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientDepth(w, h int, slope float64) []float32 {
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 0.2 + slope*float64(x+y)
			if v > 1 {
				v = 1
			}
			out[y*w+x] = float32(v)
		}
	}
	return out
}

func TestDepthQuantSize(t *testing.T) {
	// 4x4 tiles of 12 bytes each, both precisions.
	assert.Equal(t, 12, DepthQuantSize(3, 4, 4))
	assert.Equal(t, 12, DepthQuantSize(2, 4, 4))
	assert.Equal(t, 12*4, DepthQuantSize(3, 8, 8))
	assert.Equal(t, 12*2*2, DepthQuantSize(3, 5, 5))
}

func TestDepthQuant24PSNR(t *testing.T) {
	const w, h = 128, 128
	src := gradientDepth(w, h, 0.001)

	buf := make([]byte, DepthQuantSize(3, w, h))
	QuantizeDepth(buf, src, 3, 0, 0, w, h, w)

	dst := make([]float32, w*h)
	DequantizeDepth(dst, buf, 3, 0, 0, w, h, w)

	psnr := DepthCompare(src, dst, w, h)
	assert.GreaterOrEqual(t, psnr, 80.0, "24-bit quantization PSNR")
}

func TestDepthQuantPlanarMatchesInterleavedQuality(t *testing.T) {
	const w, h = 64, 64
	src := gradientDepth(w, h, 0.005)

	buf := make([]byte, DepthQuantSize(3, w, h))
	QuantizeDepthPlanar(buf, src, 3, 0, 0, w, h, w)
	dst := make([]float32, w*h)
	DequantizeDepthPlanar(dst, buf, 3, 0, 0, w, h, w)

	psnr := DepthCompare(src, dst, w, h)
	assert.GreaterOrEqual(t, psnr, 80.0)
}

func TestDepthQuant16RoundTrip(t *testing.T) {
	const w, h = 32, 32
	src := gradientDepth(w, h, 0.002)

	buf := make([]byte, DepthQuantSize(2, w, h))
	QuantizeDepth(buf, src, 2, 0, 0, w, h, w)
	dst := make([]float32, w*h)
	DequantizeDepth(dst, buf, 2, 0, 0, w, h, w)

	psnr := DepthCompare(src, dst, w, h)
	assert.GreaterOrEqual(t, psnr, 40.0, "16-bit quantization PSNR")
}

func TestDepthQuantFarPlane(t *testing.T) {
	const w, h = 8, 8
	src := make([]float32, w*h)
	for i := range src {
		src[i] = 1 // everything at the far plane
	}
	buf := make([]byte, DepthQuantSize(3, w, h))
	QuantizeDepth(buf, src, 3, 0, 0, w, h, w)
	dst := make([]float32, w*h)
	DequantizeDepth(dst, buf, 3, 0, 0, w, h, w)
	for i := range dst {
		assert.InDelta(t, 1.0, dst[i], 1e-6, "pixel %d", i)
	}
}

func TestDepthQuantFlatTile(t *testing.T) {
	const w, h = 4, 4
	src := make([]float32, w*h)
	for i := range src {
		src[i] = 0.5
	}
	buf := make([]byte, DepthQuantSize(3, w, h))
	QuantizeDepth(buf, src, 3, 0, 0, w, h, w)
	dst := make([]float32, w*h)
	DequantizeDepth(dst, buf, 3, 0, 0, w, h, w)
	for i := range dst {
		assert.InDelta(t, 0.5, dst[i], 1e-4)
	}
}

func TestDepthQuantSubRegion(t *testing.T) {
	const fullW, fullH = 32, 16
	src := gradientDepth(fullW, fullH, 0.01)

	// Quantize an interior 16x8 window and place it back at (8,4).
	const x, y, w, h = 8, 4, 16, 8
	buf := make([]byte, DepthQuantSize(3, w, h))
	QuantizeDepth(buf, src, 3, x, y, w, h, fullW)

	dst := make([]float32, fullW*fullH)
	DequantizeDepth(dst, buf, 3, x, y, w, h, fullW)

	for yy := 0; yy < h; yy++ {
		for xx := 0; xx < w; xx++ {
			idx := (y+yy)*fullW + x + xx
			assert.InDelta(t, float64(src[idx]), float64(dst[idx]), 1e-3)
		}
	}
}

func TestPredictDepthRoundTripExact(t *testing.T) {
	const w, h = 256, 256
	rng := rand.New(rand.NewSource(3))
	src := make([]float32, w*h)
	for i := range src {
		src[i] = rng.Float32()
	}
	// Depth values live on the 24-bit grid after readback.
	for i := range src {
		src[i] = float32(math.Trunc(float64(src[i])*depthFar)) / float32(depthFar)
	}

	enc := make([]byte, w*h*3)
	TransformPredict(enc, src, w, h, w)
	dst := make([]float32, w*h)
	TransformUnpredict(dst, enc, w, h, w)
	require.Equal(t, src, dst)

	TransformPredictPlanar(enc, src, w, h, w)
	dstP := make([]float32, w*h)
	TransformUnpredictPlanar(dstP, enc, w, h, w)
	assert.Equal(t, src, dstP)
}

func TestPredictColorRoundTrip(t *testing.T) {
	const w, h = 37, 23
	rng := rand.New(rand.NewSource(9))
	src := make([]byte, w*h*4)
	rng.Read(src)

	encRGBA := make([]byte, w*h*4)
	TransformPredictRGBA(encRGBA, src, w, h, w)
	dst := make([]byte, w*h*4)
	TransformUnpredictRGBA(dst, encRGBA, w, h, w)
	assert.Equal(t, src, dst)

	// The RGB flavor drops alpha and reconstructs it as opaque.
	encRGB := make([]byte, w*h*3)
	TransformPredictRGB(encRGB, src, w, h, w)
	dstRGB := make([]byte, w*h*4)
	TransformUnpredictRGB(dstRGB, encRGB, w, h, w)
	for i := 0; i < w*h; i++ {
		assert.Equal(t, src[i*4:i*4+3], dstRGB[i*4:i*4+3], "pixel %d", i)
		assert.Equal(t, byte(0xff), dstRGB[i*4+3])
	}
}
