package rhr

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomRGBA(w, h int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	out := make([]byte, w*h*4)
	rng.Read(out)
	return out
}

func TestCompressRGBARoundTrips(t *testing.T) {
	const w, h, stride = 48, 32, 64
	src := randomRGBA(stride, h, 1)

	for _, codecSel := range []ColorCodec{ColorRaw, ColorPredictRGBA} {
		params := RGBAParams{Codec: codecSel}
		payload := CompressRGBA(src, 8, 0, w, h, stride, &params)
		assert.Equal(t, codecSel, params.Codec)

		dst := make([]byte, stride*h*4)
		require.NoError(t, DecompressRGBA(dst, payload, params, 8, 0, w, h, stride))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				off := (y*stride + 8 + x) * 4
				assert.Equal(t, src[off:off+4], dst[off:off+4], "codec %d pixel %d,%d", codecSel, x, y)
			}
		}
	}
}

func TestCompressRGBAJpegLossy(t *testing.T) {
	const w, h = 32, 32
	// Smooth image: JPEG should stay close.
	src := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := (y*w + x) * 4
			src[off] = byte(4 * x)
			src[off+1] = byte(4 * y)
			src[off+2] = 128
			src[off+3] = 0xff
		}
	}
	params := RGBAParams{Codec: ColorJpegYUV444}
	payload := CompressRGBA(src, 0, 0, w, h, w, &params)
	require.Equal(t, ColorJpegYUV444, params.Codec)
	assert.Less(t, len(payload), len(src))

	dst := make([]byte, w*h*4)
	require.NoError(t, DecompressRGBA(dst, payload, params, 0, 0, w, h, w))
	for i := 0; i < w*h; i++ {
		assert.InDelta(t, float64(src[i*4]), float64(dst[i*4]), 24, "red %d", i)
	}
}

func TestCompressDepthQuantRoundTrip(t *testing.T) {
	const w, h, stride = 64, 64, 80
	src := make([]float32, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < stride; x++ {
			src[y*stride+x] = 0.25 + 0.001*float32(x+y)
		}
	}

	params := DepthParams{DepthFloat: true, Precision: 24, Codec: DepthQuant}
	payload := CompressDepth(src, 8, 0, w, h, stride, &params)
	require.Equal(t, DepthQuant, params.Codec)
	assert.Len(t, payload, DepthQuantSize(3, w, h))

	dst := make([]float32, stride*h)
	require.NoError(t, DecompressDepth(dst, payload, params, 8, 0, w, h, stride))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*stride + 8 + x
			assert.InDelta(t, float64(src[idx]), float64(dst[idx]), 1e-3)
		}
	}
}

func TestCompressDepthZfpSmallTileFallsBack(t *testing.T) {
	const w, h = 16, 16 // below the codec's element threshold
	src := make([]float32, w*h)
	params := DepthParams{DepthFloat: true, Precision: 24, Codec: DepthZfp}
	payload := CompressDepth(src, 0, 0, w, h, w, &params)
	assert.Equal(t, DepthRaw, params.Codec)
	assert.Len(t, payload, w*h*4)
}

func TestDecodeTileIntoDispatchesOnHeaderBits(t *testing.T) {
	const w, h = 16, 16
	depth := make([]float32, w*h)
	for i := range depth {
		depth[i] = float32(i) / float32(w*h)
	}
	params := DepthParams{DepthFloat: true, Precision: 24, Codec: DepthPredict}
	payload := CompressDepth(depth, 0, 0, w, h, w, &params)

	msg := &Tile{
		Format:      FormatDepthFloat,
		Compression: depthCompressionBits(params.Codec),
		Width:       w,
		Height:      h,
		TotalWidth:  w,
		TotalHeight: h,
	}
	fbDepth := make([]float32, w*h)
	require.NoError(t, DecodeTileInto(nil, fbDepth, msg, payload))
	for i := range depth {
		assert.InDelta(t, float64(depth[i]), float64(fbDepth[i]), 1.0/float64(1<<24))
	}

	// The header bits decide, not caller parameters: a raw-color tile.
	rgba := randomRGBA(w, h, 5)
	colorMsg := &Tile{
		Format:      FormatColorRGBA,
		Compression: CompRaw,
		Width:       w,
		Height:      h,
		TotalWidth:  w,
		TotalHeight: h,
	}
	fbColor := make([]byte, w*h*4)
	require.NoError(t, DecodeTileInto(fbColor, nil, colorMsg, rgba))
	assert.Equal(t, rgba, fbColor)
}

func TestCompressionBitMappings(t *testing.T) {
	assert.Equal(t, CompDepthQuantize, depthCompressionBits(DepthQuant))
	assert.Equal(t, CompDepthQuantizePlanar, depthCompressionBits(DepthQuantPlanar))
	assert.Equal(t, CompDepthZfp, depthCompressionBits(DepthZfp))
	assert.Equal(t, CompRaw, depthCompressionBits(DepthRaw))
	assert.Equal(t, CompPredictRGB, colorCompressionBits(ColorPredictRGB))
	assert.Equal(t, CompJpeg, colorCompressionBits(ColorJpegYUV411))
	assert.Equal(t, CompRaw, colorCompressionBits(ColorRaw))
}
