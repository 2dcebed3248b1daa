package rhr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/hpcvis/vizcore/internal/codec"
	"github.com/hpcvis/vizcore/internal/scalar"
)

// ColorCodec selects the per-tile color encoding.
type ColorCodec uint8

const (
	ColorRaw ColorCodec = iota
	ColorPredictRGB
	ColorPredictRGBA
	ColorJpegYUV411
	ColorJpegYUV444
)

// DepthCodec selects the per-tile depth encoding.
type DepthCodec uint8

const (
	DepthRaw DepthCodec = iota
	DepthPredict
	DepthPredictPlanar
	DepthQuant
	DepthQuantPlanar
	DepthZfp
)

// ZfpMode selects the error budget of the Zfp depth codec.
type ZfpMode uint8

const (
	ZfpFixedRate ZfpMode = iota
	ZfpPrecision
	ZfpAccuracy
)

// RGBAParams parameterizes one color-tile encode. The codec field is
// updated to whatever actually ran when a fallback kicks in.
type RGBAParams struct {
	Codec    ColorCodec
	Compress codec.MessageCompression
}

// DepthParams parameterizes one depth-tile encode.
type DepthParams struct {
	DepthFloat bool
	Precision  int // bits for the quantizer: 16 or 24
	Codec      DepthCodec
	ZfpMode    ZfpMode
	Compress   codec.MessageCompression
}

// CopyTileBytes extracts a w×h region of a bpp-strided byte image.
func CopyTileBytes(img []byte, x, y, w, h, stride, bpp int) []byte {
	out := make([]byte, w*h*bpp)
	for yy := 0; yy < h; yy++ {
		copy(out[yy*w*bpp:(yy+1)*w*bpp], img[((yy+y)*stride+x)*bpp:])
	}
	return out
}

func copyTileFloats(img []float32, x, y, w, h, stride int) []byte {
	out := make([]byte, w*h*4)
	for yy := 0; yy < h; yy++ {
		for xx := 0; xx < w; xx++ {
			v := math.Float32bits(img[(yy+y)*stride+x+xx])
			binary.LittleEndian.PutUint32(out[(yy*w+xx)*4:], v)
		}
	}
	return out
}

// CompressRGBA encodes one color tile from a strided RGBA framebuffer.
// JPEG failures fall back to PredictRGB and rewrite params.Codec.
func CompressRGBA(rgba []byte, x, y, w, h, stride int, params *RGBAParams) []byte {
	if params.Codec == ColorJpegYUV411 || params.Codec == ColorJpegYUV444 {
		if out, err := jpegEncode(rgba, x, y, w, h, stride); err == nil {
			return out
		}
		params.Codec = ColorPredictRGB
	}
	switch params.Codec {
	case ColorPredictRGB:
		out := make([]byte, w*h*3)
		TransformPredictRGB(out, rgba[(y*stride+x)*4:], w, h, stride)
		return out
	case ColorPredictRGBA:
		out := make([]byte, w*h*4)
		TransformPredictRGBA(out, rgba[(y*stride+x)*4:], w, h, stride)
		return out
	}
	params.Codec = ColorRaw
	return CopyTileBytes(rgba, x, y, w, h, stride, 4)
}

func jpegEncode(rgba []byte, x, y, w, h, stride int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for yy := 0; yy < h; yy++ {
		copy(img.Pix[yy*img.Stride:yy*img.Stride+w*4], rgba[((yy+y)*stride+x)*4:])
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func jpegDecode(dst []byte, input []byte, x, y, w, h, stride int) error {
	img, err := jpeg.Decode(bytes.NewReader(input))
	if err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() != w || b.Dy() != h {
		return fmt.Errorf("jpeg tile is %dx%d, want %dx%d", b.Dx(), b.Dy(), w, h)
	}
	for yy := 0; yy < h; yy++ {
		for xx := 0; xx < w; xx++ {
			r, g, bb, a := img.At(b.Min.X+xx, b.Min.Y+yy).RGBA()
			off := ((yy+y)*stride + x + xx) * 4
			dst[off] = byte(r >> 8)
			dst[off+1] = byte(g >> 8)
			dst[off+2] = byte(bb >> 8)
			dst[off+3] = byte(a >> 8)
		}
	}
	return nil
}

func zfpSettings(mode ZfpMode) codec.Settings {
	s := codec.DefaultSettings()
	s.Mode = codec.Zfp
	switch mode {
	case ZfpFixedRate:
		s.ZfpMode = codec.ZfpFixedRate
		s.ZfpRate = 6
	case ZfpPrecision:
		s.ZfpMode = codec.ZfpPrecision
		s.ZfpPrecision = 16
	case ZfpAccuracy:
		s.ZfpMode = codec.ZfpAccuracy
		s.ZfpAccuracy = 1. / 1024.
	}
	return s
}

// CompressDepth encodes one depth tile from a strided float framebuffer.
// Unsupported combinations and codec failures fall back to Raw and rewrite
// params.Codec.
func CompressDepth(depth []float32, x, y, w, h, stride int, params *DepthParams) []byte {
	switch params.Codec {
	case DepthZfp:
		tile := make([]float32, w*h)
		for yy := 0; yy < h; yy++ {
			copy(tile[yy*w:(yy+1)*w], depth[(yy+y)*stride+x:])
		}
		settings := zfpSettings(params.ZfpMode)
		mode, payload := codec.CompressField(tile, scalar.Float32, [3]uint64{uint64(w), uint64(h), 1}, false, &settings)
		if mode == codec.Zfp {
			return payload
		}
	case DepthQuant:
		out := make([]byte, DepthQuantSize(params.Precision/8, w, h))
		QuantizeDepth(out, depth, params.Precision/8, x, y, w, h, stride)
		return out
	case DepthQuantPlanar:
		out := make([]byte, DepthQuantSize(params.Precision/8, w, h))
		QuantizeDepthPlanar(out, depth, params.Precision/8, x, y, w, h, stride)
		return out
	case DepthPredict:
		out := make([]byte, w*h*3)
		TransformPredict(out, depth[y*stride+x:], w, h, stride)
		return out
	case DepthPredictPlanar:
		out := make([]byte, w*h*3)
		TransformPredictPlanar(out, depth[y*stride+x:], w, h, stride)
		return out
	}
	params.Codec = DepthRaw
	return copyTileFloats(depth, x, y, w, h, stride)
}

// DecompressRGBA writes one color tile into a strided RGBA framebuffer.
func DecompressRGBA(dst []byte, input []byte, params RGBAParams, x, y, w, h, stride int) error {
	switch params.Codec {
	case ColorJpegYUV411, ColorJpegYUV444:
		if err := jpegDecode(dst, input, x, y, w, h, stride); err != nil {
			return &codec.CodecError{Codec: "jpeg", Reason: err}
		}
		return nil
	case ColorPredictRGB:
		TransformUnpredictRGB(dst[(y*stride+x)*4:], input, w, h, stride)
		return nil
	case ColorPredictRGBA:
		TransformUnpredictRGBA(dst[(y*stride+x)*4:], input, w, h, stride)
		return nil
	case ColorRaw:
		if len(input) != w*h*4 {
			return &codec.CodecError{Codec: "raw", Reason: fmt.Errorf("tile payload is %d bytes, want %d", len(input), w*h*4)}
		}
		for yy := 0; yy < h; yy++ {
			copy(dst[((yy+y)*stride+x)*4:((yy+y)*stride+x+w)*4], input[yy*w*4:])
		}
		return nil
	}
	return &codec.CodecError{Codec: "rgba", Reason: fmt.Errorf("unknown color codec %d", params.Codec)}
}

// DecompressDepth writes one depth tile into a strided float framebuffer.
func DecompressDepth(dst []float32, input []byte, params DepthParams, x, y, w, h, stride int) error {
	switch params.Codec {
	case DepthZfp:
		tile := make([]float32, w*h)
		if err := codec.DecompressField(tile, input, codec.Zfp); err != nil {
			return err
		}
		for yy := 0; yy < h; yy++ {
			copy(dst[(yy+y)*stride+x:(yy+y)*stride+x+w], tile[yy*w:])
		}
		return nil
	case DepthQuant:
		DequantizeDepth(dst, input, params.Precision/8, x, y, w, h, stride)
		return nil
	case DepthQuantPlanar:
		DequantizeDepthPlanar(dst, input, params.Precision/8, x, y, w, h, stride)
		return nil
	case DepthPredict:
		TransformUnpredict(dst[y*stride+x:], input, w, h, stride)
		return nil
	case DepthPredictPlanar:
		TransformUnpredictPlanar(dst[y*stride+x:], input, w, h, stride)
		return nil
	case DepthRaw:
		if len(input) != w*h*4 {
			return &codec.CodecError{Codec: "raw", Reason: fmt.Errorf("tile payload is %d bytes, want %d", len(input), w*h*4)}
		}
		for yy := 0; yy < h; yy++ {
			for xx := 0; xx < w; xx++ {
				dst[(yy+y)*stride+x+xx] = math.Float32frombits(binary.LittleEndian.Uint32(input[(yy*w+xx)*4:]))
			}
		}
		return nil
	}
	return &codec.CodecError{Codec: "depth", Reason: fmt.Errorf("unknown depth codec %d", params.Codec)}
}

// colorCompressionBits maps a color codec to the tile-header bitmask.
func colorCompressionBits(c ColorCodec) uint16 {
	switch c {
	case ColorPredictRGB:
		return CompPredictRGB
	case ColorPredictRGBA:
		return CompPredictRGBA
	case ColorJpegYUV411, ColorJpegYUV444:
		return CompJpeg
	}
	return CompRaw
}

// depthCompressionBits maps a depth codec to the tile-header bitmask.
func depthCompressionBits(c DepthCodec) uint16 {
	switch c {
	case DepthPredict:
		return CompDepthPredict
	case DepthPredictPlanar:
		return CompDepthPredictPlanar
	case DepthQuant:
		return CompDepthQuantize
	case DepthQuantPlanar:
		return CompDepthQuantizePlanar
	case DepthZfp:
		return CompDepthZfp
	}
	return CompRaw
}

// DecodeTileInto reconstructs one received tile into the destination
// framebuffers, branching on the codec bits of the tile header rather than
// any caller-side parameters.
func DecodeTileInto(colorFB []byte, depthFB []float32, msg *Tile, payload []byte) error {
	x, y := int(msg.X), int(msg.Y)
	w, h := int(msg.Width), int(msg.Height)
	stride := int(msg.TotalWidth)
	if w == 0 || h == 0 {
		return nil
	}

	if msg.Format == FormatColorRGBA {
		params := RGBAParams{Codec: ColorRaw}
		switch {
		case msg.Compression&CompJpeg != 0:
			params.Codec = ColorJpegYUV444
		case msg.Compression&CompPredictRGB != 0:
			params.Codec = ColorPredictRGB
		case msg.Compression&CompPredictRGBA != 0:
			params.Codec = ColorPredictRGBA
		}
		return DecompressRGBA(colorFB, payload, params, x, y, w, h, stride)
	}

	params := DepthParams{DepthFloat: true, Precision: 24, Codec: DepthRaw}
	if msg.Format == FormatDepth16 {
		params.Precision = 16
	}
	switch {
	case msg.Compression&CompDepthZfp != 0:
		params.Codec = DepthZfp
	case msg.Compression&CompDepthQuantize != 0:
		params.Codec = DepthQuant
	case msg.Compression&CompDepthQuantizePlanar != 0:
		params.Codec = DepthQuantPlanar
	case msg.Compression&CompDepthPredict != 0:
		params.Codec = DepthPredict
	case msg.Compression&CompDepthPredictPlanar != 0:
		params.Codec = DepthPredictPlanar
	}
	return DecompressDepth(depthFB, payload, params, x, y, w, h, stride)
}
