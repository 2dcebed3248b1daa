package rhr

// Row-wise predictive transforms for tile payloads. Depth values are
// truncated to 24 bits and delta-coded bytewise; color pixels pass through
// a reversible YUV-style rotation before the per-plane delta. Every row
// restarts the predictor, so rows decode independently.

// TransformPredict delta-codes a float depth region into 3 bytes per
// pixel, interleaved.
func TransformPredict(dst []byte, src []float32, w, h, stride int) {
	for y := 0; y < h; y++ {
		in := src[y*stride:]
		out := dst[y*w*3:]
		var prev [3]byte
		for x := 0; x < w; x++ {
			v := floatDepth(in[x])
			for i := 0; i < 3; i++ {
				a := byte(v & 0xff)
				v >>= 8
				out[x*3+i] = a - prev[i]
				prev[i] = a
			}
		}
	}
}

// TransformUnpredict reverses TransformPredict into a strided float image.
func TransformUnpredict(dst []float32, src []byte, w, h, stride int) {
	for y := 0; y < h; y++ {
		out := dst[y*stride:]
		in := src[y*w*3:]
		var prev [3]byte
		for x := 0; x < w; x++ {
			for i := 0; i < 3; i++ {
				prev[i] += in[x*3+i]
			}
			v := uint32(prev[0]) | uint32(prev[1])<<8 | uint32(prev[2])<<16
			out[x] = float32(v) / float32(depthFar)
		}
	}
}

// TransformPredictPlanar emits the three delta planes consecutively.
func TransformPredictPlanar(dst []byte, src []float32, w, h, stride int) {
	plane := w * h
	for y := 0; y < h; y++ {
		in := src[y*stride:]
		var prev [3]byte
		for x := 0; x < w; x++ {
			v := floatDepth(in[x])
			for i := 0; i < 3; i++ {
				a := byte(v & 0xff)
				v >>= 8
				dst[i*plane+y*w+x] = a - prev[i]
				prev[i] = a
			}
		}
	}
}

// TransformUnpredictPlanar reverses TransformPredictPlanar.
func TransformUnpredictPlanar(dst []float32, src []byte, w, h, stride int) {
	plane := w * h
	for y := 0; y < h; y++ {
		out := dst[y*stride:]
		var prev [3]byte
		for x := 0; x < w; x++ {
			for i := 0; i < 3; i++ {
				prev[i] += src[i*plane+y*w+x]
			}
			v := uint32(prev[0]) | uint32(prev[1])<<8 | uint32(prev[2])<<16
			out[x] = float32(v) / float32(depthFar)
		}
	}
}

func rgb2yuv(r, g, b byte) (y, u, v byte) { return b, g - b, g - r }

func yuv2rgb(y, u, v byte) (r, g, b byte) {
	b = y
	g = u + b
	r = g - v
	return r, g, b
}

// TransformPredictRGB rotates RGBA pixels into YUV, drops alpha, and
// delta-codes three planes.
func TransformPredictRGB(dst []byte, src []byte, w, h, stride int) {
	plane := w * h
	for y := 0; y < h; y++ {
		in := src[y*stride*4:]
		var prev [3]byte
		for x := 0; x < w; x++ {
			yy, u, v := rgb2yuv(in[x*4], in[x*4+1], in[x*4+2])
			dst[0*plane+y*w+x] = yy - prev[0]
			dst[1*plane+y*w+x] = u - prev[1]
			dst[2*plane+y*w+x] = v - prev[2]
			prev[0], prev[1], prev[2] = yy, u, v
		}
	}
}

// TransformUnpredictRGB reverses TransformPredictRGB; alpha reconstructs
// as opaque.
func TransformUnpredictRGB(dst []byte, src []byte, w, h, stride int) {
	plane := w * h
	for y := 0; y < h; y++ {
		out := dst[y*stride*4:]
		var prev [3]byte
		for x := 0; x < w; x++ {
			prev[0] += src[0*plane+y*w+x]
			prev[1] += src[1*plane+y*w+x]
			prev[2] += src[2*plane+y*w+x]
			r, g, b := yuv2rgb(prev[0], prev[1], prev[2])
			out[x*4], out[x*4+1], out[x*4+2], out[x*4+3] = r, g, b, 0xff
		}
	}
}

// TransformPredictRGBA is TransformPredictRGB with a fourth delta-coded
// alpha plane.
func TransformPredictRGBA(dst []byte, src []byte, w, h, stride int) {
	plane := w * h
	for y := 0; y < h; y++ {
		in := src[y*stride*4:]
		var prev [4]byte
		for x := 0; x < w; x++ {
			yy, u, v := rgb2yuv(in[x*4], in[x*4+1], in[x*4+2])
			a := in[x*4+3]
			dst[0*plane+y*w+x] = yy - prev[0]
			dst[1*plane+y*w+x] = u - prev[1]
			dst[2*plane+y*w+x] = v - prev[2]
			dst[3*plane+y*w+x] = a - prev[3]
			prev[0], prev[1], prev[2], prev[3] = yy, u, v, a
		}
	}
}

// TransformUnpredictRGBA reverses TransformPredictRGBA.
func TransformUnpredictRGBA(dst []byte, src []byte, w, h, stride int) {
	plane := w * h
	for y := 0; y < h; y++ {
		out := dst[y*stride*4:]
		var prev [4]byte
		for x := 0; x < w; x++ {
			prev[0] += src[0*plane+y*w+x]
			prev[1] += src[1*plane+y*w+x]
			prev[2] += src[2*plane+y*w+x]
			prev[3] += src[3*plane+y*w+x]
			r, g, b := yuv2rgb(prev[0], prev[1], prev[2])
			out[x*4], out[x*4+1], out[x*4+2], out[x*4+3] = r, g, b, prev[3]
		}
	}
}
