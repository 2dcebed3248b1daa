// Package rhr implements the remote-hybrid-rendering tile pipeline: per-tile
// color and depth codecs, the framed wire protocol, and the server that
// slices framebuffers into encoded tiles.
package rhr

import "math"

// Depth quantization packs 4x4 pixel tiles into two depth endpoints plus
// per-pixel interpolation weights. The 16-bit flavor spends 4 bits per
// pixel, the 24-bit flavor 3 bits plus 4 scale bits folded into the
// endpoints. The tile layout is fixed: weight bits first, then the two
// big-endian endpoints.

const (
	quantEdge = 4
	depthFar  = 0x00ffffff
)

type quantConfig struct {
	precision  int
	bpp        uint // weight bits per pixel
	scaleBits  uint
	bytesBits  int // weight bytes per tile
	bytesDepth int // bytes per endpoint
}

var (
	quant16 = quantConfig{precision: 16, bpp: 4, scaleBits: 0, bytesBits: 8, bytesDepth: 2}
	quant24 = quantConfig{precision: 24, bpp: 3, scaleBits: 4, bytesBits: 6, bytesDepth: 3}
)

func quantConfigFor(depthps int) quantConfig {
	if depthps <= 2 {
		return quant16
	}
	return quant24
}

// DepthQuantSize returns the buffer size the quantizer needs for a w×h
// region at the given bytes-per-pixel precision.
func DepthQuantSize(depthps, w, h int) int {
	cfg := quantConfigFor(depthps)
	tile := cfg.bytesBits + 2*cfg.bytesDepth
	ntiles := ((w + quantEdge - 1) / quantEdge) * ((h + quantEdge - 1) / quantEdge)
	return tile * ntiles
}

// floatDepth maps a [0,1] depth sample onto the 24-bit grid, rounding to
// nearest so grid-aligned inputs survive a round trip exactly.
func floatDepth(f float32) uint32 {
	d := uint32(0)
	v := float64(f)*float64(depthFar) + 0.5
	if v > 0 {
		d = uint32(v)
	}
	if d > depthFar {
		d = depthFar
	}
	return d
}

func setDepth(dst []byte, v uint32) {
	for i := 3; i > 0; i-- {
		if i <= len(dst) {
			dst[i-1] = byte(v & 0xff)
		}
		v >>= 8
	}
}

func getDepth16(d []byte) uint32 {
	return uint32(d[0])<<16 | uint32(d[1])<<8 | uint32(d[0])
}

func getDepth24(d []byte) uint32 {
	return uint32(d[0])<<16 | uint32(d[1])<<8 | uint32(d[2])
}

func setBits(dst []byte, bits uint64) {
	for i := range dst {
		dst[i] = byte(bits & 0xff)
		bits >>= 8
	}
}

func getBits(src []byte) uint64 {
	bits := uint64(0)
	for i := len(src) - 1; i >= 0; i-- {
		bits = bits<<8 | uint64(src[i])
	}
	return bits
}

// quantTile computes one tile's endpoints and weight bits from the region
// [x0+tx, x0+tx+4) × [y0+ty, y0+ty+4) of the source depth image.
func quantTile(cfg *quantConfig, src []float32, x0, y0, tx, ty, w, h, stride int) (d0, d1 uint32, bits uint64) {
	size := quantEdge * quantEdge
	var depths [quantEdge * quantEdge]uint32
	haveFar := false
	minDepth := uint32(depthFar)
	maxDepth := uint32(0)

	for py := 0; py < quantEdge; py++ {
		y := y0 + ty + py
		if y >= y0+h {
			y = y0 + h - 1
		}
		for px := 0; px < quantEdge; px++ {
			x := x0 + tx + px
			if x >= x0+w {
				x = x0 + w - 1
			}
			d := floatDepth(src[y*stride+x])
			depths[py*quantEdge+px] = d
			if d >= depthFar {
				haveFar = true
			} else {
				if d < minDepth {
					minDepth = d
				}
				if d > maxDepth {
					maxDepth = d
				}
			}
		}
	}

	valid := uint32(0x00ffff00)
	if cfg.precision == 24 {
		valid = depthFar &^ (1<<cfg.scaleBits - 1)
	}
	next := depthFar - valid + 1
	mask := uint32(1)<<cfg.bpp - 1

	if minDepth == depthFar {
		maxDepth = depthFar
	}
	minDepth &= valid
	if maxDepth&valid != maxDepth {
		maxDepth &= valid
		if maxDepth != depthFar&valid {
			maxDepth += next
		}
		maxDepth += next - 1
	}

	qscale := float64(mask) + 0.5
	if haveFar {
		qscale = float64(mask) - 0.5
	}

	if cfg.scaleBits == 0 {
		span := maxDepth - minDepth
		if span == 0 {
			if haveFar {
				bits = ^uint64(0)
			}
		} else {
			for idx := 0; idx < size; idx++ {
				depth := depths[idx]
				var q uint32
				if haveFar && depth == depthFar {
					q = mask
				} else {
					q = uint32(float64(depth-minDepth) * qscale / float64(span))
				}
				bits |= uint64(q) << (uint(idx) * cfg.bpp)
			}
		}
		if haveFar {
			return maxDepth, minDepth, bits
		}
		return minDepth, maxDepth, bits
	}

	scaleMask := uint32(1)<<cfg.scaleBits - 1
	depthMask := ^scaleMask
	minDepth &= depthMask
	maxDepth |= scaleMask
	span := maxDepth - minDepth
	lowerScale, upperScale := uint32(1), uint32(1)
	midVal := (minDepth + maxDepth) >> 1
	lowerMid, upperMid := minDepth, maxDepth
	if span > 1 {
		for _, d := range depths {
			if d == depthFar {
				continue
			}
			if d <= midVal {
				if d > lowerMid {
					lowerMid = d
				}
			} else if d < upperMid {
				upperMid = d
			}
		}
		if lowerMid > minDepth {
			lowerScale = span / (lowerMid - minDepth) / 2
		}
		if maxDepth > upperMid {
			upperScale = span / (maxDepth - upperMid) / 2
		}
		if lowerScale == 0 {
			lowerScale = 1
		}
		if upperScale == 0 {
			upperScale = 1
		}
		if lowerScale > 1<<cfg.scaleBits {
			lowerScale = 1 << cfg.scaleBits
		}
		if upperScale > 1<<cfg.scaleBits {
			upperScale = 1 << cfg.scaleBits
		}
	}

	qm2 := uint32(1) << cfg.bpp / 2
	if span == 0 {
		if haveFar {
			bits = ^uint64(0)
		}
	} else {
		for idx := 0; idx < size; idx++ {
			depth := depths[idx]
			var q uint32
			switch {
			case haveFar && depth == depthFar:
				q = mask
			case depth <= midVal:
				q = uint32(float64(depth-minDepth) * (float64(lowerScale)*float64(mask) + 0.5) / float64(span))
				if q >= qm2 {
					q = qm2 - 1
				}
			default:
				if haveFar {
					q = uint32(float64(maxDepth-depth) * (float64(upperScale) * (float64(mask) - 1.5)) / float64(span))
					if q >= qm2-1 {
						q = qm2 - 2
					}
					q = mask - 1 - q
				} else {
					q = uint32(float64(maxDepth-depth) * (float64(upperScale)*float64(mask) + 0.5) / float64(span))
					if q >= qm2 {
						q = qm2 - 1
					}
					q = mask - q
				}
			}
			bits |= uint64(q) << (uint(idx) * cfg.bpp)
		}
	}

	upperScale--
	lowerScale--
	minDepth = minDepth&depthMask | lowerScale
	maxDepth = maxDepth&depthMask | upperScale

	if haveFar {
		return maxDepth, minDepth, bits
	}
	return minDepth, maxDepth, bits
}

func tilesAcross(w int) int { return (w + quantEdge - 1) / quantEdge }

// QuantizeDepth quantizes the region (x0,y0,w,h) of a strided float depth
// image into the interleaved tile layout.
func QuantizeDepth(dst []byte, src []float32, depthps, x0, y0, w, h, stride int) {
	cfg := quantConfigFor(depthps)
	tile := cfg.bytesBits + 2*cfg.bytesDepth
	tx := tilesAcross(w)
	for ty := 0; ty < h; ty += quantEdge {
		for txx := 0; txx < w; txx += quantEdge {
			d0, d1, bits := quantTile(&cfg, src, x0, y0, txx, ty, w, h, stride)
			out := dst[(ty/quantEdge*tx+txx/quantEdge)*tile:]
			setBits(out[:cfg.bytesBits], bits)
			setDepth(out[cfg.bytesBits:cfg.bytesBits+cfg.bytesDepth], d0)
			setDepth(out[cfg.bytesBits+cfg.bytesDepth:cfg.bytesBits+2*cfg.bytesDepth], d1)
		}
	}
}

// QuantizeDepthPlanar is QuantizeDepth with the planar layout: all endpoint
// records first, then all weight records.
func QuantizeDepthPlanar(dst []byte, src []float32, depthps, x0, y0, w, h, stride int) {
	cfg := quantConfigFor(depthps)
	tx := tilesAcross(w)
	ntiles := tx * tilesAcross(h)
	minmaxBytes := 2 * cfg.bytesDepth
	bitsBase := ntiles * minmaxBytes
	for ty := 0; ty < h; ty += quantEdge {
		for txx := 0; txx < w; txx += quantEdge {
			d0, d1, bits := quantTile(&cfg, src, x0, y0, txx, ty, w, h, stride)
			idx := ty/quantEdge*tx + txx/quantEdge
			mm := dst[idx*minmaxBytes:]
			setDepth(mm[:cfg.bytesDepth], d0)
			setDepth(mm[cfg.bytesDepth:minmaxBytes], d1)
			setBits(dst[bitsBase+idx*cfg.bytesBits:bitsBase+(idx+1)*cfg.bytesBits], bits)
		}
	}
}

// dequantTile writes one tile's reconstruction into the destination image.
func dequantTile(cfg *quantConfig, dst []float32, d0, d1 uint32, bits uint64, dx, dy, tx, ty, w, h, stride int) {
	valid := uint32(0x00ffff00)
	if cfg.precision == 24 {
		valid = depthFar &^ (1<<cfg.scaleBits - 1)
	}
	next := depthFar - valid + 1
	mask := uint32(1)<<cfg.bpp - 1
	size := quantEdge * quantEdge

	writeZ := func(i int, z uint32) {
		xx := tx + i%quantEdge
		yy := ty + i/quantEdge
		if xx >= w || yy >= h {
			return
		}
		dst[(yy+dy)*stride+dx+xx] = float32(z) / float32(depthFar)
	}

	if cfg.scaleBits == 0 {
		switch {
		case d0 < d1:
			d1 += next - 1
			span := float64(d1 - d0)
			for i := 0; i < size; i++ {
				q := uint32(bits) & mask
				bits >>= cfg.bpp
				zoff := uint32(float64(q) * span / float64(mask))
				writeZ(i, d0+zoff)
			}
		case d0 > d1:
			d0 += next - 1
			span := float64(d0 - d1)
			for i := 0; i < size; i++ {
				q := uint32(bits) & mask
				bits >>= cfg.bpp
				z := uint32(depthFar)
				if q != mask {
					z = d1 + uint32(float64(q)*span/float64(mask-1))
				}
				writeZ(i, z)
			}
		default:
			for i := 0; i < size; i++ {
				writeZ(i, d0)
			}
		}
		return
	}

	scaleMask := uint32(1)<<cfg.scaleBits - 1
	depthMask := ^scaleMask
	allFar := uint64(1)<<(uint(cfg.bytesBits)*8) - 1
	qm2 := uint32(1) << cfg.bpp / 2

	s0 := 1 + d0&scaleMask
	s1 := 1 + d1&scaleMask
	d0 &= depthMask
	d1 &= depthMask

	switch {
	case d0 < d1:
		d1 += next - 1
		d1 |= scaleMask
		lowerScale, upperScale := s0, s1
		span := float64(d1 - d0)
		for i := 0; i < size; i++ {
			q := uint32(bits) & mask
			bits >>= cfg.bpp
			var z uint32
			if q < qm2 {
				z = d0 + uint32(float64(q)*span/float64(lowerScale)/float64(mask))
			} else {
				qq := mask - q
				z = d1 - uint32(float64(qq)*span/float64(upperScale)/float64(mask))
			}
			writeZ(i, z)
		}
	case bits == allFar || bits == 0:
		z := d0
		if bits == allFar {
			z = depthFar
		}
		for i := 0; i < size; i++ {
			writeZ(i, z)
		}
	default:
		d0 += next - 1
		d0 |= scaleMask
		lowerScale, upperScale := s1, s0
		span := float64(d0 - d1)
		for i := 0; i < size; i++ {
			q := uint32(bits) & mask
			bits >>= cfg.bpp
			var z uint32
			switch {
			case q < qm2:
				z = d1 + uint32(float64(q)*span/float64(lowerScale)/float64(mask))
			case q < mask:
				qq := mask - 1 - q
				z = d0 - uint32(float64(qq)*span/float64(upperScale)/float64(mask-2))
			default:
				z = depthFar
			}
			writeZ(i, z)
		}
	}
}

func getTileDepths(cfg *quantConfig, d []byte) (d0, d1 uint32) {
	if cfg.bytesDepth == 2 {
		return getDepth16(d[:2]), getDepth16(d[2:4])
	}
	return getDepth24(d[:3]), getDepth24(d[3:6])
}

// DequantizeDepth reconstructs a quantized region into a strided float depth
// image at offset (dx,dy).
func DequantizeDepth(dst []float32, src []byte, depthps, dx, dy, w, h, stride int) {
	cfg := quantConfigFor(depthps)
	tile := cfg.bytesBits + 2*cfg.bytesDepth
	tx := tilesAcross(w)
	for ty := 0; ty < h; ty += quantEdge {
		for txx := 0; txx < w; txx += quantEdge {
			in := src[(ty/quantEdge*tx+txx/quantEdge)*tile:]
			bits := getBits(in[:cfg.bytesBits])
			d0, d1 := getTileDepths(&cfg, in[cfg.bytesBits:cfg.bytesBits+2*cfg.bytesDepth])
			dequantTile(&cfg, dst, d0, d1, bits, dx, dy, txx, ty, w, h, stride)
		}
	}
}

// DequantizeDepthPlanar is DequantizeDepth for the planar layout.
func DequantizeDepthPlanar(dst []float32, src []byte, depthps, dx, dy, w, h, stride int) {
	cfg := quantConfigFor(depthps)
	tx := tilesAcross(w)
	ntiles := tx * tilesAcross(h)
	minmaxBytes := 2 * cfg.bytesDepth
	bitsBase := ntiles * minmaxBytes
	for ty := 0; ty < h; ty += quantEdge {
		for txx := 0; txx < w; txx += quantEdge {
			idx := ty/quantEdge*tx + txx/quantEdge
			d0, d1 := getTileDepths(&cfg, src[idx*minmaxBytes:])
			bits := getBits(src[bitsBase+idx*cfg.bytesBits : bitsBase+(idx+1)*cfg.bytesBits])
			dequantTile(&cfg, dst, d0, d1, bits, dx, dy, txx, ty, w, h, stride)
		}
	}
}

// DepthCompare returns the round-trip PSNR (dB) between a reference and a
// reconstructed depth image; far-plane pixels count like any other.
func DepthCompare(ref, check []float32, w, h int) float64 {
	squared := 0.0
	for i := 0; i < w*h; i++ {
		e := float64(ref[i]) - float64(check[i])
		squared += e * e
	}
	if squared == 0 {
		return math.Inf(1)
	}
	mse := squared / float64(w*h)
	return -10 * math.Log10(mse)
}
