package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// The BigWhoop codec is a rate-controlled wavelet coder for floating-point
// fields: each parameter (interleaved channel) is run through a multi-level
// Haar lifting transform and the coefficients are uniformly quantized at
// the configured rate. Integer arrays are rejected.

// haarForward transforms a in place: approximations are moved to the front,
// details behind them, recursively on the shrinking approximation band.
// Odd-length bands carry their last sample to the coarser level unchanged.
func haarForward(a []float64) {
	tmp := make([]float64, len(a))
	for n := len(a); n >= 2; {
		half := (n + 1) / 2
		for i := 0; i < n/2; i++ {
			tmp[i] = (a[2*i] + a[2*i+1]) / 2
			tmp[half+i] = (a[2*i] - a[2*i+1]) / 2
		}
		if n%2 == 1 {
			tmp[half-1] = a[n-1]
		}
		copy(a[:n], tmp[:n])
		n = half
	}
}

// haarInverse reverses haarForward.
func haarInverse(a []float64) {
	if len(a) < 2 {
		return
	}
	// Reconstruct band sizes from the outside in.
	var bands []int
	for n := len(a); n >= 2; n = (n + 1) / 2 {
		bands = append(bands, n)
	}
	tmp := make([]float64, len(a))
	for level := len(bands) - 1; level >= 0; level-- {
		n := bands[level]
		half := (n + 1) / 2
		for i := 0; i < n/2; i++ {
			approx, detail := a[i], a[half+i]
			tmp[2*i] = approx + detail
			tmp[2*i+1] = approx - detail
		}
		if n%2 == 1 {
			tmp[n-1] = a[half-1]
		}
		copy(a[:n], tmp[:n])
	}
}

func bigWhoopRate(s *Settings) (uint, error) {
	rate, err := strconv.ParseFloat(s.BigWhoopRate, 64)
	if err != nil {
		return 0, fmt.Errorf("bigwhoop: bad rate %q: %w", s.BigWhoopRate, err)
	}
	bits := int(math.Round(rate))
	if bits < 1 || bits > 64 {
		return 0, fmt.Errorf("bigwhoop: rate %q out of range", s.BigWhoopRate)
	}
	return uint(bits), nil
}

// bigWhoopEncode compresses a floating-point array.
func bigWhoopEncode[T numeric](data []T, s *Settings) ([]byte, error) {
	if !isFloat[T]() {
		return nil, fmt.Errorf("bigwhoop: only floating-point arrays are supported")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("bigwhoop: empty array")
	}
	nbits, err := bigWhoopRate(s)
	if err != nil {
		return nil, err
	}
	npar := int(s.BigWhoopNPar)
	if npar < 1 || len(data)%npar != 0 {
		npar = 1
	}

	out := make([]byte, 0, 4+8+1+len(data)*int(nbits)/8)
	out = binary.LittleEndian.AppendUint32(out, bigWhoopMagic)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(data)))
	out = append(out, byte(npar))

	n := len(data) / npar
	plane := make([]float64, n)
	for p := 0; p < npar; p++ {
		for i := 0; i < n; i++ {
			plane[i] = float64(data[i*npar+p])
		}
		haarForward(plane)
		lo, hi := plane[0], plane[0]
		for _, v := range plane[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		step := 0.0
		if hi > lo {
			step = (hi - lo) / float64(uint64(1)<<nbits-1)
		}
		out = quantPack(out, plane, nbits, lo, step)
	}
	return out, nil
}

// bigWhoopDecode reverses bigWhoopEncode into dst.
func bigWhoopDecode[T numeric](dst []T, payload []byte) error {
	if len(payload) < 4+8+1 {
		return fmt.Errorf("bigwhoop: payload truncated")
	}
	if binary.LittleEndian.Uint32(payload) != bigWhoopMagic {
		return fmt.Errorf("bigwhoop: bad magic")
	}
	count := binary.LittleEndian.Uint64(payload[4:])
	if int(count) != len(dst) {
		return fmt.Errorf("bigwhoop: payload carries %d elements, want %d", count, len(dst))
	}
	npar := int(payload[12])
	if npar < 1 || len(dst)%npar != 0 {
		return fmt.Errorf("bigwhoop: invalid parameter count %d", npar)
	}
	stream := payload[13:]

	n := len(dst) / npar
	for p := 0; p < npar; p++ {
		plane, used, err := quantUnpack(stream, n)
		if err != nil {
			return fmt.Errorf("bigwhoop: %w", err)
		}
		stream = stream[used:]
		haarInverse(plane)
		for i := 0; i < n; i++ {
			dst[i*npar+p] = T(plane[i])
		}
	}
	return nil
}
