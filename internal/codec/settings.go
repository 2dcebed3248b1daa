// Package codec implements the per-array compression stack: the lossless
// Raw and Predict transforms, the lossy Zfp, Sz3 and BigWhoop codecs, and
// the message-framing compression wrappers.
//
// Every lossy payload starts with a self-describing header so the reader
// needs no out-of-band parameters.
package codec

// Mode selects the per-array field compression. The mode byte is recorded
// in the archive next to the payload.
type Mode uint8

const (
	Uncompressed Mode = iota
	Predict
	Zfp
	Sz
	BigWhoop
)

func (m Mode) String() string {
	switch m {
	case Uncompressed:
		return "uncompressed"
	case Predict:
		return "predict"
	case Zfp:
		return "zfp"
	case Sz:
		return "sz"
	case BigWhoop:
		return "bigwhoop"
	}
	return "invalid"
}

// Lossless reports whether the mode is safe for exact arrays.
func (m Mode) Lossless() bool { return m == Uncompressed || m == Predict }

// ZfpMode selects how the Zfp codec budgets its error.
type ZfpMode uint8

const (
	ZfpFixedRate ZfpMode = iota // fixed bits per value
	ZfpPrecision                // fixed number of bit planes
	ZfpAccuracy                 // fixed absolute error
)

// SzError selects the Sz3 error-control strategy.
type SzError uint8

const (
	SzRel SzError = iota
	SzAbs
	SzAbsAndRel
	SzAbsOrRel
	SzPsnr
	SzL2
)

// Settings are the writer-side compression parameters, applied per field
// and per array, subject to each array's exact override.
type Settings struct {
	Mode Mode

	ZfpMode      ZfpMode
	ZfpRate      float64 // bits per value for ZfpFixedRate
	ZfpPrecision int     // bit planes for ZfpPrecision
	ZfpAccuracy  float64 // absolute error for ZfpAccuracy

	SzError     SzError
	SzAbsError  float64
	SzRelError  float64
	SzPsnrError float64
	SzL2Error   float64

	BigWhoopRate string // rate in bits per value, e.g. "32"
	BigWhoopNPar uint8  // interleaved parameter count
}

// DefaultSettings mirrors the writer defaults: no compression, moderate
// lossy parameters when a mode is switched on.
func DefaultSettings() Settings {
	return Settings{
		Mode:         Uncompressed,
		ZfpMode:      ZfpFixedRate,
		ZfpRate:      16,
		ZfpPrecision: 8,
		ZfpAccuracy:  1e-20,
		SzError:      SzRel,
		SzAbsError:   1e-3,
		SzRelError:   1e-4,
		SzPsnrError:  80,
		SzL2Error:    1e-1,
		BigWhoopRate: "32",
		BigWhoopNPar: 1,
	}
}
