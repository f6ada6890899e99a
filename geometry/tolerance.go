package geometry

import "math"

// ToleranceMode selects how a continuous meters-per-pixel value is turned into
// a simplification tolerance.
type ToleranceMode int

const (
	// ToleranceLadder picks the largest power of ten not exceeding the
	// meters-per-pixel value: 1, 10, 100 or 1000.
	ToleranceLadder ToleranceMode = iota
	// ToleranceContinuous clamps meters-per-pixel to [1, 1000].
	ToleranceContinuous
)

const (
	// EarthCircumference is the equatorial circumference in meters.
	EarthCircumference = 40075000.0
	// DefaultPixelSpan is the output resolution assumed for a map request.
	DefaultPixelSpan = 1024

	MinTolerance = 1.0
	MaxTolerance = 1000.0
)

// LadderTolerances lists every tolerance the ladder mode can produce.
var LadderTolerances = []int{1, 10, 100, 1000}

// String returns the mode name used in configuration.
func (m ToleranceMode) String() string {
	if m == ToleranceContinuous {
		return "continuous"
	}
	return "ladder"
}

// ParseToleranceMode parses "ladder" or "continuous". Empty means ladder.
func ParseToleranceMode(s string) (ToleranceMode, bool) {
	switch s {
	case "", "ladder":
		return ToleranceLadder, true
	case "continuous":
		return ToleranceContinuous, true
	}
	return ToleranceLadder, false
}

// SimplifyTolerance derives a ground-distance tolerance in meters for an
// envelope rendered across pixelSpan pixels. A non-positive pixelSpan uses
// DefaultPixelSpan.
func SimplifyTolerance(env Envelope, pixelSpan int, mode ToleranceMode) float64 {
	if pixelSpan <= 0 {
		pixelSpan = DefaultPixelSpan
	}

	centerLat := (env.MinY + env.MaxY) / 2
	metersPerDegree := EarthCircumference * math.Cos(centerLat*math.Pi/180) / 360
	metersPerPixel := math.Abs(metersPerDegree * env.Width() / float64(pixelSpan))

	if math.IsNaN(metersPerPixel) || metersPerPixel < MinTolerance {
		return MinTolerance
	}

	if mode == ToleranceContinuous {
		return math.Min(MaxTolerance, metersPerPixel)
	}
	return math.Min(MaxTolerance, math.Pow(10, math.Floor(math.Log10(metersPerPixel))))
}
