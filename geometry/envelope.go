package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// Envelope is an axis-aligned bounding box in geographic coordinates.
type Envelope struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewEnvelope builds an envelope from two x and two y values in any order.
// Each axis pair is ordered so that Min <= Max.
func NewEnvelope(x1, x2, y1, y2 float64) Envelope {
	return Envelope{
		MinX: math.Min(x1, x2),
		MaxX: math.Max(x1, x2),
		MinY: math.Min(y1, y2),
		MaxY: math.Max(y1, y2),
	}
}

// EnvelopeOf returns the bounding envelope of a geometry.
func EnvelopeOf(g orb.Geometry) Envelope {
	b := g.Bound()
	return Envelope{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}
}

// FullGlobe is the envelope covering every geographic coordinate.
var FullGlobe = Envelope{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}

// Width returns the longitude span.
func (e Envelope) Width() float64 { return e.MaxX - e.MinX }

// Height returns the latitude span.
func (e Envelope) Height() float64 { return e.MaxY - e.MinY }

// IsZero reports whether e is the degenerate (0,0,0,0) box.
func (e Envelope) IsZero() bool {
	return e == Envelope{}
}

// Bound converts the envelope into an orb.Bound.
func (e Envelope) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

// Polygon returns the envelope as a closed rectangular ring.
func (e Envelope) Polygon() orb.Polygon {
	return e.Bound().ToPolygon()
}

// NormalizeBoundingBox clamps latitudes to [-90, 90] and brings longitudes
// into [-180, 180]:
//
//   - minX == maxX yields the degenerate (0,0,0,0) box
//   - a span of 360 degrees or more yields the full globe
//   - minX < 0 with maxX > 180 clips maxX to 180
//   - both bounds above 180 shift by -360
//   - 0 < minX with maxX > 180 remaps to (maxX-180, maxX-360)
//
// The last rule can produce minX > maxX.
func NormalizeBoundingBox(env Envelope) Envelope {
	minY := math.Max(-90, env.MinY)
	maxY := math.Min(90, env.MaxY)

	// values outside [-180, 360] carry no usable meaning
	minX := math.Min(360, math.Max(-180, env.MinX))
	maxX := math.Min(360, env.MaxX)

	switch {
	case minX == maxX:
		return Envelope{}
	case maxX-minX >= 360:
		minX, maxX = -180, 180
	case minX < 0 && maxX > 180:
		maxX = 180
	case minX > 180 && maxX > 180:
		minX -= 360
		maxX -= 360
	case minX > 0 && maxX > 180:
		minX = maxX - 180
		maxX = minX - 180
	}

	return Envelope{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}
