package geometry

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestNormalizeBoundingBox checks the boundary table for antimeridian handling.
func TestNormalizeBoundingBox(t *testing.T) {
	tests := []struct {
		name   string
		in     Envelope
		expect Envelope
	}{
		{"west of -65", NewEnvelope(-180, -65, -90, 90), Envelope{-180, -90, -65, 90}},
		{"east up to antimeridian", NewEnvelope(144, 180, -90, 90), Envelope{144, -90, 180, 90}},
		{"crossing prime meridian", NewEnvelope(-65, 144, -90, 90), Envelope{-65, -90, 144, 90}},
		{"negative to past 180", NewEnvelope(-180, 199, -90, 90), Envelope{-180, -90, 180, 90}},
		{"small negative to past 180", NewEnvelope(-5, 299, -90, 90), Envelope{-5, -90, 180, 90}},
		{"full globe", NewEnvelope(-180, 180, -90, 90), Envelope{-180, -90, 180, 90}},
		{"reversed west", NewEnvelope(-65, -180, -90, 90), Envelope{-180, -90, -65, 90}},
		{"reversed crossing", NewEnvelope(199, -144, -90, 90), Envelope{-144, -90, 180, 90}},
		{"both beyond 360", NewEnvelope(5000, 365, -90, 90), Envelope{}},
		{"small box", NewEnvelope(-75, -65, -5, 5), Envelope{-75, -5, -65, 5}},
		{"both above 180", NewEnvelope(190, 200, 10, 20), Envelope{-170, 10, -160, 20}},
		{"wrapping past 180", NewEnvelope(170, 190, 10, 20), Envelope{10, 10, -170, 20}},
		{"latitude clamp", NewEnvelope(10, 20, -120, 95), Envelope{10, -90, 20, 90}},
		{"degenerate", NewEnvelope(12, 12, 1, 2), Envelope{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeBoundingBox(tt.in)
			if got != tt.expect {
				t.Errorf("NormalizeBoundingBox(%+v) = %+v, want %+v", tt.in, got, tt.expect)
			}
		})
	}
}

func TestNormalizeBoundingBoxProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("normalization is idempotent", prop.ForAll(
		func(x1, x2, y1, y2 float64) bool {
			once := NormalizeBoundingBox(NewEnvelope(x1, x2, y1, y2))
			return NormalizeBoundingBox(once) == once
		},
		gen.Float64Range(-720, 720),
		gen.Float64Range(-720, 720),
		gen.Float64Range(-180, 180),
		gen.Float64Range(-180, 180),
	))

	properties.Property("zero-width boxes collapse to the zero box", prop.ForAll(
		func(x, y1, y2 float64) bool {
			return NormalizeBoundingBox(NewEnvelope(x, x, y1, y2)).IsZero()
		},
		gen.Float64Range(-180, 1000),
		gen.Float64Range(-90, 90),
		gen.Float64Range(-90, 90),
	))

	properties.Property("spans of 360 degrees or more cover the globe", prop.ForAll(
		func(minX, width, y1, y2 float64) bool {
			env := NewEnvelope(minX, minX+width, y1, y2)
			got := NormalizeBoundingBox(env)
			return got.MinX == -180 && got.MaxX == 180 &&
				got.MinY == env.MinY && got.MaxY == env.MaxY
		},
		gen.Float64Range(-180, 0),
		gen.Float64Range(360, 720),
		gen.Float64Range(-90, 90),
		gen.Float64Range(-90, 90),
	))

	properties.TestingRun(t)
}

func TestSimplifyTolerance(t *testing.T) {
	scenario := NewEnvelope(-78.6785, -74.4158, 36.0049, 38.4493)

	tests := []struct {
		name   string
		env    Envelope
		mode   ToleranceMode
		expect float64
	}{
		{"ladder for a regional box", scenario, ToleranceLadder, 100},
		{"ladder caps at 1000", FullGlobe, ToleranceLadder, 1000},
		{"ladder floor for a tiny box", NewEnvelope(10, 10.00001, 10, 10.00001), ToleranceLadder, 1},
		{"degenerate box", Envelope{}, ToleranceLadder, 1},
		{"continuous caps at 1000", FullGlobe, ToleranceContinuous, 1000},
		{"continuous floor", Envelope{}, ToleranceContinuous, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SimplifyTolerance(tt.env, DefaultPixelSpan, tt.mode)
			if got != tt.expect {
				t.Errorf("SimplifyTolerance() = %v, want %v", got, tt.expect)
			}
		})
	}

	t.Run("continuous stays between ladder steps", func(t *testing.T) {
		got := SimplifyTolerance(scenario, DefaultPixelSpan, ToleranceContinuous)
		if got <= 100 || got >= 1000 {
			t.Errorf("SimplifyTolerance() = %v, want a value in (100, 1000)", got)
		}
	})

	t.Run("non-positive pixel span uses default", func(t *testing.T) {
		if a, b := SimplifyTolerance(scenario, 0, ToleranceLadder), SimplifyTolerance(scenario, DefaultPixelSpan, ToleranceLadder); a != b {
			t.Errorf("SimplifyTolerance(0) = %v, want %v", a, b)
		}
	})
}
