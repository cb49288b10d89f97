package audio

import (
	"fmt"
	"math"
)

// CurveKind selects the shape of a fade automation curve.
type CurveKind string

const (
	CurveLinear      CurveKind = "linear"
	CurveLogarithmic CurveKind = "logarithmic"
	CurveExponential CurveKind = "exponential"
	CurveSine        CurveKind = "sine" // equal-power, the recommended default
	CurveCustom      CurveKind = "custom"

	// Extended kinds, only valid when pro mode is active.
	CurvePower2         CurveKind = "power2"
	CurvePower3         CurveKind = "power3"
	CurvePower4         CurveKind = "power4"
	CurveSmoothstep     CurveKind = "smoothstep"
	CurveBezier         CurveKind = "bezier"
	CurvePsychoacoustic CurveKind = "psychoacoustic"
)

// Direction says which way a curve ramps.
type Direction int

const (
	RampUp   Direction = iota // 0 -> 1
	RampDown                  // 1 -> 0
)

// MinCurveSteps is the floor on curve resolution. Shorter curves produce
// audible stepping when written onto a gain parameter.
const MinCurveSteps = 128

var basicKinds = map[CurveKind]bool{
	CurveLinear:      true,
	CurveLogarithmic: true,
	CurveExponential: true,
	CurveSine:        true,
	CurveCustom:      true,
}

// IsBasicKind reports whether kind is available without pro mode.
func IsBasicKind(kind CurveKind) bool {
	return basicKinds[kind]
}

// IsValidKind reports whether kind is a known curve, basic or extended.
func IsValidKind(kind CurveKind) bool {
	switch kind {
	case CurveLinear, CurveLogarithmic, CurveExponential, CurveSine, CurveCustom,
		CurvePower2, CurvePower3, CurvePower4, CurveSmoothstep, CurveBezier,
		CurvePsychoacoustic:
		return true
	}
	return false
}

// Smoothstep returns the smoothstep interpolation 3t^2 - 2t^3 for t in [0,1].
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// BuildCurve samples the named fade curve into steps values in [0,1],
// monotonic in the requested direction. Unknown kinds fall back to linear.
// steps below MinCurveSteps is raised to MinCurveSteps.
func BuildCurve(kind CurveKind, steps int, dir Direction) []float32 {
	return buildShaped(steps, dir, shapeFor(kind))
}

// BuildPowerCurve samples x^exp with a tunable exponent.
func BuildPowerCurve(exp float64, steps int, dir Direction) []float32 {
	if exp <= 0 {
		exp = 1
	}
	return buildShaped(steps, dir, func(x float64) float64 {
		return math.Pow(x, exp)
	})
}

// BuildBezierCurve samples a cubic bezier through (0,0) and (1,1) with the
// given control points. Control values are clamped to [0,1] so the result
// stays a fade, and the sampled curve is forced monotonic.
func BuildBezierCurve(c1, c2 [2]float64, steps int, dir Direction) []float32 {
	c1y := clamp01(c1[1])
	c2y := clamp01(c2[1])
	return buildShaped(steps, dir, func(t float64) float64 {
		// Bezier in y only; x is treated as the parameter, which is the
		// standard cheap approximation for gain shaping.
		u := 1 - t
		return 3*u*u*t*c1y + 3*u*t*t*c2y + t*t*t
	})
}

// BuildPsychoacousticCurve shapes a power curve by spectral similarity
// between the outgoing and incoming material. Similar tracks (similarity
// near 1) get a near-linear blend; dissimilar tracks get a steeper late
// rise so the overlap masks less.
func BuildPsychoacousticCurve(similarity float64, steps int, dir Direction) []float32 {
	s := clamp01(similarity)
	exp := 1 + (1-s)*1.5
	return BuildPowerCurve(exp, steps, dir)
}

func shapeFor(kind CurveKind) func(float64) float64 {
	switch kind {
	case CurveLogarithmic:
		return func(x float64) float64 { return math.Log10(1+9*x) / math.Log10(10) }
	case CurveExponential, CurvePower3:
		return func(x float64) float64 { return x * x * x }
	case CurveSine:
		return func(x float64) float64 { return math.Sin(x * math.Pi / 2) }
	case CurveCustom, CurveSmoothstep:
		return Smoothstep
	case CurvePower2:
		return func(x float64) float64 { return x * x }
	case CurvePower4:
		return func(x float64) float64 { return x * x * x * x }
	default:
		return func(x float64) float64 { return x }
	}
}

// buildShaped samples shape over [0,1], clamps, enforces monotonicity, and
// flips for down ramps. The equal-power pair holds because
// cos(pi*x/2) == sin(pi*(1-x)/2).
func buildShaped(steps int, dir Direction, shape func(float64) float64) []float32 {
	if steps < MinCurveSteps {
		steps = MinCurveSteps
	}
	curve := make([]float32, steps)
	prev := 0.0
	for i := 0; i < steps; i++ {
		x := float64(i) / float64(steps-1)
		v := clamp01(shape(x))
		if v < prev {
			v = prev
		}
		prev = v
		curve[i] = float32(v)
	}
	if dir == RampDown {
		for i, j := 0, steps-1; i < j; i, j = i+1, j-1 {
			curve[i], curve[j] = curve[j], curve[i]
		}
	}
	return curve
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ValidateKind returns an error naming the kind when it is unknown, or when
// an extended kind is requested without pro mode.
func ValidateKind(kind CurveKind, proMode bool) error {
	if !IsValidKind(kind) {
		return fmt.Errorf("unknown curve kind %q", kind)
	}
	if !proMode && !IsBasicKind(kind) {
		return fmt.Errorf("curve kind %q requires pro mode", kind)
	}
	return nil
}
