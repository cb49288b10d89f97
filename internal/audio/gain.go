package audio

import (
	"sync"
	"time"
)

// GainParam is a gain value with scheduled sample-curve automation,
// evaluated against the audio clock. It mirrors the semantics the engine
// needs from a Web-Audio-style AudioParam: write a sampled ramp, pin the
// final value after it ends, and clear pending automation before writing
// a new ramp so rapid track changes never stack conflicting fades.
type GainParam struct {
	mu sync.Mutex

	value float64 // held value when no curve is active

	curve      []float32
	curveStart time.Time
	curveDur   time.Duration

	pinValue float64 // value applied at pinAt
	pinAt    time.Time
	pinSet   bool
}

// NewGainParam creates a gain parameter holding an initial value.
func NewGainParam(initial float64) *GainParam {
	return &GainParam{value: initial}
}

// ValueAt evaluates the parameter at time t, interpolating linearly between
// curve samples. After a curve ends its final sample is held.
func (g *GainParam) ValueAt(t time.Time) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.valueAtLocked(t)
}

func (g *GainParam) valueAtLocked(t time.Time) float64 {
	if g.pinSet && !t.Before(g.pinAt) {
		g.value = g.pinValue
		g.pinSet = false
		g.curve = nil
	}
	if len(g.curve) == 0 {
		return g.value
	}
	if t.Before(g.curveStart) {
		return g.value
	}
	elapsed := t.Sub(g.curveStart)
	if elapsed >= g.curveDur {
		g.value = float64(g.curve[len(g.curve)-1])
		g.curve = nil
		return g.value
	}
	pos := float64(elapsed) / float64(g.curveDur) * float64(len(g.curve)-1)
	i := int(pos)
	if i >= len(g.curve)-1 {
		return float64(g.curve[len(g.curve)-1])
	}
	frac := pos - float64(i)
	return float64(g.curve[i])*(1-frac) + float64(g.curve[i+1])*frac
}

// SetValueCurve clears any pending automation and schedules curve to play
// from start over dur. The write is atomic: clear-then-write.
func (g *GainParam) SetValueCurve(curve []float32, start time.Time, dur time.Duration) {
	if len(curve) == 0 || dur <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pinSet = false
	c := make([]float32, len(curve))
	copy(c, curve)
	g.curve = c
	g.curveStart = start
	g.curveDur = dur
}

// SetValueAt clears pending automation and pins the parameter to v at time
// at. Used for instant switches and for pinning exact final values after a
// fade so floating-point drift cannot accumulate.
func (g *GainParam) SetValueAt(v float64, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.curve = nil
	g.pinValue = v
	g.pinAt = at
	g.pinSet = true
}

// CancelAndHold drops all pending automation and holds the value the
// parameter had at time t.
func (g *GainParam) CancelAndHold(t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	held := g.valueAtLocked(t)
	g.value = held
	g.curve = nil
	g.pinSet = false
}

// Set immediately assigns the value, dropping any automation.
func (g *GainParam) Set(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
	g.curve = nil
	g.pinSet = false
}

// Automating reports whether a curve is still scheduled or running at t.
func (g *GainParam) Automating(t time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pinSet && t.Before(g.pinAt) {
		return true
	}
	return len(g.curve) > 0 && t.Sub(g.curveStart) < g.curveDur
}
