package audio

import (
	"math"
	"math/cmplx"
	"sync"
)

const (
	// AnalyzerFFTSize is the analysis window in mono samples.
	AnalyzerFFTSize = 2048
	// AnalyzerSmoothing blends each new magnitude frame with the previous
	// one, matching the smoothing constant of the source visualization node.
	AnalyzerSmoothing = 0.8
)

// Analyzer keeps a rolling window of the most recent samples written to a
// channel and answers frequency- and time-domain queries over it. Queries
// are best-effort advisory signals; they never gate playback.
type Analyzer struct {
	mu     sync.Mutex
	ring   [AnalyzerFFTSize]float64 // mono, normalized [-1,1]
	pos    int
	filled bool

	window []float64
	mags   []float64 // smoothed magnitudes, len AnalyzerFFTSize/2
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{window: hannWindow(AnalyzerFFTSize)}
}

// WriteFrame feeds one interleaved stereo frame, downmixed to mono.
func (a *Analyzer) WriteFrame(frame []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+1 < len(frame); i += 2 {
		mono := (float64(frame[i]) + float64(frame[i+1])) / 2 / 32768
		a.ring[a.pos] = mono
		a.pos++
		if a.pos == AnalyzerFFTSize {
			a.pos = 0
			a.filled = true
		}
	}
}

// snapshot copies the ring in chronological order.
func (a *Analyzer) snapshot() []float64 {
	buf := make([]float64, AnalyzerFFTSize)
	n := copy(buf, a.ring[a.pos:])
	copy(buf[n:], a.ring[:a.pos])
	return buf
}

// RMS returns the time-domain RMS of the current buffer, 0..1.
func (a *Analyzer) RMS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	sum := 0.0
	for _, v := range a.ring {
		sum += v * v
	}
	return math.Sqrt(sum / AnalyzerFFTSize)
}

// Magnitudes returns the smoothed magnitude spectrum. The slice is owned by
// the caller.
func (a *Analyzer) Magnitudes() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updateMagsLocked()
	out := make([]float64, len(a.mags))
	copy(out, a.mags)
	return out
}

func (a *Analyzer) updateMagsLocked() {
	buf := a.snapshot()
	frame := make([]complex128, AnalyzerFFTSize)
	for i, v := range buf {
		frame[i] = complex(v*a.window[i], 0)
	}
	spec := fft(frame)
	if a.mags == nil {
		a.mags = make([]float64, AnalyzerFFTSize/2)
	}
	for i := 0; i < AnalyzerFFTSize/2; i++ {
		m := cmplx.Abs(spec[i])
		a.mags[i] = AnalyzerSmoothing*a.mags[i] + (1-AnalyzerSmoothing)*m
	}
}

// Centroid returns the energy-weighted average frequency in Hz.
func (a *Analyzer) Centroid() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updateMagsLocked()
	var num, den float64
	binHz := float64(SampleRate) / AnalyzerFFTSize
	for i, m := range a.mags {
		num += float64(i) * binHz * m
		den += m
	}
	if den < 1e-12 {
		return 0
	}
	return num / den
}

// DetectTransients reports whether the buffer looks like a transient-heavy
// moment: loud (RMS > 0.3) and bright (centroid > 2000 Hz). Heuristic only,
// meant to advise fade timing, never to hard-gate it.
func (a *Analyzer) DetectTransients() bool {
	return a.RMS() > 0.3 && a.Centroid() > 2000
}

// Similarity estimates tonal similarity to another analyzer's current
// material as the cosine similarity of the two magnitude spectra, 0..1.
func (a *Analyzer) Similarity(other *Analyzer) float64 {
	am := a.Magnitudes()
	bm := other.Magnitudes()
	var dot, na, nb float64
	for i := range am {
		dot += am[i] * bm[i]
		na += am[i] * am[i]
		nb += bm[i] * bm[i]
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den < 1e-12 {
		return 0
	}
	s := dot / den
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
