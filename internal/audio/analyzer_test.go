package audio

import (
	"math"
	"testing"
)

// writeSine fills the analyzer with a full window of a stereo sine.
func writeSine(a *Analyzer, freq, amp float64) {
	frame := make([]int16, FrameSamples)
	n := 0
	for written := 0; written < AnalyzerFFTSize; written += FrameSize {
		for i := 0; i < FrameSize; i++ {
			v := Clip(amp * 32767 * math.Sin(2*math.Pi*freq*float64(n)/SampleRate))
			frame[i*2] = v
			frame[i*2+1] = v
			n++
		}
		a.WriteFrame(frame)
	}
}

func TestAnalyzerRMSOfSine(t *testing.T) {
	a := NewAnalyzer()
	writeSine(a, 440, 1.0)
	// RMS of a full-scale sine is 1/sqrt(2).
	got := a.RMS()
	want := 1 / math.Sqrt2
	if math.Abs(got-want) > 0.02 {
		t.Errorf("RMS = %v, want ~%v", got, want)
	}
}

func TestAnalyzerRMSSilence(t *testing.T) {
	a := NewAnalyzer()
	a.WriteFrame(SilentFrame())
	if got := a.RMS(); got != 0 {
		t.Errorf("RMS of silence = %v, want 0", got)
	}
}

func TestAnalyzerCentroidTracksTone(t *testing.T) {
	low := NewAnalyzer()
	writeSine(low, 200, 0.8)
	high := NewAnalyzer()
	writeSine(high, 8000, 0.8)

	cl := low.Centroid()
	ch := high.Centroid()
	if cl >= ch {
		t.Fatalf("centroid should track tone: low=%v high=%v", cl, ch)
	}
	// Spectral leakage pulls the estimate around, so allow a wide band.
	if cl > 2000 {
		t.Errorf("200Hz tone centroid too high: %v", cl)
	}
	if ch < 4000 {
		t.Errorf("8kHz tone centroid too low: %v", ch)
	}
}

func TestDetectTransientsHeuristic(t *testing.T) {
	quiet := NewAnalyzer()
	writeSine(quiet, 8000, 0.1)
	if quiet.DetectTransients() {
		t.Error("quiet signal flagged as transient")
	}

	dull := NewAnalyzer()
	writeSine(dull, 100, 0.9)
	if dull.DetectTransients() {
		t.Error("loud but dull signal flagged as transient")
	}

	bright := NewAnalyzer()
	writeSine(bright, 8000, 0.9)
	if !bright.DetectTransients() {
		t.Error("loud bright signal should flag as transient")
	}
}

func TestSimilaritySelfIsHigh(t *testing.T) {
	a := NewAnalyzer()
	writeSine(a, 1000, 0.8)
	b := NewAnalyzer()
	writeSine(b, 1000, 0.8)
	if s := a.Similarity(b); s < 0.9 {
		t.Errorf("identical tones similarity = %v, want >0.9", s)
	}
}

func TestSimilarityDisjointTonesIsLow(t *testing.T) {
	a := NewAnalyzer()
	writeSine(a, 200, 0.8)
	b := NewAnalyzer()
	writeSine(b, 12000, 0.8)
	if s := a.Similarity(b); s > 0.6 {
		t.Errorf("disjoint tones similarity = %v, want low", s)
	}
}

func TestSimilarityEmptyIsZero(t *testing.T) {
	a := NewAnalyzer()
	b := NewAnalyzer()
	if s := a.Similarity(b); s != 0 {
		t.Errorf("empty analyzers similarity = %v, want 0", s)
	}
}
