package audio

import (
	"math"
	"testing"
)

// feed runs n samples of a mono-as-stereo sine through a stage and returns
// the peak output amplitude of the last quarter (steady state).
func feedSine(process func(l, r float64) (float64, float64), freq, amp float64, n int) float64 {
	peak := 0.0
	for i := 0; i < n; i++ {
		x := amp * math.Sin(2*math.Pi*freq*float64(i)/SampleRate)
		l, _ := process(x, x)
		if i > 3*n/4 {
			if a := math.Abs(l); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// --- Biquad ---

func TestBiquadLowpassAttenuatesHighs(t *testing.T) {
	lp := NewBiquad(Lowpass, 1000, 0, 0.7071)
	low := feedSine(lp.ProcessStereo, 100, 10000, 8000)
	lp2 := NewBiquad(Lowpass, 1000, 0, 0.7071)
	high := feedSine(lp2.ProcessStereo, 10000, 10000, 8000)
	if low < 9000 {
		t.Errorf("passband attenuated too much: %v", low)
	}
	if high > low/4 {
		t.Errorf("stopband not attenuated: high=%v low=%v", high, low)
	}
}

func TestBiquadPeakingZeroGainIsTransparent(t *testing.T) {
	eq := NewBiquad(Peaking, 1000, 0, 1)
	peak := feedSine(eq.ProcessStereo, 440, 10000, 8000)
	if peak < 9900 || peak > 10100 {
		t.Errorf("0dB peaking band should be transparent, got peak %v", peak)
	}
}

func TestBiquadLiveUpdateKeepsInstance(t *testing.T) {
	eq := NewBiquad(Peaking, 1000, 3, 1)
	eq.Update(2000, -6, 2)
	typ, freq, gain, q := eq.Params()
	if typ != Peaking || freq != 2000 || gain != -6 || q != 2 {
		t.Errorf("Update not applied: %v %v %v %v", typ, freq, gain, q)
	}
}

// --- Compressor ---

func TestCompressorReducesLoudSignal(t *testing.T) {
	c := NewCompressor(CompressorParams{ThresholdDB: -20, Ratio: 4, AttackMs: 1, ReleaseMs: 50})
	loud := feedSine(c.ProcessStereo, 440, 30000, 8000)
	if loud > 15000 {
		t.Errorf("compressor barely reduced loud signal: %v", loud)
	}
}

func TestCompressorParamClamping(t *testing.T) {
	c := NewCompressor(CompressorParams{ThresholdDB: -999, Ratio: 0.5, AttackMs: 0, ReleaseMs: 0, MakeupDB: 100})
	p := c.Params()
	if p.ThresholdDB != -60 || p.Ratio != 1 || p.AttackMs != 0.1 || p.ReleaseMs != 1 || p.MakeupDB != 24 {
		t.Errorf("params not clamped: %+v", p)
	}
}

func TestLimiterCapsNearFullScale(t *testing.T) {
	lim := NewLimiter()
	peak := feedSine(lim.ProcessStereo, 440, 32767, 8000)
	// -1dBFS threshold with 20:1 ratio: steady state stays near full scale
	// but does not exceed it.
	if peak > 32768 {
		t.Errorf("limiter exceeded full scale: %v", peak)
	}
	if peak < 25000 {
		t.Errorf("limiter crushed the signal: %v", peak)
	}
}

// --- StereoWidth ---

func TestStereoWidthMonoCollapse(t *testing.T) {
	w := NewStereoWidth(0)
	l, r := w.ProcessStereo(1000, -1000)
	if l != r {
		t.Errorf("width=0 should collapse to mono: %v != %v", l, r)
	}
	if l != 0 {
		t.Errorf("mid of (1000,-1000) is 0, got %v", l)
	}
}

func TestStereoWidthUnityIsTransparent(t *testing.T) {
	w := NewStereoWidth(1)
	l, r := w.ProcessStereo(1000, 400)
	if math.Abs(l-1000) > 1e-9 || math.Abs(r-400) > 1e-9 {
		t.Errorf("width=1 not transparent: %v %v", l, r)
	}
}

func TestStereoWidthExaggerates(t *testing.T) {
	w := NewStereoWidth(2)
	l, r := w.ProcessStereo(1000, 400)
	if l-r <= 600 {
		t.Errorf("width=2 should widen beyond original spread, got %v", l-r)
	}
}

func TestStereoWidthClampsRange(t *testing.T) {
	w := NewStereoWidth(5)
	if w.Width() != 2 {
		t.Errorf("width not clamped: %v", w.Width())
	}
	w.SetWidth(-1)
	if w.Width() != 0 {
		t.Errorf("width not clamped low: %v", w.Width())
	}
}

// --- Chain ---

func TestChainNilWhenNothingEnabled(t *testing.T) {
	if c := NewChain(ChainConfig{}); c != nil {
		t.Error("empty config should produce nil chain (graph bypass)")
	}
}

func TestChainAlwaysEndsInLimiter(t *testing.T) {
	width := 1.5
	c := NewChain(ChainConfig{Width: &width})
	if c == nil {
		t.Fatal("chain with width stage should not be nil")
	}
	if c.Limiter == nil {
		t.Error("enabled chain must carry the final limiter")
	}
}

func TestChainStageOrderAndHandles(t *testing.T) {
	width := 1.0
	c := NewChain(ChainConfig{
		EQBands: []EQBandConfig{
			{Type: Lowshelf, Freq: 120, Gain: 3, Q: 0.7071},
			{Type: Peaking, Freq: 2500, Gain: -2, Q: 1.2},
		},
		Multiband: &MultibandConfig{
			Low:  CompressorParams{ThresholdDB: -24, Ratio: 3, AttackMs: 10, ReleaseMs: 200},
			Mid:  CompressorParams{ThresholdDB: -20, Ratio: 2, AttackMs: 5, ReleaseMs: 150},
			High: CompressorParams{ThresholdDB: -18, Ratio: 4, AttackMs: 1, ReleaseMs: 100},
		},
		Width: &width,
	})
	if len(c.EQ) != 2 {
		t.Fatalf("want 2 EQ handles, got %d", len(c.EQ))
	}
	if c.Multiband == nil || c.Width == nil || c.Limiter == nil {
		t.Fatal("missing stage handles")
	}
	// EQ -> multiband -> width -> limiter
	if len(c.stages) != 5 {
		t.Errorf("want 5 stages, got %d", len(c.stages))
	}

	// Live band update flows into processing without a rebuild.
	before := c.EQ[0]
	c.EQ[0].Update(200, 6, 1)
	if c.EQ[0] != before {
		t.Error("band update must not replace the band instance")
	}
}

func TestChainProcessesFiniteOutput(t *testing.T) {
	width := 1.2
	c := NewChain(ChainConfig{
		EQBands: []EQBandConfig{{Type: Highshelf, Freq: 8000, Gain: 4, Q: 0.7071}},
		Width:   &width,
	})
	for i := 0; i < 4000; i++ {
		x := 20000 * math.Sin(2*math.Pi*440*float64(i)/SampleRate)
		l, r := c.ProcessStereo(x, x)
		if math.IsNaN(l) || math.IsInf(l, 0) || math.IsNaN(r) || math.IsInf(r, 0) {
			t.Fatalf("non-finite output at sample %d", i)
		}
	}
}
