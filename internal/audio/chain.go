package audio

import (
	"math"
	"sync"
)

// BiquadType names the supported biquad filter responses.
type BiquadType string

const (
	Lowpass   BiquadType = "lowpass"
	Highpass  BiquadType = "highpass"
	Bandpass  BiquadType = "bandpass"
	Lowshelf  BiquadType = "lowshelf"
	Highshelf BiquadType = "highshelf"
	Peaking   BiquadType = "peaking"
	Notch     BiquadType = "notch"
)

// Biquad is a stereo RBJ cookbook biquad. Parameters can be updated live;
// coefficients are recomputed in place without resetting filter state, so a
// running chain never has to be rebuilt for an EQ tweak.
type Biquad struct {
	mu sync.Mutex

	typ  BiquadType
	freq float64 // Hz
	gain float64 // dB, shelf/peaking only
	q    float64

	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     [2]float64 // per-channel state
}

// NewBiquad creates a biquad band.
func NewBiquad(typ BiquadType, freq, gainDB, q float64) *Biquad {
	b := &Biquad{typ: typ, freq: freq, gain: gainDB, q: q}
	b.recompute()
	return b
}

// Update changes the band parameters live.
func (b *Biquad) Update(freq, gainDB, q float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freq = freq
	b.gain = gainDB
	b.q = q
	b.recompute()
}

// Params returns the current band parameters.
func (b *Biquad) Params() (typ BiquadType, freq, gainDB, q float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.typ, b.freq, b.gain, b.q
}

func (b *Biquad) recompute() {
	if b.q <= 0 {
		b.q = 0.7071
	}
	if b.freq < 10 {
		b.freq = 10
	}
	if b.freq > SampleRate/2 {
		b.freq = SampleRate / 2
	}
	w := 2 * math.Pi * b.freq / SampleRate
	sinW, cosW := math.Sin(w), math.Cos(w)
	alpha := sinW / (2 * b.q)
	a := math.Pow(10, b.gain/40)

	var b0, b1, b2, a0, a1, a2 float64
	switch b.typ {
	case Lowpass:
		b0 = (1 - cosW) / 2
		b1 = 1 - cosW
		b2 = (1 - cosW) / 2
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case Highpass:
		b0 = (1 + cosW) / 2
		b1 = -(1 + cosW)
		b2 = (1 + cosW) / 2
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case Bandpass:
		b0 = alpha
		b1 = 0
		b2 = -alpha
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case Notch:
		b0 = 1
		b1 = -2 * cosW
		b2 = 1
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case Lowshelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cosW + sq)
		b1 = 2 * a * ((a - 1) - (a+1)*cosW)
		b2 = a * ((a + 1) - (a-1)*cosW - sq)
		a0 = (a + 1) + (a-1)*cosW + sq
		a1 = -2 * ((a - 1) + (a+1)*cosW)
		a2 = (a + 1) + (a-1)*cosW - sq
	case Highshelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cosW + sq)
		b1 = -2 * a * ((a - 1) + (a+1)*cosW)
		b2 = a * ((a + 1) + (a-1)*cosW - sq)
		a0 = (a + 1) - (a-1)*cosW + sq
		a1 = 2 * ((a - 1) - (a+1)*cosW)
		a2 = (a + 1) - (a-1)*cosW - sq
	default: // Peaking
		b0 = 1 + alpha*a
		b1 = -2 * cosW
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cosW
		a2 = 1 - alpha/a
	}
	b.b0 = b0 / a0
	b.b1 = b1 / a0
	b.b2 = b2 / a0
	b.a1 = a1 / a0
	b.a2 = a2 / a0
}

// process filters one sample on channel ch (0=left, 1=right).
func (b *Biquad) process(ch int, x float64) float64 {
	y := b.b0*x + b.b1*b.x1[ch] + b.b2*b.x2[ch] - b.a1*b.y1[ch] - b.a2*b.y2[ch]
	b.x2[ch] = b.x1[ch]
	b.x1[ch] = x
	b.y2[ch] = b.y1[ch]
	b.y1[ch] = y
	return y
}

// ProcessStereo filters one stereo sample pair.
func (b *Biquad) ProcessStereo(l, r float64) (float64, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.process(0, l), b.process(1, r)
}

// CompressorParams configures one compressor stage.
type CompressorParams struct {
	ThresholdDB float64 `json:"thresholdDb"`
	Ratio       float64 `json:"ratio"`
	AttackMs    float64 `json:"attackMs"`
	ReleaseMs   float64 `json:"releaseMs"`
	MakeupDB    float64 `json:"makeupDb"`
}

func (p CompressorParams) clamped() CompressorParams {
	p.ThresholdDB = clampRange(p.ThresholdDB, -60, 0)
	p.Ratio = clampRange(p.Ratio, 1, 100)
	p.AttackMs = clampRange(p.AttackMs, 0.1, 1000)
	p.ReleaseMs = clampRange(p.ReleaseMs, 1, 5000)
	p.MakeupDB = clampRange(p.MakeupDB, 0, 24)
	return p
}

// Compressor is a feed-forward peak compressor with an envelope follower.
type Compressor struct {
	mu     sync.Mutex
	params CompressorParams

	attackCoef  float64
	releaseCoef float64
	env         float64 // linear envelope
}

// NewCompressor creates a compressor with clamped parameters.
func NewCompressor(p CompressorParams) *Compressor {
	c := &Compressor{}
	c.SetParams(p)
	return c
}

// SetParams updates compressor parameters live.
func (c *Compressor) SetParams(p CompressorParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = p.clamped()
	c.attackCoef = math.Exp(-1 / (c.params.AttackMs / 1000 * SampleRate))
	c.releaseCoef = math.Exp(-1 / (c.params.ReleaseMs / 1000 * SampleRate))
}

// Params returns the active (clamped) parameters.
func (c *Compressor) Params() CompressorParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// ProcessStereo compresses one stereo pair, keyed on the louder channel.
func (c *Compressor) ProcessStereo(l, r float64) (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	peak := math.Max(math.Abs(l), math.Abs(r)) / 32768
	if peak > c.env {
		c.env = c.attackCoef*c.env + (1-c.attackCoef)*peak
	} else {
		c.env = c.releaseCoef*c.env + (1-c.releaseCoef)*peak
	}

	gain := 1.0
	envDB := 20 * math.Log10(c.env+1e-10)
	if envDB > c.params.ThresholdDB {
		overDB := envDB - c.params.ThresholdDB
		reducedDB := overDB / c.params.Ratio
		gain = math.Pow(10, (reducedDB-overDB)/20)
	}
	gain *= math.Pow(10, c.params.MakeupDB/20)
	return l * gain, r * gain
}

// Reset clears the envelope follower.
func (c *Compressor) Reset() {
	c.mu.Lock()
	c.env = 0
	c.mu.Unlock()
}

// Multiband compressor crossover points.
const (
	CrossoverLowHz  = 200
	CrossoverHighHz = 2000
)

// MultibandCompressor splits into low (<200Hz), mid (bandpass) and high
// (>2000Hz) bands, compresses each independently, and sums them back.
type MultibandCompressor struct {
	lowSplit  *Biquad
	midSplit  *Biquad
	highSplit *Biquad

	Low  *Compressor
	Mid  *Compressor
	High *Compressor
}

// NewMultibandCompressor builds the fixed 3-band split with the given
// per-band parameters.
func NewMultibandCompressor(low, mid, high CompressorParams) *MultibandCompressor {
	midCenter := math.Sqrt(CrossoverLowHz * CrossoverHighHz)
	midQ := midCenter / (CrossoverHighHz - CrossoverLowHz)
	return &MultibandCompressor{
		lowSplit:  NewBiquad(Lowpass, CrossoverLowHz, 0, 0.7071),
		midSplit:  NewBiquad(Bandpass, midCenter, 0, midQ),
		highSplit: NewBiquad(Highpass, CrossoverHighHz, 0, 0.7071),
		Low:       NewCompressor(low),
		Mid:       NewCompressor(mid),
		High:      NewCompressor(high),
	}
}

// ProcessStereo splits, compresses per band, and sums.
func (m *MultibandCompressor) ProcessStereo(l, r float64) (float64, float64) {
	ll, lr := m.lowSplit.ProcessStereo(l, r)
	ml, mr := m.midSplit.ProcessStereo(l, r)
	hl, hr := m.highSplit.ProcessStereo(l, r)
	ll, lr = m.Low.ProcessStereo(ll, lr)
	ml, mr = m.Mid.ProcessStereo(ml, mr)
	hl, hr = m.High.ProcessStereo(hl, hr)
	return ll + ml + hl, lr + mr + hr
}

// StereoWidth adjusts stereo image via mid/side decomposition.
// 0 collapses to mono, 1 is unchanged, 2 exaggerates width.
type StereoWidth struct {
	mu    sync.Mutex
	width float64
}

// NewStereoWidth creates a width stage.
func NewStereoWidth(width float64) *StereoWidth {
	return &StereoWidth{width: clampRange(width, 0, 2)}
}

// SetWidth updates the side-channel gain.
func (s *StereoWidth) SetWidth(width float64) {
	s.mu.Lock()
	s.width = clampRange(width, 0, 2)
	s.mu.Unlock()
}

// Width returns the current side-channel gain.
func (s *StereoWidth) Width() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width
}

// ProcessStereo applies the width to one sample pair.
func (s *StereoWidth) ProcessStereo(l, r float64) (float64, float64) {
	s.mu.Lock()
	w := s.width
	s.mu.Unlock()
	mid := (l + r) / 2
	side := (l - r) / 2 * w
	return mid + side, mid - side
}

// NewLimiter returns the fixed final-stage brick-wall limiter: fast attack,
// fast release, high ratio, just under full scale.
func NewLimiter() *Compressor {
	return NewCompressor(CompressorParams{
		ThresholdDB: -1,
		Ratio:       20,
		AttackMs:    1,
		ReleaseMs:   50,
	})
}

// ChainConfig selects which stages a channel's chain runs.
type ChainConfig struct {
	EQBands   []EQBandConfig   `json:"eqBands,omitempty"`
	Multiband *MultibandConfig `json:"multiband,omitempty"`
	Width     *float64         `json:"width,omitempty"` // nil disables the stage
}

// EQBandConfig declares one parametric EQ band.
type EQBandConfig struct {
	Type BiquadType `json:"type"`
	Freq float64    `json:"freq"`
	Gain float64    `json:"gain"`
	Q    float64    `json:"q"`
}

// MultibandConfig declares per-band compressor parameters.
type MultibandConfig struct {
	Low  CompressorParams `json:"low"`
	Mid  CompressorParams `json:"mid"`
	High CompressorParams `json:"high"`
}

// Chain is a per-channel processing pipeline in fixed order:
// EQ -> multiband compression -> stereo width -> limiter. Disabled stages
// are absent from the stage list entirely, not zero-gain pass-throughs.
type Chain struct {
	EQ        []*Biquad
	Multiband *MultibandCompressor
	Width     *StereoWidth
	Limiter   *Compressor

	stages []interface {
		ProcessStereo(l, r float64) (float64, float64)
	}
}

// NewChain builds a chain from config. Returns nil when no stage is
// enabled so callers can skip processing altogether. When any stage is
// enabled the limiter is always appended last to stop upstream boosts
// from clipping.
func NewChain(cfg ChainConfig) *Chain {
	c := &Chain{}
	for _, band := range cfg.EQBands {
		b := NewBiquad(band.Type, band.Freq, band.Gain, band.Q)
		c.EQ = append(c.EQ, b)
		c.stages = append(c.stages, b)
	}
	if cfg.Multiband != nil {
		c.Multiband = NewMultibandCompressor(cfg.Multiband.Low, cfg.Multiband.Mid, cfg.Multiband.High)
		c.stages = append(c.stages, c.Multiband)
	}
	if cfg.Width != nil {
		c.Width = NewStereoWidth(*cfg.Width)
		c.stages = append(c.stages, c.Width)
	}
	if len(c.stages) == 0 {
		return nil
	}
	c.Limiter = NewLimiter()
	c.stages = append(c.stages, c.Limiter)
	return c
}

// ProcessStereo runs one sample pair through every enabled stage.
func (c *Chain) ProcessStereo(l, r float64) (float64, float64) {
	for _, s := range c.stages {
		l, r = s.ProcessStereo(l, r)
	}
	return l, r
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
