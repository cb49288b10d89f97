package player

import (
	"context"
	"sync"
	"time"

	"github.com/seguefm/segue/internal/audio"
	"github.com/seguefm/segue/internal/logger"
	"github.com/seguefm/segue/internal/loudness"
	"github.com/seguefm/segue/internal/track"
)

// reportAfter is how long a track must actually play before its play is
// reported.
const reportAfter = 200 * time.Millisecond

// curveStepsPerSecond sets fade curve resolution; long fades get
// proportionally more samples, short fades keep the MinCurveSteps floor.
const curveStepsPerSecond = 120

// Reporter records track plays.
type Reporter interface {
	ReportPlay(trackID string)
}

// MeasureFunc returns the loudness profile for a source URL.
type MeasureFunc func(ctx context.Context, url string) loudness.Measurement

// CrossfadeSettings are the live crossfade parameters.
type CrossfadeSettings struct {
	Enabled bool
	Seconds float64
	Curve   audio.CurveKind
}

// Options configures an Engine.
type Options struct {
	Decode           audio.DecodeFunc
	Reporter         Reporter    // nil disables play reporting
	Measure          MeasureFunc // nil disables loudness matching
	Crossfade        CrossfadeSettings
	ProMode          bool
	LoudnessMatching bool
	TargetLUFS       float64
	Chain            audio.ChainConfig // per-channel processing, may be zero
	Now              func() time.Time  // nil means time.Now
}

// strip is one of the two playback channels: an element, its gain
// automation, and an optional processing chain.
type strip struct {
	elem     *Element
	gain     *audio.GainParam
	chain    *audio.Chain
	analyzer *audio.Analyzer
}

// Engine mixes two playback channels into a real-time 20ms frame stream,
// crossfading between them on track changes. All mutation happens on the
// engine lock; the frame loop and the control surface share it.
type Engine struct {
	decode   audio.DecodeFunc
	reporter Reporter
	measure  MeasureFunc
	now      func() time.Time

	queue     *Queue
	preloader *Preloader
	analyzer  *audio.Analyzer // post-mix, feeds the spectral API

	frames chan []int16

	mu      sync.Mutex
	baseCtx context.Context

	strips [2]*strip
	active int

	crossfade        CrossfadeSettings
	proMode          bool
	loudnessMatching bool
	targetLUFS       float64
	chainCfg         audio.ChainConfig

	volume float64
	muted  bool

	isPlaying bool
	current   track.Track
	playStart time.Time
	reported  bool

	fading     bool
	fadingFrom int
	fadeDone   time.Time

	comps map[string]float64 // url -> loudness compensation multiplier
}

// NewEngine creates an engine. Decode is required; everything else has a
// usable zero state.
func NewEngine(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Crossfade.Curve == "" {
		opts.Crossfade.Curve = audio.CurveSine
	}
	e := &Engine{
		decode:           opts.Decode,
		reporter:         opts.Reporter,
		measure:          opts.Measure,
		now:              opts.Now,
		queue:            NewQueue(),
		preloader:        NewPreloader(opts.Decode),
		analyzer:         audio.NewAnalyzer(),
		frames:           make(chan []int16, 100),
		baseCtx:          context.Background(),
		crossfade:        opts.Crossfade,
		proMode:          opts.ProMode,
		loudnessMatching: opts.LoudnessMatching,
		targetLUFS:       opts.TargetLUFS,
		chainCfg:         opts.Chain,
		volume:           1,
		comps:            make(map[string]float64),
	}
	for i := range e.strips {
		s := &strip{
			elem:     NewElement(opts.Decode),
			gain:     audio.NewGainParam(0),
			chain:    audio.NewChain(opts.Chain),
			analyzer: audio.NewAnalyzer(),
		}
		s.elem.SetCallbacks(e.onLoaded, e.onError)
		e.strips[i] = s
	}
	return e
}

// Frames returns the mixed output stream, one 20ms frame per tick.
func (e *Engine) Frames() <-chan []int16 {
	return e.frames
}

// Queue exposes the playback queue.
func (e *Engine) Queue() *Queue {
	return e.queue
}

// Analyzer exposes the post-mix spectral analyzer.
func (e *Engine) Analyzer() *audio.Analyzer {
	return e.analyzer
}

// Run drives the frame loop at real-time rate until ctx is cancelled.
// Frames are dropped rather than blocking when the consumer lags.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()

	defer close(e.frames)
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := e.step(e.now())
			select {
			case e.frames <- frame:
			default:
			}
		}
	}
}

// step produces one mixed frame for the tick at now. It also runs all
// time-driven transitions: fade completion, crossfade triggering, track
// end handling, and play reporting.
func (e *Engine) step(now time.Time) []int16 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fading && !now.Before(e.fadeDone) {
		e.finishFadeLocked()
	}
	e.maybeTriggerCrossfadeLocked(now)

	mixed := make([]float64, audio.FrameSamples)
	activeEnded := false

	for i, s := range e.strips {
		if i != e.active && !(e.fading && i == e.fadingFrom) {
			continue
		}
		frame, ended := s.elem.ReadFrame()
		if i == e.active && ended {
			activeEnded = true
		}
		if !s.elem.Ready() && !ended {
			continue
		}
		s.analyzer.WriteFrame(frame)

		for j := 0; j < audio.FrameSize; j++ {
			l := float64(frame[j*2])
			r := float64(frame[j*2+1])
			if s.chain != nil {
				l, r = s.chain.ProcessStereo(l, r)
			}
			t := now.Add(time.Duration(j) * audio.FrameDuration / audio.FrameSize)
			g := s.gain.ValueAt(t)
			mixed[j*2] += l * g
			mixed[j*2+1] += r * g
		}
	}

	if activeEnded && !e.fading {
		e.handleEndedLocked(now)
	}
	e.maybeReportLocked(now)

	master := e.volume
	if e.muted {
		master = 0
	}
	out := make([]int16, audio.FrameSamples)
	for i, v := range mixed {
		out[i] = audio.Clip(v * master)
	}
	e.analyzer.WriteFrame(out)
	return out
}

// maybeTriggerCrossfadeLocked starts a crossfade when the active track is
// inside its final fade window and a next track exists. Repeat one is
// excluded: a natural end replays the same track instead.
func (e *Engine) maybeTriggerCrossfadeLocked(now time.Time) {
	if e.fading || !e.isPlaying || !e.crossfade.Enabled || e.crossfade.Seconds <= 0 {
		return
	}
	if e.queue.Repeat() == RepeatOne {
		return
	}
	s := e.strips[e.active]
	if !s.elem.Ready() || !s.elem.Playing() {
		return
	}
	rem := s.elem.Remaining()
	if rem <= 0 || rem > e.crossfade.Seconds {
		return
	}
	// A single-track queue has no distinct next track: advancing would
	// land on the current index, fading the track into itself. Let it
	// run to natural end instead.
	if e.queue.Len() < 2 {
		return
	}
	next, ok := e.queue.Advance()
	if !ok {
		return
	}
	e.startFadeLocked(next, now)
}

// startFadeLocked begins a crossfade into next on the idle strip.
func (e *Engine) startFadeLocked(next track.Track, now time.Time) {
	in := 1 - e.active
	out := e.active
	e.loadStripLocked(in, next)
	if e.isPlaying {
		e.strips[in].elem.Play()
	}

	dur := time.Duration(e.crossfade.Seconds * float64(time.Second))
	steps := int(e.crossfade.Seconds * curveStepsPerSecond)
	if steps < 256 {
		steps = 256
	}

	upShape, downShape := e.fadeCurvesLocked(steps)
	inTarget := e.compForLocked(next.FileURL)
	outFrom := e.strips[out].gain.ValueAt(now)

	e.strips[in].gain.SetValueCurve(scaleCurve(upShape, inTarget), now, dur)
	e.strips[out].gain.SetValueCurve(scaleCurve(downShape, outFrom), now, dur)

	e.active = in
	e.fading = true
	e.fadingFrom = out
	e.fadeDone = now.Add(dur)
	e.current = next
	e.playStart = now
	e.reported = false

	logger.Info("crossfade started",
		logger.String("track", next.ID),
		logger.String("curve", string(e.crossfade.Curve)),
		logger.Float64("seconds", e.crossfade.Seconds))

	e.preloadNextLocked()
}

// fadeCurvesLocked builds the up and down fade shapes for the current
// curve setting. The psychoacoustic curve adapts to spectral similarity
// between the two channels.
func (e *Engine) fadeCurvesLocked(steps int) (up, down []float32) {
	kind := e.crossfade.Curve
	if err := audio.ValidateKind(kind, e.proMode); err != nil {
		kind = audio.CurveSine
	}
	if kind == audio.CurvePsychoacoustic {
		sim := e.strips[0].analyzer.Similarity(e.strips[1].analyzer)
		return audio.BuildPsychoacousticCurve(sim, steps, audio.RampUp),
			audio.BuildPsychoacousticCurve(sim, steps, audio.RampDown)
	}
	return audio.BuildCurve(kind, steps, audio.RampUp),
		audio.BuildCurve(kind, steps, audio.RampDown)
}

// finishFadeLocked retires the outgoing strip once the fade completed.
func (e *Engine) finishFadeLocked() {
	old := e.strips[e.fadingFrom]
	old.elem.Reset()
	old.gain.Set(0)
	e.fading = false
}

// handleEndedLocked runs when the active track reached its end without a
// crossfade. Repeat one replays the same load; otherwise the queue
// advances with an instant switch, and an exhausted queue stops playback.
func (e *Engine) handleEndedLocked(now time.Time) {
	if e.queue.Repeat() == RepeatOne {
		s := e.strips[e.active]
		s.elem.Seek(0)
		s.elem.Play()
		return
	}
	next, ok := e.queue.Advance()
	if !ok {
		e.isPlaying = false
		logger.Info("queue finished", logger.String("track", e.current.ID))
		return
	}
	e.switchInstantLocked(next, now)
}

// switchInstantLocked replaces the active track with next inside a single
// frame: no fade, the idle strip takes over immediately.
func (e *Engine) switchInstantLocked(next track.Track, now time.Time) {
	if e.fading {
		e.finishFadeLocked()
	}
	in := 1 - e.active
	out := e.active
	e.loadStripLocked(in, next)
	if e.isPlaying {
		e.strips[in].elem.Play()
	}
	e.strips[in].gain.Set(e.compForLocked(next.FileURL))
	e.strips[out].elem.Reset()
	e.strips[out].gain.Set(0)

	e.active = in
	e.current = next
	e.playStart = now
	e.reported = false
	e.preloadNextLocked()
}

// loadStripLocked installs next into strip idx, from the preloader when
// it holds the track, otherwise by async decode.
func (e *Engine) loadStripLocked(idx int, next track.Track) {
	if samples, ok := e.preloader.Take(next.FileURL); ok {
		e.strips[idx].elem.SetSamples(next.FileURL, samples)
	} else {
		e.strips[idx].elem.Load(e.baseCtx, next.FileURL)
	}
	e.measureAsyncLocked(next.FileURL)
}

// preloadNextLocked hints the preloader at the upcoming track and kicks
// off its loudness measurement.
func (e *Engine) preloadNextLocked() {
	next, ok := e.queue.Peek()
	if !ok {
		return
	}
	e.preloader.Preload(e.baseCtx, next.FileURL)
	e.measureAsyncLocked(next.FileURL)
}

// measureAsyncLocked measures a track's loudness in the background so the
// compensation multiplier is cached by the time the track becomes
// audible.
func (e *Engine) measureAsyncLocked(url string) {
	if !e.loudnessMatching || e.measure == nil || url == "" {
		return
	}
	if _, ok := e.comps[url]; ok {
		return
	}
	e.comps[url] = 1 // placeholder until the measurement lands
	ctx := e.baseCtx
	target := e.targetLUFS
	go func() {
		m := e.measure(ctx, url)
		comp := loudness.CompensationGain(target, m.LUFS)
		e.mu.Lock()
		e.comps[url] = comp
		e.mu.Unlock()
	}()
}

// compForLocked returns the loudness compensation multiplier for url.
func (e *Engine) compForLocked(url string) float64 {
	if !e.loudnessMatching {
		return 1
	}
	if c, ok := e.comps[url]; ok {
		return c
	}
	return 1
}

// maybeReportLocked reports the current track's play once it has been
// audible for reportAfter. One report per load.
func (e *Engine) maybeReportLocked(now time.Time) {
	if e.reported || !e.isPlaying || e.reporter == nil || e.current.ID == "" {
		return
	}
	if !e.strips[e.active].elem.Ready() {
		return
	}
	if now.Sub(e.playStart) < reportAfter {
		return
	}
	e.reported = true
	e.reporter.ReportPlay(e.current.ID)
}

// onLoaded runs when an element finished decoding. If it belongs to the
// active strip and playback is on, the track starts immediately.
func (e *Engine) onLoaded(src string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.strips[e.active]
	if s.elem.Src() != src {
		return
	}
	logger.Info("track loaded", logger.String("src", src),
		logger.Float64("duration", s.elem.Duration()))
	if e.isPlaying {
		s.elem.Play()
	}
}

// onError runs when a load failed. Playback stops on the failed track;
// the queue does not advance on errors, skipping stays a user decision.
func (e *Engine) onError(src string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.strips[e.active].elem.Src() != src {
		return
	}
	e.isPlaying = false
	logger.Error("playback stopped on load failure",
		logger.String("src", src), logger.Err(err))
}

// PlayTrack plays t immediately. When queue is given and contains t (by
// id), the whole queue is installed with the cursor on t; a queue that
// does not contain t starts from its first track. Without a queue, t
// plays as a single-track queue.
func (e *Engine) PlayTrack(t track.Track, queue []track.Track) {
	playable := track.FilterPlayable(queue)
	if len(playable) == 0 {
		e.PlayTracks([]track.Track{t}, 0)
		return
	}
	index := 0
	for i, qt := range playable {
		if qt.ID != "" && qt.ID == t.ID {
			index = i
			break
		}
	}
	e.PlayTracks(playable, index)
}

// AddToQueue appends tracks to the end of the queue without interrupting
// playback and returns the number actually added. Unplayable tracks and
// ids already queued are dropped.
func (e *Engine) AddToQueue(tracks []track.Track) int {
	added := e.queue.Add(tracks)
	if added > 0 {
		e.mu.Lock()
		e.preloadNextLocked()
		e.mu.Unlock()
	}
	return added
}

// PlayTracks replaces the queue with tracks and starts playback at index.
func (e *Engine) PlayTracks(tracks []track.Track, index int) {
	playable := track.FilterPlayable(tracks)
	if len(playable) == 0 {
		logger.Warn("ignoring empty or unplayable track list")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue.SetTracks(playable, index)
	cur, _ := e.queue.Current()
	e.preloader.Cancel()
	e.isPlaying = true
	e.switchInstantLocked(cur, e.now())
}

// Play resumes playback of the current track.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.queue.Current(); !ok {
		return
	}
	e.isPlaying = true
	e.strips[e.active].elem.Play()
	if e.fading {
		e.strips[e.fadingFrom].elem.Play()
	}
}

// Pause halts playback, keeping position.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isPlaying = false
	for _, s := range e.strips {
		s.elem.Pause()
	}
}

// Toggle flips between play and pause.
func (e *Engine) Toggle() {
	e.mu.Lock()
	playing := e.isPlaying
	e.mu.Unlock()
	if playing {
		e.Pause()
	} else {
		e.Play()
	}
}

// Next skips to the next track, crossfading when enabled.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()
	next, ok := e.queue.Advance()
	if !ok {
		return
	}
	now := e.now()
	if e.crossfade.Enabled && e.crossfade.Seconds > 0 && e.isPlaying && !e.fading {
		e.startFadeLocked(next, now)
		return
	}
	if e.fading {
		e.finishFadeLocked()
	}
	e.switchInstantLocked(next, now)
}

// Prev restarts the current track when more than three seconds in,
// otherwise steps back to the previous track. At the head of the queue
// with nothing to step back to it does nothing.
func (e *Engine) Prev() {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.strips[e.active]
	if s.elem.CurrentTime() > 3 {
		s.elem.Seek(0)
		return
	}
	prev, ok := e.queue.Retreat()
	if !ok {
		return
	}
	e.switchInstantLocked(prev, e.now())
}

// SeekTo jumps the current track to the given position in seconds.
func (e *Engine) SeekTo(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strips[e.active].elem.Seek(seconds)
}

// SetVolume sets master volume, clamped to 0..1.
func (e *Engine) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
}

// SetMuted sets master mute.
func (e *Engine) SetMuted(m bool) {
	e.mu.Lock()
	e.muted = m
	e.mu.Unlock()
}

// SetShuffle toggles queue shuffle.
func (e *Engine) SetShuffle(on bool) {
	e.queue.SetShuffle(on)
	e.mu.Lock()
	e.preloadNextLocked()
	e.mu.Unlock()
}

// SetRepeat sets the repeat mode.
func (e *Engine) SetRepeat(mode RepeatMode) {
	e.queue.SetRepeat(mode)
}

// SetCrossfade updates the crossfade settings live. An invalid curve for
// the current mode is rejected; a running fade finishes with its old
// settings.
func (e *Engine) SetCrossfade(s CrossfadeSettings) error {
	if s.Curve == "" {
		s.Curve = audio.CurveSine
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := audio.ValidateKind(s.Curve, e.proMode); err != nil {
		return err
	}
	if s.Seconds < 0 {
		s.Seconds = 0
	}
	if s.Seconds > 12 {
		s.Seconds = 12
	}
	e.crossfade = s
	return nil
}

// SetChain rebuilds both channels' processing chains from cfg. An empty
// config removes processing entirely; filter state does not carry over.
func (e *Engine) SetChain(cfg audio.ChainConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chainCfg = cfg
	for _, s := range e.strips {
		s.chain = audio.NewChain(cfg)
	}
}

// ChainConfig returns the active processing chain configuration.
func (e *Engine) ChainConfig() audio.ChainConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chainCfg
}

// SetProMode toggles pro mode. Leaving pro mode with an extended curve
// active falls back to sine.
func (e *Engine) SetProMode(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.proMode = on
	if !on && !audio.IsBasicKind(e.crossfade.Curve) {
		e.crossfade.Curve = audio.CurveSine
	}
}

// State is a snapshot of the engine for the control surface.
type State struct {
	IsPlaying        bool        `json:"isPlaying"`
	Track            track.Track `json:"track"`
	Position         float64     `json:"position"`
	Duration         float64     `json:"duration"`
	Volume           float64     `json:"volume"`
	Muted            bool        `json:"muted"`
	Shuffle          bool        `json:"shuffle"`
	Repeat           RepeatMode  `json:"repeat"`
	CrossfadeEnabled bool        `json:"crossfadeEnabled"`
	CrossfadeSeconds float64     `json:"crossfadeSeconds"`
	CrossfadeCurve   string      `json:"crossfadeCurve"`
	ProMode          bool        `json:"proMode"`
	Fading           bool        `json:"fading"`
	QueueLength      int         `json:"queueLength"`
	QueueIndex       int         `json:"queueIndex"`
}

// State returns a snapshot of the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.strips[e.active]
	return State{
		IsPlaying:        e.isPlaying,
		Track:            e.current,
		Position:         s.elem.CurrentTime(),
		Duration:         s.elem.Duration(),
		Volume:           e.volume,
		Muted:            e.muted,
		Shuffle:          e.queue.Shuffle(),
		Repeat:           e.queue.Repeat(),
		CrossfadeEnabled: e.crossfade.Enabled,
		CrossfadeSeconds: e.crossfade.Seconds,
		CrossfadeCurve:   string(e.crossfade.Curve),
		ProMode:          e.proMode,
		Fading:           e.fading,
		QueueLength:      e.queue.Len(),
		QueueIndex:       e.queue.Index(),
	}
}

func scaleCurve(curve []float32, scale float64) []float32 {
	if scale == 1 {
		return curve
	}
	out := make([]float32, len(curve))
	for i, v := range curve {
		out[i] = v * float32(scale)
	}
	return out
}
