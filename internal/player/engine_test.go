package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/seguefm/segue/internal/audio"
	"github.com/seguefm/segue/internal/track"
)

// fakeClock drives the engine's time in tests; each stepped frame
// advances it by one frame duration.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingReporter struct {
	mu  sync.Mutex
	ids []string
}

func (r *countingReporter) ReportPlay(id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *countingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func newTestEngine(clk *fakeClock, decode audio.DecodeFunc, cf CrossfadeSettings) *Engine {
	return NewEngine(Options{
		Decode:    decode,
		Crossfade: cf,
		Now:       clk.now,
	})
}

// stepFrames runs n frame ticks against the fake clock, returning the
// last mixed frame.
func stepFrames(e *Engine, clk *fakeClock, n int) []int16 {
	var last []int16
	for i := 0; i < n; i++ {
		last = e.step(clk.now())
		clk.advance(audio.FrameDuration)
	}
	return last
}

func waitReady(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.State().Duration > 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("track never loaded")
}

func TestPlayTrackProducesAudio(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(2, 1000), CrossfadeSettings{})

	e.PlayTrack(track.Track{ID: "a", FileURL: "http://x/a.mp3"}, nil)
	waitReady(t, e)

	frame := stepFrames(e, clk, 5)
	if frame[0] == 0 {
		t.Error("playing engine should output non-silent frames")
	}

	st := e.State()
	if !st.IsPlaying || st.Track.ID != "a" {
		t.Errorf("State = %+v", st)
	}
	if st.Position == 0 {
		t.Error("position should advance while playing")
	}
}

func TestPauseHoldsPosition(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(2, 1000), CrossfadeSettings{})
	e.PlayTrack(track.Track{ID: "a", FileURL: "u"}, nil)
	waitReady(t, e)

	stepFrames(e, clk, 5)
	e.Pause()
	pos := e.State().Position

	frame := stepFrames(e, clk, 5)
	if frame[0] != 0 {
		t.Error("paused engine outputs silence")
	}
	if got := e.State().Position; got != pos {
		t.Errorf("position moved while paused: %v -> %v", pos, got)
	}

	e.Play()
	stepFrames(e, clk, 1)
	if got := e.State().Position; got <= pos {
		t.Error("position should resume advancing after Play")
	}
}

func TestCrossfadeTriggersNearTrackEnd(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(3, 1000), CrossfadeSettings{
		Enabled: true, Seconds: 1, Curve: audio.CurveSine,
	})
	e.PlayTracks([]track.Track{
		{ID: "a", FileURL: "http://x/a.mp3"},
		{ID: "b", FileURL: "http://x/b.mp3"},
	}, 0)
	waitReady(t, e)

	// 3s track, 1s fade: trigger lands around frame 100
	var fadeFrame int
	for i := 0; i < 200; i++ {
		stepFrames(e, clk, 1)
		if e.State().Fading {
			fadeFrame = i
			break
		}
	}
	st := e.State()
	if !st.Fading {
		t.Fatal("crossfade never triggered")
	}
	if st.Track.ID != "b" {
		t.Errorf("current track during fade = %q, want b", st.Track.ID)
	}
	if fadeFrame < 95 || fadeFrame > 105 {
		t.Errorf("fade started at frame %d, want ~100", fadeFrame)
	}

	// fade is 1s = 50 frames; step past it
	stepFrames(e, clk, 55)
	st = e.State()
	if st.Fading {
		t.Error("fade should have completed")
	}
	if st.Track.ID != "b" || !st.IsPlaying {
		t.Errorf("post-fade state = %+v", st)
	}
}

func TestNoCrossfadeUnderRepeatOne(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(1, 500), CrossfadeSettings{
		Enabled: true, Seconds: 1, Curve: audio.CurveSine,
	})
	e.PlayTracks([]track.Track{
		{ID: "a", FileURL: "ua"},
		{ID: "b", FileURL: "ub"},
	}, 0)
	e.SetRepeat(RepeatOne)
	waitReady(t, e)

	// play through the full track and past its end
	stepFrames(e, clk, 60)
	st := e.State()
	if st.Fading {
		t.Error("repeat one must not crossfade")
	}
	if st.Track.ID != "a" {
		t.Errorf("repeat one should replay a, got %q", st.Track.ID)
	}
	if !st.IsPlaying {
		t.Error("repeat one keeps playing")
	}
	if st.Position > 0.5 {
		t.Errorf("position should have wrapped, got %v", st.Position)
	}
}

func TestInstantAdvanceWhenCrossfadeDisabled(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(0.5, 800), CrossfadeSettings{})
	e.PlayTracks([]track.Track{
		{ID: "a", FileURL: "ua"},
		{ID: "b", FileURL: "ub"},
	}, 0)
	waitReady(t, e)

	// 0.5s = 25 frames; run past the end and let b load
	stepFrames(e, clk, 26)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && e.State().Track.ID != "b" {
		stepFrames(e, clk, 1)
		time.Sleep(time.Millisecond)
	}

	st := e.State()
	if st.Track.ID != "b" || !st.IsPlaying {
		t.Fatalf("expected instant advance to b, state %+v", st)
	}
	if st.QueueIndex != 1 {
		t.Errorf("queue index = %d, want 1", st.QueueIndex)
	}
}

func TestQueueExhaustionStopsPlayback(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(0.2, 800), CrossfadeSettings{})
	e.PlayTrack(track.Track{ID: "a", FileURL: "u"}, nil)
	waitReady(t, e)

	stepFrames(e, clk, 15) // 0.2s = 10 frames
	st := e.State()
	if st.IsPlaying {
		t.Error("exhausted queue should stop playback")
	}
	if st.Track.ID != "a" {
		t.Errorf("current track stays on the last one, got %q", st.Track.ID)
	}
}

func TestLoadErrorStopsWithoutAdvancing(t *testing.T) {
	decode := func(ctx context.Context, src string) ([]int16, error) {
		if src == "bad" {
			return nil, errors.New("boom")
		}
		return make([]int16, audio.FrameSamples*50), nil
	}
	clk := newFakeClock()
	e := newTestEngine(clk, decode, CrossfadeSettings{})
	e.PlayTracks([]track.Track{
		{ID: "x", FileURL: "bad"},
		{ID: "y", FileURL: "good"},
	}, 0)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && e.State().IsPlaying {
		time.Sleep(2 * time.Millisecond)
	}

	st := e.State()
	if st.IsPlaying {
		t.Fatal("load failure should stop playback")
	}
	if st.QueueIndex != 0 || st.Track.ID != "x" {
		t.Errorf("errors must not auto-advance: %+v", st)
	}

	// an explicit skip still works
	e.Next()
	e.Play()
	waitReady(t, e)
	if got := e.State().Track.ID; got != "y" {
		t.Errorf("Next after error = %q, want y", got)
	}
}

func TestPlayReportOncePerLoad(t *testing.T) {
	clk := newFakeClock()
	rep := &countingReporter{}
	e := NewEngine(Options{
		Decode:   constantPCM(2, 500),
		Reporter: rep,
		Now:      clk.now,
	})
	e.PlayTrack(track.Track{ID: "a", FileURL: "u"}, nil)
	waitReady(t, e)

	stepFrames(e, clk, 5) // 100ms: too early
	if rep.count() != 0 {
		t.Error("report before 200ms of playback")
	}
	stepFrames(e, clk, 10) // 300ms total
	if rep.count() != 1 {
		t.Fatalf("reports = %d, want 1", rep.count())
	}
	stepFrames(e, clk, 20)
	if rep.count() != 1 {
		t.Error("one report per load")
	}
}

// Restart applies only past three seconds of playback; under that,
// prev steps back in the queue, and at the queue head it does nothing.
func TestPrevRestartRule(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(10, 500), CrossfadeSettings{})
	e.PlayTracks([]track.Track{
		{ID: "a", FileURL: "ua"},
		{ID: "b", FileURL: "ub"},
	}, 1)
	waitReady(t, e)

	e.SeekTo(5)
	e.Prev()
	st := e.State()
	if st.Track.ID != "b" || st.Position != 0 {
		t.Errorf("Prev past 3s should restart the track: %+v", st)
	}

	e.Prev() // now at 0s: go to the previous track
	waitReady(t, e)
	if got := e.State().Track.ID; got != "a" {
		t.Errorf("Prev near start = %q, want a", got)
	}

	e.SeekTo(2)
	e.Prev() // first track, under 3s, nothing before it: no-op
	if got := e.State(); got.Track.ID != "a" || got.Position != 2 {
		t.Errorf("Prev at the queue head should do nothing: %+v", got)
	}
}

func TestNextSkipsWithCrossfade(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(5, 500), CrossfadeSettings{
		Enabled: true, Seconds: 2, Curve: audio.CurveLinear,
	})
	e.PlayTracks([]track.Track{
		{ID: "a", FileURL: "ua"},
		{ID: "b", FileURL: "ub"},
	}, 0)
	waitReady(t, e)
	stepFrames(e, clk, 5)

	e.Next()
	st := e.State()
	if !st.Fading || st.Track.ID != "b" {
		t.Errorf("Next with crossfade enabled should fade: %+v", st)
	}

	stepFrames(e, clk, 105) // 2s fade = 100 frames
	if e.State().Fading {
		t.Error("fade should finish")
	}
}

func TestVolumeAndMute(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(2, 1000), CrossfadeSettings{})
	e.PlayTrack(track.Track{ID: "a", FileURL: "u"}, nil)
	waitReady(t, e)
	stepFrames(e, clk, 2)

	e.SetVolume(0.5)
	frame := stepFrames(e, clk, 1)
	if frame[0] != 500 {
		t.Errorf("half volume frame[0] = %d, want 500", frame[0])
	}

	e.SetMuted(true)
	frame = stepFrames(e, clk, 1)
	if frame[0] != 0 {
		t.Error("muted output should be silent")
	}

	e.SetMuted(false)
	e.SetVolume(5) // clamps to 1
	frame = stepFrames(e, clk, 1)
	if frame[0] != 1000 {
		t.Errorf("full volume frame[0] = %d, want 1000", frame[0])
	}
}

func TestSetCrossfadeValidation(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(1, 1), CrossfadeSettings{})

	if err := e.SetCrossfade(CrossfadeSettings{Enabled: true, Seconds: 4, Curve: audio.CurveBezier}); err == nil {
		t.Error("extended curve without pro mode should be rejected")
	}

	e.SetProMode(true)
	if err := e.SetCrossfade(CrossfadeSettings{Enabled: true, Seconds: 4, Curve: audio.CurveBezier}); err != nil {
		t.Errorf("pro mode should accept bezier: %v", err)
	}

	if err := e.SetCrossfade(CrossfadeSettings{Enabled: true, Seconds: 99, Curve: audio.CurveSine}); err != nil {
		t.Fatal(err)
	}
	if got := e.State().CrossfadeSeconds; got != 12 {
		t.Errorf("seconds should clamp to 12, got %v", got)
	}

	// leaving pro mode with an extended curve falls back to sine
	e.SetCrossfade(CrossfadeSettings{Enabled: true, Seconds: 4, Curve: audio.CurvePower3})
	e.SetProMode(false)
	if got := e.State().CrossfadeCurve; got != string(audio.CurveSine) {
		t.Errorf("curve after leaving pro mode = %q, want sine", got)
	}
}

func TestPlayTracksFiltersUnplayable(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(1, 1), CrossfadeSettings{})

	e.PlayTracks([]track.Track{{ID: "a"}}, 0) // no URL: ignored
	if e.State().IsPlaying {
		t.Error("all-unplayable list should not start playback")
	}

	e.PlayTracks([]track.Track{
		{ID: "a"}, // dropped
		{ID: "b", FileURL: "u"},
	}, 0)
	waitReady(t, e)
	st := e.State()
	if st.QueueLength != 1 || st.Track.ID != "b" {
		t.Errorf("unplayable tracks should be filtered: %+v", st)
	}
}

func TestSingleTrackRepeatAllRunsToEnd(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(1, 500), CrossfadeSettings{
		Enabled: true, Seconds: 0.5, Curve: audio.CurveSine,
	})
	e.PlayTrack(track.Track{ID: "a", FileURL: "u"}, nil)
	e.SetRepeat(RepeatAll)
	waitReady(t, e)

	// 1s track, 0.5s fade window: the only candidate next index is the
	// current one, so no fade may start anywhere in the track
	for i := 0; i < 60; i++ {
		stepFrames(e, clk, 1)
		if e.State().Fading {
			t.Fatalf("single-track queue crossfaded into itself at frame %d", i)
		}
	}
	st := e.State()
	if !st.IsPlaying || st.Track.ID != "a" {
		t.Errorf("repeat all should replay the only track: %+v", st)
	}
}

func TestPlayTrackWithinQueue(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(1, 500), CrossfadeSettings{})
	q := []track.Track{
		{ID: "a", FileURL: "ua"},
		{ID: "b", FileURL: "ub"},
		{ID: "c", FileURL: "uc"},
	}

	e.PlayTrack(track.Track{ID: "b", FileURL: "ub"}, q)
	waitReady(t, e)
	st := e.State()
	if st.Track.ID != "b" || st.QueueIndex != 1 || st.QueueLength != 3 {
		t.Errorf("PlayTrack should cue the track inside its queue: %+v", st)
	}

	// a track absent from the queue starts it from the top
	e.PlayTrack(track.Track{ID: "z", FileURL: "uz"}, q)
	st = e.State()
	if st.Track.ID != "a" || st.QueueIndex != 0 {
		t.Errorf("PlayTrack with a foreign track should start at 0: %+v", st)
	}
}

func TestAddToQueueWhilePlaying(t *testing.T) {
	clk := newFakeClock()
	e := newTestEngine(clk, constantPCM(1, 500), CrossfadeSettings{})
	e.PlayTrack(track.Track{ID: "a", FileURL: "ua"}, nil)
	waitReady(t, e)
	stepFrames(e, clk, 3)
	pos := e.State().Position

	added := e.AddToQueue([]track.Track{
		{ID: "b", FileURL: "ub"},
		{ID: "a", FileURL: "ua"}, // already queued
		{ID: "c"},                // unplayable
	})
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	st := e.State()
	if st.QueueLength != 2 || st.QueueIndex != 0 {
		t.Errorf("append should not move the cursor: %+v", st)
	}
	if !st.IsPlaying || st.Position < pos {
		t.Errorf("append should not interrupt playback: %+v", st)
	}
}

func TestSetChainAppliesToOutput(t *testing.T) {
	decode := func(ctx context.Context, src string) ([]int16, error) {
		samples := make([]int16, audio.FrameSamples*100)
		for i := 0; i < len(samples); i += 2 {
			samples[i] = 1000
			samples[i+1] = -1000
		}
		return samples, nil
	}
	clk := newFakeClock()
	e := newTestEngine(clk, decode, CrossfadeSettings{})
	e.PlayTrack(track.Track{ID: "a", FileURL: "u"}, nil)
	waitReady(t, e)

	frame := stepFrames(e, clk, 2)
	if frame[0] != 1000 || frame[1] != -1000 {
		t.Fatalf("unprocessed output = %d/%d", frame[0], frame[1])
	}

	width := 0.0
	e.SetChain(audio.ChainConfig{Width: &width})
	frame = stepFrames(e, clk, 2)
	if frame[0] != 0 || frame[1] != 0 {
		t.Errorf("width 0 should collapse opposite channels: %d/%d", frame[0], frame[1])
	}

	e.SetChain(audio.ChainConfig{})
	frame = stepFrames(e, clk, 2)
	if frame[0] != 1000 {
		t.Errorf("empty config should remove processing, got %d", frame[0])
	}
}

func TestRunEmitsFrames(t *testing.T) {
	e := NewEngine(Options{Decode: constantPCM(1, 100)})
	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)

	select {
	case frame := <-e.Frames():
		if len(frame) != audio.FrameSamples {
			t.Errorf("frame length %d", len(frame))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run never emitted a frame")
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-e.Frames():
			if !ok {
				return // channel closed on shutdown
			}
		case <-deadline:
			t.Fatal("Frames never closed after cancel")
		}
	}
}
