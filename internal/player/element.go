// Package player implements the dual-channel playback core: two playback
// elements with independent gain automation and processing chains, a
// queue with shuffle and repeat, preloading of upcoming tracks, and the
// engine that mixes both channels into a real-time frame stream while
// crossfading between them.
package player

import (
	"context"
	"fmt"
	"sync"

	"github.com/seguefm/segue/internal/audio"
	"github.com/seguefm/segue/internal/logger"
)

// Element is one playback slot: a fully decoded track with a frame
// position. Loading is asynchronous; a generation counter discards the
// result of any load that was superseded before its decode finished, so
// rapid track changes can never resurrect an old track.
type Element struct {
	mu     sync.Mutex
	decode audio.DecodeFunc

	src     string
	samples []int16
	frame   int
	playing bool
	ready   bool
	gen     uint64

	onLoaded func(src string)
	onError  func(src string, err error)
}

// NewElement creates an empty element using decode for loads.
func NewElement(decode audio.DecodeFunc) *Element {
	return &Element{decode: decode}
}

// SetCallbacks registers load callbacks. They are invoked from the decode
// goroutine without the element lock held.
func (e *Element) SetCallbacks(onLoaded func(src string), onError func(src string, err error)) {
	e.mu.Lock()
	e.onLoaded = onLoaded
	e.onError = onError
	e.mu.Unlock()
}

// Load starts decoding src, replacing whatever the element held. The
// element is not ready until the decode completes.
func (e *Element) Load(ctx context.Context, src string) {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.src = src
	e.samples = nil
	e.frame = 0
	e.ready = false
	decode := e.decode
	e.mu.Unlock()

	go func() {
		samples, err := decode(ctx, src)

		e.mu.Lock()
		if e.gen != gen {
			e.mu.Unlock()
			return // superseded by a newer load
		}
		var loaded func(string)
		var failed func(string, error)
		if err != nil || len(samples) == 0 {
			if err == nil {
				err = fmt.Errorf("decode %s: empty stream", src)
			}
			failed = e.onError
		} else {
			e.samples = samples
			e.ready = true
			loaded = e.onLoaded
		}
		e.mu.Unlock()

		if failed != nil {
			logger.Warn("track load failed", logger.String("src", src), logger.Err(err))
			failed(src, err)
		}
		if loaded != nil {
			loaded(src)
		}
	}()
}

// SetSamples installs pre-decoded PCM directly, skipping the async load.
// Used when the preloader already holds the track.
func (e *Element) SetSamples(src string, samples []int16) {
	e.mu.Lock()
	e.gen++
	e.src = src
	e.samples = samples
	e.frame = 0
	e.ready = len(samples) > 0
	e.mu.Unlock()
}

// Play starts advancing on ReadFrame.
func (e *Element) Play() {
	e.mu.Lock()
	e.playing = true
	e.mu.Unlock()
}

// Pause stops advancing without losing position.
func (e *Element) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
}

// Playing reports whether the element advances on ReadFrame.
func (e *Element) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Ready reports whether a decoded track is installed.
func (e *Element) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Src returns the currently loaded (or loading) source.
func (e *Element) Src() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

// CurrentTime returns the playback position in seconds.
func (e *Element) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return float64(e.frame) * audio.FrameDuration.Seconds()
}

// Duration returns the track length in seconds, 0 while not ready.
func (e *Element) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationLocked()
}

func (e *Element) durationLocked() float64 {
	return float64(len(e.samples)/audio.FrameSamples) * audio.FrameDuration.Seconds()
}

// Seek jumps to the given position, clamped to the track bounds.
func (e *Element) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return
	}
	total := len(e.samples) / audio.FrameSamples
	f := int(seconds / audio.FrameDuration.Seconds())
	if f < 0 {
		f = 0
	}
	if f > total {
		f = total
	}
	e.frame = f
}

// ReadFrame returns the next 20ms frame and whether the track just ended.
// A paused or unready element yields silence and never ends. The final
// partial frame is zero-padded.
func (e *Element) ReadFrame() (frame []int16, ended bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready || !e.playing {
		return audio.SilentFrame(), false
	}

	start := e.frame * audio.FrameSamples
	if start >= len(e.samples) {
		e.playing = false
		return audio.SilentFrame(), true
	}

	out := audio.SilentFrame()
	end := start + audio.FrameSamples
	if end > len(e.samples) {
		end = len(e.samples)
	}
	copy(out, e.samples[start:end])
	e.frame++
	return out, false
}

// Remaining returns seconds left until the end of the track.
func (e *Element) Remaining() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return 0
	}
	rem := e.durationLocked() - float64(e.frame)*audio.FrameDuration.Seconds()
	if rem < 0 {
		return 0
	}
	return rem
}

// Reset clears the element back to empty.
func (e *Element) Reset() {
	e.mu.Lock()
	e.gen++
	e.src = ""
	e.samples = nil
	e.frame = 0
	e.playing = false
	e.ready = false
	e.mu.Unlock()
}
