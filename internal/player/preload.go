package player

import (
	"context"
	"sync"

	"github.com/seguefm/segue/internal/audio"
	"github.com/seguefm/segue/internal/logger"
)

// Preloader decodes the upcoming track ahead of the crossfade point so
// the switch never waits on a network fetch. It holds at most one
// decoded track; preloading a different source drops the previous one
// and cancels its in-flight decode.
type Preloader struct {
	decode audio.DecodeFunc

	mu      sync.Mutex
	src     string
	samples []int16
	cancel  context.CancelFunc
	pending bool
}

// NewPreloader creates a preloader using decode.
func NewPreloader(decode audio.DecodeFunc) *Preloader {
	return &Preloader{decode: decode}
}

// Preload starts decoding src in the background. Calling it again with
// the same source while a decode is pending or complete is a no-op.
func (p *Preloader) Preload(ctx context.Context, src string) {
	if src == "" {
		return
	}
	p.mu.Lock()
	if p.src == src && (p.pending || p.samples != nil) {
		p.mu.Unlock()
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	dctx, cancel := context.WithCancel(ctx)
	p.src = src
	p.samples = nil
	p.cancel = cancel
	p.pending = true
	p.mu.Unlock()

	go func() {
		samples, err := p.decode(dctx, src)

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.src != src {
			return // superseded
		}
		p.pending = false
		if err != nil {
			logger.Debug("preload failed", logger.String("src", src), logger.Err(err))
			return
		}
		p.samples = samples
	}()
}

// Take returns the decoded samples for src if the preloader holds them,
// consuming the entry. A pending or mismatched preload is a miss; the
// caller falls back to a normal load.
func (p *Preloader) Take(src string) ([]int16, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.src != src || p.samples == nil {
		return nil, false
	}
	samples := p.samples
	p.src = ""
	p.samples = nil
	return samples, true
}

// Cancel aborts any in-flight decode and drops the held track.
func (p *Preloader) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.src = ""
	p.samples = nil
	p.pending = false
}
