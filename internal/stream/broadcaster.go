// Package stream delivers the engine's mixed output to listeners: a
// fan-out broadcaster feeding WebRTC (Opus) and chunked HTTP (MP3)
// sinks.
package stream

import (
	"context"
	"sync"

	"github.com/seguefm/segue/internal/logger"
)

// outletBuffer is ~3 seconds of 20ms frames per listener.
const outletBuffer = 150

// Outlet is one listener's view of the broadcast.
type Outlet struct {
	C    chan []int16
	done chan struct{}
}

// Done is closed when the outlet is unsubscribed.
func (o *Outlet) Done() <-chan struct{} {
	return o.done
}

// Broadcaster fans out the engine's frame stream to every connected
// outlet. A slow outlet loses frames instead of stalling the others.
type Broadcaster struct {
	mu      sync.RWMutex
	outlets map[*Outlet]struct{}
}

// NewBroadcaster creates a broadcaster with no outlets.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{outlets: make(map[*Outlet]struct{})}
}

// Subscribe registers a new outlet.
func (b *Broadcaster) Subscribe() *Outlet {
	o := &Outlet{
		C:    make(chan []int16, outletBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.outlets[o] = struct{}{}
	n := len(b.outlets)
	b.mu.Unlock()
	logger.Debug("stream outlet subscribed", logger.Int("outlets", n))
	return o
}

// Unsubscribe removes an outlet and signals it to stop.
func (b *Broadcaster) Unsubscribe(o *Outlet) {
	b.mu.Lock()
	_, present := b.outlets[o]
	delete(b.outlets, o)
	n := len(b.outlets)
	b.mu.Unlock()
	if present {
		close(o.done)
		logger.Debug("stream outlet unsubscribed", logger.Int("outlets", n))
	}
}

// Outlets returns the number of connected outlets.
func (b *Broadcaster) Outlets() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.outlets)
}

// Run fans frames from source out to every outlet until ctx is cancelled
// or source closes.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for o := range b.outlets {
				select {
				case o.C <- frame:
				default:
					// outlet lagging, drop the frame
				}
			}
			b.mu.RUnlock()
		}
	}
}
