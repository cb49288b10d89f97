// Package remote accepts playback commands from companion clients over
// WebSocket and fans them out to subscribers. Command handling is
// asynchronous and error-isolated: one bad command or panicking handler
// never takes down the connection or the player.
package remote

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/seguefm/segue/internal/logger"
	"github.com/seguefm/segue/internal/track"
)

// Kind identifies a remote command.
type Kind string

const (
	KindPlayTrack    Kind = "play_track"    // play one track immediately
	KindPlayList     Kind = "play_list"     // replace queue with a track list
	KindPlayPlaylist Kind = "play_playlist" // fetch a playlist by id and play it
	KindAddToQueue   Kind = "add_to_queue"  // append tracks to the queue
	KindPlay         Kind = "play"
	KindPause        Kind = "pause"
	KindNext         Kind = "next"
	KindPrev         Kind = "prev"
	KindSeek         Kind = "seek"
	KindVolume       Kind = "volume"
	KindShuffle      Kind = "shuffle"
	KindRepeat       Kind = "repeat"
)

// Command is one remote playback command. Fields beyond Kind are
// populated depending on the kind.
type Command struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	Track      *track.Track  `json:"track,omitempty"`
	Tracks     []track.Track `json:"tracks,omitempty"`
	Index      int           `json:"index,omitempty"`
	PlaylistID string        `json:"playlistId,omitempty"`
	Value      float64       `json:"value,omitempty"` // seek seconds, volume 0..1
	Mode       string        `json:"mode,omitempty"`  // repeat: off|all|one
}

// Parse decodes and validates a raw command. A missing ID is filled in so
// every command is traceable in logs.
func Parse(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	switch cmd.Kind {
	case KindPlayTrack:
		if cmd.Track == nil || !cmd.Track.Playable() {
			return Command{}, fmt.Errorf("play_track: no playable track")
		}
	case KindPlayList:
		if len(cmd.Tracks) == 0 {
			return Command{}, fmt.Errorf("play_list: empty track list")
		}
		if cmd.Index < 0 || cmd.Index >= len(cmd.Tracks) {
			cmd.Index = 0
		}
	case KindPlayPlaylist:
		if cmd.PlaylistID == "" {
			return Command{}, fmt.Errorf("play_playlist: missing playlist id")
		}
	case KindAddToQueue:
		if len(cmd.Tracks) == 0 {
			return Command{}, fmt.Errorf("add_to_queue: empty track list")
		}
	case KindPlay, KindPause, KindNext, KindPrev, KindSeek, KindVolume, KindShuffle, KindRepeat:
	default:
		return Command{}, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
	return cmd, nil
}

// Handler consumes one command.
type Handler func(Command)

// Bus dispatches commands to subscribers, each on its own goroutine with
// panic isolation.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty command bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all future commands.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish delivers cmd to every subscriber asynchronously.
func (b *Bus) Publish(cmd Command) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h := h
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("command handler panicked",
						logger.String("command", string(cmd.Kind)),
						logger.String("id", cmd.ID),
						logger.String("panic", fmt.Sprint(r)))
				}
			}()
			h(cmd)
		}()
	}
}
