package player

import (
	"math/rand"
	"sync"
	"time"

	"github.com/seguefm/segue/internal/track"
)

// RepeatMode controls behavior at the queue boundaries.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// ParseRepeatMode maps a string to a RepeatMode, defaulting to off.
func ParseRepeatMode(s string) RepeatMode {
	switch RepeatMode(s) {
	case RepeatAll, RepeatOne:
		return RepeatMode(s)
	}
	return RepeatOff
}

// NextIndex computes the index that follows cur in a queue of n tracks.
// Shuffle picks a random index different from cur when n > 1. Without
// shuffle, repeat all wraps past the end and repeat off stops there.
// Repeat one does not pin the successor: an explicit skip still moves
// forward, only a natural track end replays (the engine handles that
// case before consulting the queue). rand must return a value in [0, n).
func NextIndex(cur, n int, shuffle bool, repeat RepeatMode, rand func(int) int) (int, bool) {
	if n == 0 {
		return 0, false
	}
	if shuffle {
		if n == 1 {
			return cur, repeat != RepeatOff
		}
		next := rand(n - 1)
		if next >= cur {
			next++
		}
		return next, true
	}
	next := cur + 1
	if next >= n {
		if repeat == RepeatOff {
			return cur, false
		}
		next = 0
	}
	return next, true
}

// PrevIndex computes the index preceding cur. It wraps under repeat all
// and clamps at the first track otherwise. Shuffle history is not
// replayed; previous under shuffle steps back in list order.
func PrevIndex(cur, n int, repeat RepeatMode) (int, bool) {
	if n == 0 {
		return 0, false
	}
	prev := cur - 1
	if prev < 0 {
		if repeat == RepeatAll {
			return n - 1, true
		}
		return 0, cur != 0
	}
	return prev, true
}

// Queue is the playback queue: an ordered track list with a cursor,
// shuffle, and repeat mode.
type Queue struct {
	mu      sync.Mutex
	tracks  []track.Track
	index   int
	shuffle bool
	repeat  RepeatMode
	rng     *rand.Rand
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		repeat: RepeatOff,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetTracks replaces the queue contents and moves the cursor to start,
// clamped into range.
func (q *Queue) SetTracks(tracks []track.Track, start int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = make([]track.Track, len(tracks))
	copy(q.tracks, tracks)
	if start < 0 || start >= len(q.tracks) {
		start = 0
	}
	q.index = start
}

// Add appends tracks to the end of the queue, keeping the cursor where
// it is. Unplayable entries and ids already queued are dropped; the
// number of tracks actually added is returned.
func (q *Queue) Add(tracks []track.Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	seen := make(map[string]bool, len(q.tracks))
	for _, t := range q.tracks {
		if t.ID != "" {
			seen[t.ID] = true
		}
	}
	added := 0
	for _, t := range track.FilterPlayable(tracks) {
		if t.ID != "" && seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		q.tracks = append(q.tracks, t)
		added++
	}
	return added
}

// Tracks returns a copy of the queue contents.
func (q *Queue) Tracks() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]track.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

// Index returns the cursor position.
func (q *Queue) Index() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index
}

// Current returns the track under the cursor.
func (q *Queue) Current() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return track.Track{}, false
	}
	return q.tracks[q.index], true
}

// Advance moves the cursor to the next track and returns it.
func (q *Queue) Advance() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	next, ok := NextIndex(q.index, len(q.tracks), q.shuffle, q.repeat, q.rng.Intn)
	if !ok {
		return track.Track{}, false
	}
	q.index = next
	return q.tracks[q.index], true
}

// Retreat moves the cursor to the previous track and returns it.
func (q *Queue) Retreat() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	prev, ok := PrevIndex(q.index, len(q.tracks), q.repeat)
	if !ok {
		return track.Track{}, false
	}
	q.index = prev
	return q.tracks[q.index], true
}

// Peek returns the track Advance would land on without moving the cursor.
// Under shuffle the next track is not predetermined, so Peek reports the
// list-order successor as the preload hint.
func (q *Queue) Peek() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	next, ok := NextIndex(q.index, len(q.tracks), false, q.repeat, nil)
	if !ok || next == q.index {
		return track.Track{}, false
	}
	return q.tracks[next], true
}

// SetShuffle toggles shuffle.
func (q *Queue) SetShuffle(on bool) {
	q.mu.Lock()
	q.shuffle = on
	q.mu.Unlock()
}

// Shuffle reports the shuffle state.
func (q *Queue) Shuffle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuffle
}

// SetRepeat sets the repeat mode.
func (q *Queue) SetRepeat(mode RepeatMode) {
	q.mu.Lock()
	q.repeat = mode
	q.mu.Unlock()
}

// Repeat returns the repeat mode.
func (q *Queue) Repeat() RepeatMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.repeat
}

// seedRand replaces the queue's random source. Tests use it for
// deterministic shuffle.
func (q *Queue) seedRand(r *rand.Rand) {
	q.mu.Lock()
	q.rng = r
	q.mu.Unlock()
}
