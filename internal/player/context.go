package player

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/seguefm/segue/internal/audio"
	"github.com/seguefm/segue/internal/logger"
	"github.com/seguefm/segue/internal/remote"
	"github.com/seguefm/segue/internal/store"
	"github.com/seguefm/segue/internal/track"
)

// PlaylistFetcher resolves a playlist id to its playable tracks.
type PlaylistFetcher interface {
	FetchPlaylistTracks(ctx context.Context, playlistID string) ([]track.Track, error)
}

// Context is the playback facade: it wires the engine to the catalog,
// persists user preferences, and translates remote commands into engine
// calls. One Context exists per process; handlers obtain it via Current.
type Context struct {
	engine  *Engine
	fetcher PlaylistFetcher // may be nil
	prefs   store.Store
}

var (
	currentMu  sync.RWMutex
	currentCtx *Context
)

// SetContext installs the process-wide playback context.
func SetContext(c *Context) {
	currentMu.Lock()
	currentCtx = c
	currentMu.Unlock()
}

// Current returns the installed playback context. It panics when called
// before SetContext: that is a wiring bug, not a runtime condition.
func Current() *Context {
	currentMu.RLock()
	defer currentMu.RUnlock()
	if currentCtx == nil {
		panic("player: Current called before SetContext")
	}
	return currentCtx
}

// NewContext creates the facade and restores persisted preferences into
// the engine.
func NewContext(engine *Engine, fetcher PlaylistFetcher, prefs store.Store) *Context {
	c := &Context{engine: engine, fetcher: fetcher, prefs: prefs}
	c.restore()
	return c
}

// Engine exposes the underlying engine for the HTTP control surface.
func (c *Context) Engine() *Engine {
	return c.engine
}

// Bind subscribes the context to a remote command bus.
func (c *Context) Bind(bus *remote.Bus) {
	bus.Subscribe(c.HandleCommand)
}

// HandleCommand executes one remote command against the engine.
func (c *Context) HandleCommand(cmd remote.Command) {
	if c == nil || c.engine == nil {
		return
	}
	switch cmd.Kind {
	case remote.KindPlayTrack:
		c.engine.PlayTrack(*cmd.Track, cmd.Tracks)
	case remote.KindPlayList:
		c.engine.PlayTracks(cmd.Tracks, cmd.Index)
	case remote.KindAddToQueue:
		c.engine.AddToQueue(cmd.Tracks)
	case remote.KindPlayPlaylist:
		c.playPlaylist(cmd.PlaylistID)
	case remote.KindPlay:
		c.engine.Play()
	case remote.KindPause:
		c.engine.Pause()
	case remote.KindNext:
		c.engine.Next()
	case remote.KindPrev:
		c.engine.Prev()
	case remote.KindSeek:
		c.engine.SeekTo(cmd.Value)
	case remote.KindVolume:
		c.SetVolume(cmd.Value)
	case remote.KindShuffle:
		c.SetShuffle(cmd.Value != 0)
	case remote.KindRepeat:
		c.SetRepeat(ParseRepeatMode(cmd.Mode))
	}
}

// playPlaylist fetches a playlist and replaces the queue with it.
func (c *Context) playPlaylist(id string) {
	if c.fetcher == nil {
		logger.Warn("playlist command without a catalog", logger.String("playlist", id))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	tracks, err := c.fetcher.FetchPlaylistTracks(ctx, id)
	if err != nil {
		logger.Error("playlist fetch failed", logger.String("playlist", id), logger.Err(err))
		return
	}
	if len(tracks) == 0 {
		logger.Warn("playlist has no playable tracks", logger.String("playlist", id))
		return
	}
	c.engine.PlayTracks(tracks, 0)
}

// Preference-persisting setters. The engine is updated first; storage is
// best-effort.

// SetVolume sets master volume and persists it.
func (c *Context) SetVolume(v float64) {
	if c == nil {
		return
	}
	c.engine.SetVolume(v)
	c.save("volume", strconv.FormatFloat(c.engine.State().Volume, 'f', -1, 64))
}

// SetMuted sets mute and persists it.
func (c *Context) SetMuted(m bool) {
	if c == nil {
		return
	}
	c.engine.SetMuted(m)
	c.save("muted", strconv.FormatBool(m))
}

// SetShuffle sets shuffle and persists it.
func (c *Context) SetShuffle(on bool) {
	if c == nil {
		return
	}
	c.engine.SetShuffle(on)
	c.save("shuffle", strconv.FormatBool(on))
}

// SetRepeat sets the repeat mode and persists it.
func (c *Context) SetRepeat(mode RepeatMode) {
	if c == nil {
		return
	}
	c.engine.SetRepeat(mode)
	c.save("repeat", string(mode))
}

// SetCrossfade updates crossfade settings and persists them on success.
func (c *Context) SetCrossfade(s CrossfadeSettings) error {
	if c == nil {
		return nil
	}
	if err := c.engine.SetCrossfade(s); err != nil {
		return err
	}
	st := c.engine.State()
	c.save("crossfade_enabled", strconv.FormatBool(st.CrossfadeEnabled))
	c.save("crossfade_seconds", strconv.FormatFloat(st.CrossfadeSeconds, 'f', -1, 64))
	c.save("crossfade_curve", st.CrossfadeCurve)
	return nil
}

func (c *Context) save(key, value string) {
	if c.prefs != nil {
		c.prefs.Set(key, value)
	}
}

// restore loads persisted preferences back into the engine. Missing or
// malformed values keep the engine defaults.
func (c *Context) restore() {
	if c.prefs == nil {
		return
	}
	if v, ok := c.prefs.Get("volume"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.engine.SetVolume(f)
		}
	}
	if v, ok := c.prefs.Get("muted"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.engine.SetMuted(b)
		}
	}
	if v, ok := c.prefs.Get("shuffle"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.engine.SetShuffle(b)
		}
	}
	if v, ok := c.prefs.Get("repeat"); ok {
		c.engine.SetRepeat(ParseRepeatMode(v))
	}

	st := c.engine.State()
	cf := CrossfadeSettings{
		Enabled: st.CrossfadeEnabled,
		Seconds: st.CrossfadeSeconds,
		Curve:   audio.CurveKind(st.CrossfadeCurve),
	}
	changed := false
	if v, ok := c.prefs.Get("crossfade_enabled"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cf.Enabled = b
			changed = true
		}
	}
	if v, ok := c.prefs.Get("crossfade_seconds"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cf.Seconds = f
			changed = true
		}
	}
	if v, ok := c.prefs.Get("crossfade_curve"); ok && v != "" {
		cf.Curve = audio.CurveKind(v)
		changed = true
	}
	if changed {
		if err := c.engine.SetCrossfade(cf); err != nil {
			logger.Warn("ignoring persisted crossfade settings", logger.Err(err))
		}
	}
}
