package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/seguefm/segue/internal/audio"
	"github.com/seguefm/segue/internal/catalog"
	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/logger"
	"github.com/seguefm/segue/internal/loudness"
	"github.com/seguefm/segue/internal/player"
	"github.com/seguefm/segue/internal/remote"
	"github.com/seguefm/segue/internal/store"
	"github.com/seguefm/segue/internal/stream"
	"github.com/seguefm/segue/internal/track"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	audio.FFmpegBin = cfg.FFmpegPath

	// Redis is optional: without it, preferences and the loudness cache
	// live in memory only.
	var redisClient *redis.Client
	var prefs store.Store = store.NewMemory()
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to memory", logger.Err(err))
			redisClient = nil
		} else {
			prefs = store.NewRedis(redisClient, "segue:pref:")
			logger.Info("redis connected", logger.String("addr", cfg.RedisAddr))
		}
	}

	cat := catalog.NewClient(cfg.APIBaseURL)
	measurer := loudness.NewMeasurer(redisClient, cfg.LoudnessFetchTimeout)

	engine := player.NewEngine(player.Options{
		Decode:   audio.DecodeSource,
		Reporter: cat,
		Measure:  measurer.Measure,
		Crossfade: player.CrossfadeSettings{
			Enabled: cfg.CrossfadeEnabled,
			Seconds: cfg.CrossfadeSeconds,
			Curve:   audio.CurveKind(cfg.CrossfadeCurve),
		},
		ProMode:          cfg.ProMode,
		LoudnessMatching: cfg.LoudnessMatching,
		TargetLUFS:       cfg.TargetLUFS,
	})
	go engine.Run(ctx)

	pctx := player.NewContext(engine, cat, prefs)
	player.SetContext(pctx)

	bus := remote.NewBus()
	pctx.Bind(bus)

	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, engine.Frames())

	webrtcHandler := stream.NewWebRTCHandler(broadcaster)

	mux := http.NewServeMux()
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster))
	mux.Handle("/offer", webrtcHandler)
	mux.Handle("/ws/remote", remote.WSHandler(bus))

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"state":            engine.State(),
			"http_listeners":   broadcaster.Outlets(),
			"webrtc_listeners": webrtcHandler.PeerCount(),
		})
	})

	mux.HandleFunc("/api/queue", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodPost {
			var req struct {
				Tracks []track.Track `json:"tracks"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Tracks) == 0 {
				http.Error(w, "no tracks to add", http.StatusBadRequest)
				return
			}
			added := engine.AddToQueue(req.Tracks)
			json.NewEncoder(w).Encode(map[string]any{"ok": true, "added": added})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tracks": engine.Queue().Tracks(),
			"index":  engine.Queue().Index(),
		})
	})

	mux.HandleFunc("/api/spectrum", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		a := engine.Analyzer()
		json.NewEncoder(w).Encode(map[string]any{
			"magnitudes": a.Magnitudes(),
			"rms":        a.RMS(),
			"centroid":   a.Centroid(),
		})
	})

	mux.HandleFunc("/api/control", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Action string  `json:"action"`
			Value  float64 `json:"value"`
			Mode   string  `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		switch req.Action {
		case "play":
			engine.Play()
		case "pause":
			engine.Pause()
		case "toggle":
			engine.Toggle()
		case "next":
			engine.Next()
		case "prev":
			engine.Prev()
		case "seek":
			engine.SeekTo(req.Value)
		case "volume":
			pctx.SetVolume(req.Value)
		case "mute":
			pctx.SetMuted(req.Value != 0)
		case "shuffle":
			pctx.SetShuffle(req.Value != 0)
		case "repeat":
			pctx.SetRepeat(player.ParseRepeatMode(req.Mode))
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "state": engine.State()})
	})

	mux.HandleFunc("/api/crossfade", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Enabled bool    `json:"enabled"`
			Seconds float64 `json:"seconds"`
			Curve   string  `json:"curve"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		err := pctx.SetCrossfade(player.CrossfadeSettings{
			Enabled: req.Enabled,
			Seconds: req.Seconds,
			Curve:   audio.CurveKind(req.Curve),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "state": engine.State()})
	})

	mux.HandleFunc("/api/chain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method != http.MethodPost {
			json.NewEncoder(w).Encode(engine.ChainConfig())
			return
		}
		var cfg audio.ChainConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "invalid chain config", http.StatusBadRequest)
			return
		}
		engine.SetChain(cfg)
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "chain": engine.ChainConfig()})
	})

	mux.HandleFunc("/api/playlist", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			PlaylistID string `json:"playlistId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlaylistID == "" {
			http.Error(w, "invalid playlist id", http.StatusBadRequest)
			return
		}
		tracks, err := cat.FetchPlaylistTracks(r.Context(), req.PlaylistID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if len(tracks) == 0 {
			http.Error(w, "playlist has no playable tracks", http.StatusNotFound)
			return
		}
		engine.PlayTracks(tracks, 0)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "count": len(tracks)})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		server.Close()
	}()

	logger.Info("segue live", logger.String("addr", addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("http server failed", logger.Err(err))
	}
}
