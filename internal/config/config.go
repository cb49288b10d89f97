package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Catalog API (playlist fetch, play reporting, relative URL resolution)
	APIBaseURL string

	// Redis (optional; empty addr disables it)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Crossfade defaults (user preferences override at runtime)
	CrossfadeEnabled bool
	CrossfadeSeconds float64
	CrossfadeCurve   string

	// Pro mode: extended curves, DSP chain, loudness matching
	ProMode              bool
	TargetLUFS           float64
	LoudnessMatching     bool
	LoudnessFetchTimeout time.Duration

	// Decoding
	FFmpegPath string

	// Logging
	LogLevel string
	LogPath  string
}

// Load reads configuration from a .env file (if present) and the
// environment, with sane defaults. godotenv never overrides variables that
// are already set.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port: envInt("SEGUE_PORT", 8080),

		APIBaseURL: envStr("SEGUE_API_BASE_URL", "http://localhost:9000"),

		RedisAddr:     envStr("SEGUE_REDIS_ADDR", ""),
		RedisPassword: envStr("SEGUE_REDIS_PASSWORD", ""),
		RedisDB:       envInt("SEGUE_REDIS_DB", 0),

		CrossfadeEnabled: envBool("SEGUE_CROSSFADE_ENABLED", true),
		CrossfadeSeconds: envFloat("SEGUE_CROSSFADE_SECONDS", 6),
		CrossfadeCurve:   envStr("SEGUE_CROSSFADE_CURVE", "sine"),

		ProMode:              envBool("SEGUE_PRO_MODE", false),
		TargetLUFS:           envFloat("SEGUE_TARGET_LUFS", -14),
		LoudnessMatching:     envBool("SEGUE_LOUDNESS_MATCHING", false),
		LoudnessFetchTimeout: envDur("SEGUE_LOUDNESS_FETCH_TIMEOUT", 15*time.Second),

		FFmpegPath: envStr("SEGUE_FFMPEG_PATH", "ffmpeg"),

		LogLevel: envStr("SEGUE_LOG_LEVEL", "info"),
		LogPath:  envStr("SEGUE_LOG_PATH", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
