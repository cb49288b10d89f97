// Package loudness measures track loudness by a full offline decode,
// independent of the playback path, so crossfades can match perceived
// levels between tracks. Measurement is a best-effort enhancement: it
// never blocks or breaks playback, and every failure degrades to
// documented fallback values.
package loudness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/redis/go-redis/v9"

	"github.com/seguefm/segue/internal/logger"
)

// Measurement is the loudness profile of one track.
type Measurement struct {
	DB   float64 `json:"db"`   // average level, dBFS
	LUFS float64 `json:"lufs"` // integrated loudness estimate
	Peak float64 `json:"peak"` // sample peak, dBFS
	RMS  float64 `json:"rms"`  // linear RMS, 0..1
}

// Fallback is returned whenever fetch or decode fails.
var Fallback = Measurement{DB: -16, LUFS: -16, Peak: -6, RMS: 0.1}

const (
	// DefaultFetchTimeout bounds a track download when the caller does
	// not configure one.
	DefaultFetchTimeout = 15 * time.Second

	redisTTL = 7 * 24 * time.Hour

	// CompensationLimitDB bounds the applied loudness compensation.
	CompensationLimitDB = 12
	// MaxCompensationGain caps the linear multiplier applied to the
	// incoming channel's target gain.
	MaxCompensationGain = 4
)

// Measurer decodes tracks and memoizes measurements per URL for the
// process lifetime, with an optional redis second level shared across
// restarts.
type Measurer struct {
	http  *http.Client
	redis *redis.Client // may be nil

	mu    sync.Mutex
	cache map[string]Measurement
}

// NewMeasurer creates a measurer. redisClient may be nil; a
// non-positive fetchTimeout falls back to DefaultFetchTimeout.
func NewMeasurer(redisClient *redis.Client, fetchTimeout time.Duration) *Measurer {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &Measurer{
		http:  &http.Client{Timeout: fetchTimeout},
		redis: redisClient,
		cache: make(map[string]Measurement),
	}
}

// Measure returns the loudness profile for url. It never returns an error:
// any fetch or decode failure yields Fallback. Successful measurements are
// memoized; failures are not, so a later retry can still succeed.
func (m *Measurer) Measure(ctx context.Context, url string) Measurement {
	if url == "" {
		return Fallback
	}

	m.mu.Lock()
	if cached, ok := m.cache[url]; ok {
		m.mu.Unlock()
		return cached
	}
	m.mu.Unlock()

	if got, ok := m.fromRedis(ctx, url); ok {
		m.remember(url, got)
		return got
	}

	got, err := m.measure(ctx, url)
	if err != nil {
		logger.Debug("loudness measurement failed, using fallback",
			logger.String("url", url), logger.Err(err))
		return Fallback
	}

	m.remember(url, got)
	m.toRedis(url, got)
	return got
}

// ClearCache drops all memoized measurements.
func (m *Measurer) ClearCache() {
	m.mu.Lock()
	m.cache = make(map[string]Measurement)
	m.mu.Unlock()
}

func (m *Measurer) remember(url string, v Measurement) {
	m.mu.Lock()
	m.cache[url] = v
	m.mu.Unlock()
}

func (m *Measurer) measure(ctx context.Context, url string) (Measurement, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Measurement{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return Measurement{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Measurement{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	dec, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		return Measurement{}, fmt.Errorf("decode %s: %w", url, err)
	}
	return analyze(dec)
}

// analyze consumes the decoder's 16-bit stereo PCM and computes the
// profile. LUFS is approximated from the gated mean square without
// K-weighting; the result feeds a compensation bounded to ±12dB, which
// does not warrant full BS.1770 filtering.
func analyze(r io.Reader) (Measurement, error) {
	var (
		sumSq float64
		peak  float64
		n     int64
	)
	buf := make([]byte, 32768)
	for {
		read, err := r.Read(buf)
		for i := 0; i+1 < read; i += 2 {
			s := float64(int16(uint16(buf[i])|uint16(buf[i+1])<<8)) / 32768
			sumSq += s * s
			if a := math.Abs(s); a > peak {
				peak = a
			}
			n++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Measurement{}, fmt.Errorf("read pcm: %w", err)
		}
	}
	if n == 0 {
		return Measurement{}, fmt.Errorf("empty stream")
	}

	msq := sumSq / float64(n)
	rms := math.Sqrt(msq)
	return Measurement{
		DB:   20 * math.Log10(rms+1e-10),
		LUFS: -0.691 + 10*math.Log10(msq+1e-10),
		Peak: 20 * math.Log10(peak+1e-10),
		RMS:  rms,
	}, nil
}

// CompensationDB returns the bounded dB adjustment that brings measured
// up (or down) to target.
func CompensationDB(targetLUFS, measuredLUFS float64) float64 {
	diff := targetLUFS - measuredLUFS
	if diff > CompensationLimitDB {
		return CompensationLimitDB
	}
	if diff < -CompensationLimitDB {
		return -CompensationLimitDB
	}
	return diff
}

// CompensationGain converts the bounded dB adjustment to the linear
// multiplier applied to the incoming channel's target gain, capped at
// MaxCompensationGain.
func CompensationGain(targetLUFS, measuredLUFS float64) float64 {
	g := math.Pow(10, CompensationDB(targetLUFS, measuredLUFS)/20)
	if g > MaxCompensationGain {
		return MaxCompensationGain
	}
	return g
}

func (m *Measurer) redisKey(url string) string {
	return "loudness:" + url
}

func (m *Measurer) fromRedis(ctx context.Context, url string) (Measurement, bool) {
	if m.redis == nil {
		return Measurement{}, false
	}
	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	raw, err := m.redis.Get(rctx, m.redisKey(url)).Result()
	if err != nil {
		return Measurement{}, false
	}
	var got Measurement
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		return Measurement{}, false
	}
	return got, true
}

func (m *Measurer) toRedis(url string, v Measurement) {
	if m.redis == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.redis.Set(ctx, m.redisKey(url), raw, redisTTL).Err(); err != nil {
		logger.Debug("loudness cache write failed", logger.Err(err))
	}
}
