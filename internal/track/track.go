package track

import (
	"strings"
	"time"
)

// Track is the canonical track value object. Every API shape in the wild
// (upload records, playlist rows, external catalog results) is mapped into
// this one form before it reaches the playback engine.
type Track struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	FileURL     string  `json:"fileUrl"`
	CoverImage  string  `json:"coverImage,omitempty"`
	Duration    float64 `json:"duration,omitempty"` // seconds; UI hint only
	Genre       string  `json:"genre,omitempty"`
	Album       string  `json:"album,omitempty"`
	ReleaseDate string  `json:"releaseDate,omitempty"`
}

// Playable reports whether the track has a resolvable audio source.
// Non-playable tracks must never enter a queue.
func (t Track) Playable() bool {
	return t.FileURL != ""
}

// Field aliases seen across API shapes, in priority order.
var (
	urlKeys   = []string{"fileUrl", "audioUrl", "url", "streamUrl"}
	coverKeys = []string{"coverImage", "cover", "coverUrl", "artwork"}
)

// Normalize maps an arbitrary record into a canonical Track. It never
// panics: missing or mistyped fields fall back to zero values, and a
// missing release date defaults to the current date.
func Normalize(raw map[string]any) Track {
	t := Track{
		ID:          str(raw, "id"),
		Title:       str(raw, "title"),
		Artist:      str(raw, "artist"),
		FileURL:     firstStr(raw, urlKeys),
		CoverImage:  firstStr(raw, coverKeys),
		Duration:    num(raw, "duration"),
		Genre:       str(raw, "genre"),
		Album:       str(raw, "album"),
		ReleaseDate: str(raw, "releaseDate"),
	}
	if t.ID == "" {
		t.ID = str(raw, "trackId")
	}
	if t.Title == "" {
		t.Title = str(raw, "name")
	}
	if t.ReleaseDate == "" {
		t.ReleaseDate = time.Now().Format("2006-01-02")
	}
	return t
}

// NormalizeAll maps a list of records, dropping entries that normalize to a
// non-playable track.
func NormalizeAll(raws []map[string]any) []Track {
	out := make([]Track, 0, len(raws))
	for _, raw := range raws {
		if t := Normalize(raw); t.Playable() {
			out = append(out, t)
		}
	}
	return out
}

// FilterPlayable returns only tracks with a non-empty source, deduplicated
// by id (first occurrence wins).
func FilterPlayable(tracks []Track) []Track {
	out := make([]Track, 0, len(tracks))
	seen := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		if !t.Playable() {
			continue
		}
		if t.ID != "" && seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

// ResolveURL prefixes base when ref is not already fully qualified.
func ResolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return base + ref
}

func str(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func firstStr(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if v := str(raw, k); v != "" {
			return v
		}
	}
	return ""
}

func num(raw map[string]any, key string) float64 {
	switch v := raw[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
