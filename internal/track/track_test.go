package track

import (
	"testing"
)

func TestNormalizeFieldAliases(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want string // resolved FileURL
	}{
		{"fileUrl", map[string]any{"fileUrl": "a.mp3"}, "a.mp3"},
		{"audioUrl", map[string]any{"audioUrl": "b.mp3"}, "b.mp3"},
		{"url", map[string]any{"url": "c.mp3"}, "c.mp3"},
		{"streamUrl", map[string]any{"streamUrl": "d.mp3"}, "d.mp3"},
		{"priority", map[string]any{"streamUrl": "low.mp3", "fileUrl": "high.mp3"}, "high.mp3"},
	}
	for _, tt := range tests {
		got := Normalize(tt.raw)
		if got.FileURL != tt.want {
			t.Errorf("%s: FileURL = %q, want %q", tt.name, got.FileURL, tt.want)
		}
	}
}

func TestNormalizeCoverAliases(t *testing.T) {
	got := Normalize(map[string]any{"cover": "art.jpg"})
	if got.CoverImage != "art.jpg" {
		t.Errorf("CoverImage = %q, want art.jpg", got.CoverImage)
	}
}

func TestNormalizeNeverPanics(t *testing.T) {
	raws := []map[string]any{
		nil,
		{},
		{"id": 42, "title": []string{"x"}, "duration": "long"},
		{"fileUrl": nil},
	}
	for i, raw := range raws {
		got := Normalize(raw) // must not panic
		if got.Playable() {
			t.Errorf("case %d: garbage record should not be playable", i)
		}
	}
}

func TestNormalizeDefaults(t *testing.T) {
	got := Normalize(map[string]any{"fileUrl": "x.mp3"})
	if got.ID != "" || got.Title != "" || got.Duration != 0 {
		t.Errorf("missing fields should zero out: %+v", got)
	}
	if got.ReleaseDate == "" {
		t.Error("ReleaseDate should default to current date")
	}
}

func TestNormalizeSecondaryKeys(t *testing.T) {
	got := Normalize(map[string]any{"trackId": "t1", "name": "Song", "url": "s.mp3"})
	if got.ID != "t1" || got.Title != "Song" {
		t.Errorf("secondary keys not applied: %+v", got)
	}
}

func TestNormalizeDurationTypes(t *testing.T) {
	if got := Normalize(map[string]any{"duration": 183.5}); got.Duration != 183.5 {
		t.Errorf("float64 duration = %v", got.Duration)
	}
	if got := Normalize(map[string]any{"duration": 90}); got.Duration != 90 {
		t.Errorf("int duration = %v", got.Duration)
	}
}

func TestFilterPlayable(t *testing.T) {
	in := []Track{
		{ID: "a", FileURL: "a.mp3"},
		{ID: "b"}, // no source
		{ID: "c", FileURL: "c.mp3"},
		{ID: "a", FileURL: "dup.mp3"}, // duplicate id
	}
	got := FilterPlayable(in)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("unexpected order/content: %+v", got)
	}
	if got[0].FileURL != "a.mp3" {
		t.Errorf("first occurrence should win, got %q", got[0].FileURL)
	}
}

func TestNormalizeAllDropsNonPlayable(t *testing.T) {
	got := NormalizeAll([]map[string]any{
		{"id": "1", "fileUrl": "one.mp3"},
		{"id": "2"},
		{"id": "3", "streamUrl": "three.mp3"},
	})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"https://cdn.example.com", "/audio/a.mp3", "https://cdn.example.com/audio/a.mp3"},
		{"https://cdn.example.com/", "audio/a.mp3", "https://cdn.example.com/audio/a.mp3"},
		{"https://cdn.example.com", "https://other.com/b.mp3", "https://other.com/b.mp3"},
		{"https://cdn.example.com", "http://other.com/b.mp3", "http://other.com/b.mp3"},
		{"https://cdn.example.com", "", ""},
	}
	for _, tt := range tests {
		if got := ResolveURL(tt.base, tt.ref); got != tt.want {
			t.Errorf("ResolveURL(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}
