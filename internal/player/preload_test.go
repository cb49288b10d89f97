package player

import (
	"context"
	"testing"
	"time"

	"github.com/seguefm/segue/internal/audio"
)

func waitPreloaded(t *testing.T, p *Preloader, src string) []int16 {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		done := p.src == src && p.samples != nil
		p.mu.Unlock()
		if done {
			samples, ok := p.Take(src)
			if !ok {
				t.Fatal("Take missed a completed preload")
			}
			return samples
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("preload never completed")
	return nil
}

func TestPreloadAndTake(t *testing.T) {
	p := NewPreloader(constantPCM(1, 42))
	p.Preload(context.Background(), "u")

	samples := waitPreloaded(t, p, "u")
	if len(samples) == 0 || samples[0] != 42 {
		t.Errorf("preloaded samples wrong: len=%d", len(samples))
	}

	// Take consumed the entry
	if _, ok := p.Take("u"); ok {
		t.Error("second Take should miss")
	}
}

func TestTakeMismatchedSource(t *testing.T) {
	p := NewPreloader(constantPCM(1, 1))
	p.Preload(context.Background(), "a")
	waitPreloadedKeep(t, p, "a")

	if _, ok := p.Take("b"); ok {
		t.Error("Take for a different source should miss")
	}
	if _, ok := p.Take("a"); !ok {
		t.Error("mismatched Take must not consume the held track")
	}
}

func waitPreloadedKeep(t *testing.T, p *Preloader, src string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		done := p.src == src && p.samples != nil
		p.mu.Unlock()
		if done {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("preload never completed")
}

func TestPreloadSupersede(t *testing.T) {
	blocked := make(chan struct{})
	decode := func(ctx context.Context, src string) ([]int16, error) {
		if src == "slow" {
			select {
			case <-blocked:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return make([]int16, audio.FrameSamples), nil
	}
	p := NewPreloader(decode)
	p.Preload(context.Background(), "slow")
	p.Preload(context.Background(), "fast") // cancels the slow decode
	waitPreloadedKeep(t, p, "fast")

	close(blocked)
	time.Sleep(10 * time.Millisecond)
	if _, ok := p.Take("slow"); ok {
		t.Error("superseded preload must not be retained")
	}
	if _, ok := p.Take("fast"); !ok {
		t.Error("latest preload should win")
	}
}

func TestPreloadCancel(t *testing.T) {
	p := NewPreloader(constantPCM(1, 1))
	p.Preload(context.Background(), "u")
	waitPreloadedKeep(t, p, "u")

	p.Cancel()
	if _, ok := p.Take("u"); ok {
		t.Error("Cancel should drop the held track")
	}
}

func TestPreloadSameSourceNoop(t *testing.T) {
	calls := 0
	done := make(chan struct{}, 2)
	decode := func(ctx context.Context, src string) ([]int16, error) {
		calls++
		done <- struct{}{}
		return make([]int16, audio.FrameSamples), nil
	}
	p := NewPreloader(decode)
	p.Preload(context.Background(), "u")
	<-done
	waitPreloadedKeep(t, p, "u")
	p.Preload(context.Background(), "u") // already held

	select {
	case <-done:
		t.Error("re-preloading a held source should not decode again")
	case <-time.After(50 * time.Millisecond):
	}
	if calls != 1 {
		t.Errorf("decode calls = %d, want 1", calls)
	}
}
