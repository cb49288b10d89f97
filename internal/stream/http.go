package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"

	"github.com/seguefm/segue/internal/audio"
	"github.com/seguefm/segue/internal/logger"
)

// HTTPHandler serves the player output as a chunked MP3 stream. Each
// connection gets its own FFmpeg encoder fed from a broadcast outlet.
type HTTPHandler struct {
	broadcaster *Broadcaster
}

// NewHTTPHandler creates the /stream handler.
func NewHTTPHandler(b *Broadcaster) *HTTPHandler {
	return &HTTPHandler{broadcaster: b}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "segue")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, audio.FFmpegBin,
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		logger.Error("mp3 stream stdin pipe failed", logger.Err(err))
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logger.Error("mp3 stream stdout pipe failed", logger.Err(err))
		return
	}
	if err := cmd.Start(); err != nil {
		logger.Error("mp3 encoder start failed", logger.Err(err))
		return
	}

	outlet := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(outlet)

	logger.Info("mp3 listener connected",
		logger.String("remote", r.RemoteAddr),
		logger.Int("outlets", h.broadcaster.Outlets()))
	defer logger.Info("mp3 listener disconnected", logger.String("remote", r.RemoteAddr))

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-outlet.Done():
				return
			case frame, ok := <-outlet.C:
				if !ok {
					return
				}
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				logger.Warn("mp3 encoder read failed", logger.Err(err))
			}
			break
		}
	}

	cmd.Wait()
}
