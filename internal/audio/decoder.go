package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DecodeFunc converts a source path or URL to interleaved stereo int16
// samples at SampleRate. The engine takes it as a dependency so tests can
// substitute synthetic PCM.
type DecodeFunc func(ctx context.Context, src string) ([]int16, error)

// FFmpegBin is the ffmpeg binary used for decoding and stream encoding.
// Set once at startup, before any decode runs.
var FFmpegBin = "ffmpeg"

// DecodeSource runs FFmpeg to decode an audio file or URL to raw PCM.
// Network sources get reconnect flags so a flaky stream does not abort
// the whole decode.
func DecodeSource(ctx context.Context, src string) ([]int16, error) {
	args := []string{}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	args = append(args,
		"-i", src,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", fmt.Sprintf("%d", Channels),
		"-loglevel", "error",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, FFmpegBin, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", src, err)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(uint16(out[i*2]) | uint16(out[i*2+1])<<8)
	}
	return samples, nil
}
