package bridge

import (
	"os"
	"strconv"
)

// Config tunes the audio bridge pipeline of spec.md §4.8. Every field except
// TargetSampleHz has an environment-variable override (§6), read once at
// construction; TargetSampleHz is always 48000.
type Config struct {
	FrameMillis     int  // 10 or 20
	QueueMaxFrames  int  // ring capacity; oldest dropped beyond this
	QueueTarget     int  // low-water mark that triggers backlog flush on connect
	FlushOnConnect  bool
	TURNExternalIP  string
	TargetSampleHz  int // fixed at 48000 per spec.md §4.8
}

const (
	defaultFrameMillis    = 10
	defaultQueueMaxFrames = 4
	defaultQueueTarget    = 2
	targetSampleRateHz    = 48000
)

// DefaultConfig reads WEBRTC_AUDIO_* and TURN_EXTERNAL_IP overrides, falling
// back to spec.md §4.8's defaults.
func DefaultConfig() Config {
	cfg := Config{
		FrameMillis:    defaultFrameMillis,
		QueueMaxFrames: defaultQueueMaxFrames,
		QueueTarget:    defaultQueueTarget,
		FlushOnConnect: true,
		TargetSampleHz: targetSampleRateHz,
	}
	if v := os.Getenv("WEBRTC_AUDIO_FRAME_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && (n == 10 || n == 20) {
			cfg.FrameMillis = n
		}
	}
	if v := os.Getenv("WEBRTC_AUDIO_QUEUE_FRAMES_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueueMaxFrames = n
		}
	}
	if v := os.Getenv("WEBRTC_AUDIO_QUEUE_FRAMES_TARGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueueTarget = n
		}
	}
	if v := os.Getenv("WEBRTC_AUDIO_FLUSH_ON_CONNECT"); v != "" {
		cfg.FlushOnConnect = v != "false" && v != "0"
	}
	cfg.TURNExternalIP = os.Getenv("TURN_EXTERNAL_IP")
	return cfg
}
