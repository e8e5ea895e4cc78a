package tts

import (
	"context"
	"encoding/base64"
	"fmt"
)

// silentWAVBase64 is a minimal valid WAV file with an empty data chunk.
// It is played in place of the real reply when synthesis fails, so playback
// completes normally and the call never shows a visible error.
const silentWAVBase64 = "UklGRiQAAABXQVZFZm10IBAAAAABAAEARKwAAIhYAQACABAAZGF0YQAAAAA="

var silentWAV []byte

func init() {
	var err error
	silentWAV, err = base64.StdEncoding.DecodeString(silentWAVBase64)
	if err != nil {
		panic("tts: bad silent wav asset: " + err.Error())
	}
}

// SilentWAV returns a copy of the silent fallback asset.
func SilentWAV() []byte {
	cp := make([]byte, len(silentWAV))
	copy(cp, silentWAV)
	return cp
}

// Unavailable is the Synthesizer used when no TTS credentials are configured.
// Every request fails, which degrades calls to silent playback.
type Unavailable struct{}

func (Unavailable) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return nil, fmt.Errorf("%w: no synthesizer configured", ErrSynthesis)
}
