package tts

import (
	"context"
	"errors"
	"log"

	"github.com/koksal000/engel/internal/store"
)

// Cached memoizes synthesis results keyed by the exact input text. On a
// provider failure it returns the silent asset together with the error, so
// the caller can log the fault and still complete playback. A cache race at
// worst re-synthesizes the same text; the later put overwrites with an
// equivalent asset.
type Cached struct {
	synth Synthesizer
	cache store.SpeechCache
}

func NewCached(synth Synthesizer, cache store.SpeechCache) *Cached {
	return &Cached{synth: synth, cache: cache}
}

func (c *Cached) Synthesize(ctx context.Context, text string) ([]byte, error) {
	audio, err := c.cache.GetCachedSpeech(ctx, text)
	if err == nil {
		return audio, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Printf("speech cache get failed: %v", err)
	}

	audio, err = c.synth.Synthesize(ctx, text)
	if err != nil {
		return SilentWAV(), err
	}
	if putErr := c.cache.PutCachedSpeech(ctx, text, audio); putErr != nil {
		log.Printf("speech cache put failed: %v", putErr)
	}
	return audio, nil
}
