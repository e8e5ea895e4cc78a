package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

// ErrSynthesis wraps any speech-synthesis provider fault. Callers do not
// retry; playback substitutes the silent asset instead.
var ErrSynthesis = errors.New("synthesis failed")

// Synthesizer converts text to a playable WAV asset.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Google synthesizes speech via the Cloud Text-to-Speech API.
type Google struct {
	client   *texttospeech.Client
	language string
	voice    string
}

func NewGoogle(ctx context.Context, apiKey, language, voice string) (*Google, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: google tts api key missing", ErrSynthesis)
	}
	client, err := texttospeech.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", ErrSynthesis, err)
	}
	return &Google{client: client, language: language, voice: voice}, nil
}

func (g *Google) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", ErrSynthesis)
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.language,
			Name:         g.voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: 24000,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if len(resp.AudioContent) == 0 {
		return nil, fmt.Errorf("%w: no audio returned", ErrSynthesis)
	}
	return resp.AudioContent, nil
}

func (g *Google) Close() error { return g.client.Close() }
