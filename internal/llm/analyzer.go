package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/koksal000/engel/internal/store"
)

// Analyzer produces the preliminary assessment from an uploaded photo.
type Analyzer struct {
	Client *GeminiClient
}

func NewAnalyzer(client *GeminiClient) *Analyzer {
	return &Analyzer{Client: client}
}

const analyzerSystemPrompt = `You are an AI expert in analyzing images to estimate age, identify potential disabilities, and highlight affected body areas. All textual output MUST be in Turkish.

Respond with a single JSON object with exactly these fields:
- "estimatedAge": number
- "disabilityPercentage": number (0-100)
- "disabilityTypes": array of Turkish strings (e.g. zihinsel, fiziksel, nörolojik, duyusal, gelişimsel)
- "affectedBodyAreas": array of Turkish strings
- "redLightAreas": array of objects {"x": number 0-100, "y": number 0-100, "description": optional Turkish string} marking areas of concern on the image as percentage coordinates
- "report": a comprehensive Turkish report covering the person's general condition, possible disabilities and their types, affected body areas, and overall health insights`

// Assess analyzes the photo and returns the structured assessment payload.
// Failures are ErrGeneration; the caller does not retry.
func (a *Analyzer) Assess(ctx context.Context, photo []byte, mimeType, name, surname string) (store.Assessment, error) {
	if len(photo) == 0 {
		return store.Assessment{}, fmt.Errorf("%w: empty photo", ErrGeneration)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	prompt := fmt.Sprintf("Analyze this photo of %s %s. Consider factors like wrinkles, posture, body shape, and other indicators.", name, surname)
	contents := []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{{Text: prompt}, imagePart(photo, mimeType)},
	}}

	raw, err := a.Client.generate(ctx, analyzerSystemPrompt, contents, true)
	if err != nil {
		return store.Assessment{}, err
	}

	var out store.Assessment
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return store.Assessment{}, fmt.Errorf("%w: bad assessment json: %v", ErrGeneration, err)
	}
	if out.Report == "" {
		return store.Assessment{}, fmt.Errorf("%w: assessment missing report", ErrGeneration)
	}
	return out, nil
}

// stripFences removes a markdown code fence the model sometimes wraps JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
