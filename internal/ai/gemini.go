package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zeizeiwaii/Datastar/internal/modules/decision"
)

// GeminiBriefer implements Briefer using Google's Gemini models.
type GeminiBriefer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiBriefer initializes a new Gemini client.
func NewGeminiBriefer(ctx context.Context, apiKey string) (*GeminiBriefer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-2.0-flash")
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)

	return &GeminiBriefer{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (b *GeminiBriefer) Close() {
	b.client.Close()
}

// BriefDecision asks the model for a dispatcher note about d.
func (b *GeminiBriefer) BriefDecision(ctx context.Context, d *decision.Decision) (*Brief, error) {
	resp, err := b.model.GenerateContent(ctx, genai.Text(buildBriefPrompt(d)))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return parseBrief(text.String())
}

func buildBriefPrompt(d *decision.Decision) string {
	return fmt.Sprintf(`Role: You assist the dispatcher of a shared-ride shuttle service.
A rule engine has already made the following call for cluster %d. Do not change it.

%s

Reply with JSON only: {"headline": string, "note": string, "risk": string}.
- "headline": at most 8 words.
- "note": one or two sentences a dispatcher can read aloud.
- "risk": mention it only if a metric sits within 10%% of its threshold, else "".`,
		d.ClusterID, decision.Explain(d))
}

func parseBrief(raw string) (*Brief, error) {
	clean := cleanJSONString(raw)
	var b Brief
	if err := json.Unmarshal([]byte(clean), &b); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, clean)
	}
	if b.Headline == "" && b.Note == "" {
		return nil, fmt.Errorf("empty brief")
	}
	return &b, nil
}

func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
