package extract

import (
	"context"
	"fmt"
	"unicode/utf8"

	"google.golang.org/genai"
)

// Generator sends one prompt to a language model and returns its text reply.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("extract: genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("extract: gemini generation failed: %w", err)
	}
	return result.Text(), nil
}

const systemPrompt = `You find fill-in placeholders in legal documents.
Placeholders look like [Company Name], $[_____], {{INVESTOR_NAME}}, or a label
such as "Name:" or "Title:" followed by a blank line of underscores.
Reply with a JSON array only. Each item is {"placeholder": <exact text as it
appears in the document>, "question": <a short question for the person filling
the document>}. List every occurrence in document order, including repeats, so
that a label appearing once per signatory is listed once per signatory.`

// GeminiExtractor asks a Generator for placeholders. Replies are parsed leniently and
// placeholders that do not occur in the document are dropped.
type GeminiExtractor struct {
	Gen Generator
	// MaxChars truncates very long documents before sending them; 0 means no limit.
	MaxChars int
}

func (e GeminiExtractor) Extract(ctx context.Context, text string) ([]Question, error) {
	reply, err := e.Gen.Generate(ctx, systemPrompt, "Document:\n"+truncate(text, e.MaxChars))
	if err != nil {
		return nil, err
	}
	qs, err := ParseQuestions(reply)
	if err != nil {
		return nil, err
	}
	return keepPresent(text, qs), nil
}

// truncate cuts s to at most limit bytes without splitting a character.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
