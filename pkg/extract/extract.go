// Package extract finds the placeholders of an uploaded document and the
// question to ask a human for each of them.
package extract

import (
	"context"
	"fmt"
	"strings"

	"legalscan/pkg/placeholder"
)

type Question struct {
	Placeholder string `json:"placeholder"`
	Question    string `json:"question"`
}

// Extractor lists the placeholders of a document's text in document order,
// one entry per occurrence.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]Question, error)
}

// PatternExtractor finds placeholders with the built-in token scanner. It needs no
// network and is deterministic.
type PatternExtractor struct{}

func (PatternExtractor) Extract(_ context.Context, text string) ([]Question, error) {
	found := placeholder.Scan(text)
	out := make([]Question, 0, len(found))
	for _, f := range found {
		out = append(out, Question{
			Placeholder: f.Token.Raw,
			Question:    questionFor(f.Token, lead(text, f.Offset)),
		})
	}
	return out, nil
}

// lead returns up to six words before offset on the same line.
func lead(text string, offset int) string {
	start := strings.LastIndex(text[:offset], "\n") + 1
	words := strings.Fields(text[start:offset])
	if len(words) > 6 {
		words = words[len(words)-6:]
	}
	return strings.Trim(strings.Join(words, " "), " :-,;([")
}

func questionFor(tok placeholder.Token, near string) string {
	switch tok.Kind {
	case placeholder.KindLabeled:
		return fmt.Sprintf("What should be entered for %s?", tok.Label)
	case placeholder.KindCurrency:
		if near != "" {
			return fmt.Sprintf("What dollar amount is the %s?", near)
		}
		return "What dollar amount goes in " + tok.Raw + "?"
	case placeholder.KindTemplate:
		name := strings.TrimSpace(strings.Trim(tok.Raw, "{}"))
		return fmt.Sprintf("What is the %s?", strings.ToLower(strings.ReplaceAll(name, "_", " ")))
	case placeholder.KindVerbatim:
		name := strings.Trim(tok.Raw, "[]")
		if strings.Trim(name, "_ ") == "" {
			if near != "" {
				return fmt.Sprintf("What goes in the blank after %q?", near)
			}
			return "What goes in the blank " + tok.Raw + "?"
		}
		return fmt.Sprintf("What is the %s?", name)
	default:
		panic(fmt.Sprintf("extract: unhandled kind %v", tok.Kind))
	}
}

// keepPresent drops questions whose placeholder does not occur in text and
// fills in missing question text.
func keepPresent(text string, qs []Question) []Question {
	out := qs[:0]
	for _, q := range qs {
		p := strings.TrimSpace(q.Placeholder)
		if p == "" {
			continue
		}
		tok := placeholder.Classify(p)
		present := strings.Contains(text, p)
		if !present && tok.Kind == placeholder.KindLabeled {
			present = strings.Contains(text, tok.Label+":")
		}
		if !present {
			continue
		}
		q.Placeholder = p
		if strings.TrimSpace(q.Question) == "" {
			q.Question = questionFor(tok, "")
		}
		out = append(out, q)
	}
	return out
}
