package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"legalscan/pkg/fillerr"
)

type fakeGenerator struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func TestParseQuestionsShapes(t *testing.T) {
	cases := map[string]string{
		"bare list":      `[{"placeholder":"[Company Name]","question":"What is the company name?"}]`,
		"questions":      `{"questions":[{"placeholder":"[Company Name]","question":"What is the company name?"}]}`,
		"fields":         `{"fields":[{"placeholder":"[Company Name]","question":"What is the company name?"}]}`,
		"code fence":     "```json\n[{\"placeholder\":\"[Company Name]\",\"question\":\"What is the company name?\"}]\n```",
		"trailing comma": `[{"placeholder":"[Company Name]","question":"What is the company name?",},]`,
		"single quotes":  `[{'placeholder':'[Company Name]','question':'What is the company name?'}]`,
		"unclosed":       `[{"placeholder":"[Company Name]","question":"What is the company name?"}`,
	}
	for name, raw := range cases {
		qs, err := ParseQuestions(raw)
		if err != nil {
			t.Fatalf("%s: unexpected err: %v", name, err)
		}
		if len(qs) != 1 || qs[0].Placeholder != "[Company Name]" || qs[0].Question != "What is the company name?" {
			t.Fatalf("%s: unexpected questions %+v", name, qs)
		}
	}
}

func TestParseQuestionsStringItemsAndAlternateKeys(t *testing.T) {
	qs, err := ParseQuestions(`{"placeholders":["[Date of Safe]", {"token":"$[_____]","prompt":"How much?"}]}`)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(qs) != 2 || qs[0].Placeholder != "[Date of Safe]" || qs[0].Question != "" {
		t.Fatalf("unexpected first question %+v", qs)
	}
	if qs[1].Placeholder != "$[_____]" || qs[1].Question != "How much?" {
		t.Fatalf("unexpected second question %+v", qs[1])
	}
}

func TestParseQuestionsFailures(t *testing.T) {
	for _, raw := range []string{"", "   ", "42", `{"answer":"none"}`, `{"questions":"none"}`, `[{"question":"no placeholder"}]`, `[1]`} {
		_, err := ParseQuestions(raw)
		if err == nil {
			t.Fatalf("expected error for %q", raw)
		}
		if !fillerr.IsKind(err, fillerr.ExtractionParseFailure) {
			t.Fatalf("expected EXTRACTION_PARSE_FAILURE for %q, got %v", raw, err)
		}
	}
}

func TestGeminiExtractorDropsPlaceholdersNotInDocument(t *testing.T) {
	text := "This SAFE is issued by [Company Name] to the Investor.\nName: ____\nName: ____"
	gen := &fakeGenerator{reply: `[
		{"placeholder":"[Company Name]","question":"What is the company name?"},
		{"placeholder":"[State of Incorporation]","question":"Which state?"},
		{"placeholder":"Name:"},
		{"placeholder":"Name"},
		{"placeholder":"  "}
	]`}
	qs, err := GeminiExtractor{Gen: gen}.Extract(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("expected 3 questions, got %+v", qs)
	}
	if qs[0].Placeholder != "[Company Name]" || qs[1].Placeholder != "Name:" || qs[2].Placeholder != "Name" {
		t.Fatalf("unexpected placeholders %+v", qs)
	}
	if qs[1].Question == "" || qs[2].Question == "" {
		t.Fatalf("missing questions must be filled in: %+v", qs)
	}
	if !strings.Contains(gen.prompt, "[Company Name]") {
		t.Fatalf("prompt must carry the document text")
	}
}

func TestGeminiExtractorTruncatesAndPropagatesErrors(t *testing.T) {
	gen := &fakeGenerator{reply: `[]`}
	if _, err := (GeminiExtractor{Gen: gen, MaxChars: 5}).Extract(context.Background(), "0123456789"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if strings.Contains(gen.prompt, "56789") {
		t.Fatalf("document was not truncated: %q", gen.prompt)
	}

	gen = &fakeGenerator{reply: `[]`}
	if _, err := (GeminiExtractor{Gen: gen, MaxChars: 4}).Extract(context.Background(), "abc€def"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !utf8.ValidString(gen.prompt) || !strings.HasSuffix(gen.prompt, "\nabc") {
		t.Fatalf("truncation must keep whole characters: %q", gen.prompt)
	}

	boom := errors.New("quota exceeded")
	_, err := GeminiExtractor{Gen: &fakeGenerator{err: boom}}.Extract(context.Background(), "x")
	if !errors.Is(err, boom) {
		t.Fatalf("expected generator error, got %v", err)
	}

	_, err = GeminiExtractor{Gen: &fakeGenerator{reply: `{"nothing":true}`}}.Extract(context.Background(), "x")
	if !fillerr.IsKind(err, fillerr.ExtractionParseFailure) {
		t.Fatalf("expected parse failure, got %v", err)
	}
}

func TestPatternExtractorListsEveryOccurrence(t *testing.T) {
	text := "THIS SAFE is issued by [Company Name]\n" +
		"Purchase Amount $[_____] paid on [Date of Safe]\n" +
		"Hello {{INVESTOR_NAME}}, also [Company Name]\n" +
		"Name: ____\n" +
		"Name: Jane Roe"
	qs, err := PatternExtractor{}.Extract(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := []string{"[Company Name]", "$[_____]", "[Date of Safe]", "{{INVESTOR_NAME}}", "[Company Name]", "Name:"}
	if len(qs) != len(want) {
		t.Fatalf("expected %d questions, got %+v", len(want), qs)
	}
	for i, w := range want {
		if qs[i].Placeholder != w {
			t.Fatalf("question %d: expected %q, got %q", i, w, qs[i].Placeholder)
		}
		if qs[i].Question == "" {
			t.Fatalf("question %d has no text", i)
		}
	}
	if qs[0].Question != "What is the Company Name?" {
		t.Fatalf("unexpected verbatim question %q", qs[0].Question)
	}
	if qs[1].Question != "What dollar amount is the Purchase Amount?" {
		t.Fatalf("unexpected currency question %q", qs[1].Question)
	}
	if qs[3].Question != "What is the investor name?" {
		t.Fatalf("unexpected template question %q", qs[3].Question)
	}
	if qs[5].Question != "What should be entered for Name?" {
		t.Fatalf("unexpected labeled question %q", qs[5].Question)
	}
}
