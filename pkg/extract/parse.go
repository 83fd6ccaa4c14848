package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"

	"legalscan/pkg/fillerr"
)

var fenceRE = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// ParseQuestions reads a model reply into questions. It accepts a bare list,
// an object wrapping the list under "questions", "fields" or "placeholders",
// markdown code fences, and JSON the model got slightly wrong. Anything else is
// ExtractionParseFailure.
func ParseQuestions(raw string) ([]Question, error) {
	s := strings.TrimSpace(raw)
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if s == "" {
		return nil, fillerr.New(fillerr.ExtractionParseFailure, "extraction", "empty reply")
	}
	v, err := decodeLenient(s)
	if err != nil {
		return nil, fillerr.Wrap(fillerr.ExtractionParseFailure, "extraction", err)
	}
	items, err := listOf(v)
	if err != nil {
		return nil, fillerr.Wrap(fillerr.ExtractionParseFailure, "extraction", err)
	}
	out := make([]Question, 0, len(items))
	for i, it := range items {
		q, err := questionOf(it)
		if err != nil {
			return nil, fillerr.Wrap(fillerr.ExtractionParseFailure, "extraction", fmt.Errorf("item %d: %w", i, err))
		}
		out = append(out, q)
	}
	return out, nil
}

// decodeLenient tries strict JSON, then repaired JSON, then Hjson.
func decodeLenient(s string) (any, error) {
	var v any
	strictErr := json.Unmarshal([]byte(s), &v)
	if strictErr == nil {
		return v, nil
	}
	if repaired, err := jsonrepair.RepairJSON(s); err == nil {
		var rv any
		if err := json.Unmarshal([]byte(repaired), &rv); err == nil && isContainer(rv) {
			return rv, nil
		}
	}
	var hv any
	if err := hjson.Unmarshal([]byte(s), &hv); err == nil && isContainer(hv) {
		return hv, nil
	}
	return nil, fmt.Errorf("reply is not JSON: %w", strictErr)
}

func isContainer(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return true
	}
	return false
}

func listOf(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		for _, k := range []string{"questions", "fields", "placeholders"} {
			if inner, ok := t[k]; ok {
				if list, ok := inner.([]any); ok {
					return list, nil
				}
				return nil, fmt.Errorf("%q is not a list", k)
			}
		}
		return nil, errors.New(`object has no "questions", "fields" or "placeholders" list`)
	default:
		return nil, fmt.Errorf("unexpected %T at top level", v)
	}
}

func questionOf(it any) (Question, error) {
	switch t := it.(type) {
	case string:
		return Question{Placeholder: t}, nil
	case map[string]any:
		q := Question{
			Placeholder: firstString(t, "placeholder", "token", "field", "name"),
			Question:    firstString(t, "question", "prompt", "label"),
		}
		if q.Placeholder == "" {
			return Question{}, errors.New("missing placeholder")
		}
		return q, nil
	default:
		return Question{}, fmt.Errorf("unexpected %T", it)
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
