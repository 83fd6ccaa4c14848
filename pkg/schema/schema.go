// Package schema holds predefined field schemas for known template families.
// A schema maps each logical field to the template tokens it fills, so a
// family can be filled without the extraction step.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"legalscan/pkg/fillerr"
	"legalscan/pkg/placeholder"
)

type FieldType string

const (
	FieldString  FieldType = "STRING"
	FieldDate    FieldType = "DATE"
	FieldMoney   FieldType = "MONEY"
	FieldEmail   FieldType = "EMAIL"
	FieldAddress FieldType = "ADDRESS"
)

type Field struct {
	Key           string    `yaml:"key" json:"key"`
	Type          FieldType `yaml:"type" json:"type"`
	Required      bool      `yaml:"required" json:"required"`
	Question      string    `yaml:"question" json:"question"`
	Aliases       []string  `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	AllowedValues []string  `yaml:"allowed_values,omitempty" json:"allowed_values,omitempty"`
}

// Tokens returns the template tokens the field fills. Without explicit
// aliases these are the upper-snake and title-snake forms of the key.
func (f Field) Tokens() []string {
	if len(f.Aliases) > 0 {
		return append([]string(nil), f.Aliases...)
	}
	parts := strings.Split(f.Key, "_")
	title := make([]string, len(parts))
	for i, p := range parts {
		if p == "" {
			continue
		}
		title[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	upper := "{{" + strings.ToUpper(f.Key) + "}}"
	titled := "{{" + strings.Join(title, "_") + "}}"
	if upper == titled {
		return []string{upper}
	}
	return []string{upper, titled}
}

type Schema struct {
	Family string  `yaml:"family" json:"family"`
	Title  string  `yaml:"title" json:"title"`
	Fields []Field `yaml:"fields" json:"fields"`
}

// Question is what a caller shows to a human for one field.
type Question struct {
	Key      string    `json:"key"`
	Question string    `json:"question"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

func (s *Schema) Questions() []Question {
	out := make([]Question, 0, len(s.Fields))
	for _, f := range s.Fields {
		q := f.Question
		if q == "" {
			q = "What is the " + strings.ReplaceAll(f.Key, "_", " ") + "?"
		}
		out = append(out, Question{Key: f.Key, Question: q, Type: f.Type, Required: f.Required})
	}
	return out
}

type FieldValidationError struct {
	Key    string
	Reason string
}

func (e *FieldValidationError) Error() string {
	return fmt.Sprintf("field %q invalid: %s", e.Key, e.Reason)
}

// Entries validates values against the schema and expands them into answer
// entries, one per template token. Missing required fields, unknown keys and
// invalid values are MalformedInput.
func (s *Schema) Entries(values map[string]string) ([]placeholder.AnswerEntry, error) {
	known := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		known[f.Key] = struct{}{}
	}
	for k := range values {
		if _, ok := known[k]; !ok {
			return nil, fillerr.New(fillerr.MalformedInput, k, "unknown field for family "+s.Family)
		}
	}

	var out []placeholder.AnswerEntry
	for _, f := range s.Fields {
		raw, has := values[f.Key]
		if !has || strings.TrimSpace(raw) == "" {
			if f.Required {
				return nil, fillerr.New(fillerr.MalformedInput, f.Key, "required field is missing")
			}
			continue
		}
		v, err := Canonicalize(f, raw)
		if err != nil {
			return nil, fillerr.Wrap(fillerr.MalformedInput, f.Key, err)
		}
		for _, tok := range f.Tokens() {
			out = append(out, placeholder.AnswerEntry{Placeholder: tok, Answer: v, Index: len(out)})
		}
	}
	return out, nil
}

var (
	reISODate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reEmail   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	reAmount  = regexp.MustCompile(`^(\d+)(\.\d{1,2})?$`)
)

const documentDate = "January 2, 2006"

// Canonicalize validates raw for f and returns the text written into the
// document.
func Canonicalize(f Field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &FieldValidationError{Key: f.Key, Reason: "empty value"}
	}
	var canonical string

	switch f.Type {
	case FieldString, FieldAddress:
		canonical = raw

	case FieldDate:
		var (
			d   time.Time
			err error
		)
		if reISODate.MatchString(raw) {
			d, err = time.Parse("2006-01-02", raw)
		} else {
			d, err = time.Parse(documentDate, raw)
		}
		if err != nil {
			return "", &FieldValidationError{Key: f.Key, Reason: `date must be YYYY-MM-DD or like "January 2, 2006"`}
		}
		canonical = d.Format(documentDate)

	case FieldMoney:
		cents, err := parseAmount(raw)
		if err != nil {
			return "", &FieldValidationError{Key: f.Key, Reason: err.Error()}
		}
		canonical = formatAmount(cents)

	case FieldEmail:
		if !reEmail.MatchString(raw) {
			return "", &FieldValidationError{Key: f.Key, Reason: "invalid email address"}
		}
		canonical = raw

	default:
		return "", &FieldValidationError{Key: f.Key, Reason: "unsupported type"}
	}

	if len(f.AllowedValues) > 0 {
		ok := false
		for _, av := range f.AllowedValues {
			if canonical == av {
				ok = true
				break
			}
		}
		if !ok {
			return "", &FieldValidationError{Key: f.Key, Reason: "value not in allowed set"}
		}
	}
	return canonical, nil
}

// parseAmount reads "$1,250,000.5" style amounts into cents. The document
// template supplies the currency sign.
func parseAmount(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	m := reAmount.FindStringSubmatch(s)
	if m == nil {
		return 0, errors.New(`amount must be like "25,000" or "1250000.00"`)
	}
	dollars, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || dollars > math.MaxInt64/100-1 {
		return 0, errors.New("amount is too large")
	}
	var cents int64
	if m[2] != "" {
		frac := strings.TrimPrefix(m[2], ".")
		if len(frac) == 1 {
			frac += "0"
		}
		c, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, errors.New("invalid cents")
		}
		cents = c
	}
	return dollars*100 + cents, nil
}

func formatAmount(cents int64) string {
	digits := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if c := cents % 100; c != 0 {
		fmt.Fprintf(&b, ".%02d", c)
	}
	return b.String()
}

// Parse decodes one YAML schema document. Unknown fields are rejected.
func Parse(data []byte) (*Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Schema
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("schema: empty document")
		}
		return nil, fmt.Errorf("schema: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schema) validate() error {
	if strings.TrimSpace(s.Family) == "" {
		return errors.New("schema: family is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %s: no fields", s.Family)
	}
	seenKey := map[string]bool{}
	seenToken := map[string]string{}
	for _, f := range s.Fields {
		if f.Key == "" {
			return fmt.Errorf("schema %s: field without key", s.Family)
		}
		if seenKey[f.Key] {
			return fmt.Errorf("schema %s: duplicate field %q", s.Family, f.Key)
		}
		seenKey[f.Key] = true
		switch f.Type {
		case FieldString, FieldDate, FieldMoney, FieldEmail, FieldAddress:
		default:
			return fmt.Errorf("schema %s: field %q has unsupported type %q", s.Family, f.Key, f.Type)
		}
		for _, tok := range f.Tokens() {
			if other, dup := seenToken[tok]; dup {
				return fmt.Errorf("schema %s: token %s used by %q and %q", s.Family, tok, other, f.Key)
			}
			seenToken[tok] = f.Key
		}
	}
	return nil
}
