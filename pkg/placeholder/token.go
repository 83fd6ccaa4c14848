// Package placeholder holds the substitution engine: placeholder token
// classification, answer normalization, multi-party scoping and the per-block
// rewrite. It has no I/O and no process-wide state.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Kind int

const (
	KindVerbatim Kind = iota
	KindCurrency
	KindLabeled
	KindTemplate
)

func (k Kind) String() string {
	switch k {
	case KindVerbatim:
		return "verbatim"
	case KindCurrency:
		return "currency"
	case KindLabeled:
		return "labeled"
	case KindTemplate:
		return "template"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Labels recognized as labeled-colon placeholders. Matching is case-sensitive.
var Labels = []string{"Name", "Title", "Email", "Address", "By", "INVESTOR", "COMPANY", "Date", "Phone", "Signature"}

var labelSet = func() map[string]struct{} {
	out := make(map[string]struct{}, len(Labels))
	for _, l := range Labels {
		out[l] = struct{}{}
	}
	return out
}()

type LabelStyle int

const (
	// LabelColon rewrites "Name: ____" as "Name: <answer>".
	LabelColon LabelStyle = iota
	// LabelDash rewrites "Name: ____" as "Name - <answer>".
	LabelDash
)

func ParseLabelStyle(s string) (LabelStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "colon":
		return LabelColon, nil
	case "dash":
		return LabelDash, nil
	default:
		return LabelColon, fmt.Errorf("unknown label style %q", s)
	}
}

func (s LabelStyle) separator() string {
	if s == LabelDash {
		return " - "
	}
	return ": "
}

// Token is a classified placeholder. Raw is the text searched for in a block;
// Label is set for KindLabeled only.
type Token struct {
	Raw   string
	Kind  Kind
	Label string
}

func Classify(raw string) Token {
	switch {
	case len(raw) > 4 && strings.HasPrefix(raw, "{{") && strings.HasSuffix(raw, "}}"):
		return Token{Raw: raw, Kind: KindTemplate}
	case strings.HasPrefix(raw, "$"):
		return Token{Raw: raw, Kind: KindCurrency}
	}
	label := strings.TrimSuffix(raw, ":")
	if _, ok := labelSet[label]; ok {
		return Token{Raw: raw, Kind: KindLabeled, Label: label}
	}
	return Token{Raw: raw, Kind: KindVerbatim}
}

// rewrite applies the family rule of t to text, replacing at most limit
// occurrences (limit < 0 means all). It returns the new text and the number
// of occurrences rewritten.
func (t Token) rewrite(text, answer string, limit int, style LabelStyle) (string, int) {
	switch t.Kind {
	case KindVerbatim, KindTemplate:
		return replaceN(text, t.Raw, answer, limit)
	case KindCurrency:
		return replaceN(text, t.Raw, "$"+answer, limit)
	case KindLabeled:
		return rewriteLabel(text, t.Label, answer, limit, style)
	default:
		panic(fmt.Sprintf("placeholder: unhandled kind %v", t.Kind))
	}
}

// present reports whether rewrite would find anything to change.
func (t Token) present(text string) bool {
	if t.Kind == KindLabeled {
		_, n := rewriteLabel(text, t.Label, "", 1, LabelColon)
		return n > 0
	}
	return t.Raw != "" && strings.Contains(text, t.Raw)
}

func replaceN(text, old, repl string, limit int) (string, int) {
	if old == "" {
		return text, 0
	}
	n := strings.Count(text, old)
	if n == 0 {
		return text, 0
	}
	if limit >= 0 && n > limit {
		n = limit
	}
	return strings.Replace(text, old, repl, n), n
}

// rewriteLabel turns "Label:" followed by an optional blank (spaces then
// underscores) into "Label<sep><answer>". A label already followed by a word
// is treated as filled and left alone, unless that word is itself another
// "Label:" sharing the paragraph.
func rewriteLabel(text, label, answer string, limit int, style LabelStyle) (string, int) {
	needle := label + ":"
	var b strings.Builder
	n := 0
	i := 0
	for limit < 0 || n < limit {
		j := indexWord(text, needle, i)
		if j < 0 {
			break
		}
		end := j + len(needle)
		k := skipBlanks(text, end)
		u := k
		for u < len(text) && text[u] == '_' {
			u++
		}
		if u == k && u < len(text) && startsFilledWord(text[u:]) {
			b.WriteString(text[i:end])
			i = end
			continue
		}
		b.WriteString(text[i:j])
		b.WriteString(label)
		b.WriteString(style.separator())
		b.WriteString(answer)
		switch {
		case u > k, u == len(text):
			i = u
		default:
			i = end
		}
		n++
	}
	if n == 0 {
		return text, 0
	}
	b.WriteString(text[i:])
	return b.String(), n
}

// indexWord finds needle at or after from where it is not preceded by a
// letter or digit.
func indexWord(text, needle string, from int) int {
	for from <= len(text) {
		j := strings.Index(text[from:], needle)
		if j < 0 {
			return -1
		}
		j += from
		if j == 0 {
			return j
		}
		r, _ := utf8.DecodeLastRuneInString(text[:j])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return j
		}
		from = j + len(needle)
	}
	return -1
}

func skipBlanks(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r != ' ' && r != '\t' && r != '\u00a0' {
			break
		}
		i += size
	}
	return i
}

func startsFilledWord(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
		return false
	}
	w := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	if w < 0 {
		return true
	}
	return s[w] != ':'
}

var suffixRE = regexp.MustCompile(`^(.+)_([0-9]+)$`)

// SplitSuffix splits a disambiguated key "P_n" into ("P", n). ok is false for
// keys without a numeric suffix.
func SplitSuffix(key string) (base string, n int, ok bool) {
	m := suffixRE.FindStringSubmatch(key)
	if m == nil {
		return key, 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return key, 0, false
	}
	return m[1], n, true
}
