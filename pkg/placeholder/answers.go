package placeholder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"legalscan/pkg/fillerr"
)

// AnswerEntry is one caller-supplied answer. Index is the caller-declared
// position among all answers of a session and decides duplicate numbering.
type AnswerEntry struct {
	Placeholder string `json:"placeholder"`
	Answer      string `json:"answer"`
	Index       int    `json:"index"`
}

// AnswerMap is an insertion-ordered mapping from unique key to answer. The
// zero value is an empty map. It is never mutated after construction.
type AnswerMap struct {
	keys   []string
	values map[string]string
	// base placeholder each key was derived from, and how many keys share it.
	bases  map[string]string
	groups map[string]int
}

type Pair struct {
	Key    string
	Answer string
}

// NewAnswerMap builds a map from already-canonical pairs, in order. A key
// ending in "_<n>" is grouped with its de-suffixed form. Later duplicates of a
// key are ignored.
func NewAnswerMap(pairs ...Pair) AnswerMap {
	var b mapBuilder
	for _, p := range pairs {
		base, _, ok := SplitSuffix(p.Key)
		if !ok {
			base = p.Key
		}
		b.add(p.Key, base, p.Answer)
	}
	return b.build()
}

func (m AnswerMap) Len() int { return len(m.keys) }

func (m AnswerMap) Keys() []string { return append([]string(nil), m.keys...) }

func (m AnswerMap) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Base returns the placeholder a key was derived from.
func (m AnswerMap) Base(key string) string {
	if b, ok := m.bases[key]; ok {
		return b
	}
	return key
}

// Duplicated reports whether more than one key of the original canonical map
// was derived from the same placeholder as key.
func (m AnswerMap) Duplicated(key string) bool {
	return m.groups[m.Base(key)] > 1
}

// Pairs returns the entries in map order.
func (m AnswerMap) Pairs() []Pair {
	out := make([]Pair, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, Pair{Key: k, Answer: m.values[k]})
	}
	return out
}

// Restrict returns the sub-map of the given keys in m's order. Duplicate
// grouping is inherited from m so a scope still knows a key was duplicated.
func (m AnswerMap) Restrict(keys []string) AnswerMap {
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	var b mapBuilder
	for _, k := range m.keys {
		if _, ok := want[k]; ok {
			b.add(k, m.Base(k), m.values[k])
		}
	}
	out := b.build()
	out.groups = m.groups
	return out
}

type mapBuilder struct {
	keys   []string
	values map[string]string
	bases  map[string]string
}

func (b *mapBuilder) has(key string) bool {
	_, ok := b.values[key]
	return ok
}

func (b *mapBuilder) add(key, base, answer string) {
	if b.values == nil {
		b.values = map[string]string{}
		b.bases = map[string]string{}
	}
	if b.has(key) {
		return
	}
	b.keys = append(b.keys, key)
	b.values[key] = answer
	b.bases[key] = base
}

func (b *mapBuilder) build() AnswerMap {
	groups := map[string]int{}
	for _, k := range b.keys {
		groups[b.bases[k]]++
	}
	return AnswerMap{keys: b.keys, values: b.values, bases: b.bases, groups: groups}
}

// Normalize folds answer entries into a canonical map. Entries are processed
// in ascending Index; the first answer for a placeholder is keyed by the
// placeholder itself, the nth by "<placeholder>_<n>".
func Normalize(entries []AnswerEntry) (AnswerMap, error) {
	sorted := append([]AnswerEntry(nil), entries...)
	seenIndex := make(map[int]string, len(sorted))
	for _, e := range sorted {
		if strings.TrimSpace(e.Placeholder) == "" {
			return AnswerMap{}, fillerr.New(fillerr.MalformedInput, strconv.Itoa(e.Index), "placeholder is required")
		}
		if prev, dup := seenIndex[e.Index]; dup {
			return AnswerMap{}, fillerr.New(fillerr.MalformedInput, e.Placeholder,
				fmt.Sprintf("index %d already used by %q", e.Index, prev))
		}
		seenIndex[e.Index] = e.Placeholder
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var b mapBuilder
	occurrences := map[string]int{}
	for _, e := range sorted {
		occurrences[e.Placeholder]++
		n := occurrences[e.Placeholder]
		key := e.Placeholder
		if n > 1 {
			key = suffixed(e.Placeholder, n)
		}
		// a literal placeholder may already own the generated key
		for b.has(key) {
			n++
			key = suffixed(e.Placeholder, n)
		}
		b.add(key, e.Placeholder, SanitizeAnswer(e.Answer))
	}
	return b.build(), nil
}

func suffixed(placeholder string, n int) string {
	return placeholder + "_" + strconv.Itoa(n)
}

// SanitizeAnswer makes an answer safe for a single-line field: line breaks
// become spaces, surrounding whitespace is trimmed and the text is NFC.
func SanitizeAnswer(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return norm.NFC.String(strings.TrimSpace(s))
}

// EntriesFromPairs numbers ordered (placeholder, answer) pairs by position.
func EntriesFromPairs(pairs []Pair) []AnswerEntry {
	out := make([]AnswerEntry, 0, len(pairs))
	for i, p := range pairs {
		out = append(out, AnswerEntry{Placeholder: p.Key, Answer: p.Answer, Index: i})
	}
	return out
}
