package placeholder

import "strings"

type Options struct {
	LabelStyle LabelStyle
	// SuppressRepeatedCurrency enables the repeated-currency guard: within one
	// block, a currency blank is not filled when its value equals the value
	// most recently filled into a currency blank of the same block.
	SuppressRepeatedCurrency bool
}

func DefaultOptions() Options {
	return Options{LabelStyle: LabelColon, SuppressRepeatedCurrency: true}
}

// Substituter rewrites blocks for one fill operation. It remembers which
// duplicated keys were already used so that P, P_2, P_3 land on successive
// occurrences in document order. A Substituter must not be shared between
// documents or goroutines.
type Substituter struct {
	opts     Options
	consumed map[string]bool
	applied  map[string]int
}

func NewSubstituter(opts Options) *Substituter {
	return &Substituter{opts: opts, consumed: map[string]bool{}, applied: map[string]int{}}
}

// RewriteBlock substitutes m into the concatenated text of runs. When
// anything changed, the whole text moves into the first run and the other
// runs are emptied; otherwise runs is returned as is and changed is false.
func (s *Substituter) RewriteBlock(runs []string, m AnswerMap) (out []string, changed bool) {
	if len(runs) == 0 || m.Len() == 0 {
		return runs, false
	}
	merged := strings.Join(runs, "")
	text := merged
	var lastCurrency string
	haveCurrency := false

	for _, key := range m.keys {
		if s.consumed[key] {
			continue
		}
		answer := m.values[key]
		limit := -1
		if m.Duplicated(key) {
			limit = 1
		}
		for _, cand := range candidates(key, m.Base(key)) {
			tok := Classify(cand)
			if tok.Kind == KindCurrency && s.repeatedCurrency(haveCurrency, lastCurrency, answer) && tok.present(text) {
				break
			}
			next, n := tok.rewrite(text, answer, limit, s.opts.LabelStyle)
			if n == 0 {
				continue
			}
			text = next
			s.applied[key] += n
			if limit > 0 {
				s.consumed[key] = true
			}
			if tok.Kind == KindCurrency {
				lastCurrency, haveCurrency = answer, true
			}
			break
		}
	}

	if text == merged {
		return runs, false
	}
	out = make([]string, len(runs))
	out[0] = text
	return out, true
}

func (s *Substituter) repeatedCurrency(have bool, last, answer string) bool {
	return s.opts.SuppressRepeatedCurrency && have && last == answer
}

// candidates lists the tokens tried for a key: the key itself, then the
// placeholder it was disambiguated from.
func candidates(key, base string) []string {
	if base != "" && base != key {
		return []string{key, base}
	}
	return []string{key}
}

// Applied returns how many occurrences each key replaced so far.
func (s *Substituter) Applied() map[string]int {
	out := make(map[string]int, len(s.applied))
	for k, v := range s.applied {
		out[k] = v
	}
	return out
}

// Unused lists keys of m that never replaced anything, in map order.
func (s *Substituter) Unused(m AnswerMap) []string {
	var out []string
	for _, k := range m.keys {
		if s.applied[k] == 0 {
			out = append(out, k)
		}
	}
	return out
}
