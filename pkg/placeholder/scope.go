package placeholder

import (
	"strconv"
	"strings"
)

// Boundary is one sentinel of a multi-party document. Key is matched against
// canonical answer keys, Marker against paragraph text. A boundary with a
// non-empty Opens closes the current scope and opens a new one, the sentinel
// itself belonging to the new scope. A boundary with an empty Opens is the
// last member of the current scope and closes it.
type Boundary struct {
	Key    string `yaml:"key" json:"key"`
	Marker string `yaml:"marker" json:"marker"`
	Opens  string `yaml:"opens" json:"opens"`
}

type ScopeRules struct {
	// Keyword marks a document as multi-party; matched case-insensitively.
	Keyword string `yaml:"keyword" json:"keyword"`
	// StopMarker ends the shared preamble filled with the full map.
	StopMarker string     `yaml:"stop_marker" json:"stop_marker"`
	Boundaries []Boundary `yaml:"boundaries" json:"boundaries"`
}

// DefaultScopeRules describe a two-party SAFE: the company signature block
// followed by the investor signature block.
func DefaultScopeRules() ScopeRules {
	return ScopeRules{
		Keyword:    "Simple Agreement for Future Equity",
		StopMarker: "Section 2",
		Boundaries: []Boundary{
			{Key: "[COMPANY]", Marker: "[COMPANY]", Opens: "company"},
			{Key: "INVESTOR:", Marker: "INVESTOR:", Opens: "investor"},
			{Key: "Email_2", Marker: "Email:"},
		},
	}
}

type ScopeBlock struct {
	Name    string
	Answers AnswerMap
}

type ScopeSet struct {
	Blocks []ScopeBlock
	rules  ScopeRules
}

// Block returns the scope with the given name.
func (s ScopeSet) Block(name string) (ScopeBlock, bool) {
	for _, b := range s.Blocks {
		if b.Name == name {
			return b, true
		}
	}
	return ScopeBlock{}, false
}

// Scope partitions m into named scopes when documentText carries the rules'
// keyword. Keys are visited in map order; boundaries fire once each, in the
// order listed. ok is false for documents that need no scoping or whose map
// carries none of the sentinels.
func Scope(m AnswerMap, documentText string, rules ScopeRules) (ScopeSet, bool) {
	if rules.Keyword == "" || !strings.Contains(strings.ToLower(documentText), strings.ToLower(rules.Keyword)) {
		return ScopeSet{}, false
	}
	var (
		order   []string
		members = map[string][]string{}
		open    string
		next    int
	)
	for _, key := range m.keys {
		closeAfter := false
		if next < len(rules.Boundaries) && SameSentinel(key, rules.Boundaries[next].Key) {
			b := rules.Boundaries[next]
			next++
			if b.Opens != "" {
				open = b.Opens
				if _, seen := members[open]; !seen {
					order = append(order, open)
					members[open] = nil
				}
			} else {
				closeAfter = true
			}
		}
		if open != "" {
			members[open] = append(members[open], key)
		}
		if closeAfter {
			open = ""
		}
	}
	if len(order) == 0 {
		return ScopeSet{}, false
	}
	set := ScopeSet{rules: rules}
	for _, name := range order {
		set.Blocks = append(set.Blocks, ScopeBlock{Name: name, Answers: m.Restrict(members[name])})
	}
	return set, true
}

// SameSentinel compares a canonical key with a sentinel, ignoring a colon
// placed before the duplicate suffix: "Email:_2" matches "Email_2" and
// "INVESTOR" matches "INVESTOR:".
func SameSentinel(key, sentinel string) bool {
	return sentinelForm(key) == sentinelForm(sentinel)
}

func sentinelForm(s string) string {
	if base, n, ok := SplitSuffix(s); ok {
		return strings.TrimSuffix(base, ":") + "_" + strconv.Itoa(n)
	}
	return strings.TrimSuffix(s, ":")
}

// Tracker follows the open scope through paragraph text in document order,
// using the boundaries' text markers.
type Tracker struct {
	rules ScopeRules
	next  int
	open  string
}

func (s ScopeSet) Tracker() *Tracker { return &Tracker{rules: s.rules} }

// Observe returns the scope the paragraph belongs to, updating the open
// scope from the markers it contains.
func (t *Tracker) Observe(paragraph string) string {
	scope := t.open
	for t.next < len(t.rules.Boundaries) {
		b := t.rules.Boundaries[t.next]
		if b.Marker == "" || !strings.Contains(paragraph, b.Marker) {
			break
		}
		t.next++
		if b.Opens == "" {
			t.open = ""
			return scope
		}
		t.open = b.Opens
		scope = t.open
	}
	return scope
}
