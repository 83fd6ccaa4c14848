package placeholder

import (
	"regexp"
	"sort"
	"strings"
)

var (
	tokenRE = regexp.MustCompile(`\$\[[^\]\n]*\]|\$_{2,}|\{\{\s*[A-Za-z0-9_]+\s*\}\}|\[[^\[\]\n]{1,80}\]`)
	labelRE = regexp.MustCompile(`(?:^|[^\pL\pN])(` + strings.Join(Labels, "|") + `):[ \t\x{00a0}]*(?:_+|$)`)
)

// Found is a placeholder occurrence located in document text.
type Found struct {
	Token  Token
	Offset int
}

// Scan lists the placeholder occurrences of text in order, duplicates
// included. Labeled placeholders are reported only when their blank is
// still open.
func Scan(text string) []Found {
	var out []Found
	for _, loc := range tokenRE.FindAllStringIndex(text, -1) {
		out = append(out, Found{Token: Classify(text[loc[0]:loc[1]]), Offset: loc[0]})
	}
	for _, line := range splitLines(text) {
		for _, m := range labelRE.FindAllStringSubmatchIndex(line.text, -1) {
			label := line.text[m[2]:m[3]]
			out = append(out, Found{Token: Classify(label + ":"), Offset: line.offset + m[2]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

type line struct {
	text   string
	offset int
}

func splitLines(text string) []line {
	var out []line
	off := 0
	for _, l := range strings.Split(text, "\n") {
		out = append(out, line{text: l, offset: off})
		off += len(l) + 1
	}
	return out
}
