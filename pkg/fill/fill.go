// Package fill applies an answer map to a whole document: body paragraphs,
// party-scoped signature blocks and table cells, in that order.
package fill

import (
	"fmt"
	"strings"

	"legalscan/pkg/docx"
	"legalscan/pkg/placeholder"
)

type Options struct {
	Placeholder placeholder.Options
	Scope       placeholder.ScopeRules
}

func DefaultOptions() Options {
	return Options{Placeholder: placeholder.DefaultOptions(), Scope: placeholder.DefaultScopeRules()}
}

// Report summarizes one fill. Applied and Unused list canonical keys in map
// order.
type Report struct {
	Scoped        bool     `json:"scoped"`
	BlocksChanged int      `json:"blocks_changed"`
	Applied       []string `json:"applied"`
	Unused        []string `json:"unused"`
}

// work holds the run texts computed so far, keyed by block. The document is
// only written once every pass has succeeded.
type work struct {
	sub     *placeholder.Substituter
	runs    map[*docx.Block][]string
	changed []*docx.Block
}

func (w *work) text(b *docx.Block) string {
	if r, ok := w.runs[b]; ok {
		return strings.Join(r, "")
	}
	return b.Text()
}

func (w *work) apply(b *docx.Block, m placeholder.AnswerMap) {
	cur, seen := w.runs[b]
	if !seen {
		cur = b.Runs()
	}
	out, changed := w.sub.RewriteBlock(cur, m)
	if !changed {
		return
	}
	if !seen {
		w.changed = append(w.changed, b)
	}
	w.runs[b] = out
}

// Fill substitutes m into doc. Documents recognized by opts.Scope are filled
// in three passes: the preamble up to the stop marker with the full map, every
// body paragraph with the map of the party scope open at that paragraph, then
// table cells with the full map. Other documents get the full map on every
// paragraph, then every table cell.
func Fill(doc *docx.Document, m placeholder.AnswerMap, opts Options) (Report, error) {
	w := &work{sub: placeholder.NewSubstituter(opts.Placeholder), runs: map[*docx.Block][]string{}}

	set, scoped := placeholder.Scope(m, doc.Text(), opts.Scope)
	if scoped {
		stop := opts.Scope.StopMarker
		for _, b := range doc.Paragraphs() {
			if stop != "" && strings.Contains(w.text(b), stop) {
				break
			}
			w.apply(b, m)
		}
		tr := set.Tracker()
		for _, b := range doc.Paragraphs() {
			name := tr.Observe(w.text(b))
			if name == "" {
				continue
			}
			if blk, ok := set.Block(name); ok {
				w.apply(b, blk.Answers)
			}
		}
	} else {
		for _, b := range doc.Paragraphs() {
			w.apply(b, m)
		}
	}
	for _, b := range doc.TableCells() {
		w.apply(b, m)
	}

	if err := w.commit(); err != nil {
		return Report{}, err
	}

	applied := w.sub.Applied()
	rep := Report{Scoped: scoped, BlocksChanged: len(w.changed), Unused: w.sub.Unused(m)}
	for _, k := range m.Keys() {
		if applied[k] > 0 {
			rep.Applied = append(rep.Applied, k)
		}
	}
	return rep, nil
}

func (w *work) commit() error {
	for _, b := range w.changed {
		if got, want := len(w.runs[b]), len(b.Runs()); got != want {
			return fmt.Errorf("fill: block %d: %d runs computed for %d", b.Index(), got, want)
		}
	}
	for _, b := range w.changed {
		if err := b.SetRuns(w.runs[b]); err != nil {
			return err
		}
	}
	return nil
}

// FillBytes loads a DOCX, fills it and returns the saved bytes.
func FillBytes(data []byte, m placeholder.AnswerMap, opts Options) ([]byte, Report, error) {
	doc, err := docx.Load(data)
	if err != nil {
		return nil, Report{}, err
	}
	rep, err := Fill(doc, m, opts)
	if err != nil {
		return nil, Report{}, err
	}
	out, err := doc.Save()
	if err != nil {
		return nil, Report{}, err
	}
	return out, rep, nil
}
