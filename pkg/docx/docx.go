// Package docx is a minimal WordprocessingML text model. It exposes the
// paragraphs of word/document.xml as blocks of runs and writes changed run
// text back without touching any other byte of the package.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"legalscan/pkg/fillerr"
)

const (
	wmlNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	mcNamespace  = "http://schemas.openxmlformats.org/markup-compatibility/2006"
	documentPart = "word/document.xml"
)

// textNode is one w:t element. start/end delimit the whole element in the
// document part; name is its qualified name as written.
type textNode struct {
	start, end int64
	name       string
	value      string
	dirty      bool
}

type run struct {
	texts []*textNode
}

func (r *run) text() string {
	var b strings.Builder
	for _, t := range r.texts {
		b.WriteString(t.value)
	}
	return b.String()
}

// Block is a paragraph of the body or of a table cell.
type Block struct {
	index   int
	inTable bool
	runs    []*run
}

func (b *Block) Index() int { return b.index }

func (b *Block) InTable() bool { return b.inTable }

// Runs returns the current text of each run, in order.
func (b *Block) Runs() []string {
	out := make([]string, len(b.runs))
	for i, r := range b.runs {
		out[i] = r.text()
	}
	return out
}

func (b *Block) Text() string { return strings.Join(b.Runs(), "") }

// SetRuns replaces the text of each run. The text of a run lands in its
// first w:t element; any later w:t of the same run is emptied.
func (b *Block) SetRuns(texts []string) error {
	if len(texts) != len(b.runs) {
		return fmt.Errorf("docx: block %d has %d runs, got %d texts", b.index, len(b.runs), len(texts))
	}
	for i, r := range b.runs {
		for j, t := range r.texts {
			want := ""
			if j == 0 {
				want = texts[i]
			}
			if t.value != want {
				t.value = want
				t.dirty = true
			}
		}
	}
	return nil
}

type Document struct {
	raw    []byte
	part   []byte
	blocks []*Block
}

// Load parses a DOCX package. Anything that is not a zip archive carrying a
// well-formed word/document.xml is UnsupportedFormat.
func Load(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fillerr.Wrap(fillerr.UnsupportedFormat, "document", err)
	}
	var part []byte
	for _, f := range zr.File {
		if f.Name != documentPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fillerr.Wrap(fillerr.UnsupportedFormat, documentPart, err)
		}
		part, err = io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fillerr.Wrap(fillerr.UnsupportedFormat, documentPart, err)
		}
		break
	}
	if part == nil {
		return nil, fillerr.New(fillerr.UnsupportedFormat, "document", "not a Word document: "+documentPart+" missing")
	}
	blocks, err := parseBlocks(part)
	if err != nil {
		return nil, fillerr.Wrap(fillerr.UnsupportedFormat, documentPart, err)
	}
	return &Document{raw: data, part: part, blocks: blocks}, nil
}

func parseBlocks(part []byte) ([]*Block, error) {
	dec := xml.NewDecoder(bytes.NewReader(part))
	var (
		blocks  []*Block
		paras   []*Block
		runs    []*run
		cur     *textNode
		inCell  int
		inTextT bool
		// depth inside mc:Fallback; Word repeats the mc:Choice content
		// there, so it is left as is
		fallback int
	)
	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == mcNamespace && t.Name.Local == "Fallback" {
				fallback++
				continue
			}
			if t.Name.Space != wmlNamespace || fallback > 0 {
				continue
			}
			switch t.Name.Local {
			case "tc":
				inCell++
			case "p":
				b := &Block{index: len(blocks), inTable: inCell > 0}
				blocks = append(blocks, b)
				paras = append(paras, b)
			case "r":
				r := &run{}
				runs = append(runs, r)
				if len(paras) > 0 {
					p := paras[len(paras)-1]
					p.runs = append(p.runs, r)
				}
			case "t":
				if len(runs) == 0 {
					continue
				}
				cur = &textNode{start: start, name: rawName(part[start:])}
				r := runs[len(runs)-1]
				r.texts = append(r.texts, cur)
				inTextT = true
			}
		case xml.CharData:
			if inTextT {
				cur.value += string(t)
			}
		case xml.EndElement:
			if t.Name.Space == mcNamespace && t.Name.Local == "Fallback" {
				fallback--
				continue
			}
			if t.Name.Space != wmlNamespace || fallback > 0 {
				continue
			}
			switch t.Name.Local {
			case "tc":
				inCell--
			case "p":
				if len(paras) > 0 {
					paras = paras[:len(paras)-1]
				}
			case "r":
				if len(runs) > 0 {
					runs = runs[:len(runs)-1]
				}
			case "t":
				if inTextT {
					cur.end = dec.InputOffset()
					inTextT = false
				}
			}
		}
	}
	// runs without text are not part of the model
	for _, b := range blocks {
		kept := b.runs[:0]
		for _, r := range b.runs {
			if len(r.texts) > 0 {
				kept = append(kept, r)
			}
		}
		b.runs = kept
	}
	return blocks, nil
}

// Blocks returns every paragraph in document order.
func (d *Document) Blocks() []*Block { return d.blocks }

// Paragraphs returns the body paragraphs outside tables.
func (d *Document) Paragraphs() []*Block { return d.filter(false) }

// TableCells returns the paragraphs inside table cells.
func (d *Document) TableCells() []*Block { return d.filter(true) }

func (d *Document) filter(inTable bool) []*Block {
	var out []*Block
	for _, b := range d.blocks {
		if b.inTable == inTable {
			out = append(out, b)
		}
	}
	return out
}

// Text is the visible text of the document, one line per paragraph.
func (d *Document) Text() string {
	lines := make([]string, len(d.blocks))
	for i, b := range d.blocks {
		lines[i] = b.Text()
	}
	return strings.Join(lines, "\n")
}

func (d *Document) dirtyNodes() []*textNode {
	var out []*textNode
	for _, b := range d.blocks {
		for _, r := range b.runs {
			for _, t := range r.texts {
				if t.dirty {
					out = append(out, t)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// Modified reports whether any run text differs from the loaded document.
func (d *Document) Modified() bool { return len(d.dirtyNodes()) > 0 }

// Save serializes the document. An unmodified document is returned byte for
// byte; otherwise only the rewritten w:t elements differ in document.xml and
// every other entry is copied without recompression.
func (d *Document) Save() ([]byte, error) {
	nodes := d.dirtyNodes()
	if len(nodes) == 0 {
		return append([]byte(nil), d.raw...), nil
	}
	part, err := splice(d.part, nodes)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(d.raw), int64(len(d.raw)))
	if err != nil {
		return nil, fillerr.Wrap(fillerr.UnsupportedFormat, "document", err)
	}
	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range zr.File {
		if f.Name != documentPart {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("docx: copy %s: %w", f.Name, err)
			}
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified})
		if err != nil {
			return nil, fmt.Errorf("docx: write %s: %w", f.Name, err)
		}
		if _, err := w.Write(part); err != nil {
			return nil, fmt.Errorf("docx: write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("docx: close archive: %w", err)
	}
	return out.Bytes(), nil
}

func splice(part []byte, nodes []*textNode) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(part))
	var pos int64
	for _, n := range nodes {
		if n.start < pos || n.end <= n.start || n.end > int64(len(part)) {
			return nil, errors.New("docx: text element offsets out of order")
		}
		out.Write(part[pos:n.start])
		fmt.Fprintf(&out, `<%s xml:space="preserve">`, n.name)
		if err := xml.EscapeText(&out, []byte(n.value)); err != nil {
			return nil, err
		}
		fmt.Fprintf(&out, `</%s>`, n.name)
		pos = n.end
	}
	out.Write(part[pos:])
	return out.Bytes(), nil
}

// rawName reads the element name of the start tag at the head of b.
func rawName(b []byte) string {
	b = bytes.TrimPrefix(b, []byte("<"))
	if i := bytes.IndexAny(b, " \t\r\n/>"); i >= 0 {
		return string(b[:i])
	}
	return "w:t"
}
