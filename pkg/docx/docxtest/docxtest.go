// Package docxtest builds small Word documents in memory for tests.
package docxtest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"sort"
	"strings"
)

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

const rootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

// Element is a body element: a paragraph or a table.
type Element interface {
	write(b *strings.Builder)
}

// Paragraph holds the text of each run. Odd runs are bold so that adjacent
// runs carry distinct formatting.
type Paragraph []string

func P(runs ...string) Paragraph { return Paragraph(runs) }

func (p Paragraph) write(b *strings.Builder) {
	b.WriteString("<w:p>")
	for i, text := range p {
		b.WriteString("<w:r>")
		if i%2 == 1 {
			b.WriteString("<w:rPr><w:b/></w:rPr>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		_ = xml.EscapeText(b, []byte(text))
		b.WriteString("</w:t></w:r>")
	}
	b.WriteString("</w:p>")
}

// TextBox is a paragraph anchoring a text box the way Word writes it: the
// content appears under mc:Choice and again under mc:Fallback.
type TextBox []Paragraph

func Box(paras ...Paragraph) TextBox { return TextBox(paras) }

func (tb TextBox) write(b *strings.Builder) {
	content := func() {
		b.WriteString("<w:txbxContent>")
		for _, p := range tb {
			p.write(b)
		}
		b.WriteString("</w:txbxContent>")
	}
	b.WriteString(`<w:p><w:r><mc:AlternateContent xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006">`)
	b.WriteString(`<mc:Choice Requires="wps"><w:drawing>`)
	content()
	b.WriteString(`</w:drawing></mc:Choice><mc:Fallback><w:pict>`)
	content()
	b.WriteString(`</w:pict></mc:Fallback></mc:AlternateContent></w:r></w:p>`)
}

// Table rows hold one paragraph per cell.
type Table [][]Paragraph

func T(rows ...[]Paragraph) Table { return Table(rows) }

// Row is shorthand for a table row of single-run cells.
func Row(cells ...string) []Paragraph {
	out := make([]Paragraph, len(cells))
	for i, c := range cells {
		out[i] = P(c)
	}
	return out
}

func (t Table) write(b *strings.Builder) {
	b.WriteString("<w:tbl>")
	for _, row := range t {
		b.WriteString("<w:tr>")
		for _, cell := range row {
			b.WriteString("<w:tc><w:tcPr/>")
			cell.write(b)
			b.WriteString("</w:tc>")
		}
		b.WriteString("</w:tr>")
	}
	b.WriteString("</w:tbl>")
}

// DocumentXML renders the word/document.xml part for the given body.
func DocumentXML(body ...Element) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, e := range body {
		e.write(&b)
	}
	b.WriteString(`<w:sectPr/></w:body></w:document>`)
	return b.String()
}

// Build returns a DOCX package for the given body.
func Build(body ...Element) ([]byte, error) {
	return BuildParts(map[string]string{
		"[Content_Types].xml": contentTypes,
		"_rels/.rels":         rootRels,
		"word/document.xml":   DocumentXML(body...),
	})
}

// MustBuild is Build for test setup; it panics on error.
func MustBuild(body ...Element) []byte {
	out, err := Build(body...)
	if err != nil {
		panic(err)
	}
	return out
}

// BuildParts zips the given parts in a stable order.
func BuildParts(parts map[string]string) ([]byte, error) {
	names := []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml"}
	for name := range parts {
		if name != names[0] && name != names[1] && name != names[2] {
			names = append(names, name)
		}
	}
	sort.Strings(names[3:])

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		content, ok := parts[name]
		if !ok {
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(content)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
