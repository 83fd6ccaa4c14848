package docx_test

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"legalscan/pkg/docx"
	"legalscan/pkg/docx/docxtest"
	"legalscan/pkg/fillerr"
)

func mustLoad(t *testing.T, data []byte) *docx.Document {
	t.Helper()
	doc, err := docx.Load(data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return doc
}

func readPart(t *testing.T, data []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return string(b)
	}
	t.Fatalf("part %s missing", name)
	return ""
}

func TestLoadSplitsParagraphsAndTableCells(t *testing.T) {
	data := docxtest.MustBuild(
		docxtest.P("Hello ", "[Name]"),
		docxtest.T(docxtest.Row("cell A", "cell B")),
		docxtest.P("Bye"),
	)
	doc := mustLoad(t, data)

	if got := len(doc.Blocks()); got != 4 {
		t.Fatalf("expected 4 blocks, got %d", got)
	}
	paras := doc.Paragraphs()
	if len(paras) != 2 || paras[0].Text() != "Hello [Name]" || paras[1].Text() != "Bye" {
		t.Fatalf("unexpected body paragraphs: %+v", paras)
	}
	cells := doc.TableCells()
	if len(cells) != 2 || cells[0].Text() != "cell A" || !cells[1].InTable() {
		t.Fatalf("unexpected table cells")
	}
	runs := paras[0].Runs()
	if len(runs) != 2 || runs[0] != "Hello " || runs[1] != "[Name]" {
		t.Fatalf("unexpected runs: %q", runs)
	}
	if doc.Text() != "Hello [Name]\ncell A\ncell B\nBye" {
		t.Fatalf("unexpected text: %q", doc.Text())
	}
}

func TestSaveUntouchedIsByteIdentical(t *testing.T) {
	data := docxtest.MustBuild(docxtest.P("No ", "placeholders ", "here"))
	doc := mustLoad(t, data)
	if err := doc.Blocks()[0].SetRuns(doc.Blocks()[0].Runs()); err != nil {
		t.Fatalf("set runs: %v", err)
	}
	if doc.Modified() {
		t.Fatalf("writing identical text must not mark the document modified")
	}
	out, err := doc.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("untouched document changed on save")
	}
}

func TestSaveRewritesChangedRunsOnly(t *testing.T) {
	data, err := docxtest.BuildParts(map[string]string{
		"word/document.xml": docxtest.DocumentXML(docxtest.P("Pay $[__", "__] & more"), docxtest.P("keep")),
		"word/styles.xml":   "<styles/>",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	doc := mustLoad(t, data)
	b := doc.Blocks()[0]
	if err := b.SetRuns([]string{"Pay $500 & more", ""}); err != nil {
		t.Fatalf("set runs: %v", err)
	}
	out, err := doc.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := mustLoad(t, out)
	runs := reloaded.Blocks()[0].Runs()
	if len(runs) != 2 || runs[0] != "Pay $500 & more" || runs[1] != "" {
		t.Fatalf("unexpected runs after reload: %q", runs)
	}
	if reloaded.Blocks()[1].Text() != "keep" {
		t.Fatalf("second paragraph changed")
	}
	if got := readPart(t, out, "word/styles.xml"); got != "<styles/>" {
		t.Fatalf("other parts must be copied, got %q", got)
	}
	xml := readPart(t, out, "word/document.xml")
	if !bytes.Contains([]byte(xml), []byte("<w:rPr><w:b/></w:rPr>")) {
		t.Fatalf("run properties lost: %s", xml)
	}
	if !bytes.Contains([]byte(xml), []byte("$500 &amp; more")) {
		t.Fatalf("text not escaped: %s", xml)
	}
}

func TestTextBoxFallbackIsNotABlock(t *testing.T) {
	data := docxtest.MustBuild(
		docxtest.Box(docxtest.P("Name: ____")),
		docxtest.P("Name: ____"),
	)
	doc := mustLoad(t, data)
	var texts []string
	for _, b := range doc.Blocks() {
		if b.Text() != "" {
			texts = append(texts, b.Text())
		}
	}
	if len(texts) != 2 {
		t.Fatalf("expected the text box once plus the body paragraph, got %q", texts)
	}

	box := doc.Blocks()[1]
	if err := box.SetRuns([]string{"Name: Alice"}); err != nil {
		t.Fatalf("set runs: %v", err)
	}
	out, err := doc.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	xml := readPart(t, out, "word/document.xml")
	if !bytes.Contains([]byte(xml), []byte("<w:drawing><w:txbxContent><w:p><w:r><w:t xml:space=\"preserve\">Name: Alice</w:t>")) {
		t.Fatalf("choice content not rewritten: %s", xml)
	}
	if !bytes.Contains([]byte(xml), []byte("<w:pict><w:txbxContent><w:p><w:r><w:t xml:space=\"preserve\">Name: ____</w:t>")) {
		t.Fatalf("fallback content must be left as is: %s", xml)
	}
}

func TestSetRunsEmptiesLaterTextElements(t *testing.T) {
	part := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<x:document xmlns:x="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><x:body>` +
		`<x:p><x:r><x:t>[Na</x:t><x:tab/><x:t>me]</x:t></x:r><x:r><x:t/></x:r></x:p>` +
		`</x:body></x:document>`
	data, err := docxtest.BuildParts(map[string]string{"word/document.xml": part})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	doc := mustLoad(t, data)
	b := doc.Blocks()[0]
	if got := b.Runs(); len(got) != 2 || got[0] != "[Name]" || got[1] != "" {
		t.Fatalf("unexpected runs: %q", got)
	}
	if err := b.SetRuns([]string{"Jane", ""}); err != nil {
		t.Fatalf("set runs: %v", err)
	}
	out, err := doc.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	xml := readPart(t, out, "word/document.xml")
	want := `<x:r><x:t xml:space="preserve">Jane</x:t><x:tab/><x:t xml:space="preserve"></x:t></x:r><x:r><x:t/></x:r>`
	if !bytes.Contains([]byte(xml), []byte(want)) {
		t.Fatalf("unexpected document part:\n%s", xml)
	}
}

func TestSetRunsRejectsWrongLength(t *testing.T) {
	doc := mustLoad(t, docxtest.MustBuild(docxtest.P("a", "b")))
	if err := doc.Blocks()[0].SetRuns([]string{"ab"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadRejectsNonDocx(t *testing.T) {
	_, err := docx.Load([]byte("%PDF-1.7"))
	if !fillerr.IsKind(err, fillerr.UnsupportedFormat) {
		t.Fatalf("expected UNSUPPORTED_FORMAT, got %v", err)
	}

	data, err := docxtest.BuildParts(map[string]string{"xl/workbook.xml": "<workbook/>"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, err = docx.Load(data)
	if !fillerr.IsKind(err, fillerr.UnsupportedFormat) {
		t.Fatalf("expected UNSUPPORTED_FORMAT for zip without document part, got %v", err)
	}

	data, err = docxtest.BuildParts(map[string]string{"word/document.xml": "<w:document"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, err = docx.Load(data)
	if !fillerr.IsKind(err, fillerr.UnsupportedFormat) {
		t.Fatalf("expected UNSUPPORTED_FORMAT for broken xml, got %v", err)
	}
}
