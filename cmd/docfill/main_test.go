package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"legalscan/pkg/docx"
	"legalscan/pkg/docx/docxtest"
	"legalscan/pkg/fill"
	"legalscan/pkg/placeholder"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(&app{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func readText(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc, err := docx.Load(data)
	require.NoError(t, err)
	return doc.Text()
}

func TestFillManyDocumentsInParallel(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for _, name := range []string{"a.docx", "b.docx", "c.docx", "d.docx"} {
		inputs = append(inputs, writeFile(t, dir, name, docxtest.MustBuild(
			docxtest.P("Issued by ", "[Company Name]", " for $[_____]"),
			docxtest.P("Name: ____"),
		)))
	}
	answers := writeFile(t, dir, "answers.json", []byte(`[
		{"placeholder": "[Company Name]", "answer": "Acme Inc.", "index": 0},
		{"placeholder": "$[_____]", "answer": "25,000", "index": 1},
		{"placeholder": "Name:", "answer": "Jane Roe", "index": 2}
	]`))
	outDir := filepath.Join(dir, "out")

	stdout, err := run(t, append([]string{"fill", "--answers", answers, "--out-dir", outDir, "-j", "2"}, inputs...)...)
	require.NoError(t, err)

	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, len(inputs))
	for i, res := range results {
		assert.Equal(t, inputs[i], res.Input)
		assert.Equal(t, filepath.Join(outDir, strings.TrimSuffix(filepath.Base(inputs[i]), ".docx")+"_filled.docx"), res.Output)
		assert.Equal(t, 2, res.Report.BlocksChanged)
		assert.Empty(t, res.Report.Unused)
		assert.Equal(t, "Issued by Acme Inc. for $25,000\nName: Jane Roe", readText(t, res.Output))
	}
}

func TestFillFilesLogsToGivenLogger(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{
		writeFile(t, dir, "one.docx", docxtest.MustBuild(docxtest.P("[X]"))),
		writeFile(t, dir, "two.docx", docxtest.MustBuild(docxtest.P("[X]"))),
	}
	m, err := placeholder.Normalize(placeholder.EntriesFromPairs([]placeholder.Pair{{Key: "[X]", Answer: "y"}}))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	results, err := fillFiles(context.Background(), zap.New(core), inputs, m, fill.DefaultOptions(), "", "_filled", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	filled := logs.FilterMessage("filled").All()
	require.Len(t, filled, 2)
	var seen []string
	for _, e := range filled {
		seen = append(seen, e.ContextMap()["input"].(string))
	}
	assert.ElementsMatch(t, inputs, seen)
}

func TestFillWithYAMLMappingAndDashStyle(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "nda.docx", docxtest.MustBuild(docxtest.P("Title: ____ at [Company Name]")))
	answers := writeFile(t, dir, "answers.yaml", []byte("\"[Company Name]\": Acme\n\"Title:\": CEO\n"))

	_, err := run(t, "fill", "--answers", answers, "--label-style", "dash", in)
	require.NoError(t, err)
	assert.Equal(t, "Title - CEO at Acme", readText(t, filepath.Join(dir, "nda_filled.docx")))
}

func TestFillWithFamily(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "safe.docx", docxtest.MustBuild(
		docxtest.P("{{COMPANY_NAME}} sells to {{Investor_Name}} for ${{PURCHASE_AMOUNT}}"),
	))
	answers := writeFile(t, dir, "deal.yaml", []byte(`company_name: Acme Inc.
investor_name: Jane Roe
purchase_amount: "$100000"
post_money_valuation_cap: "10,000,000"
date_of_safe: 2026-03-01
state_of_incorporation: Delaware
company_signatory_name: John Doe
company_signatory_title: CEO
`))
	_, err := run(t, "fill", "--family", "postmoney_safe", "--answers", answers, in)
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc. sells to Jane Roe for $100,000", readText(t, filepath.Join(dir, "safe_filled.docx")))
}

func TestFillFailsWithoutPartialOutput(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.docx", docxtest.MustBuild(docxtest.P("[X]")))
	bad := writeFile(t, dir, "bad.docx", []byte("not a zip"))
	answers := writeFile(t, dir, "answers.json", []byte(`{"[X]": "y"}`))

	_, err := run(t, "fill", "--answers", answers, "-j", "1", bad, good)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.docx")
	_, statErr := os.Stat(filepath.Join(dir, "bad_filled.docx"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFillRejectsBadInputs(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.docx", docxtest.MustBuild(docxtest.P("[X]")))
	dupIndex := writeFile(t, dir, "dup.json", []byte(`[{"placeholder":"[X]","answer":"1","index":0},{"placeholder":"[Y]","answer":"2","index":0}]`))
	scalar := writeFile(t, dir, "scalar.json", []byte(`"just text"`))
	ok := writeFile(t, dir, "ok.json", []byte(`{"[X]": "y"}`))

	_, err := run(t, "fill", "--answers", dupIndex, in)
	assert.Error(t, err)
	_, err = run(t, "fill", "--answers", scalar, in)
	assert.Error(t, err)
	_, err = run(t, "fill", "--answers", ok, "--suffix", "", in)
	assert.ErrorContains(t, err, "overwrite")
	_, err = run(t, "fill", "--answers", ok, "--label-style", "slash", in)
	assert.Error(t, err)
	_, err = run(t, "fill", in)
	assert.Error(t, err)
}

func TestScanListsDistinctPlaceholders(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "doc.docx", docxtest.MustBuild(
		docxtest.P("[Company Name] and [Company Name] pay $[_____]"),
		docxtest.P("Email: ____"),
		docxtest.P("Email: jane@example.com"),
	))
	stdout, err := run(t, "scan", in)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "PLACEHOLDER")
	assert.Equal(t, []string{in, "verbatim", "2", "[Company", "Name]"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{in, "currency", "1", "$[_____]"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{in, "labeled", "1", "Email:"}, strings.Fields(lines[3]))
}

func TestQuestions(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "doc.docx", docxtest.MustBuild(docxtest.P("Hello {{CLIENT_NAME}}")))

	stdout, err := run(t, "questions", in)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"placeholder":"{{CLIENT_NAME}}","question":"What is the client name?"}]`, stdout)

	stdout, err = run(t, "questions", "--family", "postmoney_safe")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"key": "company_name"`)

	_, err = run(t, "questions")
	assert.Error(t, err)
	_, err = run(t, "questions", "--family", "lease")
	assert.Error(t, err)
}
