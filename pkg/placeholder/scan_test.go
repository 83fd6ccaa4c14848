package placeholder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanFindsEveryFamilyInOrder(t *testing.T) {
	text := "Company: [COMPANY]\n" +
		"Purchase Amount $[_____]\n" +
		"Name: ____\n" +
		"By: John Smith\n" +
		"Dear {{COMPANY_NAME}}, Title:"

	var raws []string
	var kinds []Kind
	for _, f := range Scan(text) {
		raws = append(raws, f.Token.Raw)
		kinds = append(kinds, f.Token.Kind)
	}
	assert.Equal(t, []string{"[COMPANY]", "$[_____]", "Name:", "{{COMPANY_NAME}}", "Title:"}, raws)
	assert.Equal(t, []Kind{KindVerbatim, KindCurrency, KindLabeled, KindTemplate, KindLabeled}, kinds)
}

func TestScanKeepsDuplicates(t *testing.T) {
	found := Scan("[Name] signs for [Name]")
	if assert.Len(t, found, 2) {
		assert.Equal(t, 0, found[0].Offset)
		assert.Equal(t, 17, found[1].Offset)
	}
}

func TestScanReportsLabelOffsets(t *testing.T) {
	found := Scan("intro\nTitle: ___")
	if assert.Len(t, found, 1) {
		assert.Equal(t, 6, found[0].Offset)
		assert.Equal(t, "Title", found[0].Token.Label)
	}
}
