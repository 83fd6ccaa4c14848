package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"legalscan/pkg/docx"
	"legalscan/pkg/extract"
	"legalscan/pkg/placeholder"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan template.docx...",
		Short: "List the placeholder tokens of documents",
		Long: `Prints one line per distinct placeholder with its family and
how often it occurs. Labeled blanks are listed only while still open.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tKIND\tCOUNT\tPLACEHOLDER")
			for _, path := range args {
				doc, err := loadDocument(path)
				if err != nil {
					return err
				}
				counts := map[string]int{}
				var order []placeholder.Token
				for _, f := range placeholder.Scan(doc.Text()) {
					if counts[f.Token.Raw] == 0 {
						order = append(order, f.Token)
					}
					counts[f.Token.Raw]++
				}
				for _, tok := range order {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", path, tok.Kind, counts[tok.Raw], tok.Raw)
				}
			}
			return tw.Flush()
		},
	}
}

func newQuestionsCmd() *cobra.Command {
	var (
		family    string
		schemaDir string
		gemini    bool
		model     string
	)
	cmd := &cobra.Command{
		Use:   "questions [template.docx]",
		Short: "Print the questions to ask for a document or template family",
		Long: `Without --family, lists one {placeholder, question} per placeholder
occurrence of the document. --gemini asks the Gemini API instead of the
built-in scanner and needs GEMINI_API_KEY.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if family != "" {
				sch, err := familySchema(family, schemaDir)
				if err != nil {
					return err
				}
				return enc.Encode(sch.Questions())
			}
			if len(args) != 1 {
				return fmt.Errorf("a document is required without --family")
			}
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			var ex extract.Extractor = extract.PatternExtractor{}
			if gemini {
				key := os.Getenv("GEMINI_API_KEY")
				if key == "" {
					return fmt.Errorf("GEMINI_API_KEY is not set")
				}
				gen, err := extract.NewGeminiGenerator(cmd.Context(), key, model)
				if err != nil {
					return err
				}
				ex = extract.GeminiExtractor{Gen: gen}
			}
			qs, err := ex.Extract(cmd.Context(), doc.Text())
			if err != nil {
				return err
			}
			if qs == nil {
				qs = []extract.Question{}
			}
			return enc.Encode(qs)
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "predefined template family")
	cmd.Flags().StringVar(&schemaDir, "schema-dir", "", "directory of extra family schemas")
	cmd.Flags().BoolVar(&gemini, "gemini", false, "extract with the Gemini API")
	cmd.Flags().StringVar(&model, "model", "gemini-2.5-flash", "Gemini model")
	return cmd
}

func loadDocument(path string) (*docx.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := docx.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
