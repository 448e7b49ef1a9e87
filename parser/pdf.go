package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser reads one term per non-empty line of extracted page text.
type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	var terms []string

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		terms = append(terms, pageTerms(text)...)
	}

	if len(terms) == 0 {
		return nil, fmt.Errorf("no extractable text in PDF")
	}

	return &ParseResult{
		Terms:  terms,
		Method: "native",
		Metadata: map[string]string{
			"page_count": fmt.Sprintf("%d", totalPages),
			"term_count": fmt.Sprintf("%d", len(terms)),
		},
	}, nil
}

// pageTerms splits page text into cleaned, non-empty lines.
func pageTerms(text string) []string {
	var terms []string
	for _, line := range strings.Split(text, "\n") {
		if t := cleanTermLine(line); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}
