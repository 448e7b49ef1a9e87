package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser reads one term per row: the first non-empty cell of every row
// of every sheet. Remaining cells (annotations, types) are ignored.
type XLSXParser struct {
	// SkipHeader drops the first row of each sheet.
	SkipHeader bool
}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var terms []string
	sheets := 0

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if p.SkipHeader && len(rows) > 0 {
			rows = rows[1:]
		}
		if len(rows) == 0 {
			continue
		}
		sheets++

		for _, row := range rows {
			for _, cell := range row {
				if cell = strings.TrimSpace(cell); cell != "" {
					terms = append(terms, cell)
					break
				}
			}
		}
	}

	if len(terms) == 0 {
		return nil, fmt.Errorf("no terms found in XLSX")
	}

	return &ParseResult{
		Terms:  terms,
		Method: "native",
		Metadata: map[string]string{
			"sheet_count": fmt.Sprintf("%d", sheets),
			"term_count":  fmt.Sprintf("%d", len(terms)),
		},
	}, nil
}
