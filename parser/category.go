package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/brunobiangulo/gotaxon/taxonomy"
)

// CategoryParser reads a category map written by the category pass: a JSON
// object of category name to term array.
type CategoryParser struct{}

func (p *CategoryParser) SupportedFormats() []string { return []string{"json"} }

func (p *CategoryParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading category file: %w", err)
	}
	return ParseCategoryData(data)
}

// ParseCategoryData decodes a category map. Terms lists every categorized
// term in key order.
func ParseCategoryData(data []byte) (*ParseResult, error) {
	cats := taxonomy.NewCategoryMap()
	if err := json.Unmarshal(data, cats); err != nil {
		return nil, fmt.Errorf("decoding category map: %w", err)
	}

	var terms []string
	for _, k := range cats.Keys() {
		terms = append(terms, cats.Get(k)...)
	}
	return &ParseResult{
		Terms:      terms,
		Categories: cats,
		Method:     "native",
		Metadata: map[string]string{
			"category_count": strconv.Itoa(cats.Len()),
			"term_count":     strconv.Itoa(len(terms)),
		},
	}, nil
}
