package parser

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// TextParser handles newline-delimited term lists (.txt, .lst).
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "lst"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	terms := SplitTerms(string(data))
	return &ParseResult{
		Terms:  terms,
		Method: "native",
		Metadata: map[string]string{
			"term_count": strconv.Itoa(len(terms)),
		},
	}, nil
}
