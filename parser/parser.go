package parser

import (
	"context"
	"strings"

	"github.com/brunobiangulo/gotaxon/taxonomy"
)

// ParseResult is what a parser produces from a term source file.
type ParseResult struct {
	Terms []string // Terms in file order, duplicates kept

	// Categories is set by parsers that read an existing category map.
	Categories *taxonomy.CategoryMap

	Method   string // "native"
	Metadata map[string]string
}

// Parser can read terms from a specific file format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}

// SplitTerms splits newline-delimited text into terms. Carriage returns
// are dropped and blank lines skipped; other whitespace is kept.
func SplitTerms(data string) []string {
	lines := strings.Split(data, "\n")
	terms := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		terms = append(terms, line)
	}
	return terms
}

// cleanTermLine strips list decoration ("- ", "* ", "• ", "12. ", "3) ")
// from a line of extracted document text.
func cleanTermLine(line string) string {
	s := strings.TrimSpace(line)
	for _, prefix := range []string{"- ", "* ", "• ", "· "} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s)-1 && (s[i] == '.' || s[i] == ')') && s[i+1] == ' ' {
		return strings.TrimSpace(s[i+2:])
	}
	return s
}
