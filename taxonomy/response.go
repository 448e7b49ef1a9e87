package taxonomy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// codeBlockRe captures the body of a markdown code fence. The language tag,
// if any, must end the opening line.
var codeBlockRe = regexp.MustCompile("(?s)```(?:[A-Za-z]*[ \\t]*\\n)?(.*?)\\n?```")

// fenceRe matches an opening fence with its tag line, or a bare fence.
var fenceRe = regexp.MustCompile("```[A-Za-z]*[ \\t]*\\n|```")

// quotedRe matches one complete double-quoted JSON string.
var quotedRe = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)

// categoryStrategy yields a candidate JSON text from a raw response, or false
// when it does not apply.
type categoryStrategy struct {
	name    string
	extract func(raw string) (string, bool)
}

var categoryStrategies = []categoryStrategy{
	{"direct", func(raw string) (string, bool) {
		s := strings.TrimSpace(raw)
		return s, s != ""
	}},
	{"fenced", func(raw string) (string, bool) {
		m := codeBlockRe.FindStringSubmatch(raw)
		if len(m) < 2 {
			return "", false
		}
		return strings.TrimSpace(m[1]), true
	}},
}

// ParseCategories interprets an oracle response as a JSON object mapping
// category names to term arrays. The strategies run in order and the first
// one that decodes wins. A JSON null yields an empty map.
func ParseCategories(raw string) (*CategoryMap, error) {
	var firstErr error
	for _, s := range categoryStrategies {
		text, ok := s.extract(raw)
		if !ok {
			continue
		}
		m := NewCategoryMap()
		if err := json.Unmarshal([]byte(text), m); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", s.name, err)
			}
			continue
		}
		return m, nil
	}
	if firstErr == nil {
		return nil, fmt.Errorf("%w: empty response", ErrParse)
	}
	return nil, fmt.Errorf("%w: %v", ErrParse, firstErr)
}

// relationSeparator is the boundary between entries of the quoted
// "A>B",\n"C>D" list format.
const relationSeparator = "\",\n\""

// ParseRelations extracts parent/child pairs from an oracle response. It
// never fails: entries that do not form a relation are dropped and an
// incomprehensible response yields an empty set.
//
// The expected shape is a list of quoted "PARENT>CHILD" entries separated by
// a comma and a newline. A JSON array of such strings, or of
// {"parent","child"} objects, is accepted as well.
func ParseRelations(raw string) RelationSet {
	text := normalizeRelationText(raw)
	if text == "" {
		return RelationSet{}
	}

	if strings.HasPrefix(text, "[") {
		var entries []string
		if err := json.Unmarshal([]byte(text), &entries); err == nil {
			return relationsFromEntries(entries)
		}
		var objs []Relation
		if err := json.Unmarshal([]byte(text), &objs); err == nil {
			out := RelationSet{}
			for _, o := range objs {
				if r, ok := NewRelation(strings.TrimSpace(o.Parent), strings.TrimSpace(o.Child)); ok {
					out = append(out, r)
				}
			}
			return out
		}
		// A near-miss array, e.g. a trailing comma or a cut-off answer:
		// keep every complete quoted entry.
		if quoted := quotedRe.FindAllString(text, -1); len(quoted) > 0 {
			return relationsFromEntries(unquoteAll(quoted))
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "["), "]"))
	}

	text = trimQuote(text)
	return relationsFromEntries(strings.Split(text, relationSeparator))
}

// normalizeRelationText removes code fences and carriage returns.
func normalizeRelationText(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = fenceRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func relationsFromEntries(entries []string) RelationSet {
	out := RelationSet{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		e = strings.TrimSuffix(e, ",")
		e = strings.TrimSpace(trimQuote(e))

		parts := strings.Split(e, ">")
		if len(parts) < 2 {
			continue
		}
		if r, ok := NewRelation(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])); ok {
			out = append(out, r)
		}
	}
	return out
}

func unquoteAll(quoted []string) []string {
	out := make([]string, 0, len(quoted))
	for _, q := range quoted {
		var v string
		if err := json.Unmarshal([]byte(q), &v); err != nil {
			v = trimQuote(q)
		}
		out = append(out, v)
	}
	return out
}

// trimQuote strips at most one leading and one trailing double quote.
func trimQuote(s string) string {
	s = strings.TrimPrefix(s, "\"")
	return strings.TrimSuffix(s, "\"")
}
