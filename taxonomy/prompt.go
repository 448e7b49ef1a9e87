package taxonomy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptBuilder renders the text sent to the oracle for one chunk.
type PromptBuilder interface {
	// CategoryPrompt asks for terms to be grouped into categories, answered
	// as a JSON object.
	CategoryPrompt(terms []string) string
	// RelationPrompt asks for "is-a" pairs among terms. previous holds
	// every relation found before this chunk.
	RelationPrompt(terms []string, previous RelationSet) string
}

// DefaultCategories is the standard category list offered to the oracle.
var DefaultCategories = []string{
	"Medicine",
	"Physics",
	"Chemistry",
	"Biology",
	"Engineering",
	"Science",
	DefaultCatchAll,
}

// DefaultDomain names the kind of terms in the prompts.
const DefaultDomain = "scientific"

// Prompts is the default PromptBuilder.
type Prompts struct {
	Domain     string
	Categories []string
	CatchAll   string
}

// NewPrompts returns Prompts with empty fields filled from the defaults.
// The catch-all is added to categories when missing.
func NewPrompts(domain string, categories []string, catchAll string) *Prompts {
	if domain == "" {
		domain = DefaultDomain
	}
	if catchAll == "" {
		catchAll = DefaultCatchAll
	}
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	cats := make([]string, 0, len(categories)+1)
	hasCatchAll := false
	for _, c := range categories {
		if c == catchAll {
			hasCatchAll = true
		}
		cats = append(cats, c)
	}
	if !hasCatchAll {
		cats = append(cats, catchAll)
	}
	return &Prompts{Domain: domain, Categories: cats, CatchAll: catchAll}
}

const categoryPromptTemplate = `You are a categorization assistant.

Classify the following %s terms into high-level parent categories. Use only from the following standardized parent categories:

%s

### INSTRUCTIONS:

- Group similar terms together into broader, higher-level categories.
- Assign each term to exactly one of the categories above.
- Return only a **JSON object** where:
  - Each key is a category.
  - Each value is an array of terms that belong to that category.
- Do not invent new terms. Only regroup the existing ones.
- If a term does not clearly fit a category, place it under %q.

### FORMAT:
{
    "Category A": ["term1", "term2", ...],
    "Category B": ["term3", "term4", ...]
}

### TERMS:
%s

### RESPONSE FORMAT:
Valid JSON object only. No markdown.`

func (p *Prompts) CategoryPrompt(terms []string) string {
	return fmt.Sprintf(categoryPromptTemplate, p.Domain, bulletList(p.Categories), p.CatchAll, bulletList(terms))
}

const relationPromptHeader = `You are given a list of %s terms.

Your task is to identify hierarchical relationships between terms, where one is a more general "parent" and the other is a more specific "child".
Analyze EVERY term and identify SPECIFIC "is-a" relationships.

### STRICT INSTRUCTIONS:
- You MUST ONLY use terms from the provided list.
- Every "parent" and every "child" MUST be from the list. Do NOT invent new terms.
- Do NOT duplicate or reverse relations.
- Do NOT include explanations or markdown.
- Respond ONLY with a String format (no markdown, explanation, or formatting).
- Preserve spacing and formatting as-is.

## FORMAT:
"TERM_FROM_LIST>TERM_FROM_LIST",
"TERM_FROM_LIST>TERM_FROM_LIST"
`

const relationPromptExamples = `
EXAMPLES:
    "Intangible>JobPosting",
    "CreativeWork>Menu"

## TERMS:
`

func (p *Prompts) RelationPrompt(terms []string, previous RelationSet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, relationPromptHeader, p.Domain)
	if len(previous) > 0 {
		sb.WriteString("\n## Previously discovered terms you can use as parents or children:\n")
		for i, r := range previous {
			if i > 0 {
				sb.WriteString(",\n")
			}
			b, _ := json.Marshal(r)
			sb.Write(b)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(relationPromptExamples)
	sb.WriteString(bulletList(terms))
	return sb.String()
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ")
}
