package eval

import (
	"strings"
	"unicode"

	"github.com/brunobiangulo/gotaxon/taxonomy"
)

// normalizeTerm folds the differences LLM output tends to introduce so that
// "Leafy green", "leafy  green" and "Leafy Green" compare equal.
func normalizeTerm(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r == '\u2010' || r == '\u2011' || r == '\u2012' || r == '\u2013' || r == '\u2014':
			b.WriteByte('-')
		case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\uFEFF':
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func relationKey(r taxonomy.Relation) string {
	return normalizeTerm(r.Parent) + ">" + normalizeTerm(r.Child)
}

// Score is a precision/recall pair over a set comparison.
type Score struct {
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

// newScore fills the ratios. An empty prediction against an empty gold set
// scores 1 on both sides.
func newScore(tp, fp, fn int) Score {
	s := Score{TruePositives: tp, FalsePositives: fp, FalseNegatives: fn}
	switch {
	case tp+fp > 0:
		s.Precision = float64(tp) / float64(tp+fp)
	case fn == 0:
		s.Precision = 1
	}
	switch {
	case tp+fn > 0:
		s.Recall = float64(tp) / float64(tp+fn)
	default:
		s.Recall = 1
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

// RelationScore compares produced relations with a gold set. Duplicates on
// either side count once.
type RelationScore struct {
	Score
	Predicted int                  `json:"predicted"`
	Gold      int                  `json:"gold"`
	Reversed  int                  `json:"reversed"`
	Missing   taxonomy.RelationSet `json:"missing,omitempty"`
	Spurious  taxonomy.RelationSet `json:"spurious,omitempty"`
}

// ScoreRelations matches relations after term normalization. Reversed counts
// spurious relations whose inverse is in the gold set.
func ScoreRelations(predicted, gold taxonomy.RelationSet) RelationScore {
	goldKeys := make(map[string]struct{}, len(gold))
	var goldUniq taxonomy.RelationSet
	for _, r := range gold {
		k := relationKey(r)
		if _, ok := goldKeys[k]; ok {
			continue
		}
		goldKeys[k] = struct{}{}
		goldUniq = append(goldUniq, r)
	}

	var rs RelationScore
	seen := make(map[string]struct{}, len(predicted))
	tp := 0
	for _, r := range predicted {
		k := relationKey(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := goldKeys[k]; ok {
			tp++
			continue
		}
		rs.Spurious = append(rs.Spurious, r)
		if _, ok := goldKeys[relationKey(taxonomy.Relation{Parent: r.Child, Child: r.Parent})]; ok {
			rs.Reversed++
		}
	}
	for _, r := range goldUniq {
		if _, ok := seen[relationKey(r)]; !ok {
			rs.Missing = append(rs.Missing, r)
		}
	}

	rs.Predicted = len(seen)
	rs.Gold = len(goldUniq)
	rs.Score = newScore(tp, len(rs.Spurious), len(rs.Missing))
	return rs
}

// Coverage reports how much of the input universe a category map accounts
// for.
type Coverage struct {
	Terms      int      `json:"terms"`
	Covered    int      `json:"covered"`
	CatchAll   int      `json:"catch_all"`
	Ratio      float64  `json:"ratio"`
	Missing    []string `json:"missing,omitempty"`
	Extraneous []string `json:"extraneous,omitempty"`
}

// ScoreCoverage counts distinct input terms that appear under any category.
// CatchAll counts covered terms that landed only under the catch-all key.
// Extraneous lists categorized terms that were never in the input.
func ScoreCoverage(universe []string, cats *taxonomy.CategoryMap, catchAll string) Coverage {
	placed := make(map[string]bool) // normalized term -> placed outside catch-all
	var extraneous []string
	inUniverse := make(map[string]struct{}, len(universe))
	for _, t := range universe {
		inUniverse[normalizeTerm(t)] = struct{}{}
	}
	if cats != nil {
		for _, key := range cats.Keys() {
			for _, t := range cats.Get(key) {
				n := normalizeTerm(t)
				if _, ok := inUniverse[n]; !ok {
					if _, dup := placed[n]; !dup {
						extraneous = append(extraneous, t)
					}
				}
				placed[n] = placed[n] || key != catchAll
			}
		}
	}

	var c Coverage
	counted := make(map[string]struct{}, len(universe))
	for _, t := range universe {
		n := normalizeTerm(t)
		if _, ok := counted[n]; ok {
			continue
		}
		counted[n] = struct{}{}
		c.Terms++
		specific, ok := placed[n]
		if !ok {
			c.Missing = append(c.Missing, t)
			continue
		}
		c.Covered++
		if !specific {
			c.CatchAll++
		}
	}
	c.Extraneous = extraneous
	if c.Terms > 0 {
		c.Ratio = float64(c.Covered) / float64(c.Terms)
	}
	return c
}

// ScoreAssignments compares (category, term) pairs between a produced map
// and a gold map. Category names are matched after normalization.
func ScoreAssignments(predicted, gold *taxonomy.CategoryMap) Score {
	goldPairs := assignmentPairs(gold)
	predPairs := assignmentPairs(predicted)
	tp := 0
	for k := range predPairs {
		if _, ok := goldPairs[k]; ok {
			tp++
		}
	}
	return newScore(tp, len(predPairs)-tp, len(goldPairs)-tp)
}

func assignmentPairs(m *taxonomy.CategoryMap) map[string]struct{} {
	pairs := make(map[string]struct{})
	if m == nil {
		return pairs
	}
	for _, key := range m.Keys() {
		ck := normalizeTerm(key)
		for _, t := range m.Get(key) {
			pairs[ck+"\x00"+normalizeTerm(t)] = struct{}{}
		}
	}
	return pairs
}
