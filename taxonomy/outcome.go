package taxonomy

import "time"

// State is the lifecycle position of one chunk.
type State string

const (
	StatePending  State = "pending"
	StatePrompted State = "prompted"
	StateParsed   State = "parsed"
	StateMerged   State = "merged"
	StateFailed   State = "failed"
)

// ChunkOutcome records what happened to one chunk of a pass.
type ChunkOutcome struct {
	// Index is the chunk's position in the pass, counting from zero.
	Index int `json:"index"`
	// Category is the subject category of a parent/child chunk and
	// CategoryChunk its position within that category.
	Category      string `json:"category,omitempty"`
	CategoryChunk int    `json:"category_chunk"`

	Terms   int           `json:"terms"`
	State   State         `json:"state"`
	Kind    ErrorKind     `json:"error_kind,omitempty"`
	Error   string        `json:"error,omitempty"`
	Items   int           `json:"items"`
	Elapsed time.Duration `json:"elapsed"`

	Err error `json:"-"`
}

// fail moves the outcome to StateFailed.
func (o *ChunkOutcome) fail(err error, kind ErrorKind) {
	o.State = StateFailed
	o.Err = err
	o.Error = err.Error()
	o.Kind = kind
	if kind == KindNone {
		o.Kind = kindOf(err)
	}
}

// Summary condenses the outcomes of a pass.
type Summary struct {
	Attempted     int   `json:"attempted"`
	Failed        int   `json:"failed"`
	FailedIndices []int `json:"failed_indices"`
	Items         int   `json:"items"`
	Canceled      bool  `json:"canceled,omitempty"`
}

// OK reports whether every chunk was merged.
func (s Summary) OK() bool { return s.Failed == 0 }

// AllFailed reports whether at least one chunk ran and none was merged.
func (s Summary) AllFailed() bool { return s.Attempted > 0 && s.Failed == s.Attempted }

func summarize(outcomes []ChunkOutcome) Summary {
	s := Summary{Attempted: len(outcomes), FailedIndices: []int{}}
	for _, o := range outcomes {
		if o.State == StateFailed {
			s.Failed++
			s.FailedIndices = append(s.FailedIndices, o.Index)
			if o.Kind == KindCanceled {
				s.Canceled = true
			}
			continue
		}
		s.Items += o.Items
	}
	return s
}

// CategoryResult is the output of the category pass.
type CategoryResult struct {
	Categories *CategoryMap   `json:"categories"`
	Outcomes   []ChunkOutcome `json:"outcomes"`
	Summary    Summary        `json:"summary"`
}

// RelationResult is the output of the parent/child pass.
type RelationResult struct {
	Relations RelationSet    `json:"relations"`
	Outcomes  []ChunkOutcome `json:"outcomes"`
	Summary   Summary        `json:"summary"`
}
