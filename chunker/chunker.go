package chunker

import "errors"

// DefaultSize is the maximum number of terms sent to the oracle in one request.
const DefaultSize = 200

// ErrInvalidSize is returned when a chunk size is zero or negative.
var ErrInvalidSize = errors.New("chunker: chunk size must be positive")

// Config controls the chunking behaviour.
type Config struct {
	Size int // Maximum number of terms per chunk.
}

// Chunker partitions ordered term lists into bounded batches.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// A zero Size is replaced with DefaultSize; a negative Size is kept and
// rejected when chunking.
func New(cfg Config) *Chunker {
	if cfg.Size == 0 {
		cfg.Size = DefaultSize
	}
	return &Chunker{cfg: cfg}
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int {
	return c.cfg.Size
}

// Chunk splits terms into consecutive batches of at most Size terms.
func (c *Chunker) Chunk(terms []string) ([][]string, error) {
	return Split(terms, c.cfg.Size)
}

// Split partitions items into ceil(len(items)/size) consecutive slices. Every
// slice except possibly the last holds exactly size items, and concatenating
// the result yields items unchanged. An empty input yields no chunks.
//
// The returned slices share the backing array of items but are capacity
// clipped, so appending to one chunk never overwrites the next.
func Split[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if len(items) == 0 {
		return nil, nil
	}

	chunks := make([][]T, 0, Count(len(items), size))
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end:end])
	}
	return chunks, nil
}

// Count reports how many chunks Split produces for n items.
func Count(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
