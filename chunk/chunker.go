// Package chunk splits record bodies into overlapping fixed-size windows with
// identifiers derived from the parent record and the window ordinal.
package chunk

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/poiesic/refinery/core"
)

// Defaults match the sizing used for the sentence-embedding model.
const (
	DefaultSize    = 800
	DefaultOverlap = 100
)

// ErrInvalidParams is returned when size and overlap are inconsistent.
var ErrInvalidParams = errors.New("invalid chunk parameters")

// Chunker cuts bodies into windows of at most size characters. Consecutive
// windows share overlap characters.
type Chunker struct {
	size      int
	overlap   int
	tolerance int
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithTolerance sets how far back from the window end a boundary may be
// searched for. Default is size/10.
func WithTolerance(tolerance int) Option {
	return func(c *Chunker) error {
		if tolerance < 0 || tolerance >= c.size {
			return fmt.Errorf("%w: tolerance %d must be in [0, %d)", ErrInvalidParams, tolerance, c.size)
		}
		c.tolerance = tolerance
		return nil
	}
}

// New creates a Chunker. Overlap must be strictly less than size.
func New(size, overlap int, opts ...Option) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d must be positive", ErrInvalidParams, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidParams, overlap, size)
	}
	c := &Chunker{size: size, overlap: overlap, tolerance: size / 10}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Size returns the target window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap between consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts body into chunks owned by parent. An empty body yields no
// chunks; a body no longer than the window size yields exactly one.
func (c *Chunker) Split(parent core.ID, body string) []*core.Chunk {
	runes := []rune(body)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []*core.Chunk
	start := 0
	for ordinal := 0; ; ordinal++ {
		if n-start <= c.size {
			chunks = append(chunks, newChunk(parent, ordinal, runes, start, n))
			return chunks
		}
		end := c.cut(runes, start, start+c.size)
		chunks = append(chunks, newChunk(parent, ordinal, runes, start, end))
		start = end - c.overlap
	}
}

func newChunk(parent core.ID, ordinal int, runes []rune, start, end int) *core.Chunk {
	return &core.Chunk{
		ID:       core.ChunkIDFor(parent, ordinal),
		ParentID: parent,
		Ordinal:  ordinal,
		Start:    start,
		End:      end,
		Text:     string(runes[start:end]),
	}
}

// cut picks the window end in [end-tolerance, end], trying paragraph, line,
// sentence and word boundaries before falling back to a hard cut at end.
// The result always leaves the next start beyond the current one.
func (c *Chunker) cut(runes []rune, start, end int) int {
	lo := max(end-c.tolerance, start+c.overlap+1)
	if lo > end {
		return end
	}
	for _, boundary := range boundaries {
		for p := end; p >= lo; p-- {
			if boundary(runes, p) {
				return p
			}
		}
	}
	return end
}

// A boundary reports whether a window may end just before runes[p].
type boundary func(runes []rune, p int) bool

var boundaries = []boundary{
	paragraphBoundary,
	lineBoundary,
	sentenceBoundary,
	wordBoundary,
}

func paragraphBoundary(runes []rune, p int) bool {
	return p >= 2 && runes[p-1] == '\n' && runes[p-2] == '\n'
}

func lineBoundary(runes []rune, p int) bool {
	return p >= 1 && runes[p-1] == '\n'
}

func sentenceBoundary(runes []rune, p int) bool {
	if p < 2 || !unicode.IsSpace(runes[p-1]) {
		return false
	}
	switch runes[p-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func wordBoundary(runes []rune, p int) bool {
	return p >= 1 && unicode.IsSpace(runes[p-1])
}
