package chunk

import (
	"iter"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
)

// DefaultMaxSize is the chunk size used when a backend reports no budget.
const DefaultMaxSize = 10000

// Split cuts text into contiguous, non-overlapping chunks of at most maxSize
// characters. Every chunk except possibly the last has exactly maxSize
// characters and concatenating the chunks in order reproduces text.
//
// The returned sequence is lazy and can be ranged over more than once.
// An empty text yields no chunks.
//
// Example:
//
//	seq, err := chunk.Split(doc.Text, 10000)
//	if err != nil {
//		return err
//	}
//	for c := range seq {
//		fmt.Println(c.Index, len(c.Text))
//	}
func Split(text string, maxSize int) (iter.Seq[common.Chunk], error) {
	if maxSize <= 0 {
		return nil, common.InvalidConfiguration("chunk size must be positive, got %d", maxSize)
	}

	return func(yield func(common.Chunk) bool) {
		index, start, n := 0, 0, 0
		for i := range text {
			if n == maxSize {
				if !yield(common.Chunk{Index: index, Text: text[start:i], Start: start, End: i}) {
					return
				}
				index++
				start, n = i, 0
			}
			n++
		}
		if start < len(text) {
			yield(common.Chunk{Index: index, Text: text[start:], Start: start, End: len(text)})
		}
	}, nil
}

// Collect materializes a chunk sequence.
func Collect(seq iter.Seq[common.Chunk]) []common.Chunk {
	var out []common.Chunk
	for c := range seq {
		out = append(out, c)
	}
	return out
}
