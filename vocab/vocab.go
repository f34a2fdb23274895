// Package vocab builds token vocabularies from a training corpus, attached to an embedding matrix
// either copied from a pretrained table or drawn at random, and initializes the rows that a
// pretrained table didn't cover.
//
// Example:
//
//	counter := vocab.NewCounter()
//	for _, rec := range train {
//		counter.Add(rec.Utterance...)
//	}
//	v, err := vocab.Build(counter, vocab.Options{MaxSize: 10000, EmbeddingDim: 100}, glove)
//	if err != nil {
//		panic(err)
//	}
//	report, err := vocab.InitUnknown(v, vocab.NumSpecials, vocab.DefaultUnknownStd, rng)
package vocab

import (
	"math/rand/v2"
	"sort"

	"github.com/gomlx/go-slotembed/pretrained"
	"github.com/pkg/errors"
)

// Special tokens, always at the start of a vocabulary built with specials.
const (
	UnknownToken = "<unk>"
	PadToken     = "<pad>"

	UnknownIndex = 0
	PadIndex     = 1

	// NumSpecials is the number of special tokens, and the offset of the first corpus token.
	NumSpecials = 2
)

// DefaultRandomStd is the standard deviation of vectors drawn when there is no pretrained table.
const DefaultRandomStd = 1.0

// Counter counts token frequencies, remembering the order in which tokens were first seen.
type Counter struct {
	counts map[string]int
	order  []string
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Add counts one occurrence of each token.
func (c *Counter) Add(tokens ...string) {
	for _, tok := range tokens {
		if _, found := c.counts[tok]; !found {
			c.order = append(c.order, tok)
		}
		c.counts[tok]++
	}
}

// Count returns the frequency of tok.
func (c *Counter) Count(tok string) int {
	return c.counts[tok]
}

// Len returns the number of distinct tokens.
func (c *Counter) Len() int {
	return len(c.order)
}

// TokenCount is a token and its frequency.
type TokenCount struct {
	Token string
	Count int
}

// MostCommon returns all tokens sorted by decreasing frequency. Ties keep first-seen order.
func (c *Counter) MostCommon() []TokenCount {
	ranked := make([]TokenCount, len(c.order))
	for ii, tok := range c.order {
		ranked[ii] = TokenCount{Token: tok, Count: c.counts[tok]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	return ranked
}

// Options to Build.
type Options struct {
	// MaxSize is the maximum number of corpus tokens kept, not counting the special tokens.
	// 0 means no limit.
	MaxSize int

	// MinFreq is the minimum frequency for a token to be kept. Values below 1 are read as 1.
	MinFreq int

	// NoSpecials builds a vocabulary without "<unk>" and "<pad>" (e.g. for intents).
	NoSpecials bool

	// EmbeddingDim is the dimension of the vectors. If 0 and no table is given, no embedding
	// matrix is created. If 0 and a table is given, the table's dimension is used.
	EmbeddingDim int

	// RandomStd is the standard deviation of random vectors, used when no table is given.
	// 0 is read as DefaultRandomStd.
	RandomStd float64

	// Rand is the random source for vectors. If nil the global math/rand/v2 source is used.
	Rand *rand.Rand
}

// Vocabulary is a bijection between tokens and indices 0..N-1, with an optional [N, D] embedding
// matrix.
type Vocabulary struct {
	// Itos maps index to token.
	Itos []string

	// Stoi maps token to index.
	Stoi map[string]int

	// Freqs holds the corpus frequency of each kept token (0 for specials).
	Freqs []int

	// Vectors is the embedding matrix, nil if the vocabulary was built without vectors.
	Vectors *Embeddings

	// Covered flags rows holding a usable vector: found in the pretrained table, drawn at random,
	// or set by InitUnknown. It is nil if Vectors is nil.
	//
	// It replaces the "all-zero row means missing" convention, which can't tell a missing word from
	// a word whose pretrained vector is legitimately zero.
	Covered []bool

	specials bool
}

// Build creates a Vocabulary from the counted tokens.
//
// Tokens are ranked by decreasing frequency (ties in first-seen order), and the top MaxSize
// with frequency >= MinFreq are kept after the special tokens.
//
// If table is not nil, each token's row is copied from it; tokens missing from the table get a
// zero row and Covered[i] == false, to be fixed by InitUnknown. If table is nil and EmbeddingDim > 0,
// every row (special tokens included) is drawn from N(0, RandomStd²).
func Build(counter *Counter, opts Options, table pretrained.Table) (*Vocabulary, error) {
	if opts.MaxSize < 0 {
		return nil, errors.Errorf("invalid vocabulary MaxSize %d", opts.MaxSize)
	}
	dim := opts.EmbeddingDim
	if table != nil {
		if dim == 0 {
			dim = table.Dim()
		} else if dim != table.Dim() {
			return nil, errors.Wrapf(pretrained.ErrDimensionMismatch,
				"vocabulary EmbeddingDim=%d, pretrained table has dimension %d", dim, table.Dim())
		}
	}
	minFreq := max(opts.MinFreq, 1)

	v := &Vocabulary{
		Stoi:     make(map[string]int),
		specials: !opts.NoSpecials,
	}
	if v.specials {
		v.add(UnknownToken, 0)
		v.add(PadToken, 0)
	}
	kept := 0
	for _, tc := range counter.MostCommon() {
		if opts.MaxSize > 0 && kept >= opts.MaxSize {
			break
		}
		if tc.Count < minFreq {
			// Ranked by frequency: every following token is also below the threshold.
			break
		}
		if _, found := v.Stoi[tc.Token]; found {
			// A special token present in the corpus.
			continue
		}
		v.add(tc.Token, tc.Count)
		kept++
	}

	if dim > 0 {
		v.Vectors = NewEmbeddings(len(v.Itos), dim)
		v.Covered = make([]bool, len(v.Itos))
		if table != nil {
			for ii, tok := range v.Itos {
				if vec, found := table.Lookup(tok); found {
					v.Vectors.SetRow(ii, vec)
					v.Covered[ii] = true
				}
			}
		} else {
			std := opts.RandomStd
			if std == 0 {
				std = DefaultRandomStd
			}
			for ii := range v.Itos {
				v.Vectors.FillNormal(ii, std, opts.Rand)
				v.Covered[ii] = true
			}
		}
	}
	return v, nil
}

func (v *Vocabulary) add(tok string, freq int) {
	v.Stoi[tok] = len(v.Itos)
	v.Itos = append(v.Itos, tok)
	v.Freqs = append(v.Freqs, freq)
}

// Len returns the number of tokens, special tokens included.
func (v *Vocabulary) Len() int {
	return len(v.Itos)
}

// HasSpecials returns whether the vocabulary starts with the "<unk>" and "<pad>" tokens.
func (v *Vocabulary) HasSpecials() bool {
	return v.specials
}

// Lookup returns the index of tok, and whether it is part of the vocabulary.
func (v *Vocabulary) Lookup(tok string) (int, bool) {
	idx, found := v.Stoi[tok]
	return idx, found
}

// Index returns the index of tok, or UnknownIndex if tok is not in the vocabulary.
// For vocabularies without specials, unknown tokens return -1.
func (v *Vocabulary) Index(tok string) int {
	if idx, found := v.Stoi[tok]; found {
		return idx
	}
	if v.specials {
		return UnknownIndex
	}
	return -1
}

// Encode maps tokens to indices, see Index.
func (v *Vocabulary) Encode(tokens []string) []int {
	ids := make([]int, len(tokens))
	for ii, tok := range tokens {
		ids[ii] = v.Index(tok)
	}
	return ids
}

// Vector returns the embedding row of tok, or nil if tok is unknown or there are no vectors.
func (v *Vocabulary) Vector(tok string) []float32 {
	if v.Vectors == nil {
		return nil
	}
	idx, found := v.Stoi[tok]
	if !found {
		return nil
	}
	return v.Vectors.Row(idx)
}
