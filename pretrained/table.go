// Package pretrained loads tables of pretrained word vectors (GloVe and fastText text files,
// word2vec binary files, and safetensors embedding matrices), selected by a family name and a
// dimension.
//
// Example:
//
//	table, err := pretrained.Open(pretrained.Source{Name: "glove.6B", Dir: "~/.cache/slotembed"}, 100, nil)
//	if err != nil {
//		panic(err)
//	}
//	vector, found := table.Lookup("paris")
package pretrained

import (
	"github.com/pkg/errors"
)

var (
	// ErrUnknownSource is returned for unknown family names, or dimensions a family doesn't provide.
	ErrUnknownSource = errors.New("unknown pretrained source")

	// ErrDimensionMismatch is returned when a table's vectors don't have the requested dimension.
	ErrDimensionMismatch = errors.New("pretrained vector dimension mismatch")
)

// Table is a read-only word -> vector lookup.
type Table interface {
	// Lookup returns the vector of word. The returned slice must not be modified.
	Lookup(word string) ([]float32, bool)

	// Dim returns the dimension of the vectors.
	Dim() int
}

// MapTable is a Table held in memory. The text readers return it, and it is handy for tests.
type MapTable struct {
	Vectors map[string][]float32
	dim     int
}

// Compile time assert that MapTable implements Table interface.
var _ Table = &MapTable{}

// NewMapTable creates an empty MapTable of the given dimension.
func NewMapTable(dim int) *MapTable {
	return &MapTable{Vectors: make(map[string][]float32), dim: dim}
}

// Set adds or replaces the vector of word. It fails if the vector doesn't have the table dimension.
func (t *MapTable) Set(word string, vector []float32) error {
	if len(vector) != t.dim {
		return errors.Wrapf(ErrDimensionMismatch, "vector for %q has dimension %d, table has %d", word, len(vector), t.dim)
	}
	t.Vectors[word] = vector
	return nil
}

// Lookup implements Table.
func (t *MapTable) Lookup(word string) ([]float32, bool) {
	v, found := t.Vectors[word]
	return v, found
}

// Dim implements Table.
func (t *MapTable) Dim() int { return t.dim }

// Len returns the number of words in the table.
func (t *MapTable) Len() int { return len(t.Vectors) }
