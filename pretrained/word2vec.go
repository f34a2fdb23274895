package pretrained

import (
	"bufio"
	"os"

	"github.com/danieldk/go2vec"
	"github.com/pkg/errors"
)

// Word2VecTable is a Table backed by embeddings in the binary word2vec format.
type Word2VecTable struct {
	Embeddings *go2vec.Embeddings
}

// Compile time assert that Word2VecTable implements Table interface.
var _ Table = &Word2VecTable{}

// ReadWord2Vec loads a binary word2vec file. Vectors are kept as stored (not normalized).
func ReadWord2Vec(filePath string) (*Word2VecTable, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open word2vec vectors %q", filePath)
	}
	defer func() { _ = f.Close() }()
	embeds, err := go2vec.ReadWord2VecBinary(bufio.NewReader(f), false)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read word2vec vectors from %q", filePath)
	}
	return &Word2VecTable{Embeddings: embeds}, nil
}

// Lookup implements Table.
func (t *Word2VecTable) Lookup(word string) ([]float32, bool) {
	vector, found := t.Embeddings.Embedding(word)
	if !found {
		return nil, false
	}
	return []float32(vector), true
}

// Dim implements Table.
func (t *Word2VecTable) Dim() int {
	return t.Embeddings.EmbeddingSize()
}
