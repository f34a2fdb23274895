package vocab

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Embeddings is a dense [Rows, Dim] float32 matrix, stored row-major. Row i is the vector of token i.
type Embeddings struct {
	Rows, Dim int
	Data      []float32
}

// NewEmbeddings creates a zero-filled matrix.
func NewEmbeddings(rows, dim int) *Embeddings {
	return &Embeddings{
		Rows: rows,
		Dim:  dim,
		Data: make([]float32, rows*dim),
	}
}

// Row returns a view of row i: changes to it change the matrix.
func (e *Embeddings) Row(i int) []float32 {
	return e.Data[i*e.Dim : (i+1)*e.Dim : (i+1)*e.Dim]
}

// SetRow copies v into row i. v must have Dim elements.
func (e *Embeddings) SetRow(i int, v []float32) {
	copy(e.Row(i), v)
}

// IsZero returns whether every element of row i is exactly 0.
func (e *Embeddings) IsZero(i int) bool {
	for _, x := range e.Row(i) {
		if x != 0 {
			return false
		}
	}
	return true
}

// Norm returns the L2 norm of row i.
func (e *Embeddings) Norm(i int) float64 {
	var sum float64
	for _, x := range e.Row(i) {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// FillNormal replaces row i with independent draws from N(0, std²).
// If rng is nil, the global math/rand/v2 source is used.
func (e *Embeddings) FillNormal(i int, std float64, rng *rand.Rand) {
	row := e.Row(i)
	for j := range row {
		if rng != nil {
			row[j] = float32(rng.NormFloat64() * std)
		} else {
			row[j] = float32(rand.NormFloat64() * std)
		}
	}
}

// Tensor returns a copy of the matrix as a GoMLX tensor shaped [Rows, Dim], ready to initialize
// an embedding layer.
func (e *Embeddings) Tensor() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(slices.Clone(e.Data), e.Rows, e.Dim)
}
