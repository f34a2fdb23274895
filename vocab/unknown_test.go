package vocab

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/go-slotembed/pretrained"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitUnknown(t *testing.T) {
	table := pretrained.NewMapTable(2)
	require.NoError(t, table.Set("paris", []float32{3, 4}))
	require.NoError(t, table.Set("london", []float32{0, 1}))

	c := countTokens([]string{"paris", "zzyzx", "london", "qwxz"})
	v, err := Build(c, Options{}, table)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(9, 9))
	report, err := InitUnknown(v, NumSpecials, DefaultUnknownStd, rng)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Known)
	assert.Equal(t, 4, report.Total)
	assert.InDelta(t, 3.0, report.AverageNorm, 1e-9) // (5 + 1) / 2
	assert.InDelta(t, 0.5, report.Ratio(), 1e-9)
	assert.Contains(t, report.String(), "number of known words is 2")

	// No row from the offset on is zero anymore, and pretrained rows are untouched.
	for ii := NumSpecials; ii < v.Len(); ii++ {
		assert.False(t, v.Vectors.IsZero(ii), "row %d (%q)", ii, v.Itos[ii])
		assert.True(t, v.Covered[ii])
	}
	assert.Equal(t, []float32{3, 4}, v.Vector("paris"))
	// Special tokens are below the offset and are left alone.
	assert.True(t, v.Vectors.IsZero(UnknownIndex))
	assert.True(t, v.Vectors.IsZero(PadIndex))

	// Drawn vectors are small.
	assert.Less(t, v.Vectors.Norm(v.Index("zzyzx")), 0.5)

	// A second application changes nothing.
	before := append([]float32(nil), v.Vectors.Data...)
	report, err = InitUnknown(v, NumSpecials, DefaultUnknownStd, rng)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Known)
	assert.Equal(t, before, v.Vectors.Data)
}

// TestInitUnknownZeroPretrainedVector checks that a pretrained all-zero vector is kept: coverage
// flags, not the vector value, decide what is missing. It is left out of Known and AverageNorm.
func TestInitUnknownZeroPretrainedVector(t *testing.T) {
	table := pretrained.NewMapTable(2)
	require.NoError(t, table.Set("zero", []float32{0, 0}))
	require.NoError(t, table.Set("one", []float32{3, 4}))
	v, err := Build(countTokens([]string{"zero", "one", "missing"}), Options{}, table)
	require.NoError(t, err)

	report, err := InitUnknown(v, NumSpecials, DefaultUnknownStd, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Known)
	assert.Equal(t, 3, report.Total)
	assert.InDelta(t, 5.0, report.AverageNorm, 1e-9)
	assert.True(t, v.Vectors.IsZero(v.Index("zero")))
	assert.True(t, v.Covered[v.Index("zero")])
	assert.False(t, v.Vectors.IsZero(v.Index("missing")))
}

// TestInitUnknownZeroSentinel checks the fallback for vocabularies without coverage flags.
func TestInitUnknownZeroSentinel(t *testing.T) {
	v, err := Build(countTokens([]string{"a", "b", "c"}), Options{}, nil)
	require.NoError(t, err)
	v.Vectors = NewEmbeddings(v.Len(), 2)
	v.Vectors.SetRow(v.Index("b"), []float32{0, 2})

	report, err := InitUnknown(v, NumSpecials, DefaultUnknownStd, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Known)
	assert.Equal(t, 3, report.Total)
	assert.InDelta(t, 2.0, report.AverageNorm, 1e-9)
	for ii := NumSpecials; ii < v.Len(); ii++ {
		assert.False(t, v.Vectors.IsZero(ii))
	}
}

func TestInitUnknownErrors(t *testing.T) {
	v, err := Build(countTokens([]string{"a"}), Options{}, nil)
	require.NoError(t, err)
	_, err = InitUnknown(v, NumSpecials, DefaultUnknownStd, nil)
	assert.Error(t, err, "no vectors")

	v, err = Build(countTokens([]string{"a"}), Options{EmbeddingDim: 2}, nil)
	require.NoError(t, err)
	_, err = InitUnknown(v, 10, DefaultUnknownStd, nil)
	assert.Error(t, err, "offset out of range")
	_, err = InitUnknown(v, NumSpecials, 0, nil)
	assert.Error(t, err, "invalid std")
}
