package synth

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/go-slotembed/pretrained"
	"github.com/gomlx/go-slotembed/slots"
	"github.com/gomlx/go-slotembed/tokenizers/whitespace"
	"github.com/gomlx/go-slotembed/vocab"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	v1 = []float32{1, 0, 2}
	v2 = []float32{3, 3, 0}
	v3 = []float32{-1, 6, 4}
)

// testInputs builds the vocabularies for slot "count" with values "two" and "three people",
// where two -> v1, three -> v2 and people -> v3.
func testInputs(t *testing.T, values ...string) Inputs {
	t.Helper()
	table := pretrained.NewMapTable(3)
	require.NoError(t, table.Set("two", v1))
	require.NoError(t, table.Set("three", v2))
	require.NoError(t, table.Set("people", v3))

	textCounter := vocab.NewCounter()
	textCounter.Add("book", "a", "table", "for", "two", "three", "people", "zzyzx")
	text, err := vocab.Build(textCounter, vocab.Options{}, table)
	require.NoError(t, err)
	_, err = vocab.InitUnknown(text, vocab.NumSpecials, vocab.DefaultUnknownStd, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	delexCounter := vocab.NewCounter()
	delexCounter.Add("book", "a", "table", "for", "_count_")
	delex, err := vocab.Build(delexCounter, vocab.Options{}, table)
	require.NoError(t, err)
	_, err = vocab.InitUnknown(delex, vocab.NumSpecials, vocab.DefaultUnknownStd, rand.New(rand.NewPCG(2, 2)))
	require.NoError(t, err)

	catalog := slots.NewCatalog()
	if len(values) == 0 {
		values = []string{"two", "three people"}
	}
	for _, value := range values {
		catalog.Observe("count", value)
	}
	return Inputs{Delex: delex, Text: text, Catalog: catalog, Tokenizer: whitespace.New()}
}

func mean(vectors ...[]float32) []float32 {
	result := make([]float32, len(vectors[0]))
	for ii := range result {
		var sum float64
		for _, v := range vectors {
			sum += float64(v[ii])
		}
		result[ii] = float32(sum / float64(len(vectors)))
	}
	return result
}

func TestSynthesizeWorkedExample(t *testing.T) {
	for _, tc := range []struct {
		policy Policy
		want   []float32
	}{
		{PolicyMicro, mean(v1, v2, v3)},
		{PolicyMacro, mean(v1, mean(v2, v3))},
	} {
		t.Run(tc.policy.String(), func(t *testing.T) {
			in := testInputs(t)
			result, err := Synthesize(in, tc.policy)
			require.NoError(t, err)
			require.Len(t, result.Slots, 1)
			stats := result.Slots[0]
			assert.Equal(t, "count", stats.Slot)
			assert.Equal(t, "_count_", stats.Placeholder)
			assert.Equal(t, in.Delex.Index("_count_"), stats.Index)
			assert.Equal(t, 2, stats.Values)
			assert.Equal(t, 3, stats.Resolved)
			assert.Equal(t, 0, stats.Skipped)
			assert.InDeltaSlice(t, tc.want, in.Delex.Vector("_count_"), 1e-6)
			assert.True(t, in.Delex.Covered[stats.Index])
		})
	}
}

func TestSynthesizeNone(t *testing.T) {
	in := testInputs(t)
	before := append([]float32(nil), in.Delex.Vectors.Data...)
	result, err := Synthesize(in, PolicyNone)
	require.NoError(t, err)
	assert.Empty(t, result.Slots)
	assert.Equal(t, before, in.Delex.Vectors.Data)
}

func TestSynthesizeUnknownWordsDiscarded(t *testing.T) {
	in := testInputs(t, "two", "three unheardof", "qqq")
	result, err := Synthesize(in, PolicyMacro)
	require.NoError(t, err)
	stats := result.Slots[0]
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.EmptyValues)
	// "qqq" has no known word and is left out of the macro average.
	assert.InDeltaSlice(t, mean(v1, v2), in.Delex.Vector("_count_"), 1e-6)
}

// TestSynthesizeOrderIndependent checks that permuting the values of a slot doesn't change the result.
func TestSynthesizeOrderIndependent(t *testing.T) {
	values := []string{"two", "three people", "people", "two two three", "three"}
	rng := rand.New(rand.NewPCG(3, 4))
	for _, policy := range []Policy{PolicyMicro, PolicyMacro} {
		in := testInputs(t, values...)
		_, err := Synthesize(in, policy)
		require.NoError(t, err)
		want := in.Delex.Vector("_count_")
		for range 10 {
			permuted := append([]string(nil), values...)
			rng.Shuffle(len(permuted), func(i, j int) { permuted[i], permuted[j] = permuted[j], permuted[i] })
			in := testInputs(t, permuted...)
			_, err := Synthesize(in, policy)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, in.Delex.Vector("_count_"), 1e-6, "policy=%s, values=%q", policy, permuted)
		}
	}
}

// TestSynthesizeSingleWordValues checks that micro and macro agree when every value is one word.
func TestSynthesizeSingleWordValues(t *testing.T) {
	micro := testInputs(t, "two", "three", "people")
	_, err := Synthesize(micro, PolicyMicro)
	require.NoError(t, err)
	macro := testInputs(t, "two", "three", "people")
	_, err = Synthesize(macro, PolicyMacro)
	require.NoError(t, err)
	assert.InDeltaSlice(t, micro.Delex.Vector("_count_"), macro.Delex.Vector("_count_"), 1e-6)
}

func TestSynthesizeErrors(t *testing.T) {
	in := testInputs(t)
	in.Catalog = slots.NewCatalog()
	in.Catalog.Observe("city", "paris")
	_, err := Synthesize(in, PolicyMicro)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownSlot))

	in = testInputs(t, "nothing known", "qqq")
	_, err = Synthesize(in, PolicyMicro)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptySlotAggregate))
	assert.Contains(t, err.Error(), "_count_")

	in = testInputs(t)
	_, err = Synthesize(in, Policy(7))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAggregationPolicy))

	in = testInputs(t)
	in.Tokenizer = nil
	_, err = Synthesize(in, PolicyMicro)
	assert.Error(t, err)

	in = testInputs(t)
	in.Text.Vectors = nil
	_, err = Synthesize(in, PolicyMacro)
	assert.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	for name, want := range map[string]Policy{
		"":      PolicyNone,
		"none":  PolicyNone,
		"micro": PolicyMicro,
		"Macro": PolicyMacro,
	} {
		got, err := ParsePolicy(name)
		require.NoError(t, err, "policy %q", name)
		assert.Equal(t, want, got, "policy %q", name)
	}
	_, err := ParsePolicy("median")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAggregationPolicy))
	assert.Equal(t, "Policy(9)", fmt.Sprint(Policy(9)))
}

func TestAggregate(t *testing.T) {
	perValue := [][][]float32{{{2, 2}}, {}, {{0, 0}, {4, 8}}}
	got, err := aggregate(perValue, 2, PolicyMicro)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 10.0 / 3}, got, 1e-6)

	got, err = aggregate(perValue, 2, PolicyMacro)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 3}, got, 1e-6)

	_, err = aggregate([][][]float32{{}, nil}, 2, PolicyMacro)
	assert.True(t, errors.Is(err, ErrEmptySlotAggregate))
}
