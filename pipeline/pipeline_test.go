package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/go-slotembed/config"
	"github.com/gomlx/go-slotembed/datasets"
	"github.com/gomlx/go-slotembed/pretrained"
	"github.com/gomlx/go-slotembed/synth"
	"github.com/gomlx/go-slotembed/vocab"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	trainCSV = `utterance,labels,delexicalised,intent
Book a table for two,O O O O B-party_size,book a table for _party_size_,BookRestaurant
book for three people,O O B-party_size I-party_size,book for _party_size_,BookRestaurant
weather in Paris,O O B-city,weather in _city_,GetWeather
`
	validCSV = `utterance,labels,delexicalised,intent
weather in london,O O B-city,weather in _city_,GetWeather
`
	gloveTxt = `two 1 0
three 0 1
people 1 1
paris 2 2
book 0.5 0.5
london 9 9
`
)

// testConfig writes a small snips corpus and GloVe table, and returns a configuration using them.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(name, contents string) string {
		filePath := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(filePath, []byte(contents), 0644))
		return filePath
	}
	cfg := config.Default()
	cfg.TrainPath = write("train.csv", trainCSV)
	cfg.ValidPath = write("validate.csv", validCSV)
	cfg.Pretrained = pretrained.Source{Name: "text", Path: write("glove.txt", gloveTxt)}
	cfg.EmbeddingDim = 2
	cfg.CatalogPath = filepath.Join(dir, "catalog.bin")
	return cfg
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, datasets.SchemaSnips, result.Schema)
	assert.Equal(t, synth.PolicyMicro, result.Policy)
	assert.Len(t, result.Train, 3)
	assert.Len(t, result.Valid, 1)

	// Vocabularies come from the training split only.
	assert.Equal(t, 10+vocab.NumSpecials, result.Text.Len())
	assert.Equal(t, vocab.UnknownIndex, result.Text.Index("london"))
	assert.Equal(t, 8+vocab.NumSpecials, result.Delex.Len())
	assert.Equal(t, []string{"BookRestaurant", "GetWeather"}, result.Intents.Itos)
	_, found := result.Labels.Lookup("B-party_size")
	assert.True(t, found)

	require.NotNil(t, result.TextCoverage)
	assert.Equal(t, 5, result.TextCoverage.Known)
	assert.Equal(t, 10, result.TextCoverage.Total)
	require.NotNil(t, result.DelexCoverage)
	assert.Equal(t, 1, result.DelexCoverage.Known)
	for ii := vocab.NumSpecials; ii < result.Delex.Len(); ii++ {
		assert.False(t, result.Delex.Vectors.IsZero(ii), "row %d (%q)", ii, result.Delex.Itos[ii])
	}

	// Lowercased values from the corpus, in first-seen order.
	assert.Equal(t, []string{"two", "three people"}, result.Catalog.Values("party_size"))
	assert.Equal(t, []string{"paris"}, result.Catalog.Values("city"))
	assert.InDeltaSlice(t, []float32{2.0 / 3, 2.0 / 3}, result.Delex.Vector("_party_size_"), 1e-6)
	assert.InDeltaSlice(t, []float32{2, 2}, result.Delex.Vector("_city_"), 1e-6)
	assert.Len(t, result.Synthesis.Slots, 2)

	// The catalog was saved, and is reused by the next run.
	require.FileExists(t, cfg.CatalogPath)
	cfg.AggregationPolicy = "macro"
	result, err = Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three people"}, result.Catalog.Values("party_size"))
	assert.InDeltaSlice(t, []float32{0.75, 0.5}, result.Delex.Vector("_party_size_"), 1e-6)
}

func TestRunRandomVectorsAndExport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pretrained = pretrained.Source{Name: pretrained.NoneName}
	cfg.EmbeddingDim = 4
	cfg.AggregationPolicy = "none"
	cfg.ExportPath = filepath.Join(t.TempDir(), "delex.safetensors")
	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, result.TextCoverage)
	assert.Empty(t, result.Synthesis.Slots)
	for ii := range result.Text.Len() {
		assert.False(t, result.Text.Vectors.IsZero(ii))
	}

	table, err := pretrained.ReadSafetensors(cfg.ExportPath, "", "")
	require.NoError(t, err)
	assert.Equal(t, 4, table.Dim())
	assert.Equal(t, result.Delex.Len(), table.Len())
	v, found := table.Lookup("_city_")
	require.True(t, found)
	assert.Equal(t, result.Delex.Vector("_city_"), v)

	// Same seed, same vectors.
	again, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, result.Text.Vectors.Data, again.Text.Vectors.Data)
}

func TestRunWithoutSlots(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dataset = "spam"
	spamPath := filepath.Join(t.TempDir(), "spam.csv")
	require.NoError(t, os.WriteFile(spamPath, []byte("text,label\nwin two people,spam\nbook now,ham\n"), 0644))
	cfg.TrainPath = spamPath
	cfg.ValidPath = ""
	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, result.Delex)
	assert.Nil(t, result.Labels)
	assert.Nil(t, result.Catalog)
	assert.Equal(t, []string{"spam", "ham"}, result.Intents.Itos)
	assert.Equal(t, 5+vocab.NumSpecials, result.Text.Len())
	assert.NoFileExists(t, cfg.CatalogPath)
}

func TestRunVocabularySize(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxVocabSize = 1
	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1+vocab.NumSpecials, result.Text.Len())
	assert.Equal(t, 1+vocab.NumSpecials, result.Delex.Len())

	cfg = testConfig(t)
	cfg.MaxVocabSize = 0
	_, err = Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalid))
}

func TestRunErrors(t *testing.T) {
	// Invalid configuration fails before reading anything.
	cfg := testConfig(t)
	cfg.AggregationPolicy = "median"
	cfg.TrainPath = "/does/not/exist.csv"
	_, err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, synth.ErrUnknownAggregationPolicy))

	cfg = testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	// Misaligned labels abort the build.
	cfg = testConfig(t)
	require.NoError(t, os.WriteFile(cfg.TrainPath, []byte(`utterance,labels,delexicalised,intent
book a table,O O,book a table,BookRestaurant
`), 0644))
	_, err = Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record #0")

	// A placeholder whose slot was never observed.
	cfg = testConfig(t)
	require.NoError(t, os.WriteFile(cfg.TrainPath, []byte(`utterance,labels,delexicalised,intent
book a table,O O O,book a _thing_,BookRestaurant
`), 0644))
	_, err = Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, synth.ErrUnknownSlot))
}
