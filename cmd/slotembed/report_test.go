package main

import (
	"testing"

	"github.com/gomlx/go-slotembed/config"
	"github.com/gomlx/go-slotembed/datasets"
	"github.com/gomlx/go-slotembed/pipeline"
	"github.com/gomlx/go-slotembed/slots"
	"github.com/gomlx/go-slotembed/synth"
	"github.com/gomlx/go-slotembed/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReport(t *testing.T) {
	counter := vocab.NewCounter()
	counter.Add("book", "a", "table", "_party_size_")
	delex, err := vocab.Build(counter, vocab.Options{EmbeddingDim: 3}, nil)
	require.NoError(t, err)
	catalog := slots.NewCatalog()
	catalog.Observe("party_size", "two")

	cfg := config.Default()
	cfg.ExportPath = "/tmp/vectors.safetensors"
	result := &pipeline.Result{
		RunID:         "run-1",
		Config:        cfg,
		Schema:        datasets.SchemaSnips,
		Policy:        synth.PolicyMacro,
		Train:         make([]datasets.Record, 3),
		Text:          delex,
		Delex:         delex,
		TextCoverage:  &vocab.CoverageReport{AverageNorm: 5.5, Known: 3, Total: 4},
		DelexCoverage: &vocab.CoverageReport{Known: 0, Total: 4},
		Catalog:       catalog,
		Synthesis: synth.Result{Policy: synth.PolicyMacro, Slots: []synth.SlotStats{
			{Slot: "party_size", Placeholder: "_party_size_", Values: 1, Resolved: 1},
		}},
	}
	report := renderReport(result)
	for _, want := range []string{
		"run-1",
		"snips (3 train, 0 validation records)",
		"6 tokens, dim=3",
		"3/4 known (75.0%)",
		"1 slots",
		"macro",
		"_party_size_",
		"1 values, 1 words (0 unknown)",
		"/tmp/vectors.safetensors",
	} {
		assert.Contains(t, report, want)
	}
	assert.NotContains(t, report, "labels")
}
