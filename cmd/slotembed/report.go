package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/go-slotembed/pipeline"
	"github.com/gomlx/go-slotembed/vocab"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(22)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// maxSlotsListed in the synthesis section of the report.
const maxSlotsListed = 20

type reportBuilder struct {
	lines []string
}

func (b *reportBuilder) section(name string) {
	if len(b.lines) > 0 {
		b.lines = append(b.lines, "")
	}
	b.lines = append(b.lines, sectionStyle.Render(name))
}

func (b *reportBuilder) field(key string, format string, args ...any) {
	b.lines = append(b.lines, keyStyle.Render(key)+fmt.Sprintf(format, args...))
}

func (b *reportBuilder) vocabulary(name string, v *vocab.Vocabulary, coverage *vocab.CoverageReport) {
	if v == nil {
		return
	}
	dim := 0
	if v.Vectors != nil {
		dim = v.Vectors.Dim
	}
	if dim > 0 {
		b.field(name, "%d tokens, dim=%d", v.Len(), dim)
	} else {
		b.field(name, "%d tokens", v.Len())
	}
	if coverage != nil {
		b.field("  pretrained", "%d/%d known (%.1f%%), average norm %.4f",
			coverage.Known, coverage.Total, 100*coverage.Ratio(), coverage.AverageNorm)
	}
}

// renderReport formats the result of a run for the terminal.
func renderReport(result *pipeline.Result) string {
	b := &reportBuilder{}
	cfg := result.Config

	b.section("Run")
	b.field("id", "%s", result.RunID)
	b.field("dataset", "%s (%d train, %d validation records)", result.Schema, len(result.Train), len(result.Valid))
	pretrainedName := cfg.Pretrained.Name
	if cfg.Pretrained.IsNone() {
		pretrainedName = fmt.Sprintf("none (random, std=%g)", cfg.RandomInitStd)
	}
	b.field("pretrained", "%s", pretrainedName)

	b.section("Vocabularies")
	b.vocabulary("text", result.Text, result.TextCoverage)
	b.vocabulary("delexicalised", result.Delex, result.DelexCoverage)
	b.vocabulary("labels", result.Labels, nil)
	b.vocabulary("intents", result.Intents, nil)

	if result.Catalog != nil {
		b.section("Slots")
		b.field("catalog", "%d slots", result.Catalog.Len())
		b.field("aggregation", "%s", result.Policy)
		for ii, stats := range result.Synthesis.Slots {
			if ii == maxSlotsListed {
				b.lines = append(b.lines, fmt.Sprintf("... and %d more", len(result.Synthesis.Slots)-ii))
				break
			}
			line := fmt.Sprintf("%d values, %d words (%d unknown)", stats.Values, stats.Resolved, stats.Skipped)
			if stats.EmptyValues > 0 {
				line += warnStyle.Render(fmt.Sprintf(", %d values without known words", stats.EmptyValues))
			}
			b.field("  "+stats.Placeholder, "%s", line)
		}
	}
	if cfg.ExportPath != "" {
		b.section("Export")
		b.field("safetensors", "%s", cfg.ExportPath)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("slotembed"),
		boxStyle.Render(strings.Join(b.lines, "\n")))
}
