// Package pipeline runs a complete vocabulary and embedding build from a configuration:
// read the corpora, build the vocabularies with their vectors, fill in the vectors missing from
// the pretrained table, build the slot catalog, and synthesize the placeholder vectors.
package pipeline

import (
	"context"
	"math/rand/v2"

	"github.com/gomlx/go-slotembed/config"
	"github.com/gomlx/go-slotembed/datasets"
	"github.com/gomlx/go-slotembed/internal/files"
	"github.com/gomlx/go-slotembed/pretrained"
	"github.com/gomlx/go-slotembed/slots"
	"github.com/gomlx/go-slotembed/synth"
	"github.com/gomlx/go-slotembed/tokenizers"
	"github.com/gomlx/go-slotembed/tokenizers/api"
	"github.com/gomlx/go-slotembed/vocab"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Result of a Run. Vocabularies and reports a dataset doesn't have are nil.
type Result struct {
	// RunID identifies the run in the logs.
	RunID string

	Config *config.Config
	Schema datasets.Schema
	Policy synth.Policy

	// Train and Valid are the tokenized corpora.
	Train, Valid []datasets.Record

	// Text and Delex are the vocabularies of the raw and delexicalized utterances, with vectors.
	Text, Delex *vocab.Vocabulary

	// Labels is the slot labels vocabulary and Intents the intent classes, both without vectors.
	Labels, Intents *vocab.Vocabulary

	// TextCoverage and DelexCoverage report the pretrained coverage, if a pretrained source was used.
	TextCoverage, DelexCoverage *vocab.CoverageReport

	Catalog   *slots.Catalog
	Synthesis synth.Result
}

// Run executes the whole build. The configuration is validated before any file is read.
// ctx is checked between stages.
func Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &runner{
		cfg: cfg,
		result: &Result{
			RunID:  uuid.NewString(),
			Config: cfg,
		},
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5107e4bed)),
	}
	stages := []struct {
		name string
		fn   func() error
	}{
		{"setup", r.setup},
		{"read corpora", r.readCorpora},
		{"build vocabularies", r.buildVocabularies},
		{"build slot catalog", r.buildCatalog},
		{"synthesize placeholder vectors", r.synthesize},
		{"export", r.export},
	}
	for _, stage := range stages {
		// Checks whether context has already been cancelled, and exit immediately.
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "run %s cancelled before %s", r.result.RunID, stage.name)
		}
		klog.V(1).Infof("run %s: %s", r.result.RunID, stage.name)
		if err := stage.fn(); err != nil {
			return nil, errors.WithMessagef(err, "run %s: %s", r.result.RunID, stage.name)
		}
	}
	return r.result, nil
}

type runner struct {
	cfg       *config.Config
	result    *Result
	rng       *rand.Rand
	tokenizer api.Tokenizer
	reader    *datasets.Reader
}

func (r *runner) setup() error {
	var err error
	if r.result.Schema, err = datasets.ParseSchema(r.cfg.Dataset); err != nil {
		return err
	}
	if r.result.Policy, err = synth.ParsePolicy(r.cfg.AggregationPolicy); err != nil {
		return err
	}
	if r.tokenizer, err = tokenizers.New(r.cfg.Tokenizer); err != nil {
		return err
	}
	r.reader, err = datasets.NewReader(r.result.Schema, datasets.Options{
		Tokenizer: r.tokenizer,
		Lowercase: r.cfg.Tokenizer.Lowercase,
	})
	return err
}

func (r *runner) readCorpora() error {
	var err error
	if r.result.Train, err = r.reader.Load(r.cfg.TrainPath); err != nil {
		return err
	}
	if r.cfg.ValidPath != "" {
		if r.result.Valid, err = r.reader.Load(r.cfg.ValidPath); err != nil {
			return err
		}
	}
	klog.Infof("run %s: %s corpus with %d training and %d validation records",
		r.result.RunID, r.result.Schema, len(r.result.Train), len(r.result.Valid))
	return nil
}

// buildVocabularies builds all vocabularies from the training records only.
func (r *runner) buildVocabularies() error {
	hasSlots := r.result.Schema.HasSlots()
	textCounter, delexCounter := vocab.NewCounter(), vocab.NewCounter()
	labelsCounter, intentsCounter := vocab.NewCounter(), vocab.NewCounter()
	for _, record := range r.result.Train {
		textCounter.Add(record.Utterance...)
		if hasSlots {
			delexCounter.Add(record.Delex...)
			labelsCounter.Add(record.Labels...)
		}
		if record.Intent != "" {
			intentsCounter.Add(record.Intent)
		}
	}

	var table pretrained.Table
	if !r.cfg.Pretrained.IsNone() {
		// Only the vectors of corpus tokens are kept in memory.
		keep := func(word string) bool {
			return textCounter.Count(word) > 0 || delexCounter.Count(word) > 0
		}
		var err error
		table, err = pretrained.Open(r.cfg.Pretrained, r.cfg.EmbeddingDim, keep)
		if err != nil {
			return err
		}
	}

	var err error
	r.result.Text, r.result.TextCoverage, err = r.buildEmbedded("text", textCounter, table)
	if err != nil {
		return err
	}
	if hasSlots {
		r.result.Delex, r.result.DelexCoverage, err = r.buildEmbedded("delexicalised", delexCounter, table)
		if err != nil {
			return err
		}
		if r.result.Labels, err = vocab.Build(labelsCounter, vocab.Options{}, nil); err != nil {
			return err
		}
	}
	if intentsCounter.Len() > 0 {
		if r.result.Intents, err = vocab.Build(intentsCounter, vocab.Options{NoSpecials: true}, nil); err != nil {
			return err
		}
	}
	return nil
}

// buildEmbedded builds a vocabulary with vectors and, with a pretrained table, initializes the
// vectors of the words missing from it.
func (r *runner) buildEmbedded(name string, counter *vocab.Counter, table pretrained.Table) (*vocab.Vocabulary, *vocab.CoverageReport, error) {
	v, err := vocab.Build(counter, vocab.Options{
		MaxSize:      r.cfg.MaxVocabSize,
		MinFreq:      r.cfg.MinFreq,
		EmbeddingDim: r.cfg.EmbeddingDim,
		RandomStd:    r.cfg.RandomInitStd,
		Rand:         r.rng,
	}, table)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "%s vocabulary", name)
	}
	klog.Infof("run %s: %s vocabulary has %d tokens (%d distinct in corpus)", r.result.RunID, name, v.Len(), counter.Len())
	if table == nil {
		return v, nil, nil
	}
	report, err := vocab.InitUnknown(v, vocab.NumSpecials, r.cfg.UnknownInitStd, r.rng)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "%s vocabulary", name)
	}
	return v, &report, nil
}

// buildCatalog loads the catalog from CatalogPath if it exists, or builds it from the training
// records, saving it to CatalogPath if set.
func (r *runner) buildCatalog() error {
	if !r.result.Schema.HasSlots() {
		return nil
	}
	if r.cfg.CatalogPath != "" && files.Exists(files.ExpandHome(r.cfg.CatalogPath)) {
		catalog, err := slots.Load(r.cfg.CatalogPath)
		if err != nil {
			return err
		}
		klog.Infof("run %s: loaded slot catalog with %d slots from %q", r.result.RunID, catalog.Len(), r.cfg.CatalogPath)
		r.result.Catalog = catalog
		return nil
	}

	records := make([]slots.Record, len(r.result.Train))
	for ii, record := range r.result.Train {
		records[ii] = slots.Record{Utterance: record.Utterance, Labels: record.Labels}
	}
	catalog, err := slots.Build(records)
	if err != nil {
		return errors.WithMessage(err, "training corpus")
	}
	r.result.Catalog = catalog
	klog.Infof("run %s: slot catalog has %d slots", r.result.RunID, r.result.Catalog.Len())
	if r.cfg.CatalogPath != "" {
		return slots.Save(r.cfg.CatalogPath, r.result.Catalog)
	}
	return nil
}

func (r *runner) synthesize() error {
	if !r.result.Schema.HasSlots() {
		return nil
	}
	var err error
	r.result.Synthesis, err = synth.Synthesize(synth.Inputs{
		Delex:     r.result.Delex,
		Text:      r.result.Text,
		Catalog:   r.result.Catalog,
		Tokenizer: r.tokenizer,
		Lowercase: r.cfg.Tokenizer.Lowercase,
	}, r.result.Policy)
	return err
}

// export saves the model input vocabulary (delexicalised if available) and its vectors.
func (r *runner) export() error {
	if r.cfg.ExportPath == "" {
		return nil
	}
	v := r.result.Text
	if r.result.Delex != nil {
		v = r.result.Delex
	}
	filePath := files.ExpandHome(r.cfg.ExportPath)
	if err := pretrained.WriteSafetensors(filePath, v.Itos, v.Vectors.Data, v.Vectors.Dim, ""); err != nil {
		return err
	}
	klog.Infof("run %s: exported %d vectors to %q", r.result.RunID, v.Len(), filePath)
	return nil
}
