// Package config holds the configuration of a vocabulary and embedding build, read from a YAML
// file with a few environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gomlx/go-slotembed/datasets"
	"github.com/gomlx/go-slotembed/internal/files"
	"github.com/gomlx/go-slotembed/pretrained"
	"github.com/gomlx/go-slotembed/synth"
	"github.com/gomlx/go-slotembed/tokenizers"
	"github.com/gomlx/go-slotembed/tokenizers/api"
	"github.com/gomlx/go-slotembed/vocab"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// ErrInvalid is returned by Validate for out of range options.
var ErrInvalid = errors.New("invalid configuration")

const (
	// CacheEnv overrides Pretrained.Dir, the directory with the pretrained vectors files.
	CacheEnv = "SLOTEMBED_CACHE"

	// SeedEnv overrides Seed.
	SeedEnv = "SLOTEMBED_SEED"
)

// Config is the root configuration.
type Config struct {
	// Dataset is the corpus schema: snips, atis, sentiment, yelp, spam or bank.
	Dataset   string `yaml:"dataset"`
	TrainPath string `yaml:"train_path"`
	ValidPath string `yaml:"valid_path,omitempty"`

	Tokenizer api.Config `yaml:"tokenizer"`

	// MaxVocabSize is the maximum number of corpus tokens kept, not counting "<unk>" and "<pad>".
	// It must be >= 1.
	MaxVocabSize int `yaml:"max_vocab_size"`
	MinFreq      int `yaml:"min_freq"`

	// EmbeddingDim of the vectors. With a pretrained source it may be 0, to use the table's.
	EmbeddingDim int `yaml:"embedding_dim"`

	Pretrained pretrained.Source `yaml:"pretrained"`

	// AggregationPolicy for placeholder vectors: none, micro or macro.
	AggregationPolicy string `yaml:"aggregation_policy"`

	// UnknownInitStd is the standard deviation of vectors drawn for words missing from the
	// pretrained table.
	UnknownInitStd float64 `yaml:"unknown_init_std"`

	// RandomInitStd is the standard deviation of all vectors when there is no pretrained table.
	RandomInitStd float64 `yaml:"random_init_std"`

	Seed uint64 `yaml:"seed"`

	// CatalogPath, if set, is where the slot catalog is loaded from if present, or saved to.
	CatalogPath string `yaml:"catalog_path,omitempty"`

	// ExportPath, if set, is where the delexicalized vocabulary and its vectors are saved, as
	// a safetensors file.
	ExportPath string `yaml:"export_path,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Dataset:           "snips",
		TrainPath:         "train.csv",
		ValidPath:         "validate.csv",
		Tokenizer:         api.Config{Type: "split", Preprocess: "none", Lowercase: true},
		MaxVocabSize:      10000,
		MinFreq:           1,
		EmbeddingDim:      100,
		Pretrained:        pretrained.Source{Name: "glove.6B"},
		AggregationPolicy: "micro",
		UnknownInitStd:    vocab.DefaultUnknownStd,
		RandomInitStd:     vocab.DefaultRandomStd,
		Seed:              42,
	}
}

// Load reads the configuration at filePath over the defaults. If the file does not exist, it
// returns the defaults. Environment overrides are applied in both cases.
func Load(filePath string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(files.ExpandHome(filePath))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(err, "failed to read configuration %q", filePath)
		}
		klog.V(1).Infof("configuration %q not found, using defaults", filePath)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse configuration %q", filePath)
	}
	applyDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to filePath, creating directories as needed.
func Save(filePath string, cfg *Config) error {
	filePath = files.ExpandHome(filePath)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", filePath)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to encode configuration")
	}
	return errors.Wrapf(os.WriteFile(filePath, data, 0o644), "failed to write %q", filePath)
}

func applyDefaults(cfg *Config) {
	if cfg.Tokenizer.Type == "" {
		cfg.Tokenizer.Type = "split"
	}
	if cfg.MinFreq == 0 {
		cfg.MinFreq = 1
	}
	if cfg.UnknownInitStd == 0 {
		cfg.UnknownInitStd = vocab.DefaultUnknownStd
	}
	if cfg.RandomInitStd == 0 {
		cfg.RandomInitStd = vocab.DefaultRandomStd
	}
	if cfg.AggregationPolicy == "" {
		cfg.AggregationPolicy = "none"
	}
	if cfg.Pretrained.Name == "" {
		cfg.Pretrained.Name = pretrained.NoneName
	}
}

func applyEnv(cfg *Config) error {
	if dir := os.Getenv(CacheEnv); dir != "" {
		cfg.Pretrained.Dir = dir
	}
	if seed := os.Getenv(SeedEnv); seed != "" {
		value, err := strconv.ParseUint(seed, 10, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalid, "%s=%q is not a valid seed", SeedEnv, seed)
		}
		cfg.Seed = value
	}
	return nil
}

// Validate checks every option, so that a bad configuration fails before any corpus is read.
// Errors wrap datasets.ErrUnknownDataset, tokenizers.ErrUnknownTokenizer,
// synth.ErrUnknownAggregationPolicy, pretrained.ErrUnknownSource or ErrInvalid.
func (cfg *Config) Validate() error {
	if _, err := datasets.ParseSchema(cfg.Dataset); err != nil {
		return err
	}
	if _, found := api.ParseKind(cfg.Tokenizer.Type); !found {
		return errors.Wrapf(tokenizers.ErrUnknownTokenizer, "%q", cfg.Tokenizer.Type)
	}
	switch cfg.Tokenizer.Preprocess {
	case "", "none", "stem":
	default:
		return errors.Wrapf(ErrInvalid, "tokenizer preprocess %q (valid values: none, stem)", cfg.Tokenizer.Preprocess)
	}
	if _, err := synth.ParsePolicy(cfg.AggregationPolicy); err != nil {
		return err
	}
	if !cfg.Pretrained.IsNone() {
		if _, _, err := pretrained.Resolve(cfg.Pretrained, cfg.EmbeddingDim); err != nil {
			return err
		}
	} else if cfg.EmbeddingDim <= 0 {
		return errors.Wrapf(ErrInvalid, "embedding_dim=%d, it must be > 0 without pretrained vectors", cfg.EmbeddingDim)
	}

	switch {
	case cfg.TrainPath == "":
		return errors.Wrap(ErrInvalid, "train_path is required")
	case cfg.MaxVocabSize < 1:
		return errors.Wrapf(ErrInvalid, "max_vocab_size=%d, it must be >= 1", cfg.MaxVocabSize)
	case cfg.MinFreq < 1:
		return errors.Wrapf(ErrInvalid, "min_freq=%d, it must be >= 1", cfg.MinFreq)
	case cfg.EmbeddingDim < 0:
		return errors.Wrapf(ErrInvalid, "embedding_dim=%d", cfg.EmbeddingDim)
	case cfg.UnknownInitStd <= 0:
		return errors.Wrapf(ErrInvalid, "unknown_init_std=%g, it must be > 0", cfg.UnknownInitStd)
	case cfg.RandomInitStd <= 0:
		return errors.Wrapf(ErrInvalid, "random_init_std=%g, it must be > 0", cfg.RandomInitStd)
	}

	for _, warning := range cfg.Warnings() {
		klog.Warning(warning)
	}
	return nil
}

// Warnings lists the valid but suspicious options of a configuration. Validate logs them.
func (cfg *Config) Warnings() []string {
	schema, err := datasets.ParseSchema(cfg.Dataset)
	if err != nil {
		return nil
	}
	var warnings []string
	if !schema.HasSlots() {
		if policy, err := synth.ParsePolicy(cfg.AggregationPolicy); err == nil && policy != synth.PolicyNone {
			warnings = append(warnings, fmt.Sprintf(
				"aggregation_policy=%s has no effect: dataset %s has no slot annotations", policy, schema))
		}
		return warnings
	}
	// Slot labels are one per space-separated word: a tokenizer that splits words further
	// misaligns them with the utterance.
	if kind, found := api.ParseKind(cfg.Tokenizer.Type); found && kind != api.KindSplit {
		warnings = append(warnings, fmt.Sprintf(
			"tokenizer %s on dataset %s: utterances with punctuation or subwords will not align with their slot labels, use split",
			kind, schema))
	}
	return warnings
}
