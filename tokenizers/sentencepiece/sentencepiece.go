// Package sentencepiece implements an api.Tokenizer based on a SentencePiece model.
//
// Tokens are the model's pieces with the "▁" word-boundary marker removed, so they can be looked
// up in word-level vocabularies and pretrained tables.
package sentencepiece

import (
	"strings"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/gomlx/go-slotembed/internal/files"
	"github.com/gomlx/go-slotembed/tokenizers/api"
	"github.com/pkg/errors"
)

// metaspace is U+2581 (lower one eighth block), used by SentencePiece as the space replacement.
const metaspace = "▁"

// Tokenizer implements api.Tokenizer based on SentencePiece tokenizer by Google.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo
}

// Compile time assert that sentencepiece.Tokenizer implements api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// New creates a SentencePiece tokenizer from a "tokenizer.model" file, which must be a
// SentencePiece Model proto.
func New(modelPath string) (*Tokenizer, error) {
	if modelPath == "" {
		return nil, errors.New("sentencepiece tokenizer requires a model_path")
	}
	modelPath = files.ExpandHome(modelPath)
	if !files.Exists(modelPath) {
		return nil, errors.Errorf("sentencepiece model %q not found", modelPath)
	}
	proc, err := esentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", modelPath)
	}
	return &Tokenizer{
		Processor: proc,
		Info:      proc.ModelInfo(),
	}, nil
}

// Tokenize implements api.Tokenizer.
func (p *Tokenizer) Tokenize(text string) []string {
	pieces := p.Processor.Encode(text)
	tokens := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		if tok := stripMetaspace(piece.Text); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Kind implements api.Tokenizer.
func (p *Tokenizer) Kind() api.Kind {
	return api.KindSentencePiece
}

// stripMetaspace removes the leading word-boundary markers of a piece.
func stripMetaspace(piece string) string {
	for strings.HasPrefix(piece, metaspace) {
		piece = piece[len(metaspace):]
	}
	return piece
}
