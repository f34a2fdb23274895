// Package whitespace implements the "split" tokenizer: texts are cut on single space characters.
package whitespace

import (
	"strings"

	"github.com/gomlx/go-slotembed/tokenizers/api"
)

// Tokenizer splits on " ". Empty pieces, produced by repeated spaces, are dropped.
type Tokenizer struct{}

// Compile time assert that whitespace.Tokenizer implements api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// New returns a whitespace Tokenizer.
func New() *Tokenizer {
	return &Tokenizer{}
}

// Tokenize implements api.Tokenizer.
func (t *Tokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	pieces := strings.Split(text, " ")
	tokens := pieces[:0]
	for _, p := range pieces {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// Kind implements api.Tokenizer.
func (t *Tokenizer) Kind() api.Kind {
	return api.KindSplit
}
