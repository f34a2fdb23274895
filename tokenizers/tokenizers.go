// Package tokenizers creates the tokenizer strategy shared by every stage of a run.
//
// Example:
//
//	tok, err := tokenizers.New(api.Config{Type: "lexical", Preprocess: "stem"})
//	if err != nil {
//		panic(err)
//	}
//	tokens := tokenizers.Lower(tok.Tokenize("Book a table for Two"))
package tokenizers

import (
	"github.com/gomlx/go-slotembed/tokenizers/api"
	"github.com/gomlx/go-slotembed/tokenizers/lexical"
	"github.com/gomlx/go-slotembed/tokenizers/sentencepiece"
	"github.com/gomlx/go-slotembed/tokenizers/whitespace"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrUnknownTokenizer is returned by New for an unsupported tokenizer type.
var ErrUnknownTokenizer = errors.New("unknown tokenizer")

// New creates the tokenizer described by config.
func New(config api.Config) (api.Tokenizer, error) {
	kind, ok := api.ParseKind(config.Type)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTokenizer, "tokenizer type %q", config.Type)
	}
	switch kind {
	case api.KindSplit:
		return whitespace.New(), nil
	case api.KindLexical:
		tok, err := lexical.New(config.Preprocess)
		if err != nil {
			return nil, err
		}
		return tok, nil
	case api.KindSentencePiece:
		tok, err := sentencepiece.New(config.ModelPath)
		if err != nil {
			return nil, err
		}
		return tok, nil
	}
	return nil, errors.Wrapf(ErrUnknownTokenizer, "tokenizer kind %s", kind)
}

// Lower lower-cases every token in place, and returns the same slice.
func Lower(tokens []string) []string {
	caser := cases.Lower(language.Und)
	for i, tok := range tokens {
		tokens[i] = caser.String(tok)
	}
	return tokens
}
