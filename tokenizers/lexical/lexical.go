// Package lexical implements a word tokenizer that separates punctuation from words, and optionally
// reduces each word to its stem with the Snowball (Porter2) English stemmer.
package lexical

import (
	"strings"
	"unicode"

	"github.com/gomlx/go-slotembed/tokenizers/api"
	"github.com/kljensen/snowball"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
	"k8s.io/klog/v2"
)

// StemLanguage is the Snowball language used when stemming.
const StemLanguage = "english"

// Tokenizer splits on whitespace and punctuation. Underscores are word characters, so
// delexicalised placeholders like "_city_" survive as single tokens.
type Tokenizer struct {
	preprocess api.Preprocess
}

// Compile time assert that lexical.Tokenizer implements api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// New creates a lexical Tokenizer. preprocess must be "none" (or empty) or "stem".
func New(preprocess string) (*Tokenizer, error) {
	switch preprocess {
	case "", "none":
		return &Tokenizer{preprocess: api.PreprocessNone}, nil
	case "stem":
		// Fail now rather than on the first word if the stemmer doesn't know the language.
		if _, err := snowball.Stem("tables", StemLanguage, true); err != nil {
			return nil, errors.Wrapf(err, "snowball stemmer for %q", StemLanguage)
		}
		return &Tokenizer{preprocess: api.PreprocessStem}, nil
	}
	return nil, errors.Errorf("unknown lexical preprocessing %q, valid values are \"none\" or \"stem\"", preprocess)
}

// Tokenize implements api.Tokenizer.
func (t *Tokenizer) Tokenize(text string) []string {
	words := preTokenize(norm.NFC.String(cleanText(text)))
	if t.preprocess == api.PreprocessStem {
		for i, w := range words {
			words[i] = stem(w)
		}
	}
	return words
}

// Kind implements api.Tokenizer.
func (t *Tokenizer) Kind() api.Kind {
	return api.KindLexical
}

// isPlaceholder reports whether token has the delexicalised form "_<slot>_".
func isPlaceholder(token string) bool {
	return len(token) > 2 && token[0] == '_' && token[len(token)-1] == '_'
}

func stem(word string) string {
	if isPlaceholder(word) || !hasLetter(word) {
		return word
	}
	stemmed, err := snowball.Stem(word, StemLanguage, true)
	if err != nil {
		klog.Warningf("failed to stem %q, keeping it as is: %v", word, err)
		return word
	}
	return stemmed
}

func hasLetter(word string) bool {
	for _, r := range word {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// cleanText drops NUL, replacement and control characters, and maps all whitespace to ' '.
func cleanText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			result.WriteRune(' ')
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	if r == '_' || r == '\'' {
		return false
	}
	// ASCII punctuation
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// preTokenize splits on whitespace, and emits every punctuation rune as its own token.
func preTokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	for _, r := range text {
		if isWhitespace(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		} else if isPunctuation(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
		} else {
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}
