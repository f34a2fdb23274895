// Package api defines the Tokenizer API.
// It's kept separate to break the cyclic dependency between `tokenizers` and its implementations,
// so users can import `tokenizers` and get the default implementations.
package api

// Tokenizer splits a text into word-level tokens.
//
// The same Tokenizer value must be shared by every component of a run: the vocabulary is built
// from its output, and slot values are re-tokenized with it when synthesizing slot embeddings.
type Tokenizer interface {
	// Tokenize returns the tokens of text, in order. An empty text yields no tokens.
	Tokenize(text string) []string

	// Kind returns the type of tokenizer.
	Kind() Kind
}

// Kind is an enum of the supported tokenizer types.
type Kind int

const (
	// KindSplit splits on single spaces only.
	KindSplit Kind = iota

	// KindLexical splits on whitespace and punctuation, optionally stemming each word.
	KindLexical

	// KindSentencePiece uses a SentencePiece model file.
	KindSentencePiece

	KindCount
)

var kindNames = [KindCount]string{"split", "lexical", "sentencepiece"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || k >= KindCount {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind converts a name to a Kind. Names "nltk" and "spacy" are accepted as aliases for
// KindLexical and KindSentencePiece.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "split", "":
		return KindSplit, true
	case "lexical", "nltk":
		return KindLexical, true
	case "sentencepiece", "spacy":
		return KindSentencePiece, true
	}
	return KindCount, false
}

// Preprocess is an enum of per-word transformations applied by the lexical tokenizer.
type Preprocess int

const (
	PreprocessNone Preprocess = iota
	PreprocessStem
)

// Config configures a Tokenizer.
type Config struct {
	// Type of the tokenizer: "split", "lexical" or "sentencepiece".
	Type string `yaml:"type"`

	// Preprocess is either "none" or "stem". Only used by the lexical tokenizer.
	Preprocess string `yaml:"preprocess"`

	// Lowercase the tokens. It applies to utterances and delexicalised texts, never to labels.
	Lowercase bool `yaml:"lowercase"`

	// ModelPath is the path to the SentencePiece "tokenizer.model" file.
	ModelPath string `yaml:"model_path"`
}
