package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tok, err := New("none")
	require.NoError(t, err)

	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{"empty", "", nil},
		{"punctuation", "Hello, world!", []string{"Hello", ",", "world", "!"}},
		{"whitespace runs", "a \t\n b", []string{"a", "b"}},
		{"control chars dropped", "a\x00b\u0007c", []string{"abc"}},
		{"placeholder kept", "play _artist_ now.", []string{"play", "_artist_", "now", "."}},
		{"apostrophe kept", "don't stop", []string{"don't", "stop"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tok.Tokenize(tt.text))
		})
	}
}

func TestTokenizeNFC(t *testing.T) {
	tok, err := New("")
	require.NoError(t, err)
	// "e" followed by a combining acute accent is composed into a single rune.
	assert.Equal(t, []string{"café"}, tok.Tokenize("café"))
}

func TestTokenizeStem(t *testing.T) {
	tok, err := New("stem")
	require.NoError(t, err)

	tokens := tok.Tokenize("booking tables for _party_size_number_ , 42")
	require.Len(t, tokens, 6)
	assert.Equal(t, "book", tokens[0])
	assert.Equal(t, "tabl", tokens[1])
	assert.Equal(t, "_party_size_number_", tokens[3])
	assert.Equal(t, ",", tokens[4])
	assert.Equal(t, "42", tokens[5])
}

func TestNewInvalidPreprocess(t *testing.T) {
	_, err := New("lemmatize")
	assert.Error(t, err)
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, isPlaceholder("_city_"))
	assert.True(t, isPlaceholder("_a_"))
	assert.False(t, isPlaceholder("__"))
	assert.False(t, isPlaceholder("_"))
	assert.False(t, isPlaceholder("city_"))
	assert.False(t, isPlaceholder("city"))
}
