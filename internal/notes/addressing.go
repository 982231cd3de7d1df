package notes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidWordKey indicates a word key that is not "<page>-<block>-<word>".
var ErrInvalidWordKey = errors.New("notes: invalid word key")

// WordKey addresses one word token of a text block. Keys follow the current
// tokenization of the block and are not stable across edits of its text.
type WordKey struct {
	Page  int
	Block int
	Word  int
}

// String renders the key as "<page>-<block>-<word>".
func (k WordKey) String() string {
	return fmt.Sprintf("%d-%d-%d", k.Page, k.Block, k.Word)
}

// ParseWordKey parses "<page>-<block>-<word>" with non-negative indices.
func ParseWordKey(raw string) (WordKey, error) {
	segments := strings.Split(strings.TrimSpace(raw), "-")
	if len(segments) != 3 {
		return WordKey{}, fmt.Errorf("%w: %q", ErrInvalidWordKey, raw)
	}
	indices := [3]int{}
	for position, segment := range segments {
		value, err := strconv.Atoi(segment)
		if err != nil || value < 0 || segment != strconv.Itoa(value) {
			return WordKey{}, fmt.Errorf("%w: %q", ErrInvalidWordKey, raw)
		}
		indices[position] = value
	}
	return WordKey{Page: indices[0], Block: indices[1], Word: indices[2]}, nil
}

// MarshalText implements encoding.TextMarshaler so keys serialize as JSON object keys.
func (k WordKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *WordKey) UnmarshalText(text []byte) error {
	parsed, err := ParseWordKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Token is one entry of a tokenized text block: either a word or a whitespace run.
type Token struct {
	Text       string
	Whitespace bool
}

// Tokenize splits content into alternating word and whitespace runs.
// Concatenating the token texts reproduces content exactly.
func Tokenize(content string) []Token {
	tokens := make([]Token, 0, 8)
	start := 0
	inWhitespace := false
	for offset, r := range content {
		isSpace := unicode.IsSpace(r)
		if offset == 0 {
			inWhitespace = isSpace
			continue
		}
		if isSpace != inWhitespace {
			tokens = append(tokens, Token{Text: content[start:offset], Whitespace: inWhitespace})
			start = offset
			inWhitespace = isSpace
		}
	}
	if start < len(content) {
		tokens = append(tokens, Token{Text: content[start:], Whitespace: inWhitespace})
	}
	return tokens
}

// KeyedToken is a token positioned within a note. Key is nil for whitespace.
type KeyedToken struct {
	Token
	Key *WordKey
}

// KeyBlock tokenizes a text block and assigns a WordKey to every word token.
// The word index is the token's position in the whitespace-retaining sequence,
// so "Hello there" keys "Hello" at 0 and "there" at 2.
func KeyBlock(pageIndex, blockIndex int, content string) []KeyedToken {
	tokens := Tokenize(content)
	keyed := make([]KeyedToken, len(tokens))
	for tokenIndex, token := range tokens {
		keyed[tokenIndex] = KeyedToken{Token: token}
		if token.Whitespace {
			continue
		}
		keyed[tokenIndex].Key = &WordKey{Page: pageIndex, Block: blockIndex, Word: tokenIndex}
	}
	return keyed
}

// WordAt returns the word a key currently resolves to, if any.
func (p Pages) WordAt(key WordKey) (string, bool) {
	if !p.Contains(key.Page, key.Block) {
		return "", false
	}
	block := p[key.Page][key.Block]
	if !block.IsText() {
		return "", false
	}
	tokens := Tokenize(block.Content)
	if key.Word >= len(tokens) || tokens[key.Word].Whitespace {
		return "", false
	}
	return tokens[key.Word].Text, true
}

// RuneLen returns the number of characters in content, the unit of cursor positions.
func RuneLen(content string) int {
	return utf8.RuneCountInString(content)
}
