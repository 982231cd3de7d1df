package notes

import (
	"errors"
	"strings"
	"testing"
)

func TestTokenizeRetainsWhitespaceRuns(t *testing.T) {
	tokens := Tokenize("Hello  there\n")
	expected := []Token{
		{Text: "Hello"},
		{Text: "  ", Whitespace: true},
		{Text: "there"},
		{Text: "\n", Whitespace: true},
	}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %#v", len(expected), len(tokens), tokens)
	}
	for index := range expected {
		if tokens[index] != expected[index] {
			t.Fatalf("token %d mismatch: want %#v got %#v", index, expected[index], tokens[index])
		}
	}
}

func TestTokenizeReconstructsContent(t *testing.T) {
	inputs := []string{
		"",
		" ",
		"single",
		"  leading and trailing  ",
		"héllo wörld\n\tnext line",
		"tabs\t\tand nbsp",
	}
	for _, input := range inputs {
		var builder strings.Builder
		for _, token := range Tokenize(input) {
			builder.WriteString(token.Text)
		}
		if builder.String() != input {
			t.Fatalf("concatenation mismatch: want %q got %q", input, builder.String())
		}
	}
	if len(Tokenize("")) != 0 {
		t.Fatalf("expected no tokens for empty content")
	}
}

func TestKeyBlockKeysOnlyWords(t *testing.T) {
	keyed := KeyBlock(0, 1, "Hello there")
	if len(keyed) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(keyed))
	}
	if keyed[0].Key == nil || keyed[0].Key.String() != "0-1-0" {
		t.Fatalf("unexpected key for first word: %#v", keyed[0].Key)
	}
	if keyed[1].Key != nil {
		t.Fatalf("whitespace must not be keyed")
	}
	if keyed[2].Key == nil || keyed[2].Key.String() != "0-1-2" {
		t.Fatalf("unexpected key for second word: %#v", keyed[2].Key)
	}
}

func TestParseWordKey(t *testing.T) {
	key, err := ParseWordKey("1-2-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != (WordKey{Page: 1, Block: 2, Word: 3}) {
		t.Fatalf("unexpected key %#v", key)
	}

	invalid := []string{"", "1-2", "1-2-3-4", "a-b-c", "-1-2-3", "01-2-3", "1--3", "1-2-+3"}
	for _, raw := range invalid {
		if _, err := ParseWordKey(raw); !errors.Is(err, ErrInvalidWordKey) {
			t.Fatalf("expected ErrInvalidWordKey for %q, got %v", raw, err)
		}
	}
}

func TestWordAtResolvesCurrentText(t *testing.T) {
	pages := Pages{
		Page{TextBlock("Hello there"), QuoteBlock("quoted words", "#fff")},
	}
	word, ok := pages.WordAt(WordKey{Page: 0, Block: 0, Word: 2})
	if !ok || word != "there" {
		t.Fatalf("expected there, got %q (%v)", word, ok)
	}

	misses := []WordKey{
		{Page: 0, Block: 0, Word: 1},
		{Page: 0, Block: 0, Word: 5},
		{Page: 0, Block: 1, Word: 0},
		{Page: 3, Block: 0, Word: 0},
	}
	for _, key := range misses {
		if _, ok := pages.WordAt(key); ok {
			t.Fatalf("expected %s not to resolve", key)
		}
	}
}

func TestRuneLenCountsCharacters(t *testing.T) {
	if RuneLen("héllo") != 5 {
		t.Fatalf("expected 5 characters, got %d", RuneLen("héllo"))
	}
}
