package slave

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCountKeywordsMixedCase(t *testing.T) {
	counts, total := CountKeywords("Hello world! Hello user.", []string{"hello", "world"})

	assert.Equal(t, map[string]int{"hello": 2, "world": 1}, counts)
	assert.Equal(t, 4, total)
}

func TestCountKeywordsEmptyDocument(t *testing.T) {
	counts, total := CountKeywords("", []string{"hello", "world"})

	assert.Equal(t, map[string]int{"hello": 0, "world": 0}, counts)
	assert.Zero(t, total)
}

func TestCountKeywordsKeepsKeywordSpelling(t *testing.T) {
	counts, _ := CountKeywords("go GO Go gopher", []string{"Go"})
	assert.Equal(t, map[string]int{"Go": 3}, counts)
}

func TestTokenizeDelimiters(t *testing.T) {
	content := "a,b.c!d?e;f:g-h\u2014i(j)k\"l'm[n]o{p}q/r\\s\tt\r\nu v"
	tokens := Tokenize(content)

	assert.Equal(t, strings.Split("abcdefghijklmnopqrstuv", ""), tokens)
}

func TestTokenizeKeepsOtherPunctuation(t *testing.T) {
	assert.Equal(t, []string{"c#", "50%", "a_b"}, Tokenize("C# 50% a_b"))
}

func delimiterGen() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{" ", "\t", "\n", "\r\n", ", ", ". ", "!", "?", ";", ":", "-", "\u2014", "(", ")", "\"", "'", "[", "]", "{", "}", "/", "\\"})
}

func wordGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-zA-Z0-9]{1,8}`)
}

func TestTokenizeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOf(wordGen()).Draw(t, "words")

		var b strings.Builder
		for _, w := range words {
			b.WriteString(w)
			b.WriteString(delimiterGen().Draw(t, "delim"))
		}
		tokens := Tokenize(b.String())

		if len(tokens) != len(words) {
			t.Fatalf("expected %d tokens, got %d", len(words), len(tokens))
		}
		for i, tok := range tokens {
			if tok != strings.ToLower(words[i]) {
				t.Fatalf("token %d: expected %q, got %q", i, strings.ToLower(words[i]), tok)
			}
			if tok == "" || strings.IndexFunc(tok, isDelimiter) >= 0 {
				t.Fatalf("token %q contains a delimiter", tok)
			}
		}
	})
}

func TestCountKeywordsProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOf(wordGen()).Draw(t, "words")
		keywords := rapid.SliceOfDistinct(wordGen(), strings.ToLower).Draw(t, "keywords")
		content := strings.Join(words, " ")

		counts, total := CountKeywords(content, keywords)

		if total != len(words) {
			t.Fatalf("total %d != %d words", total, len(words))
		}
		if len(counts) != len(keywords) {
			t.Fatalf("expected %d keys, got %d", len(keywords), len(counts))
		}

		sum := 0
		for _, kw := range keywords {
			c, ok := counts[kw]
			if !ok {
				t.Fatalf("keyword %q missing from counts", kw)
			}
			expected := 0
			for _, w := range words {
				if strings.EqualFold(w, kw) {
					expected++
				}
			}
			if c != expected {
				t.Fatalf("keyword %q: expected %d, got %d", kw, expected, c)
			}
			sum += c
		}
		if sum > total {
			t.Fatalf("keyword hits %d exceed total %d", sum, total)
		}
	})
}
