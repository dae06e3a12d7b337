package search

import (
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	unicodetok "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// minTermRunes drops single-character tokens such as stray letters or digits.
const minTermRunes = 2

// analyzer splits category text into index terms.
type analyzer struct {
	tokenizer analysis.Tokenizer
	lower     analysis.TokenFilter
}

func newAnalyzer() *analyzer {
	return &analyzer{
		tokenizer: unicodetok.NewUnicodeTokenizer(),
		lower:     lowercase.NewLowerCaseFilter(),
	}
}

// terms returns the lower-cased word tokens of text in order, duplicates kept.
func (a *analyzer) terms(text string) []string {
	text = strings.ToLower(text)
	stream := a.lower.Filter(a.tokenizer.Tokenize([]byte(text)))

	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		if utf8.RuneCount(tok.Term) < minTermRunes {
			continue
		}
		out = append(out, string(tok.Term))
	}
	return out
}
