package store

import (
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/length"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// MinTokenLength is the shortest token (in runes) the keyword index keeps.
const MinTokenLength = 2

// Analyzer turns text into keyword index terms: Unicode word segments,
// lowercased, at least MinTokenLength runes, joined into n-grams.
type Analyzer struct {
	inner analysis.Analyzer
	minN  int
	maxN  int
}

// NewAnalyzer creates an analyzer emitting n-grams of minN..maxN tokens.
func NewAnalyzer(minN, maxN int) *Analyzer {
	if minN < 1 {
		minN = 1
	}
	if maxN < minN {
		maxN = minN
	}
	return &Analyzer{
		inner: &analysis.DefaultAnalyzer{
			Tokenizer: unicode.NewUnicodeTokenizer(),
			TokenFilters: []analysis.TokenFilter{
				lowercase.NewLowerCaseFilter(),
				length.NewLengthFilter(MinTokenLength, -1),
			},
		},
		minN: minN,
		maxN: maxN,
	}
}

// Tokens returns the filtered, lowercased word tokens of text in order.
func (a *Analyzer) Tokens(text string) []string {
	stream := a.inner.Analyze([]byte(text))
	tokens := make([]string, 0, len(stream))
	for _, tok := range stream {
		tokens = append(tokens, string(tok.Term))
	}
	return tokens
}

// Terms returns every n-gram of text, in order, with repeats.
// Tokens of an n-gram are joined by a single space.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Tokens(text)
	if len(tokens) == 0 {
		return nil
	}

	terms := make([]string, 0, len(tokens)*(a.maxN-a.minN+1))
	for n := a.minN; n <= a.maxN; n++ {
		if n == 1 {
			terms = append(terms, tokens...)
			continue
		}
		for i := 0; i+n <= len(tokens); i++ {
			terms = append(terms, strings.Join(tokens[i:i+n], " "))
		}
	}
	return terms
}
