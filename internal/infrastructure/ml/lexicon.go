package ml

import (
	"context"
	"strings"

	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/ports"
)

var (
	positiveWords = []string{
		"good", "great", "excellent", "love", "loved", "perfect", "amazing", "awesome", "best",
		"happy", "recommend", "works", "worth", "nice", "fast", "easy", "sturdy", "quality",
		"comfortable", "reliable", "fantastic", "solid",
	}
	negativeWords = []string{
		"bad", "poor", "terrible", "awful", "hate", "broke", "broken", "worst", "waste",
		"return", "returned", "refund", "cheap", "slow", "disappointed", "disappointing",
		"defective", "useless", "flimsy", "stopped", "leaks", "faulty",
	}
	negations = map[string]struct{}{"not": {}, "no": {}, "never": {}, "dont": {}, "didnt": {}, "doesnt": {}, "isnt": {}, "wasnt": {}}
)

// Lexicon is an offline word-list model used when no inference service is configured.
// Ties, including texts with no known words, are labelled positive.
type Lexicon struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

var _ ports.ModelLoader = (*Lexicon)(nil)

// NewLexicon builds the default word lists.
func NewLexicon() *Lexicon {
	l := &Lexicon{positive: map[string]struct{}{}, negative: map[string]struct{}{}}
	for _, w := range positiveWords {
		l.positive[w] = struct{}{}
	}
	for _, w := range negativeWords {
		l.negative[w] = struct{}{}
	}
	return l
}

func (l *Lexicon) Load(context.Context) (ports.Model, error) {
	return lexiconModel{l}, nil
}

type lexiconModel struct{ *Lexicon }

func (m lexiconModel) Predict(ctx context.Context, texts []string) ([]domain.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	labels := make([]domain.Label, len(texts))
	for i, text := range texts {
		labels[i] = m.score(text)
	}
	return labels, nil
}

func (lexiconModel) Close() error { return nil }

func (l *Lexicon) score(text string) domain.Label {
	var score int
	negate := false
	for _, word := range strings.Fields(text) {
		if _, ok := negations[word]; ok {
			negate = true
			continue
		}
		delta := 0
		if _, ok := l.positive[word]; ok {
			delta = 1
		} else if _, ok := l.negative[word]; ok {
			delta = -1
		}
		if negate {
			delta = -delta
		}
		score += delta
		negate = false
	}
	if score < 0 {
		return domain.LabelNegative
	}
	return domain.LabelPositive
}
