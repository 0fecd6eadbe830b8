package local

import "github.com/pario-ai/fairlens/pkg/models"

var (
	positiveTerms = wordSet(
		"good", "great", "helpful", "calm", "safe", "hopeful", "happy", "supportive",
		"better", "kind", "positive", "comfortable", "confident", "glad", "progress", "improved",
	)
	negativeTerms = wordSet(
		"bad", "poor", "angry", "sad", "afraid", "anxious", "worse", "hostile", "lazy",
		"difficult", "failed", "hopeless", "unsafe", "upset", "terrible", "negative", "hurt", "worried",
	)
	opinionTerms = wordSet(
		"feel", "felt", "think", "believe", "seems", "really", "very", "always",
		"probably", "maybe", "obviously",
	)
	negators = wordSet("not", "no", "never", "don't", "isn't", "wasn't", "can't", "won't", "didn't")
)

// sentiment scores the tone of text from a small lexicon. A negator flips the
// polarity of the word right after it.
func sentiment(text string) models.Sentiment {
	words := tokenize(text)
	if len(words) == 0 {
		return models.Sentiment{}
	}
	var pos, neg, opinion int
	negated := false
	for _, w := range words {
		_, isPos := positiveTerms[w]
		_, isNeg := negativeTerms[w]
		if negated {
			isPos, isNeg = isNeg, isPos
		}
		switch {
		case isPos:
			pos++
		case isNeg:
			neg++
		}
		if _, ok := opinionTerms[w]; ok {
			opinion++
		}
		_, negated = negators[w]
	}

	s := models.Sentiment{
		Subjectivity: clamp01(float64(pos+neg+opinion) / float64(len(words))),
	}
	if pos+neg > 0 {
		s.Polarity = float64(pos-neg) / float64(pos+neg)
	}
	return s
}
