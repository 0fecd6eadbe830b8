package local

import (
	"math"
	"strings"
	"unicode"

	"github.com/pario-ai/fairlens/pkg/models"
)

var (
	maleTerms   = wordSet("he", "him", "his", "himself", "man", "men", "guy", "guys", "boy", "boys")
	femaleTerms = wordSet("she", "her", "hers", "herself", "woman", "women", "girl", "girls")
	stereotypes = []string{
		"aggressive", "dominant", "assertive", "competitive",
		"emotional", "nurturing", "submissive", "caring",
	}
	ageTerms = wordSet(
		"young", "old", "elderly", "senior", "youth", "teenager",
		"millennial", "boomer", "generation",
	)
)

// biasedTerms maps a bias type to terms flagged in session text. A term may
// appear under more than one type.
var biasedTerms = []struct {
	biasType string
	terms    []string
}{
	{"gender", []string{"mankind", "manpower", "chairman"}},
	{"racial", []string{"exotic", "articulate", "urban"}},
	{"age", []string{"old-fashioned", "outdated", "modern"}},
	{"cultural", []string{"foreign", "ethnic", "exotic"}},
}

var termAlternatives = map[string]string{
	"mankind":       "humanity, people",
	"manpower":      "workforce, personnel",
	"chairman":      "chairperson, chair",
	"exotic":        "unique, distinctive",
	"articulate":    "well-spoken, eloquent",
	"urban":         "city-based, metropolitan",
	"foreign":       "international, from another country",
	"ethnic":        "culturally specific",
	"outdated":      "earlier, previous",
	"old-fashioned": "traditional",
}

const defaultAlternative = "Consider more neutral language"

// contextWindow is the number of characters kept around a flagged term.
const contextWindow = 50

// baselineScore is the floor reported for racial and cultural bias on any
// non-empty text, since neither can be ruled out by term matching alone.
const baselineScore = 0.1

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// tokenize lower-cases text and splits it into words. Hyphens and
// apostrophes stay inside words.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
}

func countIn(words []string, set map[string]struct{}) int {
	n := 0
	for _, w := range words {
		if _, ok := set[w]; ok {
			n++
		}
	}
	return n
}

func containsWord(words []string, term string) bool {
	for _, w := range words {
		if w == term {
			return true
		}
	}
	return false
}

// linguisticBias scores text for gender, racial, age and cultural bias and
// lists the flagged terms.
func linguisticBias(text string) models.LinguisticBias {
	words := tokenize(text)
	if len(words) == 0 {
		return models.LinguisticBias{}
	}

	terms := detectBiasedTerms(text, words)
	perType := map[string]int{}
	for _, t := range terms {
		perType[t.BiasType]++
	}

	lb := models.LinguisticBias{
		Gender:      genderBias(words),
		Racial:      clamp01(baselineScore + 0.1*float64(perType["racial"])),
		Age:         ageBias(words),
		Cultural:    clamp01(baselineScore + 0.1*float64(perType["cultural"])),
		BiasedTerms: terms,
	}
	lb.Overall = (lb.Gender + lb.Racial + lb.Age + lb.Cultural) / 4
	return lb
}

// genderBias is the imbalance between male and female terms plus 0.1 per
// stereotyped adjective present.
func genderBias(words []string) float64 {
	male := countIn(words, maleTerms)
	female := countIn(words, femaleTerms)
	total := male + female
	if total == 0 {
		return 0
	}
	score := math.Abs(float64(male-female)) / float64(total)
	for _, s := range stereotypes {
		if containsWord(words, s) {
			score += 0.1
		}
	}
	return clamp01(score)
}

// ageBias scales the share of age-related words by ten.
func ageBias(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	return clamp01(float64(countIn(words, ageTerms)) / float64(len(words)) * 10)
}

func detectBiasedTerms(text string, words []string) []models.BiasedTerm {
	var out []models.BiasedTerm
	for _, group := range biasedTerms {
		for _, term := range group.terms {
			if !containsWord(words, term) {
				continue
			}
			alt, ok := termAlternatives[term]
			if !ok {
				alt = defaultAlternative
			}
			out = append(out, models.BiasedTerm{
				Term:        term,
				BiasType:    group.biasType,
				Severity:    "medium",
				Context:     termContext(text, term),
				Alternative: alt,
			})
		}
	}
	return out
}

func termContext(text, term string) string {
	i := strings.Index(strings.ToLower(text), term)
	if i < 0 {
		return ""
	}
	start := max(0, i-contextWindow)
	end := min(len(text), i+len(term)+contextWindow)
	// Keep the slice on rune boundaries.
	for start > 0 && !isRuneStart(text[start]) {
		start--
	}
	for end < len(text) && !isRuneStart(text[end]) {
		end++
	}
	return strings.TrimSpace(text[start:end])
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

var (
	toMale = map[string]string{
		"she": "he", "her": "him", "hers": "his", "herself": "himself",
		"woman": "man", "women": "men", "girl": "boy", "girls": "boys",
	}
	toFemale = map[string]string{
		"he": "she", "him": "her", "his": "her", "himself": "herself",
		"man": "woman", "men": "women", "guy": "woman", "guys": "women",
		"boy": "girl", "boys": "girls",
	}
	toNeutral = map[string]string{
		"he": "they", "she": "they", "him": "them", "her": "them",
		"his": "their", "hers": "theirs", "himself": "themself", "herself": "themself",
		"man": "person", "woman": "person", "men": "people", "women": "people",
		"guy": "person", "guys": "people", "boy": "child", "girl": "child",
		"boys": "children", "girls": "children",
	}
)

// substitute rewrites text as if the participant's attribute had value to.
// Gender swaps gendered words; other attributes replace the original value.
func substitute(text, attribute, from, to string) string {
	words := tokenize(text)
	if attribute == "gender" {
		var table map[string]string
		switch strings.ToLower(to) {
		case "male", "man":
			table = toMale
		case "female", "woman":
			table = toFemale
		default:
			table = toNeutral
		}
		for i, w := range words {
			if r, ok := table[w]; ok {
				words[i] = r
			}
		}
		return strings.Join(words, " ")
	}
	from, to = strings.ToLower(from), strings.ToLower(to)
	for i, w := range words {
		if from != "" && w == from {
			words[i] = to
		}
	}
	return strings.Join(words, " ")
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
