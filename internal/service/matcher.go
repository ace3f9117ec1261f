package service

import (
	"strings"
	"unicode"

	"github.com/noah-isme/gema-kg/internal/models"
)

// SectionMatch is the section chosen for an excerpt together with the overlap behind it.
type SectionMatch struct {
	Section   models.Section
	Overlap   int
	Relevance float64
}

// SectionMatcher picks the course-material section an excerpt refers to.
type SectionMatcher interface {
	Match(excerpt string, candidates []models.Section) (SectionMatch, bool)
}

// LexicalMatcher matches on shared lowercase words. The section sharing the most words wins,
// the earliest candidate wins ties, and zero overlap is no match.
type LexicalMatcher struct{}

// NewLexicalMatcher returns the bag-of-words matcher.
func NewLexicalMatcher() LexicalMatcher { return LexicalMatcher{} }

// Match implements SectionMatcher.
func (LexicalMatcher) Match(excerpt string, candidates []models.Section) (SectionMatch, bool) {
	words := Tokenize(excerpt)
	if len(words) == 0 {
		return SectionMatch{}, false
	}

	best := -1
	bestOverlap := 0
	for i, candidate := range candidates {
		overlap := overlapCount(words, Tokenize(candidate.Content))
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}
	if best < 0 {
		return SectionMatch{}, false
	}

	relevance := float64(bestOverlap) / float64(max(1, len(words)))
	if relevance > 1 {
		relevance = 1
	}
	return SectionMatch{Section: candidates[best], Overlap: bestOverlap, Relevance: relevance}, true
}

// Tokenize lowercases text and returns its distinct runs of letters and digits.
func Tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		words[field] = struct{}{}
	}
	return words
}

func overlapCount(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	count := 0
	for word := range a {
		if _, ok := b[word]; ok {
			count++
		}
	}
	return count
}
