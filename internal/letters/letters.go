package letters

import (
	"strings"
	"unicode"
)

// Alphabet is the order in which letters are considered; earlier letters win ties.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

const (
	scoreExact      = 4
	scoreWord       = 3
	scorePrefix     = 2
	scoreMinimum    = 2
	expectedBias    = 1
	shortPhraseSize = 3
)

// phonetic lists how children tend to say each letter.
var phonetic = map[byte][]string{
	'A': {"a", "ay", "eh", "ei"},
	'B': {"b", "bee", "be"},
	'C': {"c", "see", "cee", "sea"},
	'D': {"d", "dee"},
	'E': {"e", "ee"},
	'F': {"f", "ef"},
	'G': {"g", "gee"},
	'H': {"h", "aitch"},
	'I': {"i", "eye", "aye"},
	'J': {"j", "jay"},
	'K': {"k", "kay"},
	'L': {"l", "el"},
	'M': {"m", "em"},
	'N': {"n", "en"},
	'O': {"o", "oh"},
	'P': {"p", "pee"},
	'Q': {"q", "cue", "queue"},
	'R': {"r", "ar"},
	'S': {"s", "ess"},
	'T': {"t", "tee"},
	'U': {"u", "you", "yu", "yoo"},
	'V': {"v", "vee"},
	'W': {"w", "double you", "double-u"},
	'X': {"x", "ex"},
	'Y': {"y", "why"},
	'Z': {"z", "zee", "zed"},
}

// Normalize lowercases a phrase, drops everything but ASCII letters and
// whitespace, and collapses runs of whitespace.
func Normalize(phrase string) string {
	var b strings.Builder
	b.Grow(len(phrase))
	for _, r := range strings.ToLower(phrase) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Score rates how well phrase sounds like letter. Zero means no resemblance.
func Score(phrase string, letter byte) int {
	letter = upper(letter)
	forms, ok := phonetic[letter]
	if !ok {
		return 0
	}
	norm := Normalize(phrase)
	if norm == "" {
		return 0
	}

	best := 0
	for _, form := range forms {
		if norm == form {
			best = scoreExact
		}
	}

	for _, word := range strings.Split(norm, " ") {
		for _, form := range forms {
			switch {
			case word == form:
				best = max(best, scoreWord)
			case strings.HasPrefix(form, word) || strings.HasPrefix(word, form):
				best = max(best, scorePrefix)
			}
		}
	}

	lower := letter + ('a' - 'A')
	if len(norm) == 1 && norm[0] == lower {
		best = max(best, scoreExact)
	}
	if len(norm) <= shortPhraseSize && norm[0] == lower {
		best = max(best, scorePrefix)
	}
	return best
}

// Choose picks the letter best matching any of the candidate phrases, biased
// toward expected. It returns false when nothing scores high enough.
func Choose(candidates []string, expected string) (string, bool) {
	if len(candidates) == 0 {
		candidates = []string{""}
	}

	var want byte
	if len(expected) == 1 {
		want = upper(expected[0])
	}

	bestLetter := byte(0)
	bestScore := 0
	for i := 0; i < len(Alphabet); i++ {
		letter := Alphabet[i]
		score := 0
		for _, phrase := range candidates {
			score = max(score, Score(phrase, letter))
		}
		if score <= 0 {
			continue
		}
		if letter == want {
			score += expectedBias
		}
		if score > bestScore {
			bestScore = score
			bestLetter = letter
		}
	}

	if bestScore < scoreMinimum {
		return "", false
	}
	return string(bestLetter), true
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
