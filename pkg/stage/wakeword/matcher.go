package wakeword

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// matcher decides whether a transcript contains one of the configured wake
// phrases. Recognition backends routinely mangle invented words ("auricle" →
// "oracle"), so exact substring matching is only the fast path; the fallback
// slides a window of phrase-sized n-grams over the transcript and accepts
// phonetic near-misses via Double Metaphone overlap ranked by Jaro-Winkler
// similarity.
//
// matcher is read-only after construction and safe for concurrent use.
type matcher struct {
	phrases           []string // lowercased
	phoneticThreshold float64
	fuzzyThreshold    float64
}

func newMatcher(phrases []string, phoneticThreshold, fuzzyThreshold float64) *matcher {
	if phoneticThreshold <= 0 {
		phoneticThreshold = defaultPhoneticThreshold
	}
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = defaultFuzzyThreshold
	}
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return &matcher{
		phrases:           lowered,
		phoneticThreshold: phoneticThreshold,
		fuzzyThreshold:    fuzzyThreshold,
	}
}

// match reports the matched phrase and its similarity score, or ok=false.
func (m *matcher) match(text string) (phrase string, score float64, ok bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", 0, false
	}

	// Fast path: literal containment.
	for _, p := range m.phrases {
		if strings.Contains(text, p) {
			return p, 1, true
		}
	}

	tokens := strings.Fields(text)
	var best struct {
		phrase   string
		score    float64
		phonetic bool
	}

	for _, p := range m.phrases {
		phraseTokens := strings.Fields(p)
		phraseCodes := codesFor(phraseTokens)

		// Slide a phrase-sized window over the transcript tokens.
		width := len(phraseTokens)
		for i := 0; i+width <= len(tokens); i++ {
			window := tokens[i : i+width]
			phonetic := codesOverlap(codesFor(window), phraseCodes)
			jw := matchr.JaroWinkler(strings.Join(window, " "), p, false)
			if s := matchr.JaroWinkler(strings.Join(window, ""), strings.Join(phraseTokens, ""), false); s > jw {
				jw = s
			}

			if phonetic {
				if jw >= m.phoneticThreshold && (!best.phonetic || jw > best.score) {
					best.phrase, best.score, best.phonetic = p, jw, true
				}
			} else if !best.phonetic && jw >= m.fuzzyThreshold && jw > best.score {
				best.phrase, best.score = p, jw
			}
		}
	}

	if best.phrase == "" {
		return "", 0, false
	}
	return best.phrase, best.score, true
}

// codesFor returns the union of Double Metaphone codes for the tokens.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
