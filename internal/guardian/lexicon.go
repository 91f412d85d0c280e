// Package guardian maintains the per-contact relational model: health score,
// learned lexicon, style samples, and the update rules that feed them.
package guardian

import (
	"math"
	"strings"
	"unicode"

	"github.com/mensajemagico/backend/internal/types"
)

// Spanish function words carry no personal style; they never enter the
// lexicon.
var stopWords = map[string]bool{
	"de": true, "la": true, "que": true, "el": true, "en": true, "y": true,
	"a": true, "los": true, "las": true, "un": true, "una": true, "por": true,
	"con": true, "para": true, "del": true, "se": true, "su": true, "al": true,
	"lo": true, "como": true, "más": true, "mas": true, "pero": true,
	"sus": true, "le": true, "ya": true, "o": true, "este": true, "sí": true,
	"si": true, "porque": true, "esta": true, "entre": true, "cuando": true,
	"muy": true, "sin": true, "sobre": true, "también": true, "me": true,
	"hasta": true, "hay": true, "donde": true, "quien": true, "desde": true,
	"todo": true, "nos": true, "todos": true, "uno": true, "les": true,
	"ni": true, "ese": true, "eso": true, "esto": true, "mi": true, "mis": true,
	"tu": true, "tus": true, "te": true, "ti": true, "es": true, "son": true,
	"era": true, "estás": true, "estoy": true, "está": true,
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
		return true
	case r == 0x2764: // heavy heart
		return true
	default:
		return false
	}
}

// tokenize splits lower-cased text into word, number, and emoji tokens.
// Emoji runs are atomic tokens: they carry style signal on their own.
func tokenize(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	var current []rune
	var currentEmoji bool

	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = current[:0]
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if currentEmoji {
				flush()
			}
			currentEmoji = false
			current = append(current, r)
		case isEmojiRune(r):
			if !currentEmoji {
				flush()
			}
			currentEmoji = true
			current = append(current, r)
		default:
			flush()
			currentEmoji = false
		}
	}
	flush()
	return tokens
}

func isEmojiToken(token string) bool {
	for _, r := range token {
		if !isEmojiRune(r) {
			return false
		}
	}
	return len(token) > 0
}

// CalculateFriction measures how much the user rewrote a draft: normalized
// Levenshtein distance as an integer percent in [0,100]. 0 means untouched.
func CalculateFriction(original, edited string) int {
	a := []rune(strings.TrimSpace(original))
	b := []rune(strings.TrimSpace(edited))
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 || len(b) == 0 {
		return 100
	}

	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(b); i++ {
		curr[0] = i
		for j := 1; j <= len(a); j++ {
			if b[i-1] == a[j-1] {
				curr[j] = prev[j-1]
			} else {
				curr[j] = min3(prev[j-1], curr[j-1], prev[j]) + 1
			}
		}
		prev, curr = curr, prev
	}

	distance := prev[len(a)]
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return int(math.Round(float64(distance) / float64(maxLen) * 100))
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// ExtractLexicalDNA returns the tokens the user introduced while editing:
// words present in edited but absent from original, stop words and single
// letters excluded (emoji always kept), plus new adjacent-token bigrams as a
// cheap idiom detector.
func ExtractLexicalDNA(original, edited string) []string {
	originalTokens := tokenize(original)
	originalSet := make(map[string]bool, len(originalTokens))
	for _, tok := range originalTokens {
		originalSet[tok] = true
	}

	editedTokens := tokenize(edited)
	loweredOriginal := strings.ToLower(original)

	var dna []string
	seen := map[string]bool{}
	add := func(tok string) {
		if !seen[tok] {
			seen[tok] = true
			dna = append(dna, tok)
		}
	}

	for _, tok := range editedTokens {
		if originalSet[tok] || stopWords[tok] {
			continue
		}
		if !isEmojiToken(tok) && len([]rune(tok)) <= 2 {
			continue
		}
		add(tok)
	}

	for i := 0; i+1 < len(editedTokens); i++ {
		bigram := editedTokens[i] + " " + editedTokens[i+1]
		if !strings.Contains(loweredOriginal, bigram) {
			add(bigram)
		}
	}

	return dna
}

// SignificantTokens returns the style-bearing tokens of a single message,
// deduplicated in order: the filter ExtractLexicalDNA applies, without the
// edit diff.
func SignificantTokens(text string) []string {
	var tokens []string
	seen := map[string]bool{}
	for _, tok := range tokenize(text) {
		if stopWords[tok] || (!isEmojiToken(tok) && len([]rune(tok)) <= 2) {
			continue
		}
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// MineLexiconFromHistory returns words recurring across history entries:
// vocabulary appearing in at least max(2, ceil(0.2*len(history))) entries.
// One-off words are noise, not style.
func MineLexiconFromHistory(history []types.HistoryEntry) []string {
	if len(history) == 0 {
		return nil
	}

	threshold := int(math.Ceil(0.2 * float64(len(history))))
	if threshold < 2 {
		threshold = 2
	}

	counts := map[string]int{}
	var order []string
	for _, entry := range history {
		inEntry := map[string]bool{}
		for _, tok := range tokenize(entry.Content) {
			if stopWords[tok] || (!isEmojiToken(tok) && len([]rune(tok)) <= 2) {
				continue
			}
			if !inEntry[tok] {
				inEntry[tok] = true
				if counts[tok] == 0 {
					order = append(order, tok)
				}
				counts[tok]++
			}
		}
	}

	var recurring []string
	for _, tok := range order {
		if counts[tok] >= threshold {
			recurring = append(recurring, tok)
		}
	}
	return recurring
}
