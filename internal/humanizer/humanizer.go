package humanizer

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Rand is the randomness source used by the humanizer. *rand.Rand satisfies
// it; tests inject a scripted source.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// greetingSynonyms maps greeting phrases to interchangeable alternatives.
// Kept as a slice so longer phrases are matched before their substrings.
var greetingSynonyms = []struct {
	phrase       string
	alternatives []string
}{
	{"good morning", []string{"morning", "good morning to you", "hello, good morning"}},
	{"good afternoon", []string{"afternoon", "hello, good afternoon"}},
	{"hello", []string{"hi", "hey", "hello there", "hi there"}},
	{"hi", []string{"hello", "hey", "hey there"}},
}

var suffixTokens = []string{" 🙂", " 👍", "!", " :)"}

var greetingPrefixes = []string{"Hi! ", "Hello! ", "Hey, ", "Hi there! "}

// Humanizer produces per-message text variation and send delays that mimic
// manual sending cadence. It is stateless; every call draws fresh randomness.
type Humanizer struct {
	rnd Rand
}

// New creates a humanizer with its own time-seeded randomness source.
func New() *Humanizer {
	return NewWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand creates a humanizer with an injected randomness source.
func NewWithRand(rnd Rand) *Humanizer {
	return &Humanizer{rnd: rnd}
}

// span marks a region of the original text claimed by one substitution.
type span struct {
	start, end int
	alt        string
}

// VaryMessage returns a randomized variation of text. For each greeting
// table entry, the first whole-word case-insensitive occurrence is swapped
// for a synonym, and the message may gain a suffix token, a greeting prefix,
// or a trailing number. Non-greeting substrings are never altered.
func (h *Humanizer) VaryMessage(text string) string {
	lower := strings.ToLower(text)

	// All entries match against the original text, so one entry's
	// replacement can never produce a greeting for a later entry to match.
	var subs []span
	for _, entry := range greetingSynonyms {
		idx := findGreeting(lower, entry.phrase, subs)
		if idx < 0 {
			continue
		}
		alt := entry.alternatives[h.rnd.Intn(len(entry.alternatives))]
		subs = append(subs, span{start: idx, end: idx + len(entry.phrase), alt: alt})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].start < subs[j].start })

	var b strings.Builder
	last := 0
	for _, s := range subs {
		b.WriteString(text[last:s.start])
		b.WriteString(s.alt)
		last = s.end
	}
	b.WriteString(text[last:])
	result := b.String()

	switch r := h.rnd.Float64(); {
	case r < 0.3:
		result += suffixTokens[h.rnd.Intn(len(suffixTokens))]
	case r < 0.6:
		result = greetingPrefixes[h.rnd.Intn(len(greetingPrefixes))] + result
	}

	// Independent of the structural branch above.
	if h.rnd.Float64() < 0.1 {
		result += fmt.Sprintf(" %d", 1+h.rnd.Intn(999))
	}

	return result
}

// findGreeting returns the first occurrence of phrase in lower that sits on
// word boundaries and does not overlap an already claimed region, or -1.
// Bare substring search would rewrite the inside of ordinary words ("hi" in
// "this", "hello" in "Othello").
func findGreeting(lower, phrase string, taken []span) int {
	for from := 0; from+len(phrase) <= len(lower); {
		idx := strings.Index(lower[from:], phrase)
		if idx < 0 {
			return -1
		}
		idx += from
		end := idx + len(phrase)
		if isWordBoundary(lower, idx, end) && !overlaps(taken, idx, end) {
			return idx
		}
		from = idx + 1
	}
	return -1
}

func isWordBoundary(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func overlaps(taken []span, start, end int) bool {
	for _, t := range taken {
		if start < t.end && t.start < end {
			return true
		}
	}
	return false
}

// HumanDelayMs returns the delay in milliseconds to wait before sending
// text. It scales with the word count and is recomputed on every call.
// For an n-word message the result lies in [n*1000, n*3000+5000].
func (h *Humanizer) HumanDelayMs(text string) int {
	wordCount := len(strings.Fields(text))
	perWord := 1000 + h.rnd.Intn(2001) // uniform in [1000, 3000]
	jitter := h.rnd.Intn(5001)         // uniform in [0, 5000]
	return wordCount*perWord + jitter
}
