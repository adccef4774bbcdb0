package humanizer

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"
)

// scriptedRand replays queued values so each branch of the humanizer can be
// driven deterministically.
type scriptedRand struct {
	floats []float64
	ints   []int
}

func (s *scriptedRand) Float64() float64 {
	if len(s.floats) == 0 {
		return 0.99
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *scriptedRand) Intn(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	if v >= n {
		v = n - 1
	}
	return v
}

func TestVaryMessageGreetingSwap(t *testing.T) {
	// Intn(4) for the "hello" alternatives picks index 0 ("hi"); both
	// Float64 draws land on the no-op branches.
	h := NewWithRand(&scriptedRand{floats: []float64{0.9, 0.9}, ints: []int{0}})
	got := h.VaryMessage("Hello, do you have a minute?")
	want := "hi, do you have a minute?"
	if got != want {
		t.Fatalf("VaryMessage = %q, want %q", got, want)
	}
}

func TestVaryMessageMatchesLongestPhraseFirst(t *testing.T) {
	h := NewWithRand(&scriptedRand{floats: []float64{0.9, 0.9}, ints: []int{0}})
	got := h.VaryMessage("Good morning, team")
	if !strings.HasPrefix(got, "morning,") {
		t.Fatalf("VaryMessage = %q, want the full phrase replaced, not just %q", got, "good")
	}
}

func TestVaryMessageOnlyFirstOccurrenceReplaced(t *testing.T) {
	h := NewWithRand(&scriptedRand{floats: []float64{0.9, 0.9}, ints: []int{1}})
	got := h.VaryMessage("hello and hello again")
	if got != "hey and hello again" {
		t.Fatalf("VaryMessage = %q, want only the first greeting swapped", got)
	}
}

func TestVaryMessageIgnoresGreetingInsideWord(t *testing.T) {
	h := NewWithRand(&scriptedRand{floats: []float64{0.9, 0.9}})
	for _, text := range []string{
		"Is this the right number?",
		"something for your store",
		"Othello is my favorite play",
	} {
		if got := h.VaryMessage(text); got != text {
			t.Fatalf("VaryMessage(%q) = %q, want untouched", text, got)
		}
	}
}

func TestVaryMessageReplacesEachGreetingEntry(t *testing.T) {
	// Both the "good morning" and "hello" entries match and each draws its
	// own alternative (index 0: "morning" and "hi").
	h := NewWithRand(&scriptedRand{floats: []float64{0.9, 0.9}, ints: []int{0, 0}})
	got := h.VaryMessage("Good morning! Hello John")
	want := "morning! hi John"
	if got != want {
		t.Fatalf("VaryMessage = %q, want %q", got, want)
	}
}

func TestVaryMessageSubstitutionDoesNotCascade(t *testing.T) {
	// "hello" becomes "hi"; the "hi" entry must not then rewrite that
	// replacement, only occurrences in the original text.
	h := NewWithRand(&scriptedRand{floats: []float64{0.9, 0.9}, ints: []int{0}})
	got := h.VaryMessage("hello crew")
	if got != "hi crew" {
		t.Fatalf("VaryMessage = %q, want %q", got, "hi crew")
	}
}

func TestVaryMessageSuffixBranch(t *testing.T) {
	h := NewWithRand(&scriptedRand{floats: []float64{0.1, 0.9}, ints: []int{2}})
	got := h.VaryMessage("quick question about your store")
	if got != "quick question about your store!" {
		t.Fatalf("VaryMessage = %q, want suffix appended", got)
	}
}

func TestVaryMessagePrefixBranch(t *testing.T) {
	h := NewWithRand(&scriptedRand{floats: []float64{0.45, 0.9}, ints: []int{1}})
	got := h.VaryMessage("quick question about your store")
	if got != "Hello! quick question about your store" {
		t.Fatalf("VaryMessage = %q, want greeting prefix", got)
	}
}

func TestVaryMessageNumberAppend(t *testing.T) {
	h := NewWithRand(&scriptedRand{floats: []float64{0.9, 0.05}, ints: []int{41}})
	got := h.VaryMessage("are you open today")
	if got != "are you open today 42" {
		t.Fatalf("VaryMessage = %q, want trailing number", got)
	}
	n, err := strconv.Atoi(got[strings.LastIndex(got, " ")+1:])
	if err != nil || n < 1 || n > 999 {
		t.Fatalf("trailing number %q outside [1, 999]", got)
	}
}

func TestVaryMessageNeverTouchesBody(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	h := NewWithRand(rnd)
	const body = "we help local pharmacies grow online"
	for i := 0; i < 200; i++ {
		got := h.VaryMessage("Hi, " + body)
		if !strings.Contains(got, body) {
			t.Fatalf("iteration %d: body mangled: %q", i, got)
		}
	}
}

func TestHumanDelayMsBounds(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	h := NewWithRand(rnd)
	for i := 0; i < 500; i++ {
		d := h.HumanDelayMs("hello world")
		if d < 2000 || d > 11000 {
			t.Fatalf("iteration %d: delay %d outside [2000, 11000]", i, d)
		}
	}
}

func TestHumanDelayMsScalesWithWordCount(t *testing.T) {
	h := NewWithRand(&scriptedRand{ints: []int{500, 100, 500, 100}})
	short := h.HumanDelayMs("one two")
	long := h.HumanDelayMs("one two three four five six")
	if long <= short {
		t.Fatalf("delay for 6 words (%d) should exceed delay for 2 words (%d)", long, short)
	}
}

func TestHumanDelayMsEmptyMessage(t *testing.T) {
	h := NewWithRand(&scriptedRand{ints: []int{1000, 3000}})
	if d := h.HumanDelayMs("   "); d != 3000 {
		t.Fatalf("blank message delay = %d, want jitter only (3000)", d)
	}
}
