package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoundex(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"basic", "Robert", "R163"},
		{"distinct from similar name", "Rupert", "R163"},
		{"classic pair", "Smith", "S530"},
		{"phonetic twin", "Smyth", "S530"},
		{"h is transparent", "Wikene", "W250"},
		{"h between consonants keeps prior code", "Ashcraft", "A261"},
		{"w is transparent", "Tymczak", "T522"},
		{"padded to four", "Lee", "L000"},
		{"single letter", "A", "A000"},
		{"empty", "", ""},
		{"non alpha only", "123", ""},
		{"mixed case", "jackson", "J250"},
		{"punctuation stripped", "O'Brien", "O165"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorer.Soundex(tt.input))
		})
	}
}

func TestSoundexHWRule(t *testing.T) {
	scorer := NewScorer()

	// Consonants separated only by H or W collapse into one code.
	assert.Equal(t, "B200", scorer.Soundex("Bshsks"))

	// A vowel between like-coded consonants resets the repeat suppression.
	assert.Equal(t, "P236", scorer.Soundex("Pfister"))
	assert.NotEqual(t, scorer.Soundex("Bshsks"), scorer.Soundex("Basasks"))
}

func TestSoundexMatch(t *testing.T) {
	scorer := NewScorer()

	assert.True(t, scorer.SoundexMatch("Smith", "Smyth"))
	assert.True(t, scorer.SoundexMatch("Robert", "Rupert"))
	assert.False(t, scorer.SoundexMatch("Smith", "Jones"))
	assert.False(t, scorer.SoundexMatch("", "Smith"))
	assert.False(t, scorer.SoundexMatch("", ""))
}

func TestJaroWinkler(t *testing.T) {
	scorer := NewScorer()

	t.Run("identical strings", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.JaroWinkler("martha", "martha"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.JaroWinkler("MARTHA", "martha"))
	})

	t.Run("empty strings", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.JaroWinkler("", "martha"))
		assert.Equal(t, 0.0, scorer.JaroWinkler("martha", ""))
		assert.Equal(t, 0.0, scorer.JaroWinkler("", ""))
	})

	t.Run("transposition", func(t *testing.T) {
		got := scorer.JaroWinkler("martha", "marhta")
		assert.InDelta(t, 0.961, got, 0.005)
	})

	t.Run("common prefix boost", func(t *testing.T) {
		// dwayne/duane share only the leading d, dixon/dicksonx share dic
		assert.InDelta(t, 0.84, scorer.JaroWinkler("dwayne", "duane"), 0.01)
		assert.InDelta(t, 0.813, scorer.JaroWinkler("dixon", "dicksonx"), 0.01)
	})

	t.Run("no similarity", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.JaroWinkler("abc", "xyz"))
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t, scorer.JaroWinkler("jellyfish", "smellyfish"), scorer.JaroWinkler("smellyfish", "jellyfish"))
	})
}
