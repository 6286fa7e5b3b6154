package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase and trim", "  Robert Smith  ", "robert smith"},
		{"drops suffix", "John Doe Jr.", "john doe"},
		{"drops punctuation", "O'Brien", "obrien"},
		{"collapses whitespace", "Mary   Ann", "mary ann"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestPhoneLast7(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"formatted", "(555) 123-4567", "1234567"},
		{"with country code", "+1 555 123 4567", "1234567"},
		{"bare digits", "5551234567", "1234567"},
		{"too short", "123456", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PhoneLast7(tt.input))
		})
	}
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "example.org", EmailDomain("Bob@Example.org "))
	assert.Equal(t, "", EmailDomain("not-an-email"))
	assert.Equal(t, "", EmailDomain("trailing@"))
}

func TestIsCommonEmailDomain(t *testing.T) {
	assert.True(t, IsCommonEmailDomain("gmail.com"))
	assert.True(t, IsCommonEmailDomain("GMAIL.COM"))
	assert.False(t, IsCommonEmailDomain("firstchurch.org"))
}

func TestApply(t *testing.T) {
	assert.Equal(t, "bob", Apply("  BOB ", "nname"))
	assert.Equal(t, "unknown", Apply("unknown", "nope"))
}
