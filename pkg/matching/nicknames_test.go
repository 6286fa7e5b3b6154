package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAreNicknames(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected bool
	}{
		{"formal to nickname", "Robert", "Bob", true},
		{"nickname to formal", "Bob", "Robert", true},
		{"nicknames of same formal", "Bob", "Bobby", true},
		{"non adjacent nickname", "Peggy", "Margaret", true},
		{"elizabeth variants", "Liz", "Beth", true},
		{"identical", "James", "James", true},
		{"case and whitespace", " robert ", "BOB", true},
		{"initial against full name", "J", "John", true},
		{"mapped nickname prefix", "Chris", "Christopher", true},
		{"prefix shorter than half", "Zep", "Zephyrine", false},
		{"half length prefix", "Samant", "Samantha", true},
		{"unrelated names", "Bob", "Alice", false},
		{"unrelated same letter", "Mark", "Mike", false},
		{"empty left", "", "Bob", false},
		{"empty right", "Bob", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AreNicknames(tt.a, tt.b))
		})
	}
}

func TestAreNicknamesSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Robert", "Bob"},
		{"Margaret", "Peggy"},
		{"William", "Bill"},
		{"Katherine", "Kate"},
	}

	for _, p := range pairs {
		assert.Equal(t, AreNicknames(p[0], p[1]), AreNicknames(p[1], p[0]), "pair %v", p)
	}
}

func TestGetNicknameVariants(t *testing.T) {
	variants := GetNicknameVariants("Robert")
	assert.Contains(t, variants, "bob")
	assert.Contains(t, variants, "robbie")
	assert.Contains(t, variants, "robert")

	// unknown names return just themselves
	assert.Equal(t, []string{"zephyrine"}, GetNicknameVariants("Zephyrine"))

	assert.Nil(t, GetNicknameVariants(""))
}

func TestCouldBeInitials(t *testing.T) {
	assert.True(t, CouldBeInitials("AJ", "Armani"))
	assert.True(t, CouldBeInitials("J", "James"))
	assert.False(t, CouldBeInitials("AJ", "Brian"))
	assert.False(t, CouldBeInitials("AJTK", "Armani"))
	assert.False(t, CouldBeInitials("", "Armani"))
	assert.False(t, CouldBeInitials("AJ", ""))
}
