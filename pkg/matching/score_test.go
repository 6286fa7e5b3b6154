package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/laurel/pkg/models"
)

func scorePair(t *testing.T, a, b *models.MatchProfile) MatchResult {
	t.Helper()
	cfg := DefaultConfig()
	return cfg.ScorePair(NewScorer(), a, b)
}

func TestScorePairEmailExact(t *testing.T) {
	a := &models.MatchProfile{PersonID: "a", Emails: []string{"Bob@Example.org"}}
	b := &models.MatchProfile{PersonID: "b", Emails: []string{"bob@example.org"}}

	result := scorePair(t, a, b)

	assert.Equal(t, 45.0, result.Score)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, "email_exact", result.Reasons[0].Label)
}

func TestScorePairPhoneFormattingIgnored(t *testing.T) {
	a := &models.MatchProfile{PersonID: "a", Phones: []string{"(555) 123-4567"}}
	b := &models.MatchProfile{PersonID: "b", Phones: []string{"555.123.4567"}}

	result := scorePair(t, a, b)

	require.Len(t, result.Reasons, 1)
	assert.Equal(t, "phone_match", result.Reasons[0].Label)
	assert.Equal(t, 40.0, result.Score)
}

func TestScorePairNicknameWithSameLastName(t *testing.T) {
	a := &models.MatchProfile{PersonID: "a", FirstName: "Bob", LastName: "Smith", Phones: []string{"5551234567"}}
	b := &models.MatchProfile{PersonID: "b", FirstName: "Robert", LastName: "Smith", Phones: []string{"(555) 123-4567"}}

	result := scorePair(t, a, b)

	labels := result.ReasonLabels()
	assert.Contains(t, labels, "phone_match")
	assert.Contains(t, labels, "nickname:bob↔robert")
	assert.Equal(t, 63.0, result.Score)
}

func TestScorePairNicknameRequiresSameLastName(t *testing.T) {
	a := &models.MatchProfile{PersonID: "a", FirstName: "Bob", LastName: "Smith"}
	b := &models.MatchProfile{PersonID: "b", FirstName: "Robert", LastName: "Jones"}

	result := scorePair(t, a, b)

	for _, label := range result.ReasonLabels() {
		assert.NotContains(t, label, "nickname:")
	}
}

func TestScorePairPhoneticLastName(t *testing.T) {
	a := &models.MatchProfile{PersonID: "a", FirstName: "Sarah", LastName: "Wikene"}
	b := &models.MatchProfile{PersonID: "b", FirstName: "Sara", LastName: "Wikane"}

	result := scorePair(t, a, b)

	assert.Contains(t, result.ReasonLabels(), "soundex_phonetic_match")
	assert.Equal(t, 15.0, result.Score)
}

func TestScorePairExactComponentsFallback(t *testing.T) {
	// same last name, unrelated first names: no composite signal fires,
	// the exact last-name component still counts
	a := &models.MatchProfile{PersonID: "a", FirstName: "Xavier", LastName: "Smith"}
	b := &models.MatchProfile{PersonID: "b", FirstName: "Gertrude", LastName: "Smith"}

	result := scorePair(t, a, b)

	assert.Contains(t, result.ReasonLabels(), "last_name_exact")
}

func TestScorePairGoesByContainsLastName(t *testing.T) {
	a := &models.MatchProfile{PersonID: "a", FirstName: "AJ", GoesBy: "AJ Jordan"}
	b := &models.MatchProfile{PersonID: "b", FirstName: "Armani", LastName: "Jordan"}

	result := scorePair(t, a, b)

	assert.Contains(t, result.ReasonLabels(), "goes_by_contains_last_name")
}

func TestScorePairSameFamilyAlone(t *testing.T) {
	a := &models.MatchProfile{PersonID: "a", FirstName: "Tom", LastName: "Smith", FamilyIDs: []string{"fam-1"}}
	b := &models.MatchProfile{PersonID: "b", FirstName: "Jane", LastName: "Doe", FamilyIDs: []string{"fam-1"}}

	result := scorePair(t, a, b)

	assert.Contains(t, result.ReasonLabels(), "same_family")
	assert.Less(t, result.Score, DefaultConfig().MinScore)
}

func TestScorePairZeroSignals(t *testing.T) {
	a := &models.MatchProfile{PersonID: "a", FirstName: "Tom", LastName: "Smith"}
	b := &models.MatchProfile{PersonID: "b", FirstName: "Jane", LastName: "Doe"}

	result := scorePair(t, a, b)

	assert.Empty(t, result.Reasons)
	assert.Equal(t, 0.0, result.Score)
}

func TestScorePairCappedAt100(t *testing.T) {
	a := &models.MatchProfile{
		PersonID:  "a",
		FirstName: "Bob",
		LastName:  "Smith",
		Emails:    []string{"bob@smithfamily.org"},
		Phones:    []string{"5551234567"},
		FamilyIDs: []string{"fam-1"},
	}
	b := &models.MatchProfile{
		PersonID:  "b",
		FirstName: "Robert",
		LastName:  "Smith",
		Emails:    []string{"bob@smithfamily.org"},
		Phones:    []string{"5551234567"},
		FamilyIDs: []string{"fam-1"},
	}

	result := scorePair(t, a, b)

	// 45 + 40 + 23 + 5 exceeds the cap
	assert.Equal(t, 100.0, result.Score)
}

func TestScorePairOrdersIDs(t *testing.T) {
	a := &models.MatchProfile{PersonID: "zzz", Emails: []string{"x@y.org"}}
	b := &models.MatchProfile{PersonID: "aaa", Emails: []string{"x@y.org"}}

	result := scorePair(t, a, b)

	assert.Equal(t, "aaa", result.PersonAID)
	assert.Equal(t, "zzz", result.PersonBID)
}

func TestScorePairDeterministic(t *testing.T) {
	a := &models.MatchProfile{PersonID: "a", FirstName: "Bob", LastName: "Smith", Phones: []string{"5551234567"}}
	b := &models.MatchProfile{PersonID: "b", FirstName: "Robert", LastName: "Smith", Phones: []string{"5551234567"}}

	first := scorePair(t, a, b)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, scorePair(t, a, b))
	}
}
