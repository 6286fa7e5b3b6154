package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatherhq/laurel/pkg/models"
)

func TestBlockingKeys(t *testing.T) {
	p := &models.MatchProfile{
		PersonID:  "p1",
		FirstName: "Robert",
		LastName:  "Smith",
		GoesBy:    "Bob",
		Emails:    []string{"bob@acmechurch.org", "bob@gmail.com"},
		Phones:    []string{"(555) 123-4567"},
		FamilyIDs: []string{"fam-1"},
	}

	keys := BlockingKeys(p)

	assert.Contains(t, keys, "soundex:S530")
	assert.Contains(t, keys, "prefix:smir")
	assert.Contains(t, keys, "domain:acmechurch.org")
	assert.NotContains(t, keys, "domain:gmail.com")
	assert.Contains(t, keys, "phone7:1234567")
	assert.Contains(t, keys, "family:fam-1")
	assert.Contains(t, keys, "goessoundex:B100")
}

func TestBlockingKeysSparseProfile(t *testing.T) {
	p := &models.MatchProfile{PersonID: "p1", FirstName: "Ann"}
	assert.Empty(t, BlockingKeys(p))

	p = &models.MatchProfile{PersonID: "p1", LastName: "Smith"}
	keys := BlockingKeys(p)
	assert.Equal(t, []string{"soundex:S530"}, keys)
}

func TestBlockingKeysShortGoesBySkipped(t *testing.T) {
	p := &models.MatchProfile{PersonID: "p1", GoesBy: "AJ"}
	assert.Empty(t, BlockingKeys(p))
}

func TestCandidatePairs(t *testing.T) {
	people := []*models.MatchProfile{
		{PersonID: "a", FirstName: "Robert", LastName: "Smith"},
		{PersonID: "b", FirstName: "Rob", LastName: "Smyth"},
		{PersonID: "c", FirstName: "Alice", LastName: "Jones"},
	}

	pairs := CandidatePairs(people, 100)

	// Smith and Smyth share a soundex block; Jones shares nothing.
	assert.Equal(t, []string{"a:b"}, pairs)
}

func TestCandidatePairsNoSharedKeys(t *testing.T) {
	people := []*models.MatchProfile{
		{PersonID: "a", LastName: "Smith"},
		{PersonID: "b", LastName: "Jones"},
	}

	assert.Empty(t, CandidatePairs(people, 100))
}

func TestCandidatePairsOversizedBlockSkipped(t *testing.T) {
	var people []*models.MatchProfile
	for i := 0; i < 5; i++ {
		people = append(people, &models.MatchProfile{
			PersonID: string(rune('a' + i)),
			LastName: "Smith",
		})
	}

	// 5 people share the block but the cap is 4, so the block is dropped.
	assert.Empty(t, CandidatePairs(people, 4))

	pairs := CandidatePairs(people, 5)
	assert.Len(t, pairs, 10)
}

func TestCandidatePairsDeterministic(t *testing.T) {
	people := []*models.MatchProfile{
		{PersonID: "a", LastName: "Smith", Phones: []string{"5551234567"}},
		{PersonID: "b", LastName: "Smyth", Phones: []string{"5551234567"}},
		{PersonID: "c", LastName: "Smith"},
	}

	first := CandidatePairs(people, 100)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, CandidatePairs(people, 100))
	}
}
