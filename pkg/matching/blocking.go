package matching

import (
	"sort"
	"strings"

	"github.com/gatherhq/laurel/pkg/models"
	"github.com/gatherhq/laurel/pkg/normalizers"
)

// BlockingKeys computes the partition keys for a person. Two people are only
// ever scored against each other when they share at least one key.
func BlockingKeys(p *models.MatchProfile) []string {
	scorer := NewScorer()
	seen := make(map[string]bool)
	var keys []string

	add := func(key string) {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	// Soundex of last name catches Wikene/Wilkene style near misses
	if p.LastName != "" {
		if sx := scorer.Soundex(p.LastName); sx != "" {
			add("soundex:" + sx)
		}
	}

	// first 3 chars of last name + first char of first name
	if p.LastName != "" && p.FirstName != "" {
		last := strings.ToLower(p.LastName)
		if len(last) > 3 {
			last = last[:3]
		}
		add("prefix:" + last + strings.ToLower(p.FirstName[:1]))
	}

	// email domain, skipping consumer providers that would block half the tenant
	for _, email := range p.Emails {
		domain := normalizers.EmailDomain(email)
		if domain != "" && !normalizers.IsCommonEmailDomain(domain) {
			add("domain:" + domain)
		}
	}

	// last 7 digits of phone
	for _, phone := range p.Phones {
		if last7 := normalizers.PhoneLast7(phone); last7 != "" {
			add("phone7:" + last7)
		}
	}

	// family membership
	for _, familyID := range p.FamilyIDs {
		add("family:" + familyID)
	}

	// goes-by soundex catches nickname-as-name records
	if p.GoesBy != "" {
		for _, part := range strings.Fields(p.GoesBy) {
			if len(part) >= 3 {
				if sx := scorer.Soundex(part); sx != "" {
					add("goessoundex:" + sx)
				}
			}
		}
	}

	return keys
}

// pairKey returns the canonical "<a>:<b>" key for a pair, smaller id first.
func pairKey(idA, idB string) string {
	if idA > idB {
		idA, idB = idB, idA
	}
	return idA + ":" + idB
}

// CandidatePairs builds the blocking index over people and returns the
// deduplicated pair keys to score. Blocks outside [2, maxBlockSize] are
// skipped: singletons have nothing to compare and oversized blocks are noise.
// The result is sorted so repeated scans over the same snapshot produce the
// same pairs in the same order.
func CandidatePairs(people []*models.MatchProfile, maxBlockSize int) []string {
	blocks := make(map[string][]*models.MatchProfile)
	for _, person := range people {
		for _, key := range BlockingKeys(person) {
			blocks[key] = append(blocks[key], person)
		}
	}

	seen := make(map[string]bool)
	var pairs []string
	for _, blocked := range blocks {
		if len(blocked) < 2 || len(blocked) > maxBlockSize {
			continue
		}
		for i := 0; i < len(blocked); i++ {
			for j := i + 1; j < len(blocked); j++ {
				key := pairKey(blocked[i].PersonID, blocked[j].PersonID)
				if !seen[key] {
					seen[key] = true
					pairs = append(pairs, key)
				}
			}
		}
	}

	sort.Strings(pairs)
	return pairs
}
