package matching

import (
	"fmt"
	"strings"

	"github.com/gatherhq/laurel/pkg/models"
	"github.com/gatherhq/laurel/pkg/normalizers"
)

// Config holds the tunable weights and thresholds for pair scoring and scan
// behavior. Weights sum per firing signal, capped at 100.
type Config struct {
	MinScore     float64
	Limit        int
	MaxBlockSize int

	EmailWeight          float64
	PhoneWeight          float64
	NicknameWeight       float64
	PhoneticWeight       float64
	FuzzyNameWeight      float64
	LastNameExactWeight  float64
	FirstNameExactWeight float64
	GoesByExactWeight    float64
	GoesByFuzzyWeight    float64
	FamilyWeight         float64

	FirstNameThreshold float64
	LastNameThreshold  float64
	FullNameThreshold  float64
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		MinScore:     50,
		Limit:        500,
		MaxBlockSize: 100,

		EmailWeight:          45,
		PhoneWeight:          40,
		NicknameWeight:       23,
		PhoneticWeight:       15,
		FuzzyNameWeight:      10,
		LastNameExactWeight:  15,
		FirstNameExactWeight: 10,
		GoesByExactWeight:    25,
		GoesByFuzzyWeight:    20,
		FamilyWeight:         5,

		FirstNameThreshold: 0.85,
		LastNameThreshold:  0.9,
		FullNameThreshold:  0.9,
	}
}

// Reason labels attached to identity links. Stable strings consumed by the
// review UI, do not rename.
const (
	ReasonEmailExact     = "email_exact"
	ReasonPhoneMatch     = "phone_match"
	ReasonPhonetic       = "soundex_phonetic_match"
	ReasonFuzzyName      = "fuzzy_name_match"
	ReasonLastNameExact  = "last_name_exact"
	ReasonFirstNameExact = "first_name_exact"
	ReasonGoesByExact    = "goes_by_contains_last_name"
	ReasonGoesByFuzzy    = "goes_by_fuzzy_last_name"
	ReasonSameFamily     = "same_family"
)

// MatchReason is one fired signal with its contribution to the score
type MatchReason struct {
	Field  string  `json:"field"`
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// MatchResult is a scored pair, ids ordered a < b
type MatchResult struct {
	PersonAID string
	PersonBID string
	Score     float64
	Reasons   []MatchReason
}

// ReasonLabels returns just the labels, in signal-strength order.
func (r *MatchResult) ReasonLabels() []string {
	labels := make([]string, len(r.Reasons))
	for i, reason := range r.Reasons {
		labels[i] = reason.Label
	}
	return labels
}

// ScorePair scores two people for duplicate likelihood. Signals are
// evaluated strongest first so the reason list reads in order of strength.
func (c *Config) ScorePair(scorer *Scorer, a, b *models.MatchProfile) MatchResult {
	var reasons []MatchReason

	// exact email match is the strongest signal
	if shared := sharedNormalized(a.Emails, b.Emails, normalizers.NormalizeEmail); shared != "" {
		reasons = append(reasons, MatchReason{Field: "email", Label: ReasonEmailExact, Weight: c.EmailWeight})
	}

	// exact phone match on last 7 digits
	if shared := sharedNormalized(a.Phones, b.Phones, normalizers.PhoneLast7); shared != "" {
		reasons = append(reasons, MatchReason{Field: "phone", Label: ReasonPhoneMatch, Weight: c.PhoneWeight})
	}

	aFirst := normalizers.NormalizeName(a.FirstName)
	bFirst := normalizers.NormalizeName(b.FirstName)
	aLast := normalizers.NormalizeName(a.LastName)
	bLast := normalizers.NormalizeName(b.LastName)

	nameSignal := false
	switch {
	// known nickname pair with identical last names
	case aFirst != "" && bFirst != "" && aLast != "" && aLast == bLast && AreNicknames(aFirst, bFirst):
		label := fmt.Sprintf("nickname:%s↔%s", aFirst, bFirst)
		reasons = append(reasons, MatchReason{Field: "first_name", Label: label, Weight: c.NicknameWeight})
		nameSignal = true

	// phonetically identical last names with similar first names
	case aLast != "" && bLast != "" && scorer.SoundexMatch(aLast, bLast) &&
		scorer.JaroWinkler(aFirst, bFirst) >= c.FirstNameThreshold:
		reasons = append(reasons, MatchReason{Field: "name", Label: ReasonPhonetic, Weight: c.PhoneticWeight})
		nameSignal = true

	// whole-name similarity as the weakest name signal
	case scorer.JaroWinkler(aFirst+" "+aLast, bFirst+" "+bLast) >= c.FullNameThreshold:
		reasons = append(reasons, MatchReason{Field: "name", Label: ReasonFuzzyName, Weight: c.FuzzyNameWeight})
		nameSignal = true
	}

	// exact component matches still count when no composite signal fired
	if !nameSignal {
		if aLast != "" && aLast == bLast {
			reasons = append(reasons, MatchReason{Field: "last_name", Label: ReasonLastNameExact, Weight: c.LastNameExactWeight})
		}
		if aFirst != "" && aFirst == bFirst {
			reasons = append(reasons, MatchReason{Field: "first_name", Label: ReasonFirstNameExact, Weight: c.FirstNameExactWeight})
		}
	}

	// goes-by that embeds the other person's last name ("AJ Jordan" records)
	if goesBy := c.detectGoesByLastName(scorer, a, b); goesBy != nil {
		reasons = append(reasons, *goesBy)
	}

	// shared family membership is weak corroboration
	if sharedString(a.FamilyIDs, b.FamilyIDs) != "" {
		reasons = append(reasons, MatchReason{Field: "family", Label: ReasonSameFamily, Weight: c.FamilyWeight})
	}

	score := 0.0
	for _, reason := range reasons {
		score += reason.Weight
	}
	if score > 100 {
		score = 100
	}

	idA, idB := a.PersonID, b.PersonID
	if idA > idB {
		idA, idB = idB, idA
	}

	return MatchResult{
		PersonAID: idA,
		PersonBID: idB,
		Score:     score,
		Reasons:   reasons,
	}
}

// detectGoesByLastName flags records like goes_by "AJ Jordan" against a
// person named Armani Jordan: the goes-by's last word matches the other
// person's last name while its first word looks like their first name.
func (c *Config) detectGoesByLastName(scorer *Scorer, a, b *models.MatchProfile) *MatchReason {
	checks := []struct {
		goesByPerson *models.MatchProfile
		fullPerson   *models.MatchProfile
	}{
		{a, b},
		{b, a},
	}

	for _, check := range checks {
		goesBy := strings.ToLower(strings.TrimSpace(check.goesByPerson.GoesBy))
		lastName := strings.ToLower(strings.TrimSpace(check.fullPerson.LastName))
		firstName := strings.ToLower(strings.TrimSpace(check.fullPerson.FirstName))

		if goesBy == "" || lastName == "" || len(goesBy) < 3 {
			continue
		}

		parts := strings.Fields(goesBy)
		if len(parts) < 2 {
			continue
		}

		firstPart := parts[0]
		lastPart := parts[len(parts)-1]

		if lastPart == lastName {
			if firstName != "" && (AreNicknames(firstPart, firstName) ||
				CouldBeInitials(firstPart, firstName) || firstPart == firstName) {
				return &MatchReason{Field: "goes_by", Label: ReasonGoesByExact, Weight: c.GoesByExactWeight}
			}
		}

		if len(lastPart) >= 3 && scorer.JaroWinkler(lastPart, lastName) > c.FirstNameThreshold {
			if firstName != "" && (AreNicknames(firstPart, firstName) ||
				CouldBeInitials(firstPart, firstName) || firstPart[0] == firstName[0]) {
				return &MatchReason{Field: "goes_by", Label: ReasonGoesByFuzzy, Weight: c.GoesByFuzzyWeight}
			}
		}
	}

	return nil
}

// sharedNormalized returns the first value present in both lists after
// normalization, or "".
func sharedNormalized(a, b []string, normalize func(string) string) string {
	if len(a) == 0 || len(b) == 0 {
		return ""
	}
	bset := make(map[string]bool, len(b))
	for _, v := range b {
		if n := normalize(v); n != "" {
			bset[n] = true
		}
	}
	for _, v := range a {
		if n := normalize(v); n != "" && bset[n] {
			return n
		}
	}
	return ""
}

func sharedString(a, b []string) string {
	bset := make(map[string]bool, len(b))
	for _, v := range b {
		bset[v] = true
	}
	for _, v := range a {
		if bset[v] {
			return v
		}
	}
	return ""
}
