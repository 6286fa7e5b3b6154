package matching

import "strings"

// Scorer provides the string comparison algorithms duplicate detection
// is built on
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings.
// Comparison is case-insensitive. Returns a value between 0.0 (no
// similarity) and 1.0 (exact match).
func (s *Scorer) JaroWinkler(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	jaro := s.Jaro(a, b)

	// Winkler modification: boost for common prefix, capped at 4 chars
	prefixLen := 0
	for i := 0; i < len(a) && i < len(b) && i < 4; i++ {
		if a[i] == b[i] {
			prefixLen++
		} else {
			break
		}
	}

	return jaro + float64(prefixLen)*0.1*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Soundex calculates the American Soundex encoding of a string. H and W are
// transparent: the consonant before them still suppresses an identical
// consonant after them. Vowels break that run. Returns "" when the input has
// no letters.
func (s *Scorer) Soundex(str string) string {
	str = strings.ToUpper(str)

	var letters []byte
	for i := 0; i < len(str); i++ {
		if str[i] >= 'A' && str[i] <= 'Z' {
			letters = append(letters, str[i])
		}
	}
	if len(letters) == 0 {
		return ""
	}

	result := string(letters[0])
	prevCode := soundexCode(letters[0])

	for i := 1; i < len(letters) && len(result) < 4; i++ {
		char := letters[i]
		if char == 'H' || char == 'W' {
			continue
		}

		code := soundexCode(char)
		if code != "0" && code != prevCode {
			result += code
		}
		prevCode = code
	}

	for len(result) < 4 {
		result += "0"
	}

	return result
}

// SoundexMatch returns true when both strings encode to the same non-empty
// Soundex code
func (s *Scorer) SoundexMatch(a, b string) bool {
	sa := s.Soundex(a)
	return sa != "" && sa == s.Soundex(b)
}

// soundexCode returns the Soundex digit for a character. Vowels and the
// near-vowels H, W, Y map to "0".
func soundexCode(char byte) string {
	switch char {
	case 'B', 'F', 'P', 'V':
		return "1"
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return "2"
	case 'D', 'T':
		return "3"
	case 'L':
		return "4"
	case 'M', 'N':
		return "5"
	case 'R':
		return "6"
	default:
		return "0"
	}
}
