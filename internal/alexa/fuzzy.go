package alexa

import (
	"strings"

	"github.com/rx3lixir/eco/internal/whatsapp"
)

const matchThreshold = 0.5

// BestMatch resolves a spoken contact name against the user's contact
// list. Exact and substring matches win early, otherwise the closest
// name by edit-distance ratio is taken when it clears the threshold.
// Returns nil when nothing is close enough.
func BestMatch(name string, contacts []whatsapp.Contact) *whatsapp.Contact {
	if name == "" || len(contacts) == 0 {
		return nil
	}

	query := strings.ToLower(strings.TrimSpace(name))

	var best *whatsapp.Contact
	bestScore := 0.0

	for i := range contacts {
		candidate := strings.ToLower(contacts[i].Name)
		if candidate == query {
			return &contacts[i]
		}

		score := similarity(query, candidate)
		if strings.Contains(candidate, query) || strings.Contains(query, candidate) {
			if score < 0.75 {
				score = 0.75
			}
		}

		if score > bestScore {
			bestScore = score
			best = &contacts[i]
		}
	}

	if bestScore < matchThreshold {
		return nil
	}
	return best
}

// similarity is a normalized Levenshtein ratio in [0, 1].
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
