package resolver

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"shopbot/internal/models"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
)

const (
	MinScore      = 0.55
	MaxCandidates = 50

	substringBonus = 0.45
	prefixBonus    = 0.25
)

type Candidate struct {
	Item  models.Item
	Score float64
}

// Normalize maps punctuation to spaces, collapses whitespace and case-folds.
func Normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
	return cases.Fold().String(strings.Join(strings.Fields(mapped), " "))
}

// Score rates how well the normalized query q matches the normalized name.
func Score(q, name string) float64 {
	if q == "" || name == "" {
		return 0
	}
	longest := utf8.RuneCountInString(q)
	if n := utf8.RuneCountInString(name); n > longest {
		longest = n
	}
	score := 1 - float64(levenshtein.ComputeDistance(q, name))/float64(longest)
	if strings.Contains(name, q) {
		score += substringBonus
	}
	if strings.HasPrefix(name, q) {
		score += prefixBonus
	}
	if score > 1 {
		score = 1
	}
	return score
}

// ByID returns the item whose id equals the query. Only plain digits count
// as an id; "+7" or "-7" are matched as names.
func ByID(items []models.Item, query string) (models.Item, bool) {
	query = strings.TrimSpace(query)
	if !isDigits(query) {
		return models.Item{}, false
	}
	id, err := strconv.ParseInt(query, 10, 64)
	if err != nil {
		return models.Item{}, false
	}
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return models.Item{}, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Candidates returns the items matching query, best first. An id match
// short-circuits scoring.
func Candidates(items []models.Item, query string) []Candidate {
	if item, ok := ByID(items, query); ok {
		return []Candidate{{Item: item, Score: 1}}
	}
	q := Normalize(query)
	if q == "" {
		return nil
	}
	var out []Candidate
	for _, item := range items {
		score := Score(q, Normalize(item.Name))
		if score >= MinScore {
			out = append(out, Candidate{Item: item, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > MaxCandidates {
		out = out[:MaxCandidates]
	}
	return out
}
