package store

import (
	"fmt"
	"strings"
	"unicode"
)

// typeSeed is an interaction type created when a tag first appears.
type typeSeed struct {
	Name  string
	Icon  string
	Score float64
	Color string
}

// tagRule maps tag-name keywords to the interaction types a new tag seeds.
type tagRule struct {
	Keywords []string
	Types    []typeSeed
}

var tagRules = []tagRule{
	{
		Keywords: []string{"pet", "dog", "cat", "puppy", "kitten"},
		Types: []typeSeed{
			{"Vet Visit", "medkit-outline", 2, "#8E6C8A"},
			{"Grooming", "cut-outline", 1, "#C9A66B"},
			{"Walk", "paw-outline", 1, "#6BA368"},
		},
	},
	{
		Keywords: []string{"work", "colleague", "office", "client", "coworker"},
		Types: []typeSeed{
			{"Meeting", "briefcase-outline", 2, "#4A6FA5"},
			{"Lunch", "restaurant-outline", 3, "#E07A5F"},
		},
	},
	{
		Keywords: []string{"family", "relative", "parent", "sibling", "cousin"},
		Types: []typeSeed{
			{"Family Dinner", "home-outline", 4, "#D4A373"},
			{"Visit", "walk-outline", 3, "#84A59D"},
		},
	},
	{
		Keywords: []string{"friend", "buddy", "pal", "bestie"},
		Types: []typeSeed{
			{"Hangout", "happy-outline", 3, "#F28482"},
			{"Catch-up", "chatbubbles-outline", 2, "#F6BD60"},
		},
	},
	{
		Keywords: []string{"gym", "fitness", "sport", "run", "climb", "yoga"},
		Types: []typeSeed{
			{"Workout", "barbell-outline", 2, "#2A9D8F"},
		},
	},
	{
		Keywords: []string{"book", "reading", "club"},
		Types: []typeSeed{
			{"Book Club", "book-outline", 2, "#9C6644"},
		},
	},
	{
		Keywords: []string{"school", "class", "study", "university", "college"},
		Types: []typeSeed{
			{"Study Session", "school-outline", 2, "#577590"},
		},
	},
	{
		Keywords: []string{"church", "faith", "temple", "mosque"},
		Types: []typeSeed{
			{"Service", "heart-outline", 2, "#B5838D"},
		},
	},
	{
		Keywords: []string{"travel", "trip", "abroad"},
		Types: []typeSeed{
			{"Trip", "airplane-outline", 4, "#3D5A80"},
		},
	},
	{
		Keywords: []string{"neighbor", "neighbour"},
		Types: []typeSeed{
			{"Chat Over The Fence", "home-outline", 1, "#90A955"},
		},
	},
}

const fallbackTypeColor = "#666666"

// seedsForTag returns the interaction types a brand-new tag should create.
// Keywords match whole words, plurals, or (for keywords of four letters or
// more) word prefixes, so "Pets" and "Dog Park" both match. Unmatched tags
// get one generic type.
func seedsForTag(name string) []typeSeed {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var out []typeSeed
	seen := make(map[string]bool)
	for _, rule := range tagRules {
		if !ruleMatches(rule, words) {
			continue
		}
		for _, t := range rule.Types {
			if !seen[t.Name] {
				seen[t.Name] = true
				out = append(out, t)
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	return []typeSeed{{
		Name:  fmt.Sprintf("%s Interaction", displayName(name)),
		Icon:  "pricetag-outline",
		Score: 1,
		Color: fallbackTypeColor,
	}}
}

func ruleMatches(rule tagRule, words []string) bool {
	for _, w := range words {
		for _, kw := range rule.Keywords {
			if w == kw || w == kw+"s" || (len(kw) >= 4 && strings.HasPrefix(w, kw)) {
				return true
			}
		}
	}
	return false
}

// displayName upper-cases the first letter of each word.
func displayName(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
