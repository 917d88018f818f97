package keywords

import (
	"slices"
	"strings"
)

// Matcher finds configured keywords in message text by case-insensitive
// substring containment.
type Matcher struct {
	keywords []string
}

// NewMatcher builds a Matcher. Keywords are lowercased and blanks dropped;
// configuration order is kept.
func NewMatcher(keywords []string) *Matcher {
	return &Matcher{keywords: normalize(keywords)}
}

// Len is the number of configured keywords.
func (m *Matcher) Len() int {
	return len(m.keywords)
}

// Keywords returns a copy of the configured keywords.
func (m *Matcher) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

// FindMatches returns the keywords contained in text, in configured order,
// each at most once.
func (m *Matcher) FindMatches(text string) []string {
	if text == "" || len(m.keywords) == 0 {
		return nil
	}
	lower := strings.ToLower(text)

	var found []string
	for i, k := range m.keywords {
		if !strings.Contains(lower, k) || slices.Contains(m.keywords[:i], k) {
			continue
		}
		found = append(found, k)
	}
	return found
}
