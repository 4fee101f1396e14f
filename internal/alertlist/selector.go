package alertlist

import (
	"regexp"
	"strings"
)

// matcher reports whether a view-model field matches a search query.
type matcher func(string) bool

// newMatcher compiles query as a case-insensitive regular expression. A
// query that is not a valid expression is matched as a plain substring.
func newMatcher(query string) matcher {
	if re, err := regexp.Compile("(?i)" + query); err == nil {
		return re.MatchString
	}
	needle := strings.ToLower(query)
	return func(s string) bool {
		return strings.Contains(strings.ToLower(s), needle)
	}
}

// FilterItems returns the items whose name, state text or info matches
// query, in their original order. An empty query returns items as is.
func FilterItems(items []AlertRule, query string) []AlertRule {
	if query == "" {
		return items
	}
	match := newMatcher(query)
	out := make([]AlertRule, 0, len(items))
	for i := range items {
		it := &items[i]
		if match(it.Name) || match(it.StateText) || (it.Info != nil && match(*it.Info)) {
			out = append(out, *it)
		}
	}
	return out
}

// VisibleItems applies the state's own search query to its items.
func (s RulesState) VisibleItems() []AlertRule {
	return FilterItems(s.Items, s.SearchQuery)
}
