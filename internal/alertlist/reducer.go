package alertlist

import "time"

// Reducer applies commands to a RulesState. The clock is only consulted to
// compute state ages when a payload is loaded.
type Reducer struct {
	now func() time.Time
}

// NewReducer returns a reducer using now as its clock. A nil clock means
// time.Now.
func NewReducer(now func() time.Time) *Reducer {
	if now == nil {
		now = time.Now
	}
	return &Reducer{now: now}
}

var defaultReducer = NewReducer(nil)

// Reduce applies cmd using the wall clock.
func Reduce(current RulesState, cmd Command) RulesState {
	return defaultReducer.Reduce(current, cmd)
}

// Reduce returns the state that results from applying cmd to current.
// current is never modified.
func (r *Reducer) Reduce(current RulesState, cmd Command) RulesState {
	switch c := cmd.(type) {
	case BeginLoading:
		next := current
		next.IsLoading = true
		return next
	case SetSearchQuery:
		next := current
		next.SearchQuery = c.Query
		return next
	case RulesLoaded:
		next := current
		next.IsLoading = false
		next.Items = formatAll(c.Rules, r.now())
		return next
	default:
		return current
	}
}

func formatAll(rules []RawAlertRule, now time.Time) []AlertRule {
	items := make([]AlertRule, 0, len(rules))
	for i := range rules {
		items = append(items, FormatAlertRule(rules[i], now))
	}
	return items
}
