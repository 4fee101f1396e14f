package alertlist

// Command is anything that can be dispatched to the reducer. Commands the
// reducer does not recognise leave the state untouched.
type Command interface {
	CommandName() string
}

// BeginLoading marks the start of a fetch.
type BeginLoading struct{}

// SetSearchQuery replaces the filter text typed into the search box.
type SetSearchQuery struct {
	Query string
}

// RulesLoaded carries a freshly fetched payload. Items are rebuilt from it.
type RulesLoaded struct {
	Rules []RawAlertRule
}

func (BeginLoading) CommandName() string   { return "begin_loading" }
func (SetSearchQuery) CommandName() string { return "set_search_query" }
func (RulesLoaded) CommandName() string    { return "rules_loaded" }
