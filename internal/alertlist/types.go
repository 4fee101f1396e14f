// Package alertlist projects raw alert rules from the backend into the
// render-ready state shown by the alert rule list.
package alertlist

// State is the semantic state reported by the backend for an alert rule.
// The backend treats it as an open string; unknown values fall through to
// the neutral presentation row.
type State string

const (
	StateAlerting State = "alerting"
	StateOK       State = "ok"
	StatePaused   State = "paused"
	StatePending  State = "pending"
	StateNoData   State = "no_data"
	StateUnknown  State = "unknown"
)

func (s State) String() string { return string(s) }

// EvalMatch is a single series sample that took part in the last evaluation.
type EvalMatch struct {
	Metric string            `json:"metric"`
	Tags   map[string]string `json:"tags"`
	Value  *float64          `json:"value"`
}

// EvalData is the optional evaluation payload attached to a rule.
type EvalData struct {
	EvalMatches []EvalMatch `json:"evalMatches,omitempty"`
	NoData      bool        `json:"noData,omitempty"`
}

// RawAlertRule is one record as returned by GET /api/alerts. Field names are
// the wire contract and must not change.
type RawAlertRule struct {
	ID             int64     `json:"id"`
	DashboardID    int64     `json:"dashboardId"`
	DashboardUID   string    `json:"dashboardUid"`
	DashboardSlug  string    `json:"dashboardSlug"`
	PanelID        int64     `json:"panelId"`
	Name           string    `json:"name"`
	State          State     `json:"state"`
	NewStateDate   string    `json:"newStateDate"`
	EvalDate       string    `json:"evalDate"`
	EvalData       *EvalData `json:"evalData,omitempty"`
	ExecutionError string    `json:"executionError"`
	URL            string    `json:"url"`
}

// NoData reports whether the last evaluation returned no data. A missing
// evalData counts as false.
func (r *RawAlertRule) NoData() bool {
	return r.EvalData != nil && r.EvalData.NoData
}

// AlertRule is the view-model rendered for one RawAlertRule.
type AlertRule struct {
	RawAlertRule

	StateText  string `json:"stateText"`
	StateIcon  string `json:"stateIcon"`
	StateClass string `json:"stateClass"`
	StateAge   string `json:"stateAge"`

	// Info is nil when there is nothing to report. Consumers use its
	// presence to decide whether to render a diagnostic line.
	Info *string `json:"info,omitempty"`
}

// HasInfo reports whether a diagnostic line is present.
func (a *AlertRule) HasInfo() bool { return a.Info != nil }

// InfoText returns the diagnostic line or "" when absent.
func (a *AlertRule) InfoText() string {
	if a.Info == nil {
		return ""
	}
	return *a.Info
}

// RulesState is the list state owned by the reducer. Values are treated as
// immutable: Items is never written after a transition builds it.
type RulesState struct {
	IsLoading   bool        `json:"isLoading"`
	SearchQuery string      `json:"searchQuery"`
	Items       []AlertRule `json:"items"`
}

// InitialState returns the state before any command has been applied.
func InitialState() RulesState {
	return RulesState{Items: []AlertRule{}}
}
