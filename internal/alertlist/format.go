package alertlist

import (
	"strings"
	"time"
)

const (
	executionErrorPrefix = "Execution Error: "
	noDataInfo           = "Query returned no data"
)

// StateModel is the presentation row for one alert state.
type StateModel struct {
	Text  string
	Icon  string
	Class string
}

var stateModels = map[State]StateModel{
	StateAlerting: {Text: "ALERTING", Icon: "heartbeat", Class: "alert-state-critical"},
	StateOK:       {Text: "OK", Icon: "heart", Class: "alert-state-ok"},
	StatePaused:   {Text: "PAUSED", Icon: "pause", Class: "alert-state-paused"},
	StatePending:  {Text: "PENDING", Icon: "exclamation", Class: "alert-state-warning"},
	StateNoData:   {Text: "NO DATA", Icon: "question-circle", Class: "alert-state-neutral"},
	StateUnknown:  {Text: "UNKNOWN", Icon: "question-circle", Class: "alert-state-neutral"},
}

// StateDisplay returns the presentation row for s. Unlisted states get the
// neutral row with their upper-cased name as text.
func StateDisplay(s State) StateModel {
	if m, ok := stateModels[s]; ok {
		return m
	}
	text := strings.ToUpper(strings.TrimSpace(string(s)))
	if text == "" {
		text = "UNKNOWN"
	}
	return StateModel{Text: text, Icon: "question-circle", Class: "alert-state-neutral"}
}

// FormatAlertRule builds the view-model for raw as seen at now.
func FormatAlertRule(raw RawAlertRule, now time.Time) AlertRule {
	model := StateDisplay(raw.State)
	return AlertRule{
		RawAlertRule: raw,
		StateText:    model.Text,
		StateIcon:    model.Icon,
		StateClass:   model.Class,
		StateAge:     StateAge(raw.NewStateDate, now),
		Info:         ruleInfo(&raw),
	}
}

// ruleInfo picks the diagnostic line. An execution error wins over a
// no-data evaluation.
func ruleInfo(raw *RawAlertRule) *string {
	var info string
	switch {
	case raw.ExecutionError != "":
		info = executionErrorPrefix + raw.ExecutionError
	case raw.NoData():
		info = noDataInfo
	default:
		return nil
	}
	return &info
}
