package creative

import "time"

// Summary outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Summary is the integration-level status of a set of assets. It is derived
// from the per-asset entries and never stored. Outcome is nil when entries
// exist but none of them is conclusive.
type Summary struct {
	IntegrationID   string    `json:"integrationId"`
	IntegrationName string    `json:"integrationName"`
	WasTriggered    bool      `json:"wasTriggered"`
	Outcome         *string   `json:"outcome"`
	LatestState     string    `json:"latestState,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt,omitzero"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	ResponseStatus  *int      `json:"responseStatus,omitempty"`
}

// Result returns the outcome or "" when there is none.
func (s Summary) Result() string {
	if s.Outcome == nil {
		return ""
	}
	return *s.Outcome
}
