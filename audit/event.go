// Package audit emits the journey events consumed by the platform's audit
// pipeline. Emission is best effort and never fails the calling request.
package audit

const (
	EventStart           = "START"
	EventRequestReceived = "REQUEST_RECEIVED"
	EventAuthCodeIssued  = "AUTH_CODE_ISSUED"
	EventVCIssued        = "VC_ISSUED"
	EventEnd             = "END"
	EventAborted         = "ABORTED"
)

// User identifies whose journey an event belongs to
type User struct {
	UserID               string `json:"user_id,omitempty"`
	SessionID            string `json:"session_id,omitempty"`
	GovukSigninJourneyID string `json:"govuk_signin_journey_id,omitempty"`
	PersistentSessionID  string `json:"persistent_session_id,omitempty"`
	IPAddress            string `json:"ip_address,omitempty"`
}

type Event struct {
	EventName        string         `json:"event_name"`
	Timestamp        int64          `json:"timestamp"`
	EventTimestampMs int64          `json:"event_timestamp_ms"`
	ComponentID      string         `json:"component_id"`
	User             User           `json:"user"`
	Extensions       map[string]any `json:"extensions,omitempty"`
}
