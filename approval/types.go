package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"f0oster/adsweep/artifacts"
)

var (
	ErrMissingSignature = errors.New("webhook signature headers missing")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
	ErrStaleRequest     = errors.New("webhook timestamp outside allowed skew")
	ErrMalformedPayload = errors.New("webhook payload malformed")
)

// ChatAPIError wraps a failed call to the chat service.
type ChatAPIError struct {
	Method string
	Err    error
}

func (e *ChatAPIError) Error() string {
	return fmt.Sprintf("chat %s: %v", e.Method, e.Err)
}

func (e *ChatAPIError) Unwrap() error {
	return e.Err
}

// Decision is the reviewer's choice.
type Decision int

const (
	Deny Decision = iota
	Approve
)

// Action ids carried by the report buttons.
const (
	ActionDeny    = "Deny"
	ActionApprove = "Approve"
)

func (d Decision) String() string {
	switch d {
	case Approve:
		return "approve"
	default:
		return "deny"
	}
}

func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Decision) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDecision(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDecision maps a button action id to a Decision.
func ParseDecision(actionID string) (Decision, error) {
	switch strings.ToLower(actionID) {
	case "approve":
		return Approve, nil
	case "deny":
		return Deny, nil
	default:
		return Deny, fmt.Errorf("%w: unknown action %q", ErrMalformedPayload, actionID)
	}
}

// ButtonValue is the opaque value attached to both report buttons.
type ButtonValue struct {
	TaskToken   string `json:"task_token"`
	ArtifactKey string `json:"artifact_key"`
}

// Resolution is handed to the orchestrator when a suspended task resumes.
type Resolution struct {
	Action          Decision `json:"action"`
	ArtifactKey     string   `json:"artifact_key"`
	SlackMessageKey string   `json:"slack_message_key"`
	User            string   `json:"user,omitempty"`
}

// Report is everything shown in an approval request.
type Report struct {
	TaskToken   string
	Totals      map[string]int
	Artifacts   []artifacts.Uploaded
	GeneratedAt time.Time
	LinkTTL     time.Duration
}
