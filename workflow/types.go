package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"f0oster/adsweep/approval"
	"f0oster/adsweep/artifacts"
)

var (
	ErrMalformedTrigger   = errors.New("malformed trigger")
	ErrUnknownAction      = errors.New("unknown action")
	ErrMissingScanResults = errors.New("trigger has no ldap_scan_results key")
	ErrRemoveUnavailable  = errors.New("distribution list store not configured")
)

// Action selects what an invocation does.
type Action int

const (
	actionNone Action = iota
	ActionQuery
	ActionDisable
	ActionRemove
)

var actionNames = map[Action]string{
	ActionQuery:   "query",
	ActionDisable: "disable",
	ActionRemove:  "remove",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction maps an action name onto an Action.
func ParseAction(name string) (Action, error) {
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return actionNone, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

func (a Action) MarshalJSON() ([]byte, error) {
	name, ok := actionNames[a]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAction, int(a))
	}
	return json.Marshal(name)
}

func (a *Action) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, err := ParseAction(name)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Trigger is the input of one invocation.
type Trigger struct {
	Action          Action `json:"action"`
	LdapScanResults string `json:"ldap_scan_results,omitempty"`
}

type envelope struct {
	Payload json.RawMessage `json:"Payload"`
	Input   json.RawMessage `json:"Input"`
}

// ParseTrigger decodes a trigger, unwrapping the Payload or Input envelopes the
// orchestrator adds around task input.
func ParseTrigger(data []byte) (Trigger, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Trigger{}, fmt.Errorf("%w: %w", ErrMalformedTrigger, err)
	}
	if isObject(env.Payload) {
		return ParseTrigger(env.Payload)
	}
	if isObject(env.Input) {
		return ParseTrigger(env.Input)
	}

	var t Trigger
	if err := json.Unmarshal(data, &t); err != nil {
		return Trigger{}, fmt.Errorf("%w: %w", ErrMalformedTrigger, err)
	}
	if t.Action == actionNone {
		return Trigger{}, fmt.Errorf("%w: action is required", ErrMalformedTrigger)
	}
	return t, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// QueryResult is the output of a query invocation.
type QueryResult struct {
	QueryResults struct {
		Totals map[string]int `json:"totals"`
	} `json:"query_results"`
	Artifacts []artifacts.Uploaded `json:"artifacts"`
}

// Report turns a query result into an approval request for token.
func (q QueryResult) Report(token string, generatedAt time.Time, linkTTL time.Duration) approval.Report {
	return approval.Report{
		TaskToken:   token,
		Totals:      q.QueryResults.Totals,
		Artifacts:   q.Artifacts,
		GeneratedAt: generatedAt,
		LinkTTL:     linkTTL,
	}
}

// DisableResult is the trigger echoed back with the number of accounts disabled.
type DisableResult struct {
	Trigger
	Disabled int `json:"disabled"`
}

// RemoveResult is the trigger echoed back with the number of updated distribution lists.
type RemoveResult struct {
	Trigger
	Updated int `json:"updated"`
}
