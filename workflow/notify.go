package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"f0oster/adsweep/approval"
)

// NotifyEvent is what the orchestrator hands the notify step. With
// MessageToSlack set it updates an earlier request instead of posting a new one.
type NotifyEvent struct {
	Token string `json:"token,omitempty"`
	Event struct {
		Payload QueryResult `json:"Payload"`
	} `json:"event"`
	MessageToSlack  string `json:"message_to_slack,omitempty"`
	SlackMessageKey string `json:"slack_message_key,omitempty"`
}

// Reporter posts and updates approval requests.
type Reporter interface {
	PostReport(ctx context.Context, r approval.Report) (string, string, error)
	UpdateReport(ctx context.Context, archivedKey, status string) error
}

var ErrMissingTaskToken = errors.New("notify event has no task token")

func ParseNotifyEvent(data []byte) (NotifyEvent, error) {
	var ev NotifyEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return NotifyEvent{}, fmt.Errorf("%w: %w", ErrMalformedTrigger, err)
	}
	return ev, nil
}

// Notify posts or updates the approval request described by ev.
func Notify(ctx context.Context, r Reporter, ev NotifyEvent, now time.Time, linkTTL time.Duration) error {
	if ev.MessageToSlack != "" {
		if ev.SlackMessageKey == "" {
			return fmt.Errorf("%w: update without slack_message_key", ErrMalformedTrigger)
		}
		return r.UpdateReport(ctx, ev.SlackMessageKey, ev.MessageToSlack)
	}
	if ev.Token == "" {
		return ErrMissingTaskToken
	}
	_, _, err := r.PostReport(ctx, ev.Event.Payload.Report(ev.Token, now, linkTTL))
	return err
}
