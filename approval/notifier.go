package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const (
	DefaultUsername  = "ldapmaintainerbot"
	DefaultIconEmoji = ":robot_face:"
)

// ChatClient is the part of *slack.Client the notifier uses.
type ChatClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

// ArchiveReader loads archived webhook payloads.
type ArchiveReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type Notifier struct {
	client   ChatClient
	channel  string
	archive  ArchiveReader
	username string
	icon     string
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

type NotifierOption func(*Notifier)

func WithLocation(loc *time.Location) NotifierOption {
	return func(n *Notifier) {
		if loc != nil {
			n.location = loc
		}
	}
}

func WithNotifierClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) { n.now = now }
}

func WithIdentity(username, icon string) NotifierOption {
	return func(n *Notifier) {
		n.username = username
		n.icon = icon
	}
}

func WithNotifierLogger(logger *zap.Logger) NotifierOption {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func NewNotifier(client ChatClient, channel string, archive ArchiveReader, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		client:   client,
		channel:  channel,
		archive:  archive,
		username: DefaultUsername,
		icon:     DefaultIconEmoji,
		location: time.UTC,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// PostReport posts a new approval request and returns its channel and timestamp.
func (n *Notifier) PostReport(ctx context.Context, r Report) (string, string, error) {
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = n.now()
	}
	r.GeneratedAt = r.GeneratedAt.In(n.location)

	blocks, err := BuildReport(r)
	if err != nil {
		return "", "", err
	}

	channel, ts, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(HeaderText, false),
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionUsername(n.username),
		slack.MsgOptionIconEmoji(n.icon),
	)
	if err != nil {
		return "", "", &ChatAPIError{Method: "chat.postMessage", Err: err}
	}
	n.logger.Info("posted approval request", zap.String("channel", channel), zap.String("ts", ts))
	return channel, ts, nil
}

// UpdateReport rewrites the message a webhook payload came from, swapping its
// buttons for status.
func (n *Notifier) UpdateReport(ctx context.Context, archivedKey, status string) error {
	raw, err := n.archive.Get(ctx, archivedKey)
	if err != nil {
		return fmt.Errorf("load archived payload %s: %w", archivedKey, err)
	}

	var ic slack.InteractionCallback
	if err := json.Unmarshal(raw, &ic); err != nil {
		return fmt.Errorf("%w: archived payload %s: %v", ErrMalformedPayload, archivedKey, err)
	}

	channel := ic.Channel.ID
	if channel == "" {
		channel = ic.Container.ChannelID
	}
	ts := ic.Message.Timestamp
	if ts == "" {
		ts = ic.Container.MessageTs
	}
	if channel == "" || ts == "" {
		return fmt.Errorf("%w: archived payload %s has no message reference", ErrMalformedPayload, archivedKey)
	}

	blocks := SpliceStatus(ic.Message.Blocks.BlockSet, status)
	if _, _, _, err := n.client.UpdateMessageContext(ctx, channel, ts,
		slack.MsgOptionText(status, false),
		slack.MsgOptionBlocks(blocks...),
	); err != nil {
		return &ChatAPIError{Method: "chat.update", Err: err}
	}
	n.logger.Info("updated approval request", zap.String("channel", channel), zap.String("ts", ts), zap.String("status", status))
	return nil
}

// StatusText is the terminal status shown once a request is resolved.
func StatusText(decision Decision, user string, disabled int) string {
	if decision == Approve {
		return fmt.Sprintf("*Approved* by %s. %d account(s) disabled.", orSomeone(user), disabled)
	}
	return fmt.Sprintf("*Denied* by %s. No accounts were changed.", orSomeone(user))
}

func orSomeone(user string) string {
	if user == "" {
		return "a reviewer"
	}
	return user
}
