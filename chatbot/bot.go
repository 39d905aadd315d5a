package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"f0oster/adsweep/artifacts"
	"f0oster/adsweep/metrics"
	"f0oster/adsweep/orchestrator"
	"f0oster/adsweep/storage"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"
)

const (
	// ExecutionPrefix names executions started from chat.
	ExecutionPrefix = "slackbot"
	stopCause       = "Stop execution event initiated from slack"
)

var ErrMalformedEvent = errors.New("malformed chat event")

// ChatClient is the part of *slack.Client the bot uses.
type ChatClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Executions starts and stops orchestrated scans.
type Executions interface {
	StartExecution(ctx context.Context, prefix string, input any) (orchestrator.Execution, error)
	StopRunning(ctx context.Context, cause string) (int, error)
}

// Reports lists and links stored reports.
type Reports interface {
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Bot struct {
	client     ChatClient
	executions Executions
	reports    Reports
	linkTTL    time.Duration
	logger     *zap.Logger
}

type Option func(*Bot)

func WithLinkTTL(ttl time.Duration) Option {
	return func(b *Bot) { b.linkTTL = ttl }
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Bot) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func New(client ChatClient, executions Executions, reports Reports, opts ...Option) *Bot {
	b := &Bot{
		client:     client,
		executions: executions,
		reports:    reports,
		linkTTL:    storage.DefaultPresignTTL,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EventResponse is the body to send back for an Events API delivery. It is nil
// when the delivery needs no body.
type EventResponse struct {
	Challenge string `json:"challenge"`
}

// HandleEvent processes one Events API delivery. Replies go out through the
// chat client.
func (b *Bot) HandleEvent(ctx context.Context, body []byte) (*EventResponse, error) {
	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch event.Type {
	case slackevents.URLVerification:
		v, ok := event.Data.(*slackevents.EventsAPIURLVerificationEvent)
		if !ok {
			return nil, fmt.Errorf("%w: url_verification without challenge", ErrMalformedEvent)
		}
		b.logger.Debug("responding to challenge message")
		return &EventResponse{Challenge: v.Challenge}, nil
	case slackevents.CallbackEvent:
	default:
		b.logger.Debug("ignoring event", zap.String("type", event.Type))
		return nil, nil
	}

	var user, channel, text string
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.SubType == "bot_message" || (ev.Message != nil && ev.Message.BotID != "") {
			b.logger.Debug("ignoring bot message", zap.String("channel", ev.Channel))
			return nil, nil
		}
		user, channel, text = ev.User, ev.Channel, ev.Text
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" {
			return nil, nil
		}
		user, channel, text = ev.User, ev.Channel, ev.Text
	default:
		b.logger.Debug("ignoring inner event", zap.String("type", event.InnerEvent.Type))
		return nil, nil
	}

	reply := b.Respond(ctx, user, text)
	if _, _, err := b.client.PostMessageContext(ctx, channel, slack.MsgOptionText(reply, false)); err != nil {
		return nil, fmt.Errorf("chat.postMessage: %w", err)
	}
	return nil, nil
}

// HandleSlashCommand answers a slash command with an ephemeral message.
func (b *Bot) HandleSlashCommand(ctx context.Context, cmd slack.SlashCommand) *slack.Msg {
	return &slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         b.Respond(ctx, cmd.UserID, cmd.Text),
	}
}

// Respond runs the command in text on behalf of user and returns the reply.
// Failures are logged and reported in the reply.
func (b *Bot) Respond(ctx context.Context, user, text string) string {
	cmd := ParseCommand(text)
	metrics.ChatCommandsTotal.WithLabelValues(cmd.String()).Inc()
	b.logger.Info("chat command", zap.String("user", user), zap.Stringer("command", cmd))

	reply, err := b.run(ctx, cmd, user)
	if err != nil {
		b.logger.Error("chat command failed", zap.Stringer("command", cmd), zap.Error(err))
		return fmt.Sprintf("Sorry, %s failed: %v", cmd, err)
	}
	return reply
}

func (b *Bot) run(ctx context.Context, cmd Command, user string) (string, error) {
	switch cmd {
	case CommandHi:
		return fmt.Sprintf("Hi <@%s> :wave:", user), nil
	case CommandHelp:
		return HelpText, nil
	case CommandStop:
		if _, err := b.executions.StopRunning(ctx, stopCause); err != nil {
			return "", err
		}
		return StoppedText, nil
	case CommandStart:
		if _, err := b.executions.StartExecution(ctx, ExecutionPrefix, map[string]string{"action": "query"}); err != nil {
			return "", err
		}
		return StartedText, nil
	case CommandReport:
		return b.latestReport(ctx)
	default:
		return UnknownText, nil
	}
}

func (b *Bot) latestReport(ctx context.Context) (string, error) {
	objects, err := b.reports.List(ctx, artifacts.HumanPrefix)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	latest, ok := storage.Newest(objects, ".html")
	if !ok {
		return NoReportText, nil
	}
	b.logger.Debug("latest user expiration report", zap.String("key", latest.Key))

	url, err := b.reports.Presign(ctx, latest.Key, b.linkTTL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("latest report: <%s|%s>", url, latest.Key), nil
}
