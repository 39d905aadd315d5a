package approval

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"f0oster/adsweep/artifacts"
	"f0oster/adsweep/metrics"

	"go.uber.org/zap"
)

// ArchivePrefix names archived webhook payloads.
const ArchivePrefix = "slack-response"

// Resumer completes a suspended orchestrator task.
type Resumer interface {
	SendTaskSuccess(ctx context.Context, taskToken string, output any) error
}

// Archiver keeps a copy of each accepted payload.
type Archiver interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

type Listener struct {
	secret  string
	store   Archiver
	resumer Resumer
	maxSkew time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

type ListenerOption func(*Listener)

func WithMaxSkew(d time.Duration) ListenerOption {
	return func(l *Listener) { l.maxSkew = d }
}

func WithListenerClock(now func() time.Time) ListenerOption {
	return func(l *Listener) { l.now = now }
}

func WithListenerLogger(logger *zap.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewListener(secret string, store Archiver, resumer Resumer, opts ...ListenerOption) *Listener {
	l := &Listener{
		secret:  secret,
		store:   store,
		resumer: resumer,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ArchiveKey names the stored copy of a payload received at t.
func ArchiveKey(t time.Time) string {
	return artifacts.FileName(ArchivePrefix, "json", t)
}

// IsRejection reports whether err means the request was refused before any side effect.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrStaleRequest) ||
		errors.Is(err, ErrMalformedPayload)
}

// HandleWebhook verifies a button press, archives its payload and resumes the task
// named by the button's token. Rejected requests have no side effects.
func (l *Listener) HandleWebhook(ctx context.Context, header http.Header, body []byte) (*Resolution, error) {
	now := l.now()
	if err := VerifySignature(l.secret, header, body, now, l.maxSkew); err != nil {
		l.logger.Warn("rejected webhook", zap.Error(err))
		metrics.WebhooksTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	cb, err := ParseCallback(body)
	if err != nil {
		l.logger.Warn("dropped malformed webhook", zap.Error(err))
		metrics.WebhooksTotal.WithLabelValues("malformed").Inc()
		return nil, err
	}

	key := ArchiveKey(now)
	if err := l.store.Put(ctx, key, cb.Payload, artifacts.ContentTypeJSON); err != nil {
		metrics.WebhooksTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("archive webhook payload: %w", err)
	}

	resolution := &Resolution{
		Action:          cb.Decision,
		ArtifactKey:     cb.Value.ArtifactKey,
		SlackMessageKey: key,
		User:            cb.User,
	}
	if err := l.resumer.SendTaskSuccess(ctx, cb.Value.TaskToken, resolution); err != nil {
		l.logger.Error("failed to resume task", zap.String("slack_message_key", key), zap.Error(err))
		metrics.WebhooksTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("resume task: %w", err)
	}

	l.logger.Info("resumed approval task",
		zap.String("action", cb.Decision.String()),
		zap.String("user", cb.User),
		zap.String("artifact_key", cb.Value.ArtifactKey),
		zap.String("slack_message_key", key))
	metrics.WebhooksTotal.WithLabelValues(cb.Decision.String()).Inc()
	return resolution, nil
}
