package disable

import (
	"context"
	"fmt"
	"time"

	"f0oster/adsweep/activedirectory"
	"f0oster/adsweep/metrics"
	"f0oster/adsweep/retry"

	"go.uber.org/zap"
)

const (
	// DisabledControlCode is the userAccountControl value for a disabled normal account.
	DisabledControlCode = "514"
	// MarkerTimeLayout formats the timestamp written into the description marker.
	MarkerTimeLayout = "2006-01-02T1504"

	attrUserAccountControl = "userAccountControl"
	attrDescription        = "description"
)

// Directory is a single-use directory session.
type Directory interface {
	Connect(ctx context.Context) error
	ReplaceAttribute(ctx context.Context, dn, attr, value string) error
	Close() error
}

// Outcome is the result of disabling one entry.
type Outcome struct {
	DN       string
	Actor    string
	Marker   string
	Disabled bool
	Err      error
	At       time.Time
}

// AuditRecorder persists disable outcomes.
type AuditRecorder interface {
	RecordDisable(ctx context.Context, outcome Outcome) error
}

type Executor struct {
	newDirectory func() Directory
	actor        string
	now          func() time.Time
	policy       retry.Policy
	audit        AuditRecorder
	logger       *zap.Logger
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Executor) { e.policy = p }
}

func WithAudit(r AuditRecorder) Option {
	return func(e *Executor) { e.audit = r }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor returns an Executor that opens a fresh directory session per batch.
func NewExecutor(newDirectory func() Directory, actor string, opts ...Option) *Executor {
	e := &Executor{
		newDirectory: newDirectory,
		actor:        actor,
		now:          time.Now,
		policy:       retry.Directory(activedirectory.IsNoSuchObject),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Marker is the description written to a disabled account.
func Marker(at time.Time, actor string) string {
	return fmt.Sprintf("Disabled %s by %s", at.Format(MarkerTimeLayout), actor)
}

// Disable disables every DN in order and returns how many succeeded. A failing
// entry is logged and skipped; only a connection failure aborts the batch.
func (e *Executor) Disable(ctx context.Context, dns []string) (int, error) {
	if len(dns) == 0 {
		return 0, nil
	}

	dir := e.newDirectory()
	if err := dir.Connect(ctx); err != nil {
		return 0, err
	}
	defer func() {
		if err := dir.Close(); err != nil {
			e.logger.Warn("failed to unbind directory session", zap.Error(err))
		}
	}()

	disabled := 0
	for _, dn := range dns {
		if err := ctx.Err(); err != nil {
			return disabled, err
		}

		at := e.now()
		marker := Marker(at, e.actor)
		err := e.disableOne(ctx, dir, dn, marker)
		outcome := Outcome{DN: dn, Actor: e.actor, Marker: marker, Disabled: err == nil, Err: err, At: at}

		if err != nil {
			e.logger.Error("failed to disable account", zap.String("dn", dn), zap.Error(err))
			metrics.DisablesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		} else {
			disabled++
			e.logger.Info("disabled account", zap.String("dn", dn), zap.String("marker", marker))
			metrics.DisablesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		}

		if e.audit != nil {
			if aerr := e.audit.RecordDisable(ctx, outcome); aerr != nil {
				e.logger.Warn("failed to record disable outcome", zap.String("dn", dn), zap.Error(aerr))
			}
		}
	}

	e.logger.Info("disable batch finished", zap.Int("requested", len(dns)), zap.Int("disabled", disabled))
	return disabled, nil
}

func (e *Executor) disableOne(ctx context.Context, dir Directory, dn, marker string) error {
	writes := []struct {
		attr  string
		value string
	}{
		{attrUserAccountControl, DisabledControlCode},
		{attrDescription, marker},
	}

	for _, w := range writes {
		policy := e.policy
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			e.logger.Warn("directory write failed, retrying",
				zap.String("dn", dn), zap.String("attribute", w.attr),
				zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		}
		err := retry.Do(ctx, func(ctx context.Context) error {
			return dir.ReplaceAttribute(ctx, dn, w.attr, w.value)
		}, policy)
		if err != nil {
			return &MutationError{DN: dn, Attribute: w.attr, Err: err}
		}
	}
	return nil
}
