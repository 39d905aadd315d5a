package workflow

import (
	"context"
	"fmt"
	"time"

	"f0oster/adsweep/activedirectory"
	"f0oster/adsweep/artifacts"
	"f0oster/adsweep/classifier"
	"f0oster/adsweep/metrics"
	"f0oster/adsweep/storage"

	"go.uber.org/zap"
)

// Directory is a read-only directory session.
type Directory interface {
	Connect(ctx context.Context) error
	FetchUsers(ctx context.Context) ([]activedirectory.Entry, error)
	Close() error
}

// ArtifactStore is the part of the object store a workflow uses.
type ArtifactStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Disabler interface {
	Disable(ctx context.Context, dns []string) (int, error)
}

type Pruner interface {
	PruneEmails(ctx context.Context, emails []string) (int, error)
}

type Service struct {
	policy       classifier.Policy
	newDirectory func() Directory
	store        ArtifactStore
	disabler     Disabler
	pruner       Pruner
	generator    artifacts.Generator
	threshold    int
	linkTTL      time.Duration
	logger       *zap.Logger
}

type Option func(*Service)

func WithDisabler(d Disabler) Option {
	return func(s *Service) { s.disabler = d }
}

func WithPruner(p Pruner) Option {
	return func(s *Service) { s.pruner = p }
}

// WithDisableThreshold sets the minimum staleness, in days, that disable and remove
// act on. Every bucket at or above it is included. It defaults to the policy's first
// threshold.
func WithDisableThreshold(days int) Option {
	return func(s *Service) { s.threshold = days }
}

func WithLinkTTL(ttl time.Duration) Option {
	return func(s *Service) { s.linkTTL = ttl }
}

func WithGenerator(g artifacts.Generator) Option {
	return func(s *Service) { s.generator = g }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(policy classifier.Policy, newDirectory func() Directory, store ArtifactStore, opts ...Option) *Service {
	s := &Service{
		policy:       policy,
		newDirectory: newDirectory,
		store:        store,
		generator:    artifacts.Generator{Now: policy.Now},
		linkTTL:      storage.DefaultPresignTTL,
		logger:       zap.NewNop(),
	}
	if len(policy.Thresholds) > 0 {
		s.threshold = policy.Thresholds[0]
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch runs the invocation named by t.Action.
func (s *Service) Dispatch(ctx context.Context, t Trigger) (any, error) {
	s.logger.Debug("dispatching invocation", zap.Stringer("action", t.Action), zap.String("ldap_scan_results", t.LdapScanResults))

	switch t.Action {
	case ActionQuery:
		return s.Query(ctx)
	case ActionDisable:
		return s.Disable(ctx, t)
	case ActionRemove:
		return s.Remove(ctx, t)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, t.Action)
	}
}

// Query scans the directory, classifies every user and uploads both reports.
func (s *Service) Query(ctx context.Context) (*QueryResult, error) {
	result, err := s.query(ctx)
	if err != nil {
		metrics.ScansTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, err
	}
	metrics.ScansTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return result, nil
}

func (s *Service) query(ctx context.Context) (*QueryResult, error) {
	dir := s.newDirectory()
	if err := dir.Connect(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := dir.Close(); err != nil {
			s.logger.Warn("failed to unbind directory session", zap.Error(err))
		}
	}()

	entries, err := dir.FetchUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}

	bucket := classifier.New(s.policy, s.logger).Classify(entries)
	totals := bucket.Totals()
	for key, n := range totals {
		metrics.StaleAccounts.WithLabelValues(key).Set(float64(n))
	}

	machine, human, err := s.generator.Generate(bucket)
	if err != nil {
		return nil, err
	}
	uploaded, err := artifacts.Upload(ctx, s.store, s.linkTTL, human, machine)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Artifacts: uploaded}
	result.QueryResults.Totals = totals
	s.logger.Info("scan complete", zap.Int("entries", len(entries)), zap.Any("totals", totals))
	return result, nil
}

// Disable disables every account of the referenced scan that is at least the
// disable threshold stale.
func (s *Service) Disable(ctx context.Context, t Trigger) (*DisableResult, error) {
	if s.disabler == nil {
		return nil, fmt.Errorf("disable executor not configured")
	}
	bucket, err := s.loadScan(ctx, t)
	if err != nil {
		return nil, err
	}

	dns := bucket.DNs(s.threshold)
	s.logger.Info("disabling stale accounts", zap.String("scan", t.LdapScanResults), zap.Int("count", len(dns)))
	disabled, err := s.disabler.Disable(ctx, dns)
	if err != nil {
		return nil, err
	}
	return &DisableResult{Trigger: t, Disabled: disabled}, nil
}

// Remove prunes the addresses of the same accounts Disable would act on from the
// distribution lists.
func (s *Service) Remove(ctx context.Context, t Trigger) (*RemoveResult, error) {
	if s.pruner == nil {
		return nil, ErrRemoveUnavailable
	}
	bucket, err := s.loadScan(ctx, t)
	if err != nil {
		return nil, err
	}

	emails := bucket.Emails(s.threshold)
	updated, err := s.pruner.PruneEmails(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("prune distribution lists: %w", err)
	}
	s.logger.Info("removed stale users from distribution lists", zap.Int("emails", len(emails)), zap.Int("updated", updated))
	return &RemoveResult{Trigger: t, Updated: updated}, nil
}

func (s *Service) loadScan(ctx context.Context, t Trigger) (classifier.StaleBucket, error) {
	if t.LdapScanResults == "" {
		return nil, ErrMissingScanResults
	}
	raw, err := s.store.Get(ctx, t.LdapScanResults)
	if err != nil {
		return nil, fmt.Errorf("load scan results %s: %w", t.LdapScanResults, err)
	}
	return artifacts.Decode(raw)
}
