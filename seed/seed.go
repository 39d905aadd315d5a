package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"f0oster/adsweep/activedirectory"
	"f0oster/adsweep/classifier"
	"f0oster/adsweep/database"
	"f0oster/adsweep/retry"

	"go.uber.org/zap"
)

const (
	// SeedDisabledControlCode marks a disabled account whose password never expires.
	SeedDisabledControlCode = "66050"
	disabledMarkerLayout    = "2006-01-02-T1504"
	seedActor               = "ldapmaintbot"
)

// Directory is a writable directory session.
type Directory interface {
	Connect(ctx context.Context) error
	AddEntry(ctx context.Context, dn string, attrs map[string][]string) error
	ReplaceAttribute(ctx context.Context, dn, attr, value string) error
	BaseDN() string
	Close() error
}

// ListStore keeps the distribution lists that remove prunes.
type ListStore interface {
	PutDistributionList(ctx context.Context, rec database.DistributionListRecord) error
}

// Result tallies a seeding run.
type Result struct {
	Created           int
	Existing          int
	Disabled          int
	Labelled          int
	DistributionLists int
}

type Seeder struct {
	newDirectory func() Directory
	lists        ListStore
	rng          *rand.Rand
	now          func() time.Time
	policy       retry.Policy
	logger       *zap.Logger
}

type Option func(*Seeder)

func WithRand(r *rand.Rand) Option {
	return func(s *Seeder) { s.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Seeder) { s.now = now }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Seeder) { s.policy = p }
}

// WithListStore enables writing the user list's distribution lists.
func WithListStore(store ListStore) Option {
	return func(s *Seeder) { s.lists = store }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Seeder) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(newDirectory func() Directory, opts ...Option) *Seeder {
	s := &Seeder{
		newDirectory: newDirectory,
		rng:          rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		now:          time.Now,
		policy:       retry.Directory(activedirectory.IsNoSuchObject),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run creates every account in users, then disables disableCount and labels
// labelCount randomly chosen standard accounts with the test sentinel.
func (s *Seeder) Run(ctx context.Context, users UserList, disableCount, labelCount int) (Result, error) {
	var res Result

	dir := s.newDirectory()
	if err := dir.Connect(ctx); err != nil {
		return res, err
	}
	defer func() {
		if err := dir.Close(); err != nil {
			s.logger.Warn("failed to unbind directory session", zap.Error(err))
		}
	}()
	base := dir.BaseDN()

	all := users.all()
	s.logger.Info("seeding test users", zap.Int("count", len(all)))
	for _, u := range all {
		err := dir.AddEntry(ctx, u.DN(base), u.Attributes())
		switch {
		case errors.Is(err, activedirectory.ErrAlreadyExists):
			res.Existing++
		case err != nil:
			return res, fmt.Errorf("create %s: %w", u.Sam, err)
		default:
			res.Created++
		}
	}
	s.logger.Info("created test users", zap.Int("created", res.Created), zap.Int("existing", res.Existing))

	marker := fmt.Sprintf("***Disabled %s by %s***", s.now().Format(disabledMarkerLayout), seedActor)
	for _, u := range s.sample(users.Standard, disableCount) {
		dn := u.DN(base)
		if err := s.write(ctx, dir, dn, "userAccountControl", SeedDisabledControlCode); err != nil {
			return res, err
		}
		if err := s.write(ctx, dir, dn, "description", marker); err != nil {
			return res, err
		}
		res.Disabled++
	}

	for _, u := range s.sample(users.Standard, labelCount) {
		if err := s.write(ctx, dir, u.DN(base), "description", classifier.TestSentinel); err != nil {
			return res, err
		}
		res.Labelled++
	}

	if err := s.putDistributionLists(ctx, users, &res); err != nil {
		return res, err
	}

	s.logger.Info("seeding finished", zap.Int("disabled", res.Disabled), zap.Int("labelled", res.Labelled),
		zap.Int("distribution_lists", res.DistributionLists))
	return res, nil
}

func (s *Seeder) putDistributionLists(ctx context.Context, users UserList, res *Result) error {
	if len(users.DistributionLists) == 0 {
		return nil
	}
	if s.lists == nil {
		s.logger.Warn("no list store configured, skipping distribution lists", zap.Int("count", len(users.DistributionLists)))
		return nil
	}
	for _, dl := range users.DistributionLists {
		distros, err := users.resolve(dl)
		if err != nil {
			return err
		}
		rec := database.DistributionListRecord{AccountName: dl.Account, EmailDistros: database.Distros(distros)}
		if err := s.lists.PutDistributionList(ctx, rec); err != nil {
			return fmt.Errorf("store distribution lists for %s: %w", dl.Account, err)
		}
		res.DistributionLists++
	}
	return nil
}

func (s *Seeder) write(ctx context.Context, dir Directory, dn, attr, value string) error {
	err := retry.Do(ctx, func(ctx context.Context) error {
		return dir.ReplaceAttribute(ctx, dn, attr, value)
	}, s.policy)
	if err != nil {
		return fmt.Errorf("set %s on %s: %w", attr, dn, err)
	}
	return nil
}

// sample picks up to n distinct users.
func (s *Seeder) sample(users []TestUser, n int) []TestUser {
	if n > len(users) {
		n = len(users)
	}
	if n <= 0 {
		return nil
	}
	picked := make([]TestUser, 0, n)
	for _, i := range s.rng.Perm(len(users))[:n] {
		picked = append(picked, users[i])
	}
	return picked
}
