package seed_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"f0oster/adsweep/activedirectory"
	"f0oster/adsweep/classifier"
	"f0oster/adsweep/database"
	"f0oster/adsweep/retry"
	"f0oster/adsweep/seed"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersYAML = `
standard:
  - {name: Ada, surname: Lovelace, sam: alovelace}
  - {name: Alan, surname: Turing, sam: aturing}
  - {name: Grace, surname: Hopper, sam: ghopper}
  - {name: Edsger, surname: Dijkstra, sam: edijkstra}
special:
  - {name: Svc, surname: Backup, sam: svc_backup}
`

type fakeDirectory struct {
	existing map[string]bool
	added    []string
	writes   map[string]map[string]string
	missing  int
	closed   bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{existing: map[string]bool{}, writes: map[string]map[string]string{}}
}

func (f *fakeDirectory) Connect(ctx context.Context) error { return nil }
func (f *fakeDirectory) BaseDN() string                    { return "DC=example,DC=com" }

func (f *fakeDirectory) AddEntry(ctx context.Context, dn string, attrs map[string][]string) error {
	if f.existing[dn] {
		return activedirectory.ErrAlreadyExists
	}
	f.added = append(f.added, dn)
	return nil
}

func (f *fakeDirectory) ReplaceAttribute(ctx context.Context, dn, attr, value string) error {
	if f.missing > 0 {
		f.missing--
		return ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
	}
	if f.writes[dn] == nil {
		f.writes[dn] = map[string]string{}
	}
	f.writes[dn][attr] = value
	return nil
}

func (f *fakeDirectory) Close() error {
	f.closed = true
	return nil
}

func TestParseUsers(t *testing.T) {
	list, err := seed.ParseUsers([]byte(usersYAML))
	require.NoError(t, err)
	assert.Len(t, list.Standard, 4)
	require.Len(t, list.Special, 1)

	u := list.Standard[0]
	assert.Equal(t, "adalovelace", u.FullName())
	assert.Equal(t, "cn=adalovelace,CN=Users,DC=example,DC=com", u.DN("DC=example,DC=com"))
	attrs := u.Attributes()
	assert.Equal(t, []string{"adalovelace@email.com"}, attrs["mail"])
	assert.Equal(t, []string{"alovelace"}, attrs["sAMAccountName"])
	assert.Equal(t, []string{"512"}, attrs["userAccountControl"])
}

func TestParseUsers_JSON(t *testing.T) {
	list, err := seed.ParseUsers([]byte(`{"standard":[{"name":"A","surname":"B","sam":"ab"}],"special":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "ab", list.Standard[0].Sam)
}

func TestParseUsers_Incomplete(t *testing.T) {
	_, err := seed.ParseUsers([]byte(`standard: [{name: A}]`))
	assert.Error(t, err)
}

func TestLoadUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(usersYAML), 0o600))

	list, err := seed.LoadUsers(path)
	require.NoError(t, err)
	assert.Len(t, list.Standard, 4)
}

func TestRun(t *testing.T) {
	list, err := seed.ParseUsers([]byte(usersYAML))
	require.NoError(t, err)

	dir := newFakeDirectory()
	dir.existing["cn=alanturing,CN=Users,DC=example,DC=com"] = true
	dir.missing = 1

	var sleeps []time.Duration
	policy := retry.Directory(activedirectory.IsNoSuchObject)
	policy.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	s := seed.New(func() seed.Directory { return dir },
		seed.WithRand(rand.New(rand.NewPCG(1, 2))),
		seed.WithClock(func() time.Time { return time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC) }),
		seed.WithRetryPolicy(policy),
	)

	res, err := s.Run(context.Background(), list, 2, 10)
	require.NoError(t, err)

	assert.Equal(t, seed.Result{Created: 4, Existing: 1, Disabled: 2, Labelled: 4}, res)
	assert.Len(t, dir.added, 4)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeps)
	assert.True(t, dir.closed)

	disabled := 0
	for dn, attrs := range dir.writes {
		assert.False(t, strings.Contains(dn, "svcbackup"), "special users are never modified")
		assert.Equal(t, classifier.TestSentinel, attrs["description"])
		if attrs["userAccountControl"] == seed.SeedDisabledControlCode {
			disabled++
		}
	}
	assert.Equal(t, 2, disabled)
	assert.Len(t, dir.writes, 4)
}

const listsYAML = `
standard:
  - {name: Ada, surname: Lovelace, sam: alovelace}
  - {name: Alan, surname: Turing, sam: aturing}
special:
  - {name: Svc, surname: Backup, sam: svc_backup}
distribution_lists:
  - account: platform
    lists:
      oncall: [alovelace, aturing]
      backups: [svc_backup]
`

type fakeListStore struct {
	records []database.DistributionListRecord
	err     error
}

func (f *fakeListStore) PutDistributionList(ctx context.Context, rec database.DistributionListRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func TestRun_StoresDistributionLists(t *testing.T) {
	list, err := seed.ParseUsers([]byte(listsYAML))
	require.NoError(t, err)

	store := &fakeListStore{}
	s := seed.New(func() seed.Directory { return newFakeDirectory() }, seed.WithListStore(store))

	res, err := s.Run(context.Background(), list, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DistributionLists)
	assert.Equal(t, []database.DistributionListRecord{{
		AccountName: "platform",
		EmailDistros: database.Distros{
			"oncall":  {"adalovelace@email.com", "alanturing@email.com"},
			"backups": {"svcbackup@email.com"},
		},
	}}, store.records)
}

func TestRun_DistributionListsSkippedWithoutStore(t *testing.T) {
	list, err := seed.ParseUsers([]byte(listsYAML))
	require.NoError(t, err)

	res, err := seed.New(func() seed.Directory { return newFakeDirectory() }).Run(context.Background(), list, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.DistributionLists)
	assert.Equal(t, 3, res.Created)
}

func TestRun_DistributionListStoreFailure(t *testing.T) {
	list, err := seed.ParseUsers([]byte(listsYAML))
	require.NoError(t, err)

	boom := errors.New("connection reset")
	s := seed.New(func() seed.Directory { return newFakeDirectory() }, seed.WithListStore(&fakeListStore{err: boom}))

	_, err = s.Run(context.Background(), list, 0, 0)
	assert.ErrorIs(t, err, boom)
}

func TestParseUsers_UnknownListMember(t *testing.T) {
	_, err := seed.ParseUsers([]byte(`
standard: [{name: A, surname: B, sam: ab}]
distribution_lists:
  - account: platform
    lists: {oncall: [nobody]}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown user "nobody"`)

	_, err = seed.ParseUsers([]byte(`
standard: [{name: A, surname: B, sam: ab}]
distribution_lists: [{lists: {oncall: [ab]}}]
`))
	assert.Error(t, err)
}
