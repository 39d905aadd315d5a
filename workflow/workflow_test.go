package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"f0oster/adsweep/activedirectory"
	"f0oster/adsweep/activedirectory/transformers"
	"f0oster/adsweep/approval"
	"f0oster/adsweep/classifier"
	"f0oster/adsweep/config"
	"f0oster/adsweep/storage"
	"f0oster/adsweep/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func entry(sam string, daysAgo int) activedirectory.Entry {
	dn := "CN=" + sam + ",CN=Users,DC=example,DC=com"
	pwd := strconv.FormatInt(transformers.TimeToFiletime(now.Add(-time.Duration(daysAgo)*24*time.Hour)), 10)
	return activedirectory.NewEntry(dn, map[string][]string{
		"cn":                 {sam},
		"mail":               {sam + "@example.com"},
		"distinguishedName":  {dn},
		"description":        {"staff"},
		"pwdLastSet":         {pwd},
		"userAccountControl": {"512"},
		"sAMAccountName":     {sam},
	})
}

type fakeDirectory struct {
	entries    []activedirectory.Entry
	connectErr error
	closed     bool
}

func (f *fakeDirectory) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeDirectory) FetchUsers(ctx context.Context) ([]activedirectory.Entry, error) {
	return f.entries, nil
}

func (f *fakeDirectory) Close() error {
	f.closed = true
	return nil
}

type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	m.objects[key] = body
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (m *memStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://objects.example.com/" + key + "?ttl=" + ttl.String(), nil
}

type fakeDisabler struct {
	dns []string
}

func (f *fakeDisabler) Disable(ctx context.Context, dns []string) (int, error) {
	f.dns = dns
	return len(dns), nil
}

type fakePruner struct {
	emails []string
}

func (f *fakePruner) PruneEmails(ctx context.Context, emails []string) (int, error) {
	f.emails = emails
	return 3, nil
}

func newService(dir *fakeDirectory, store *memStore, opts ...workflow.Option) *workflow.Service {
	policy := classifier.Policy{Thresholds: []int{120}, Now: func() time.Time { return now }}
	return workflow.NewService(policy, func() workflow.Directory { return dir }, store, opts...)
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want workflow.Trigger
	}{
		{"plain", `{"action":"query"}`, workflow.Trigger{Action: workflow.ActionQuery}},
		{"with scan", `{"action":"disable","ldap_scan_results":"k.json"}`,
			workflow.Trigger{Action: workflow.ActionDisable, LdapScanResults: "k.json"}},
		{"payload envelope", `{"Payload":{"action":"remove","ldap_scan_results":"k.json"}}`,
			workflow.Trigger{Action: workflow.ActionRemove, LdapScanResults: "k.json"}},
		{"input envelope", `{"Input":{"action":"query"}}`, workflow.Trigger{Action: workflow.ActionQuery}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := workflow.ParseTrigger([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTrigger_Rejects(t *testing.T) {
	for _, in := range []string{`not json`, `{}`, `{"action":"reboot"}`, `{"action":3}`} {
		_, err := workflow.ParseTrigger([]byte(in))
		assert.ErrorIs(t, err, workflow.ErrMalformedTrigger, in)
	}
}

func TestQuery(t *testing.T) {
	dir := &fakeDirectory{entries: []activedirectory.Entry{entry("old", 130), entry("new", 10)}}
	store := newMemStore()
	svc := newService(dir, store)

	out, err := svc.Dispatch(context.Background(), workflow.Trigger{Action: workflow.ActionQuery})
	require.NoError(t, err)
	result, ok := out.(*workflow.QueryResult)
	require.True(t, ok)

	assert.Equal(t, map[string]int{"120": 1}, result.QueryResults.Totals)
	require.Len(t, result.Artifacts, 2)
	assert.Equal(t, "user_expiration_2024_05_01_T090000.000000.html", result.Artifacts[0].FileName)
	assert.False(t, result.Artifacts[0].RawScanResults)
	assert.Equal(t, "user_expiration_table_2024_05_01_T090000.000000.json", result.Artifacts[1].FileName)
	assert.True(t, result.Artifacts[1].RawScanResults)
	assert.Contains(t, result.Artifacts[1].URL, "ttl=1h0m0s")
	assert.True(t, dir.closed)

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query_results":{"totals":{"120":1}},"artifacts":[
		{"file_name":"user_expiration_2024_05_01_T090000.000000.html","url":"https://objects.example.com/user_expiration_2024_05_01_T090000.000000.html?ttl=1h0m0s","raw_scan_results":false},
		{"file_name":"user_expiration_table_2024_05_01_T090000.000000.json","url":"https://objects.example.com/user_expiration_table_2024_05_01_T090000.000000.json?ttl=1h0m0s","raw_scan_results":true}]}`, string(raw))
}

func TestQuery_ConnectionFailure(t *testing.T) {
	dir := &fakeDirectory{connectErr: activedirectory.ErrConnection}
	store := newMemStore()

	_, err := newService(dir, store).Query(context.Background())
	assert.ErrorIs(t, err, activedirectory.ErrConnection)
	assert.Empty(t, store.objects)
}

func scanStored(t *testing.T, store *memStore) string {
	t.Helper()
	dir := &fakeDirectory{entries: []activedirectory.Entry{entry("old", 130), entry("older", 400), entry("new", 10)}}
	result, err := newService(dir, store).Query(context.Background())
	require.NoError(t, err)
	return result.Artifacts[1].FileName
}

func TestDisable(t *testing.T) {
	store := newMemStore()
	key := scanStored(t, store)
	disabler := &fakeDisabler{}
	svc := newService(&fakeDirectory{}, store, workflow.WithDisabler(disabler))

	trigger := workflow.Trigger{Action: workflow.ActionDisable, LdapScanResults: key}
	out, err := svc.Dispatch(context.Background(), trigger)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"CN=old,CN=Users,DC=example,DC=com",
		"CN=older,CN=Users,DC=example,DC=com",
	}, disabler.dns)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"disable","ldap_scan_results":"`+key+`","disabled":2}`, string(raw))
}

func TestDisable_AscendingThresholdsIncludeStalestAccounts(t *testing.T) {
	t.Setenv("DAYS_SINCE_PWDLASTSET", "60,120")
	cfg, err := config.LoadEnvConfig("")
	require.NoError(t, err)
	policy := cfg.Policy()
	policy.Now = func() time.Time { return now }

	dir := &fakeDirectory{entries: []activedirectory.Entry{entry("ancient", 400), entry("mid", 70), entry("new", 10)}}
	store := newMemStore()
	disabler := &fakeDisabler{}
	pruner := &fakePruner{}
	svc := workflow.NewService(policy, func() workflow.Directory { return dir }, store,
		workflow.WithDisabler(disabler), workflow.WithPruner(pruner))

	scan, err := svc.Query(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"60": 1, "120": 1}, scan.QueryResults.Totals)
	key := scan.Artifacts[1].FileName

	out, err := svc.Disable(context.Background(), workflow.Trigger{Action: workflow.ActionDisable, LdapScanResults: key})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Disabled)
	assert.Equal(t, []string{
		"CN=mid,CN=Users,DC=example,DC=com",
		"CN=ancient,CN=Users,DC=example,DC=com",
	}, disabler.dns)

	_, err = svc.Remove(context.Background(), workflow.Trigger{Action: workflow.ActionRemove, LdapScanResults: key})
	require.NoError(t, err)
	assert.Equal(t, []string{"mid@example.com", "ancient@example.com"}, pruner.emails)
}

func TestDisable_ThresholdOptionSkipsSmallerBuckets(t *testing.T) {
	policy := classifier.Policy{Thresholds: []int{60, 120}, Now: func() time.Time { return now }}
	dir := &fakeDirectory{entries: []activedirectory.Entry{entry("ancient", 400), entry("mid", 70)}}
	store := newMemStore()
	disabler := &fakeDisabler{}
	svc := workflow.NewService(policy, func() workflow.Directory { return dir }, store,
		workflow.WithDisabler(disabler), workflow.WithDisableThreshold(120))

	scan, err := svc.Query(context.Background())
	require.NoError(t, err)

	_, err = svc.Disable(context.Background(), workflow.Trigger{Action: workflow.ActionDisable, LdapScanResults: scan.Artifacts[1].FileName})
	require.NoError(t, err)
	assert.Equal(t, []string{"CN=ancient,CN=Users,DC=example,DC=com"}, disabler.dns)
}

func TestDisable_MissingScan(t *testing.T) {
	svc := newService(&fakeDirectory{}, newMemStore(), workflow.WithDisabler(&fakeDisabler{}))

	_, err := svc.Dispatch(context.Background(), workflow.Trigger{Action: workflow.ActionDisable})
	assert.ErrorIs(t, err, workflow.ErrMissingScanResults)

	_, err = svc.Dispatch(context.Background(), workflow.Trigger{Action: workflow.ActionDisable, LdapScanResults: "gone.json"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRemove(t *testing.T) {
	store := newMemStore()
	key := scanStored(t, store)
	pruner := &fakePruner{}
	svc := newService(&fakeDirectory{}, store, workflow.WithPruner(pruner))

	out, err := svc.Dispatch(context.Background(), workflow.Trigger{Action: workflow.ActionRemove, LdapScanResults: key})
	require.NoError(t, err)
	assert.Equal(t, []string{"old@example.com", "older@example.com"}, pruner.emails)
	assert.Equal(t, 3, out.(*workflow.RemoveResult).Updated)
}

func TestRemove_Unconfigured(t *testing.T) {
	svc := newService(&fakeDirectory{}, newMemStore())

	_, err := svc.Dispatch(context.Background(), workflow.Trigger{Action: workflow.ActionRemove, LdapScanResults: "k"})
	assert.ErrorIs(t, err, workflow.ErrRemoveUnavailable)
}

func TestDispatch_UnknownAction(t *testing.T) {
	svc := newService(&fakeDirectory{}, newMemStore())

	_, err := svc.Dispatch(context.Background(), workflow.Trigger{})
	assert.ErrorIs(t, err, workflow.ErrUnknownAction)
}

type fakeReporter struct {
	posted  []approval.Report
	updates [][2]string
	err     error
}

func (f *fakeReporter) PostReport(ctx context.Context, r approval.Report) (string, string, error) {
	f.posted = append(f.posted, r)
	return "C1", "1.2", f.err
}

func (f *fakeReporter) UpdateReport(ctx context.Context, key, status string) error {
	f.updates = append(f.updates, [2]string{key, status})
	return f.err
}

func TestNotify(t *testing.T) {
	t.Run("posts a new request", func(t *testing.T) {
		ev, err := workflow.ParseNotifyEvent([]byte(`{"token":"tok","event":{"Payload":{
			"query_results":{"totals":{"120":4}},
			"artifacts":[{"file_name":"a.json","url":"https://x/a.json","raw_scan_results":true}]}}}`))
		require.NoError(t, err)

		r := &fakeReporter{}
		require.NoError(t, workflow.Notify(context.Background(), r, ev, now, time.Hour))
		require.Len(t, r.posted, 1)
		assert.Equal(t, "tok", r.posted[0].TaskToken)
		assert.Equal(t, map[string]int{"120": 4}, r.posted[0].Totals)
		assert.Equal(t, "a.json", r.posted[0].Artifacts[0].FileName)
		assert.Equal(t, now, r.posted[0].GeneratedAt)
	})

	t.Run("updates an earlier request", func(t *testing.T) {
		ev, err := workflow.ParseNotifyEvent([]byte(`{"message_to_slack":"done","slack_message_key":"slack-response_1.json"}`))
		require.NoError(t, err)

		r := &fakeReporter{}
		require.NoError(t, workflow.Notify(context.Background(), r, ev, now, time.Hour))
		assert.Empty(t, r.posted)
		assert.Equal(t, [][2]string{{"slack-response_1.json", "done"}}, r.updates)
	})

	t.Run("requires a token", func(t *testing.T) {
		err := workflow.Notify(context.Background(), &fakeReporter{}, workflow.NotifyEvent{}, now, time.Hour)
		assert.ErrorIs(t, err, workflow.ErrMissingTaskToken)
	})

	t.Run("surfaces reporter errors", func(t *testing.T) {
		boom := errors.New("boom")
		ev := workflow.NotifyEvent{Token: "tok"}
		err := workflow.Notify(context.Background(), &fakeReporter{err: boom}, ev, now, time.Hour)
		assert.ErrorIs(t, err, boom)
	})
}
