package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"f0oster/adsweep/approval"
	"f0oster/adsweep/chatbot"
	"f0oster/adsweep/web"
	"f0oster/adsweep/workflow"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "8f742231b10e8888abcd99yyyzzz85a5"

type fakeWebhooks struct {
	calls int
	err   error
}

func (f *fakeWebhooks) HandleWebhook(ctx context.Context, header http.Header, body []byte) (*approval.Resolution, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &approval.Resolution{Action: approval.Approve, ArtifactKey: "scan.json", SlackMessageKey: "slack-response_1.json", User: "jdoe"}, nil
}

type fakeBot struct {
	events  [][]byte
	command slack.SlashCommand
	resp    *chatbot.EventResponse
	err     error
}

func (f *fakeBot) HandleEvent(ctx context.Context, body []byte) (*chatbot.EventResponse, error) {
	f.events = append(f.events, body)
	return f.resp, f.err
}

func (f *fakeBot) HandleSlashCommand(ctx context.Context, cmd slack.SlashCommand) *slack.Msg {
	f.command = cmd
	return &slack.Msg{ResponseType: slack.ResponseTypeEphemeral, Text: "Hi <@" + cmd.UserID + "> :wave:"}
}

type fakeDispatcher struct {
	triggers []workflow.Trigger
	result   any
	err      error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, t workflow.Trigger) (any, error) {
	f.triggers = append(f.triggers, t)
	return f.result, f.err
}

var now = time.Unix(1700000000, 0)

func newServer(opts web.Options) *httptest.Server {
	opts.SigningSecret = secret
	opts.Now = func() time.Time { return now }
	srv := httptest.NewServer(web.NewServer(opts).Handler())
	return srv
}

func signedRequest(t *testing.T, url, contentType string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	ts := strconv.FormatInt(now.Unix(), 10)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(approval.HeaderTimestamp, ts)
	req.Header.Set(approval.HeaderSignature, approval.Sign(secret, ts, body))
	return req
}

func do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealthz(t *testing.T) {
	srv := newServer(web.Options{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	resp, body := do(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRequestIDReused(t *testing.T) {
	srv := newServer(web.Options{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, _ := do(t, req)
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(web.Options{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	do(t, req)

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	resp, body := do(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `adsweep_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

func TestActions(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"resolved", nil, http.StatusOK},
		{"bad signature", approval.ErrInvalidSignature, http.StatusUnauthorized},
		{"missing signature", approval.ErrMissingSignature, http.StatusUnauthorized},
		{"stale", approval.ErrStaleRequest, http.StatusUnauthorized},
		{"malformed", fmt.Errorf("%w: no actions", approval.ErrMalformedPayload), http.StatusBadRequest},
		{"resume failed", errors.New("task does not exist"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooks := &fakeWebhooks{err: tt.err}
			srv := newServer(web.Options{Webhooks: hooks})
			defer srv.Close()

			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/slack/actions", bytes.NewReader([]byte("payload=%7B%7D")))
			resp, body := do(t, req)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, 1, hooks.calls)
			if tt.err == nil {
				assert.JSONEq(t, `{"action":"approve","artifact_key":"scan.json","slack_message_key":"slack-response_1.json","user":"jdoe"}`, string(body))
			}
		})
	}
}

func TestEvents_RequiresSignature(t *testing.T) {
	bot := &fakeBot{}
	srv := newServer(web.Options{Bot: bot})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/slack/events", bytes.NewReader([]byte(`{"type":"url_verification"}`)))
	resp, _ := do(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, bot.events)
}

func TestEvents_Challenge(t *testing.T) {
	bot := &fakeBot{resp: &chatbot.EventResponse{Challenge: "abc"}}
	srv := newServer(web.Options{Bot: bot})
	defer srv.Close()

	body := []byte(`{"type":"url_verification","challenge":"abc"}`)
	resp, out := do(t, signedRequest(t, srv.URL+"/slack/events", "application/json", body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"challenge":"abc"}`, string(out))
	require.Len(t, bot.events, 1)
	assert.Equal(t, body, bot.events[0])
}

func TestEvents_Malformed(t *testing.T) {
	bot := &fakeBot{err: chatbot.ErrMalformedEvent}
	srv := newServer(web.Options{Bot: bot})
	defer srv.Close()

	resp, _ := do(t, signedRequest(t, srv.URL+"/slack/events", "application/json", []byte(`{}`)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvents_SlashCommand(t *testing.T) {
	bot := &fakeBot{}
	srv := newServer(web.Options{Bot: bot})
	defer srv.Close()

	form := url.Values{"command": {"/ldap"}, "text": {"hi"}, "user_id": {"U3"}, "channel_id": {"C1"}}
	resp, out := do(t, signedRequest(t, srv.URL+"/slack/events", "application/x-www-form-urlencoded", []byte(form.Encode())))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "U3", bot.command.UserID)
	assert.Equal(t, "hi", bot.command.Text)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(out, &msg))
	assert.Equal(t, "ephemeral", msg["response_type"])
	assert.Equal(t, "Hi <@U3> :wave:", msg["text"])
}

func TestInvoke(t *testing.T) {
	dispatcher := &fakeDispatcher{result: map[string]int{"disabled": 2}}
	srv := newServer(web.Options{Dispatcher: dispatcher})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/invoke",
		bytes.NewReader([]byte(`{"Input":{"action":"disable","ldap_scan_results":"scan.json"}}`)))
	resp, body := do(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"disabled":2}`, string(body))
	assert.Equal(t, []workflow.Trigger{{Action: workflow.ActionDisable, LdapScanResults: "scan.json"}}, dispatcher.triggers)
}

func TestInvoke_Errors(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	srv := newServer(web.Options{Dispatcher: dispatcher})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/invoke", bytes.NewReader([]byte(`{"action":"reboot"}`)))
	resp, _ := do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, dispatcher.triggers)

	dispatcher.err = errors.New("ldap down")
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/invoke", bytes.NewReader([]byte(`{"action":"query"}`)))
	resp, _ = do(t, req)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestUnconfiguredRoutes(t *testing.T) {
	srv := newServer(web.Options{})
	defer srv.Close()

	for _, path := range []string{"/slack/actions", "/slack/events", "/invoke"} {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+path, nil)
		resp, _ := do(t, req)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestRateLimit(t *testing.T) {
	dispatcher := &fakeDispatcher{result: map[string]string{}}
	srv := newServer(web.Options{
		Dispatcher: dispatcher,
		RateLimit:  web.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1},
	})
	defer srv.Close()

	send := func() *http.Response {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/invoke", bytes.NewReader([]byte(`{"action":"query"}`)))
		resp, _ := do(t, req)
		return resp
	}

	assert.Equal(t, http.StatusOK, send().StatusCode)
	limited := send()
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.NotEmpty(t, limited.Header.Get("Retry-After"))
	assert.Len(t, dispatcher.triggers, 1)
}
