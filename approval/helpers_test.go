package approval_test

import (
	"encoding/json"
	"net/url"
	"strconv"
	"testing"
	"time"

	"f0oster/adsweep/approval"
	"f0oster/adsweep/artifacts"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"
)

var reportTime = time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

func sampleReport() approval.Report {
	return approval.Report{
		TaskToken: "task-token-1",
		Totals:    map[string]int{"120": 2},
		Artifacts: []artifacts.Uploaded{
			{FileName: "user_expiration_table_2024_02_03_T040506.000001.json", URL: "https://s3.test/table", RawScanResults: true},
			{FileName: "user_expiration_2024_02_03_T040506.000001.html", URL: "https://s3.test/html"},
		},
		GeneratedAt: reportTime,
	}
}

// interactionPayload builds the JSON the chat service sends when actionID is clicked
// on a message made of blocks.
func interactionPayload(t *testing.T, actionID string, blocks []slack.Block) []byte {
	t.Helper()

	value, err := json.Marshal(approval.ButtonValue{
		TaskToken:   "task-token-1",
		ArtifactKey: "user_expiration_table_2024_02_03_T040506.000001.json",
	})
	require.NoError(t, err)

	blocksJSON, err := json.Marshal(slack.Blocks{BlockSet: blocks})
	require.NoError(t, err)

	payload := map[string]any{
		"type":    "block_actions",
		"user":    map[string]any{"id": "U123", "name": "jdoe"},
		"channel": map[string]any{"id": "C999", "name": "ops"},
		"container": map[string]any{
			"type":       "message",
			"message_ts": "1700000000.000100",
			"channel_id": "C999",
		},
		"message": map[string]any{
			"type":   "message",
			"ts":     "1700000000.000100",
			"text":   approval.HeaderText,
			"blocks": json.RawMessage(blocksJSON),
		},
		"actions": []map[string]any{{
			"action_id": actionID,
			"block_id":  approval.BlockIDActions,
			"type":      "button",
			"value":     string(value),
			"action_ts": "1700000001.000200",
		}},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

func formBody(payload []byte) []byte {
	return []byte("payload=" + url.QueryEscape(string(payload)))
}

func signed(body []byte, secret string, at time.Time) (map[string][]string, []byte) {
	ts := strconv.FormatInt(at.Unix(), 10)
	return map[string][]string{
		approval.HeaderTimestamp: {ts},
		approval.HeaderSignature: {approval.Sign(secret, ts, body)},
	}, body
}

func blockTypes(blocks []slack.Block) []slack.MessageBlockType {
	types := make([]slack.MessageBlockType, 0, len(blocks))
	for _, b := range blocks {
		types = append(types, b.BlockType())
	}
	return types
}
