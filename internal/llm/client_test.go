// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mnemo-dev/mnemo/internal/llm"
	"github.com/mnemo-dev/mnemo/internal/store/memory"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatServer replies with scripted assistant messages, in order, and records
// every request body it sees.
func chatServer(t *testing.T, replies ...string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var requests []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)

		idx := len(requests) - 1
		require.Less(t, idx, len(replies), "more requests than scripted replies")

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": replies[idx]},
				},
			},
			"usage": map[string]any{"prompt_tokens": 100, "completion_tokens": 20, "total_tokens": 120},
		}))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newTestClient(t *testing.T, srv *httptest.Server, ledger *llm.Ledger) *llm.Client {
	t.Helper()
	client, err := llm.NewClient(llm.Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gpt-4o-mini",
	}, ledger, nil)
	require.NoError(t, err)
	return client
}

func TestSendRecordsUsage(t *testing.T) {
	srv, _ := chatServer(t, "hello there")
	docs := memory.NewDocumentStore()
	ledger := llm.NewLedger(docs)
	client := newTestClient(t, srv, ledger)

	reply, err := client.Send(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "say hello"},
	}, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)

	entries, err := docs.Find(context.Background(), llm.LedgerNamespace, map[string]any{"group": "conv-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gpt-4o-mini", entries[0].Fields["model"])
	assert.EqualValues(t, 100, entries[0].Fields["input"])
	assert.EqualValues(t, 20, entries[0].Fields["output"])

	wantCost, known := llm.Cost("gpt-4o-mini", 100, 20)
	require.True(t, known)
	assert.InDelta(t, wantCost, entries[0].Fields["cost"], 1e-12)
}

func TestSendValidAcceptsFirstValidReply(t *testing.T) {
	srv, requests := chatServer(t, "yes")
	client := newTestClient(t, srv, nil)

	value, err := client.SendValid(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "is the sky blue?"},
	}, llm.TargetBool(), "")
	require.NoError(t, err)
	assert.Equal(t, true, value)
	assert.Len(t, *requests, 1)
}

func TestSendValidRetriesWithReason(t *testing.T) {
	srv, requests := chatServer(t, "it depends on the weather", "yes")
	client := newTestClient(t, srv, nil)

	value, err := client.SendValid(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "is the sky blue?"},
	}, llm.TargetBool(), "")
	require.NoError(t, err)
	assert.Equal(t, true, value)
	require.Len(t, *requests, 2)

	// The retry must carry the rejected reply and the rejection reason.
	messages := (*requests)[1]["messages"].([]any)
	require.Len(t, messages, 3)
	rejected := messages[1].(map[string]any)
	assert.Equal(t, "assistant", rejected["role"])
	assert.Equal(t, "it depends on the weather", rejected["content"])
	correction := messages[2].(map[string]any)
	assert.Equal(t, "user", correction["role"])
	assert.Contains(t, correction["content"], "yes or no")
}

func TestSendValidExhaustsAttempts(t *testing.T) {
	srv, requests := chatServer(t, "maybe", "perhaps", "who knows")
	client := newTestClient(t, srv, nil)

	_, err := client.SendValid(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "is the sky blue?"},
	}, llm.TargetBool(), "")
	require.Error(t, err)
	assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeLLMValidateExhausted))
	assert.Len(t, *requests, 3)
}

func TestSendValidNoneIsNil(t *testing.T) {
	srv, _ := chatServer(t, "None.")
	client := newTestClient(t, srv, nil)

	value, err := client.SendValid(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "extract the date, or none"},
	}, llm.TargetJSON(), "")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestSendUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv, nil)

	_, err := client.Send(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
	}, "")
	require.Error(t, err)
	assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeLLMUpstreamFailure))
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := llm.NewClient(llm.Config{}, nil, nil)
	require.Error(t, err)
}
