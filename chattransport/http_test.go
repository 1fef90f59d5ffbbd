package chattransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchMessagesParsesWireShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat-messages", r.URL.Path)
		require.Equal(t, "chat-1", r.URL.Query().Get("chatId"))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"messages": []map[string]any{
				{
					"id": "m1", "senderUsername": "nova_bot", "text": "hi",
					"date": "2025-11-26T08:36:07Z",
					"reactions": []map[string]any{
						{"emoji": "🔥", "count": 1, "users": []map[string]any{{"username": "nova_bot"}}},
					},
				},
			},
		})
	}))
	defer srv.Close()

	tr := New(srv.URL)
	msgs, err := tr.FetchMessages(context.Background(), "+1555", "chat-1", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "m1", msgs[0].MessageID)
	require.Equal(t, "hi", msgs[0].Text)
	require.Len(t, msgs[0].Reactions, 1)
	require.Equal(t, "🔥", msgs[0].Reactions[0].Emoji)
}

func TestFetchMessagesSurfacesTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "upstream down"})
	}))
	defer srv.Close()

	tr := New(srv.URL)
	_, err := tr.FetchMessages(context.Background(), "+1555", "chat-1", 100)
	require.Error(t, err)
	require.Contains(t, err.Error(), "upstream down")
}

func TestSendMessagePostsExpectedBody(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages/send", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&seen)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	tr := New(srv.URL)
	err := tr.SendMessage(context.Background(), "+1555", "chat-1", "hello", "2025-11-26T08:36:07.000Z")
	require.NoError(t, err)
	require.Equal(t, "+1555", seen["fromPhone"])
	require.Equal(t, "2025-11-26T08:36:07.000Z", seen["replyToTimestamp"])
	content := seen["content"].(map[string]any)
	require.Equal(t, "hello", content["value"])
}

func TestShowTypingSendsMillisecondDuration(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&seen)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	tr := New(srv.URL)
	err := tr.ShowTyping(context.Background(), "+1555", "chat-1", 3*time.Second)
	require.NoError(t, err)
	require.Equal(t, float64(3000), seen["duration"])
}
