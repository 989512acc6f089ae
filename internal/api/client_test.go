package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret", WithMaxRetries(2))
}

func TestListChats_SendsAuthAndRequestID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chats/", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = io.WriteString(w, `[{"id":1,"name":null,"chat_type":"DIRECT",
			"created_at":"2024-05-01T10:00:00Z","participants":[{"id":2,"name":"Bo"}],
			"last_message":null,"unread":true}]`)
	})

	chats, err := c.ListChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, int64(1), chats[0].ID)
	require.Nil(t, chats[0].Name)
	require.True(t, chats[0].Unread)
	require.Equal(t, "Direct message with Bo", chats[0].DisplayName(1))
}

func TestDo_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	})

	messages, err := c.ListMessages(context.Background(), 4)
	require.NoError(t, err)
	require.Empty(t, messages)
	require.Equal(t, int32(2), calls.Load())
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.ListChats(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "max retries (2) exceeded")
}

func TestDo_UnauthorizedIsAuthError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Token expired"}`)
	})

	_, err := c.ListTasks(context.Background(), TaskQuery{})
	require.Error(t, err)
	require.True(t, IsAuthError(err))
	require.Contains(t, err.Error(), "Token expired")
}

func TestDo_OtherStatusIsStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"missing"}`)
	})

	err := c.MarkChatRead(context.Background(), 9)
	require.Error(t, err)
	require.False(t, IsAuthError(err))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Equal(t, "/api/chats/9/mark-read/", statusErr.Path)
}

func TestMarkChatRead_NoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.MarkChatRead(context.Background(), 3))
}

func TestCreateMessage_Multipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chats/5/messages/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "see attached", r.FormValue("content"))

		files := r.MultipartForm.File["attachments"]
		require.Len(t, files, 2)
		require.Equal(t, "a.txt", files[0].Filename)
		require.Equal(t, "text/plain", files[0].Header.Get("Content-Type"))
		require.Equal(t, "application/octet-stream", files[1].Header.Get("Content-Type"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      77,
			"chat":    5,
			"content": "see attached",
			"attachments": []map[string]interface{}{
				{"id": 10, "file_name": "a.txt"},
				{"id": "11", "file_name": "b.bin"},
			},
		})
	})

	msg, err := c.CreateMessage(context.Background(), 5, "see attached", []Upload{
		{FileName: "a.txt", ContentType: "text/plain", Body: strings.NewReader("hello")},
		{FileName: "b.bin", Body: strings.NewReader("\x00\x01")},
	})
	require.NoError(t, err)
	require.Equal(t, "77", string(msg.ID))
	require.Len(t, msg.Attachments, 2)

	id, ok := msg.Attachments[1].ID.Int64()
	require.True(t, ok)
	require.Equal(t, int64(11), id)
}

func TestListTasks_DateRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2024-05-01", r.URL.Query().Get("start_date"))
		require.Equal(t, "2024-05-31", r.URL.Query().Get("end_date"))
		_, _ = io.WriteString(w, `[{"id":7,"title":"Standup","type":"MEETING",
			"status":"TODO","due_date":"2024-05-01","time":"10:15"}]`)
	})

	tasks, err := c.ListTasks(context.Background(), TaskQuery{
		Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "Standup", tasks[0].Title)
}

func TestTenantURL(t *testing.T) {
	got, err := TenantURL("http://localhost:8000", "acme")
	require.NoError(t, err)
	require.Equal(t, "http://acme.localhost:8000", got)

	got, err = TenantURL("https://api.example.com/", "")
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/", got)

	_, err = TenantURL("not a url", "acme")
	require.Error(t, err)
}

func TestChatSocketURL(t *testing.T) {
	c := NewClient("https://acme.example.com", "")
	require.Equal(t, "wss://acme.example.com/ws/chat/3/", c.ChatSocketURL(3))

	c = NewClient("http://localhost:8000", "", WithWebSocketURL("ws://localhost:9000/"))
	require.Equal(t, "ws://localhost:9000/ws/chat/3/", c.ChatSocketURL(3))
}

func TestRetryAfterDuration(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	require.Equal(t, time.Second, retryAfterDuration(resp, 0))
	require.Equal(t, 4*time.Second, retryAfterDuration(resp, 2))
	require.Equal(t, 30*time.Second, retryAfterDuration(resp, 10))

	resp.Header.Set("Retry-After", "7")
	require.Equal(t, 7*time.Second, retryAfterDuration(resp, 0))
}
