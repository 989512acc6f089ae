package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/teamdesk/internal/model"
	"github.com/nhle/teamdesk/internal/notify"
)

type silentNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (s *silentNotifier) RequestPermission(context.Context) notify.Permission {
	return notify.PermissionGranted
}

func (s *silentNotifier) Notify(title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, title)
	return nil
}

func testConfig(baseURL string) *model.AppConfig {
	cfg := model.DefaultAppConfig()
	cfg.Server.BaseURL = baseURL
	cfg.Store.Path = ":memory:"
	cfg.User.ID = 7
	return cfg
}

func TestApp_StartLoadsChatsAndTasks(t *testing.T) {
	due := time.Now().Add(20 * time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chats/":
			_, _ = io.WriteString(w, `[{"id":1,"chat_type":"GROUP","name":"Ops",
				"created_at":"2024-05-01T10:00:00Z","participants":[]}]`)
		case "/api/tasks/":
			_, _ = io.WriteString(w, `[{"id":7,"title":"Standup","type":"MEETING","status":"TODO",
				"due_date":"`+due.Format("2006-01-02")+`","time":"`+due.Format("15:04:05")+`"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	notifier := &silentNotifier{}
	a, err := New(testConfig(srv.URL), "secret", nil, WithNotifier(notifier))
	require.NoError(t, err)

	a.Start(context.Background())
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	require.Len(t, a.Engine().State().Chats, 1)

	require.Eventually(t, func() bool {
		return len(a.Feed().List()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	n := a.Feed().List()[0]
	require.Equal(t, model.NotificationComingUp, n.Kind)
	require.Contains(t, n.Message, `Meeting "Standup" starting in`)
}

func TestApp_UnreadMessageRaisesNotification(t *testing.T) {
	a, err := New(testConfig("http://localhost:1"), "", nil, WithNotifier(&silentNotifier{}))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	name := "Ops"
	a.onUnreadMessage(
		model.Chat{ID: 3, Name: &name, Type: model.ChatTypeGroup},
		model.Message{ID: "m1", ChatID: 3, Content: "ping", Sender: model.User{ID: 9, Name: "Bo"}},
	)

	list := a.Feed().List()
	require.Len(t, list, 1)
	require.Equal(t, "message-3-m1", list[0].ID)
	require.Equal(t, "New message in Ops", list[0].Title)
	require.Equal(t, "Bo: ping", list[0].Message)
	require.Equal(t, int64(3), list[0].ChatID)
	require.Equal(t, 5*time.Second, list[0].AutoDismiss)
	require.Equal(t, 1, a.Feed().UnreadMessages())
}

func TestMessageNotification_Attachment(t *testing.T) {
	n := messageNotification(
		model.Chat{ID: 4, Type: model.ChatTypeDirect, Participants: []model.User{{ID: 7}, {ID: 8, Name: "Ana"}}},
		model.Message{ID: "5", HasAttachments: true},
		7, 0,
	)

	require.Equal(t, "New message in Direct message with Ana", n.Title)
	require.Equal(t, "Someone: sent an attachment", n.Message)
	require.Equal(t, model.NotificationTypeMessage, n.Type)
}

func TestNew_BadTenantURL(t *testing.T) {
	cfg := testConfig("not a url")
	cfg.Server.Tenant = "acme"

	_, err := New(cfg, "", nil)
	require.Error(t, err)
}
