package chatsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/teamdesk/internal/api"
	"github.com/nhle/teamdesk/internal/model"
)

// fakeAPI is an in-memory stand-in for the REST client.
type fakeAPI struct {
	mu sync.Mutex

	chats       []model.Chat
	chatsErr    error
	messages    map[int64][]model.Message
	created     *model.Message
	createErr   error
	socketBase  string
	listChats   int
	listHistory map[int64]int
	markRead    []int64
	uploads     [][]api.Upload
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		messages:    make(map[int64][]model.Message),
		listHistory: make(map[int64]int),
	}
}

func (f *fakeAPI) ListChats(_ context.Context) ([]model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listChats++
	if f.chatsErr != nil {
		return nil, f.chatsErr
	}
	out := make([]model.Chat, len(f.chats))
	for i, c := range f.chats {
		out[i] = c.Clone()
	}
	return out, nil
}

func (f *fakeAPI) ListMessages(_ context.Context, chatID int64) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHistory[chatID]++
	return append([]model.Message(nil), f.messages[chatID]...), nil
}

func (f *fakeAPI) CreateMessage(_ context.Context, _ int64, _ string, uploads []api.Upload) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, uploads)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeAPI) MarkChatRead(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markRead = append(f.markRead, chatID)
	return nil
}

func (f *fakeAPI) ChatSocketURL(chatID int64) string {
	return fmt.Sprintf("%s/ws/chat/%d/", f.socketBase, chatID)
}

func at(minute int) time.Time {
	return time.Date(2024, 5, 1, 10, minute, 0, 0, time.UTC)
}

func chat(id int64, created time.Time) model.Chat {
	return model.Chat{ID: id, Type: model.ChatTypeGroup, CreatedAt: created}
}

func message(id string, chatID, senderID int64, ts time.Time) model.Message {
	return model.Message{
		ID:        model.ID(id),
		ChatID:    chatID,
		Content:   "hello " + id,
		Sender:    model.User{ID: senderID, Name: fmt.Sprintf("user %d", senderID)},
		Timestamp: ts,
	}
}

func chatIDs(chats []model.Chat) []int64 {
	ids := make([]int64, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	return ids
}

// seeded returns an engine whose list is A(1), B(2), C(3) in that order.
func seeded(t *testing.T, opts ...Option) (*Engine, *fakeAPI) {
	t.Helper()
	fake := newFakeAPI()
	fake.chats = []model.Chat{chat(3, at(1)), chat(1, at(3)), chat(2, at(2))}
	e := New(fake, opts...)
	require.Equal(t, []int64{1, 2, 3}, chatIDs(e.FetchChats(context.Background())))
	return e, fake
}

func TestSortChats(t *testing.T) {
	withMessage := chat(1, at(0))
	withMessage.LastMessage = &model.LastMessage{Timestamp: at(30)}

	chats := []model.Chat{chat(2, at(10)), withMessage, chat(3, at(20))}
	SortChats(chats)

	require.Equal(t, []int64{1, 3, 2}, chatIDs(chats))
}

func TestFetchChats_ErrorKeepsCollection(t *testing.T) {
	e, fake := seeded(t)

	fake.chatsErr = errors.New("boom")
	got := e.FetchChats(context.Background())

	require.NotNil(t, got)
	require.Empty(t, got)

	state := e.State()
	require.False(t, state.IsLoading)
	require.Equal(t, []int64{1, 2, 3}, chatIDs(state.Chats))
}

func TestFetchMessages_Idempotent(t *testing.T) {
	e, fake := seeded(t)
	fake.messages[1] = []model.Message{message("m1", 1, 2, at(5)), message("m2", 1, 3, at(6))}

	e.FetchMessages(context.Background(), 1)
	first := e.State().Messages[1]
	e.FetchMessages(context.Background(), 1)
	second := e.State().Messages[1]

	require.Len(t, second, 2)
	require.Equal(t, first, second)
	require.Equal(t, 2, fake.listHistory[1])
}

func TestSetSelectedChat(t *testing.T) {
	e, fake := seeded(t)
	fake.chats[1].Unread = true
	e.FetchChats(context.Background())

	e.SetSelectedChat(context.Background(), 0)
	require.Empty(t, fake.listHistory)
	require.Empty(t, fake.markRead)

	e.SetSelectedChat(context.Background(), 1)
	require.Equal(t, 1, fake.listHistory[1])
	require.Equal(t, []int64{1}, fake.markRead)

	state := e.State()
	require.Equal(t, int64(1), state.SelectedChat)
	require.False(t, state.Chats[0].Unread)
}

func TestUpdateChatWithMessage_MoveToFront(t *testing.T) {
	e, _ := seeded(t)

	e.UpdateChatWithMessage(context.Background(), message("x", 3, 2, at(40)), 1)

	state := e.State()
	require.Equal(t, []int64{3, 1, 2}, chatIDs(state.Chats))
	require.Equal(t, "hello x", state.Chats[0].LastMessage.Content)
	require.Equal(t, at(40), state.Chats[0].LastMessage.Timestamp)
	require.Len(t, state.Messages[3], 1)
}

func TestUpdateChatWithMessage_MoveToFrontIgnoresRecency(t *testing.T) {
	e, _ := seeded(t)

	// Older than chat 1, which was created at minute 3.
	late := at(2).Add(30 * time.Second)
	e.UpdateChatWithMessage(context.Background(), message("old", 3, 2, late), 1)

	state := e.State()
	require.Equal(t, []int64{3, 1, 2}, chatIDs(state.Chats))

	resorted := append([]model.Chat(nil), state.Chats...)
	SortChats(resorted)
	require.Equal(t, []int64{1, 3, 2}, chatIDs(resorted))
	require.NotEqual(t, chatIDs(state.Chats), chatIDs(resorted))
}

func TestUpdateChatWithMessage_DropsDuplicates(t *testing.T) {
	e, _ := seeded(t)

	msg := message("m1", 2, 2, at(40))
	e.UpdateChatWithMessage(context.Background(), msg, 1)
	e.UpdateChatWithMessage(context.Background(), msg, 1)

	require.Len(t, e.State().Messages[2], 1)
}

func TestUpdateChatWithMessage_Unread(t *testing.T) {
	e, _ := seeded(t)
	e.SetSelectedChat(context.Background(), 2)

	// Own message in another chat.
	e.UpdateChatWithMessage(context.Background(), message("a", 1, 1, at(40)), 1)
	require.False(t, e.State().Chats[0].Unread)

	// Someone else in the selected chat.
	e.UpdateChatWithMessage(context.Background(), message("b", 2, 5, at(41)), 1)
	require.False(t, e.State().Chats[0].Unread)

	// Someone else in a background chat.
	e.UpdateChatWithMessage(context.Background(), message("c", 3, 5, at(42)), 1)
	state := e.State()
	require.Equal(t, int64(3), state.Chats[0].ID)
	require.True(t, state.Chats[0].Unread)
}

func TestUpdateChatWithMessage_UnknownChatRefreshes(t *testing.T) {
	e, fake := seeded(t)
	require.Equal(t, 1, fake.listChats)

	fake.chats = append(fake.chats, chat(9, at(50)))
	e.UpdateChatWithMessage(context.Background(), message("z", 9, 5, at(51)), 1)

	state := e.State()
	require.Equal(t, 2, fake.listChats)
	require.Equal(t, []int64{9, 1, 2, 3}, chatIDs(state.Chats))
	require.Empty(t, state.Messages[9])
}

func TestUpdateChatWithMessage_Scenario(t *testing.T) {
	fake := newFakeAPI()
	fake.chats = []model.Chat{chat(1, at(0)), chat(2, at(10))}

	var hooked []string
	e := New(fake, WithMessageHook(func(c model.Chat, m model.Message) {
		hooked = append(hooked, fmt.Sprintf("%d/%s", c.ID, m.ID))
	}))
	e.FetchChats(context.Background())
	require.Equal(t, []int64{2, 1}, chatIDs(e.State().Chats))

	m1 := message("m1", 1, 42, at(20))
	e.UpdateChatWithMessage(context.Background(), m1, 7)
	e.UpdateChatWithMessage(context.Background(), m1, 7)

	state := e.State()
	require.Equal(t, []int64{1, 2}, chatIDs(state.Chats))
	require.True(t, state.Chats[0].Unread)
	require.Equal(t, "hello m1", state.Chats[0].LastMessage.Content)
	require.Equal(t, []model.Message{m1}, state.Messages[1])
	require.Equal(t, []string{"1/m1"}, hooked)
}

func TestSubscribe(t *testing.T) {
	e, _ := seeded(t)

	var got []State
	unsubscribe := e.Subscribe(func(s State) { got = append(got, s) })

	e.UpdateChatWithMessage(context.Background(), message("a", 2, 5, at(40)), 1)
	unsubscribe()
	e.UpdateChatWithMessage(context.Background(), message("b", 3, 5, at(41)), 1)

	require.Len(t, got, 1)
	require.Equal(t, int64(2), got[0].Chats[0].ID)
}

func TestState_IsACopy(t *testing.T) {
	e, _ := seeded(t)
	e.UpdateChatWithMessage(context.Background(), message("a", 2, 5, at(40)), 1)

	state := e.State()
	state.Chats[0].LastMessage.Content = "mutated"
	state.Messages[2][0].Content = "mutated"

	fresh := e.State()
	require.Equal(t, "hello a", fresh.Chats[0].LastMessage.Content)
	require.Equal(t, "hello a", fresh.Messages[2][0].Content)
}
