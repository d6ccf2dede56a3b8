package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pharmadeal-chat/internal/cache"
	"pharmadeal-chat/internal/domain/chat"
	"pharmadeal-chat/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const selfID = "user-a"

func newTestStore(t *testing.T) (*store.Store, *fakeTransport, *MockHistory) {
	t.Helper()
	ft := newFakeTransport()
	hist := new(MockHistory)
	snap := cache.NewFileStore(filepath.Join(t.TempDir(), "snapshot.json"))
	st := store.New(selfID, ft, hist, snap, zap.NewNop())
	require.NoError(t, st.InitializeSocket(context.Background()))
	return st, ft, hist
}

func record(id, otherID string, unread int) chat.RoomRecord {
	return chat.RoomRecord{
		ID: id,
		Participants: []chat.UserInfo{
			{ID: selfID, FullName: "Me"},
			{ID: otherID, FullName: otherID},
		},
		UnreadCount: unread,
		UpdatedAt:   time.Now(),
	}
}

func startRoom(t *testing.T, st *store.Store, hist *MockHistory, roomID string) {
	t.Helper()
	hist.On("ResolveRoom", selfID, "user-b", "", "").Return(roomID, nil).Once()
	got, err := st.StartChat(context.Background(), "user-b", "", "", chat.UserInfo{ID: "user-b"})
	require.NoError(t, err)
	require.Equal(t, roomID, got)
}

func TestSendMessage_OptimisticAppend(t *testing.T) {
	st, ft, hist := newTestStore(t)
	startRoom(t, st, hist, "room-1")

	require.NoError(t, st.SendMessage("  hello there  "))

	msgs := st.ActiveMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.True(t, msgs[0].IsOwn)
	assert.True(t, msgs[0].Temp)
	assert.Equal(t, chat.MessageStatusSent, msgs[0].Status)

	sent := ft.emittedNamed(chat.EventSendMessage)
	require.Len(t, sent, 1)
	payload := sent[0].Payload.(chat.SendMessagePayload)
	assert.Equal(t, "room-1", payload.RoomID)
	assert.Equal(t, "hello there", payload.Text)
}

func TestSendMessage_Preconditions(t *testing.T) {
	st, _, hist := newTestStore(t)

	assert.Error(t, st.SendMessage("   "))
	assert.Error(t, st.SendMessage("hi")) // no active room

	startRoom(t, st, hist, "room-1")
	assert.NoError(t, st.SendMessage("hi"))
}

func TestNewMessage_ReplacesLastMatchingTemp(t *testing.T) {
	st, ft, hist := newTestStore(t)
	startRoom(t, st, hist, "room-1")
	require.NoError(t, st.SendMessage("hi"))

	ft.Fire(t, chat.EventNewMessage, chat.NewMessagePayload{
		MessageID: "m-1",
		RoomID:    "room-1",
		SenderID:  selfID,
		Text:      "hi",
		SentAt:    time.Now(),
	})

	msgs := st.ActiveMessages()
	require.Len(t, msgs, 1, "confirmation must replace, not append")
	assert.Equal(t, "m-1", msgs[0].ID)
	assert.False(t, msgs[0].Temp)
	assert.True(t, msgs[0].IsOwn)
}

func TestNewMessage_AppendsWithoutTempAndUpdatesPreview(t *testing.T) {
	st, ft, hist := newTestStore(t)
	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-1", "user-b", 0),
		record("room-2", "user-c", 0),
	}, nil).Once()
	require.NoError(t, st.LoadUserChats(context.Background()))

	sentAt := time.Now()
	ft.Fire(t, chat.EventNewMessage, chat.NewMessagePayload{
		MessageID: "m-9",
		RoomID:    "room-2",
		SenderID:  "user-c",
		Text:      "are you there?",
		SentAt:    sentAt,
	})

	state := st.State()
	require.Len(t, state.Messages["room-2"], 1)
	assert.False(t, state.Messages["room-2"][0].IsOwn)

	// Preview stays live even for a room that is not active.
	for _, room := range state.Rooms {
		if room.ID == "room-2" {
			require.NotNil(t, room.LastMessage)
			assert.Equal(t, "are you there?", room.LastMessage.Text)
		}
	}
}

func TestUnreadAggregation_CountsRoomsNotMessages(t *testing.T) {
	st, ft, hist := newTestStore(t)
	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-1", "user-b", 3),
		record("room-2", "user-c", 0),
		record("room-3", "user-d", 1),
	}, nil).Once()
	require.NoError(t, st.LoadUserChats(context.Background()))

	assert.Equal(t, 2, st.State().TotalUnreadRooms)

	ft.Fire(t, chat.EventUnreadCountUpdated, chat.UnreadCountPayload{RoomID: "room-2", UnreadCount: 5})
	assert.Equal(t, 3, st.State().TotalUnreadRooms)

	ft.Fire(t, chat.EventUnreadCountUpdated, chat.UnreadCountPayload{RoomID: "room-1", UnreadCount: 0})
	assert.Equal(t, 2, st.State().TotalUnreadRooms)
}

func TestSelectChat_ZeroesUnreadBeforeNetworkSettles(t *testing.T) {
	st, ft, hist := newTestStore(t)
	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-1", "user-b", 4),
	}, nil).Once()
	require.NoError(t, st.LoadUserChats(context.Background()))
	require.Equal(t, 1, st.State().TotalUnreadRooms)

	release := make(chan struct{})
	hist.On("FetchHistory", "room-1").Run(func(mock.Arguments) {
		<-release
	}).Return([]chat.Message{}, nil).Once()
	hist.On("FetchRoom", "room-1").Return(&chat.RoomDetail{ID: "room-1"}, nil).Once()

	room := st.State().Rooms[0]
	done := make(chan error, 1)
	go func() { done <- st.SelectChat(context.Background(), room) }()

	// Optimistic zeroing is observable while history is still in flight.
	require.Eventually(t, func() bool {
		state := st.State()
		return state.Rooms[0].UnreadCount == 0 && state.TotalUnreadRooms == 0
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-done)

	assert.NotEmpty(t, ft.emittedNamed(chat.EventJoinRoom))
	assert.NotEmpty(t, ft.emittedNamed(chat.EventMarkRoomAsSeen))
}

func TestSelectChat_ReplacesHistoryAndTagsOwnership(t *testing.T) {
	st, _, hist := newTestStore(t)
	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-1", "user-b", 0),
	}, nil).Once()
	require.NoError(t, st.LoadUserChats(context.Background()))

	hist.On("FetchHistory", "room-1").Return([]chat.Message{
		{ID: "m-1", Content: "old", SenderID: "user-b", Status: chat.MessageStatusRead},
		{ID: "m-2", Content: "older", SenderID: selfID, Status: chat.MessageStatusRead},
	}, nil).Once()
	hist.On("FetchRoom", "room-1").Return(&chat.RoomDetail{ID: "room-1", IsClosed: true}, nil).Once()

	require.NoError(t, st.SelectChat(context.Background(), st.State().Rooms[0]))

	msgs := st.ActiveMessages()
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].IsOwn)
	assert.True(t, msgs[1].IsOwn)
	assert.True(t, st.State().IsRoomClosed)
}

func TestSelectChat_ClosedStatusFailsOpen(t *testing.T) {
	st, _, hist := newTestStore(t)
	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-1", "user-b", 0),
	}, nil).Once()
	require.NoError(t, st.LoadUserChats(context.Background()))

	hist.On("FetchHistory", "room-1").Return([]chat.Message{}, nil).Once()
	hist.On("FetchRoom", "room-1").Return(nil, errors.New("boom")).Once()

	require.NoError(t, st.SelectChat(context.Background(), st.State().Rooms[0]))
	assert.False(t, st.State().IsRoomClosed)
}

func TestLoadUserChats_WholesaleReplace(t *testing.T) {
	st, _, hist := newTestStore(t)
	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-1", "user-b", 0),
		record("room-2", "user-c", 0),
	}, nil).Once()
	require.NoError(t, st.LoadUserChats(context.Background()))
	require.Len(t, st.State().Rooms, 2)

	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-2", "user-c", 0),
	}, nil).Once()
	require.NoError(t, st.LoadUserChats(context.Background()))

	state := st.State()
	require.Len(t, state.Rooms, 1)
	assert.Equal(t, "room-2", state.Rooms[0].ID)
}

func TestLoadUserChats_FailureLeavesStateUntouched(t *testing.T) {
	st, _, hist := newTestStore(t)
	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-1", "user-b", 2),
	}, nil).Once()
	require.NoError(t, st.LoadUserChats(context.Background()))

	hist.On("FetchUserRooms", selfID).Return(nil, errors.New("network down")).Once()
	require.Error(t, st.LoadUserChats(context.Background()))

	state := st.State()
	require.Len(t, state.Rooms, 1)
	assert.Equal(t, 1, state.TotalUnreadRooms)
	assert.Error(t, state.Err)
}

func TestNewChatRoom_MalformedPayloadTriggersResync(t *testing.T) {
	st, ft, hist := newTestStore(t)

	resynced := make(chan struct{})
	hist.On("FetchUserRooms", selfID).Run(func(mock.Arguments) {
		close(resynced)
	}).Return([]chat.RoomRecord{record("room-1", "user-b", 0)}, nil).Once()

	ft.Fire(t, chat.EventNewChatRoom, map[string]string{"noise": "x"})

	select {
	case <-resynced:
	case <-time.After(time.Second):
		t.Fatal("malformed newChatRoom did not trigger a room-list resync")
	}

	require.Eventually(t, func() bool {
		return len(st.State().Rooms) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestNewChatRoom_FullPayloadPrepends(t *testing.T) {
	st, ft, hist := newTestStore(t)
	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-1", "user-b", 0),
	}, nil).Once()
	require.NoError(t, st.LoadUserChats(context.Background()))

	ft.Fire(t, chat.EventNewChatRoom, record("room-new", "user-z", 1))

	state := st.State()
	require.Len(t, state.Rooms, 2)
	assert.Equal(t, "room-new", state.Rooms[0].ID)
	assert.Equal(t, "user-z", state.Rooms[0].OtherUser.ID)
	assert.Equal(t, 1, state.TotalUnreadRooms)
}

func TestConnect_ResyncsAndRejoinsActiveRoom(t *testing.T) {
	st, ft, hist := newTestStore(t)
	startRoom(t, st, hist, "room-1")

	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-1", "user-b", 0),
	}, nil).Once()

	ft.Fire(t, chat.EventConnect, nil)

	require.Eventually(t, func() bool {
		return len(ft.emittedNamed(chat.EventJoinRoom)) > 0
	}, time.Second, 5*time.Millisecond)

	joins := ft.emittedNamed(chat.EventJoinRoom)
	payload := joins[len(joins)-1].Payload.(chat.JoinRoomPayload)
	assert.Equal(t, "room-1", payload.RoomID)
	hist.AssertCalled(t, "FetchUserRooms", selfID)
}

func TestMessageSeen_FlipsSingleMessage(t *testing.T) {
	st, ft, hist := newTestStore(t)
	startRoom(t, st, hist, "room-1")
	require.NoError(t, st.SendMessage("one"))
	ft.Fire(t, chat.EventNewMessage, chat.NewMessagePayload{
		MessageID: "m-1", RoomID: "room-1", SenderID: selfID, Text: "one", SentAt: time.Now(),
	})

	ft.Fire(t, chat.EventMessageSeen, chat.MessageSeenPayload{RoomID: "room-1", MessageID: "m-1"})

	msgs := st.ActiveMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.MessageStatusRead, msgs[0].Status)
}

func TestRoomMarkedAsSeen_ZeroesAndFlipsAll(t *testing.T) {
	st, ft, hist := newTestStore(t)
	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-1", "user-b", 7),
	}, nil).Once()
	require.NoError(t, st.LoadUserChats(context.Background()))

	ft.Fire(t, chat.EventNewMessage, chat.NewMessagePayload{
		MessageID: "m-1", RoomID: "room-1", SenderID: "user-b", Text: "hi", SentAt: time.Now(),
	})
	ft.Fire(t, chat.EventRoomMarkedAsSeen, chat.RoomMarkedAsSeenPayload{RoomID: "room-1"})

	state := st.State()
	assert.Equal(t, 0, state.Rooms[0].UnreadCount)
	assert.Equal(t, 0, state.TotalUnreadRooms)
	for _, msg := range state.Messages["room-1"] {
		assert.Equal(t, chat.MessageStatusRead, msg.Status)
	}
}

func TestRoomClosed_OnlyAffectsActiveRoom(t *testing.T) {
	st, ft, hist := newTestStore(t)
	startRoom(t, st, hist, "room-1")

	ft.Fire(t, chat.EventRoomClosed, chat.RoomClosedPayload{RoomID: "other-room"})
	assert.False(t, st.State().IsRoomClosed)

	ft.Fire(t, chat.EventRoomClosed, chat.RoomClosedPayload{RoomID: "room-1"})
	assert.True(t, st.State().IsRoomClosed)
}

func TestStartChat_ResolutionFailure(t *testing.T) {
	st, _, hist := newTestStore(t)
	hist.On("ResolveRoom", selfID, "user-b", "", "").Return("", errors.New("resolve failed")).Once()

	_, err := st.StartChat(context.Background(), "user-b", "", "", chat.UserInfo{})
	require.Error(t, err)

	state := st.State()
	assert.Empty(t, state.Rooms)
	assert.Empty(t, state.ActiveRoomID)
	assert.Error(t, state.Err)
	assert.False(t, state.Loading)
}

func TestStartChat_CarriesAnchor(t *testing.T) {
	st, _, hist := newTestStore(t)
	hist.On("ResolveRoom", selfID, "user-b", "deal-7", chat.AnchorTypeDeal).Return("room-7", nil).Once()

	roomID, err := st.StartChat(context.Background(), "user-b", "deal-7", chat.AnchorTypeDeal, chat.UserInfo{ID: "user-b"})
	require.NoError(t, err)
	assert.Equal(t, "room-7", roomID)

	state := st.State()
	require.Len(t, state.Rooms, 1)
	require.NotNil(t, state.Rooms[0].Anchor)
	assert.Equal(t, chat.AnchorTypeDeal, state.Rooms[0].Anchor.Type)
	assert.Equal(t, "deal-7", state.Rooms[0].Anchor.ID)
}

func TestDisconnect_ClearsStateAndHandlers(t *testing.T) {
	st, ft, hist := newTestStore(t)
	startRoom(t, st, hist, "room-1")
	require.NoError(t, st.SendMessage("bye"))

	st.Disconnect()

	state := st.State()
	assert.Empty(t, state.Rooms)
	assert.Empty(t, state.Messages)
	assert.Empty(t, state.ActiveRoomID)
	assert.Zero(t, state.TotalUnreadRooms)
	assert.True(t, ft.closed)
	assert.Zero(t, ft.handlerCount())

	// A push after teardown must be a no-op.
	ft.Fire(t, chat.EventNewMessage, chat.NewMessagePayload{
		MessageID: "m-x", RoomID: "room-1", SenderID: "user-b", Text: "ghost", SentAt: time.Now(),
	})
	assert.Empty(t, st.State().Messages)
}

func TestSnapshot_RestoredAcrossSessions(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "snapshot.json")

	ft := newFakeTransport()
	hist := new(MockHistory)
	st := store.New(selfID, ft, hist, cache.NewFileStore(snapPath), zap.NewNop())
	hist.On("FetchUserRooms", selfID).Return([]chat.RoomRecord{
		record("room-1", "user-b", 2),
	}, nil).Once()
	require.NoError(t, st.LoadUserChats(context.Background()))
	st.SetWidgetOpen(true)

	// A second session over the same cache starts warm.
	st2 := store.New(selfID, newFakeTransport(), new(MockHistory), cache.NewFileStore(snapPath), zap.NewNop())
	state := st2.State()
	require.Len(t, state.Rooms, 1)
	assert.Equal(t, "room-1", state.Rooms[0].ID)
	assert.Equal(t, 1, state.TotalUnreadRooms)
	assert.True(t, state.WidgetOpen)
}
