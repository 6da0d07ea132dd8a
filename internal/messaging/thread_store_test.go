package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/types"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func thread(id string, last time.Time) *types.Thread {
	return &types.Thread{
		ID: id,
		Participants: []types.Participant{
			{UserID: "pat-1", Role: types.ParticipantPatient},
			{UserID: "doc-" + id, Role: types.ParticipantDoctor},
		},
		LastActivity: last,
	}
}

func TestThreadStore_ListThreadsOrdersByActivity(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("ListThreads", mock.Anything, "tok").Return([]*types.Thread{
		thread("a", t0),
		nil,
		thread("b", t0.Add(2*time.Hour)),
		thread("c", t0.Add(time.Hour)),
	}, nil)

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	threads, err := store.ListThreads(context.Background())
	require.NoError(t, err)

	ids := []string{threads[0].ID, threads[1].ID, threads[2].ID}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
	api.AssertExpectations(t)
}

func TestThreadStore_ListFailureKeepsPreviousList(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("ListThreads", mock.Anything, "tok").Return([]*types.Thread{thread("a", t0)}, nil).Once()
	api.On("ListThreads", mock.Anything, "tok").Return(nil, types.NewNetworkError("list_threads", errors.New("down"))).Once()

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	_, err := store.ListThreads(context.Background())
	require.NoError(t, err)

	_, err = store.ListThreads(context.Background())
	require.Error(t, err)
	require.Len(t, store.Threads(), 1)
	assert.Equal(t, "a", store.Threads()[0].ID)
}

func TestThreadStore_GetMessagesSortsAndReplaces(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("ListThreads", mock.Anything, "tok").Return([]*types.Thread{thread("a", t0)}, nil)
	api.On("GetMessages", mock.Anything, "tok", "a").Return([]types.Message{
		{ID: "3", Timestamp: t0.Add(3 * time.Minute)},
		{ID: "1", Timestamp: t0.Add(time.Minute)},
		{ID: "2", Timestamp: t0.Add(2 * time.Minute)},
	}, nil)

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	_, err := store.ListThreads(context.Background())
	require.NoError(t, err)

	msgs, err := store.GetMessages(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp))
	}
	assert.Equal(t, "1", msgs[0].ID)
	assert.False(t, store.Loading("a"))

	th, ok := store.Thread("a")
	require.True(t, ok)
	assert.Equal(t, t0.Add(3*time.Minute), th.LastActivity)
}

func TestThreadStore_NewMessageMovesThreadToTop(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("ListThreads", mock.Anything, "tok").Return([]*types.Thread{
		thread("a", t0.Add(time.Hour)),
		thread("b", t0),
	}, nil)
	api.On("GetMessages", mock.Anything, "tok", "b").Return([]types.Message{
		{ID: "1", Timestamp: t0.Add(2 * time.Hour)},
	}, nil)

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	_, err := store.ListThreads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", store.Threads()[0].ID)

	_, err = store.RefreshMessages(context.Background(), "b")
	require.NoError(t, err)

	threads := store.Threads()
	require.Len(t, threads, 2)
	assert.Equal(t, "b", threads[0].ID)
	assert.Equal(t, "a", threads[1].ID)
}

func TestThreadStore_CachedMessages(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("GetMessages", mock.Anything, "tok", "a").Return([]types.Message{}, nil)

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	_, ok := store.CachedMessages("a")
	assert.False(t, ok)

	_, err := store.GetMessages(context.Background(), "a")
	require.NoError(t, err)

	msgs, ok := store.CachedMessages("a")
	assert.True(t, ok)
	assert.Empty(t, msgs)
}

func TestThreadStore_GetMessagesFailureKeepsState(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("GetMessages", mock.Anything, "tok", "a").Return([]types.Message{{ID: "1", Timestamp: t0}}, nil).Once()
	api.On("GetMessages", mock.Anything, "tok", "a").Return(nil, errors.New("timeout")).Once()

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	_, err := store.GetMessages(context.Background(), "a")
	require.NoError(t, err)

	_, err = store.RefreshMessages(context.Background(), "a")
	require.Error(t, err)
	assert.Len(t, store.Messages("a"), 1)
}

func TestThreadStore_GetMessagesRequiresThread(t *testing.T) {
	store := NewThreadStore("pat-1", "tok", new(MockMessagingAPI), logger.Discard())
	_, err := store.GetMessages(context.Background(), "")
	assert.Equal(t, types.ErrorTypeValidation, types.TypeOf(err))
}

func TestThreadStore_SendThenRefreshRoundTrip(t *testing.T) {
	api := new(MockMessagingAPI)
	sent := &types.Message{ID: "m9", ThreadID: "new", SenderID: "pat-1", Content: "hi", Timestamp: t0, Persisted: true}
	api.On("SendMessage", mock.Anything, "tok", "doc-new", "hi").Return(sent, nil)
	api.On("ListThreads", mock.Anything, "tok").Return([]*types.Thread{thread("new", t0)}, nil)
	api.On("GetMessages", mock.Anything, "tok", "new").Return([]types.Message{*sent}, nil)

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	msg, err := store.SendMessage(context.Background(), "doc-new", "hi")
	require.NoError(t, err)
	assert.Equal(t, "m9", msg.ID)

	// nothing is stored locally until a fetch returns it
	assert.Empty(t, store.Messages("new"))

	th, ok := store.ThreadWith("doc-new")
	require.True(t, ok)

	msgs, err := store.GetMessages(context.Background(), th.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
	api.AssertExpectations(t)
}

func TestThreadStore_SendFailureInsertsNothing(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("SendMessage", mock.Anything, "tok", "doc-a", "hi").Return(nil, types.NewNetworkError("send_message", errors.New("503")))

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	_, err := store.SendMessage(context.Background(), "doc-a", "hi")
	require.Error(t, err)
	assert.Empty(t, store.Threads())
	api.AssertNotCalled(t, "ListThreads", mock.Anything, mock.Anything)
}

func TestThreadStore_SendValidatesInput(t *testing.T) {
	api := new(MockMessagingAPI)
	store := NewThreadStore("pat-1", "tok", api, logger.Discard())

	_, err := store.SendMessage(context.Background(), "", "hi")
	assert.Equal(t, types.ErrorTypeValidation, types.TypeOf(err))

	_, err = store.SendMessage(context.Background(), "doc-a", "   ")
	assert.Equal(t, types.ErrorTypeValidation, types.TypeOf(err))

	api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestThreadStore_RefreshFailureAfterSendIsNotFatal(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("SendMessage", mock.Anything, "tok", "doc-a", "hi").Return(&types.Message{ID: "m1"}, nil)
	api.On("ListThreads", mock.Anything, "tok").Return(nil, errors.New("down"))

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	msg, err := store.SendMessage(context.Background(), "doc-a", "hi")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
}

func TestThreadStore_SendDropsRecipientThreadMessages(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("ListThreads", mock.Anything, "tok").Return([]*types.Thread{thread("a", t0), thread("b", t0)}, nil)
	api.On("GetMessages", mock.Anything, "tok", "a").Return([]types.Message{{ID: "1", ThreadID: "a", Timestamp: t0}}, nil)
	api.On("GetMessages", mock.Anything, "tok", "b").Return([]types.Message{{ID: "2", ThreadID: "b", Timestamp: t0}}, nil)
	api.On("SendMessage", mock.Anything, "tok", "doc-a", "hi").Return(&types.Message{ID: "3", Content: "hi"}, nil)

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	_, err := store.ListThreads(context.Background())
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		_, err := store.GetMessages(context.Background(), id)
		require.NoError(t, err)
	}

	_, err = store.SendMessage(context.Background(), "doc-a", "hi")
	require.NoError(t, err)

	_, ok := store.CachedMessages("a")
	assert.False(t, ok)
	_, ok = store.CachedMessages("b")
	assert.True(t, ok)
}

func TestThreadStore_SendDropsThreadNamedByUpstream(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("GetMessages", mock.Anything, "tok", "a").Return([]types.Message{{ID: "1", ThreadID: "a", Timestamp: t0}}, nil)
	api.On("SendMessage", mock.Anything, "tok", "doc-x", "hi").Return(&types.Message{ID: "3", ThreadID: "a", Content: "hi"}, nil)
	api.On("ListThreads", mock.Anything, "tok").Return([]*types.Thread{}, nil)

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	_, err := store.GetMessages(context.Background(), "a")
	require.NoError(t, err)

	_, err = store.SendMessage(context.Background(), "doc-x", "hi")
	require.NoError(t, err)

	_, ok := store.CachedMessages("a")
	assert.False(t, ok)
}

func TestThreadStore_InvalidateWithUnknownUserDropsEverything(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("GetMessages", mock.Anything, "tok", "a").Return([]types.Message{{ID: "1", Timestamp: t0}}, nil)
	api.On("GetMessages", mock.Anything, "tok", "b").Return([]types.Message{{ID: "2", Timestamp: t0}}, nil)

	store := NewThreadStore("pat-1", "tok", api, logger.Discard())
	for _, id := range []string{"a", "b"} {
		_, err := store.GetMessages(context.Background(), id)
		require.NoError(t, err)
	}

	store.InvalidateWith("doc-nobody")

	for _, id := range []string{"a", "b"} {
		_, ok := store.CachedMessages(id)
		assert.False(t, ok, id)
	}
}

func TestThreadStore_FetchOverlappingInvalidationIsNotStored(t *testing.T) {
	api := new(MockMessagingAPI)
	var store *ThreadStore
	api.On("GetMessages", mock.Anything, "tok", "a").
		Run(func(mock.Arguments) { store.InvalidateWith("doc-a") }).
		Return([]types.Message{{ID: "1", Timestamp: t0}}, nil).Once()

	store = NewThreadStore("pat-1", "tok", api, logger.Discard())
	msgs, err := store.RefreshMessages(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, ok := store.CachedMessages("a")
	assert.False(t, ok)
}
