package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/types"
)

func TestRenderNotice_Confirmed(t *testing.T) {
	text, err := RenderNotice(types.Notice{
		Kind:        types.NoticeConsultationConfirmed,
		RecipientID: "pat-1",
		MeetingID:   "abcd-efgh",
		JoinPath:    "/consultation/abcd-efgh/doc-1",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "abcd-efgh")
	assert.Contains(t, text, "/consultation/abcd-efgh/doc-1")

	kind, ok := ParseNoticeKind(text)
	require.True(t, ok)
	assert.Equal(t, types.NoticeConsultationConfirmed, kind)
}

func TestRenderNotice_Rejects(t *testing.T) {
	_, err := RenderNotice(types.Notice{Kind: types.NoticeConsultationConfirmed})
	assert.Error(t, err)

	_, err = RenderNotice(types.Notice{Kind: "unknown"})
	assert.Error(t, err)
}

func TestRenderNotice_Declined(t *testing.T) {
	text, err := RenderNotice(types.Notice{Kind: types.NoticeConsultationDeclined, RequestID: "r1", From: "Dr. Rao"})
	require.NoError(t, err)
	assert.Contains(t, text, "Dr. Rao")
	assert.Contains(t, text, "r1")
}

func TestParseNoticeKind_PlainText(t *testing.T) {
	_, ok := ParseNoticeKind("hello doctor")
	assert.False(t, ok)
}

func TestDispatcher_Dispatch(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("SendMessage", mock.Anything, "doc-tok", "pat-1", mock.MatchedBy(func(s string) bool {
		kind, ok := ParseNoticeKind(s)
		return ok && kind == types.NoticeConsultationConfirmed
	})).Return(&types.Message{ID: "m1"}, nil)

	d := NewDispatcher(api, "doc-tok", logger.Discard(), nil)
	err := d.Dispatch(context.Background(), types.Notice{
		Kind:        types.NoticeConsultationConfirmed,
		RecipientID: "pat-1",
		MeetingID:   "m-1",
		JoinPath:    "/consultation/m-1/doc-1",
	})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestDispatcher_SendFailureSurfaces(t *testing.T) {
	api := new(MockMessagingAPI)
	api.On("SendMessage", mock.Anything, "tok", "pat-1", mock.Anything).Return(nil, errors.New("boom"))

	d := NewDispatcher(api, "tok", logger.Discard(), nil)
	err := d.Dispatch(context.Background(), types.Notice{Kind: types.NoticeConsultationDeclined, RecipientID: "pat-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pat-1")
}

func TestDispatcher_RequiresRecipient(t *testing.T) {
	api := new(MockMessagingAPI)
	d := NewDispatcher(api, "tok", logger.Discard(), nil)
	err := d.Dispatch(context.Background(), types.Notice{Kind: types.NoticeConsultationDeclined})
	assert.Equal(t, types.ErrorTypeValidation, types.TypeOf(err))
	api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
