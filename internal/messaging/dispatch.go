package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/monitoring"
	"github.com/medrex/teleconsult/pkg/types"
)

// noticeTag prefixes every system notice so clients can render it apart from chat text
const noticeTag = "[system:"

// Dispatcher posts structured system notices into threads on behalf of one session
type Dispatcher struct {
	api       interfaces.MessagingAPI
	authToken string
	logger    *logger.Logger
	metrics   *monitoring.MetricsCollector
}

// NewDispatcher creates a dispatcher sending with authToken
func NewDispatcher(api interfaces.MessagingAPI, authToken string, log *logger.Logger, metrics *monitoring.MetricsCollector) interfaces.NotificationDispatcher {
	return &Dispatcher{
		api:       api,
		authToken: authToken,
		logger:    log,
		metrics:   metrics,
	}
}

// Dispatch renders notice and sends it to the recipient's thread. It does not retry.
func (d *Dispatcher) Dispatch(ctx context.Context, notice types.Notice) error {
	if notice.RecipientID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "notice recipient is required", nil)
	}

	content, err := RenderNotice(notice)
	if err != nil {
		return err
	}

	_, err = d.api.SendMessage(ctx, d.authToken, notice.RecipientID, content)
	d.metrics.RecordNotice(string(notice.Kind), err == nil)
	if err != nil {
		return fmt.Errorf("failed to dispatch %s notice to %s: %w", notice.Kind, notice.RecipientID, err)
	}

	d.logger.WithComponent("notification_dispatch").WithFields(map[string]interface{}{
		"kind":       notice.Kind,
		"recipient":  notice.RecipientID,
		"request_id": notice.RequestID,
	}).Info("System notice dispatched")
	return nil
}

// RenderNotice produces the message text for notice
func RenderNotice(n types.Notice) (string, error) {
	var body string
	switch n.Kind {
	case types.NoticeConsultationRequested:
		body = fmt.Sprintf("%s requested a video consultation.\nRequest ID: %s", orSomeone(n.From), n.RequestID)
	case types.NoticeConsultationConfirmed:
		if n.MeetingID == "" || n.JoinPath == "" {
			return "", types.NewValidationError(types.ErrCodeInvalidInput, "confirmed notice needs meeting id and join path", nil)
		}
		body = fmt.Sprintf("Your video consultation has been confirmed.\nMeeting ID: %s\nJoin: %s", n.MeetingID, n.JoinPath)
	case types.NoticeConsultationDeclined:
		body = fmt.Sprintf("Your video consultation request was declined by %s.\nRequest ID: %s", orSomeone(n.From), n.RequestID)
	case types.NoticeMeetingReplaced:
		if n.MeetingID == "" || n.JoinPath == "" {
			return "", types.NewValidationError(types.ErrCodeInvalidInput, "replacement notice needs meeting id and join path", nil)
		}
		body = fmt.Sprintf("The meeting room was replaced.\nMeeting ID: %s\nJoin: %s", n.MeetingID, n.JoinPath)
	default:
		return "", types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown notice kind %q", n.Kind), nil)
	}
	return noticeTag + string(n.Kind) + "] " + body, nil
}

// ParseNoticeKind reports the notice kind carried by content, if it is a system notice
func ParseNoticeKind(content string) (types.NoticeKind, bool) {
	if !strings.HasPrefix(content, noticeTag) {
		return "", false
	}
	end := strings.IndexByte(content, ']')
	if end < 0 {
		return "", false
	}
	return types.NoticeKind(content[len(noticeTag):end]), true
}

func orSomeone(name string) string {
	if name == "" {
		return "Your doctor"
	}
	return name
}
