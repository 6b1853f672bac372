package notify

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/tradeflow/approval-engine/internal/application/port"
)

// LarkConfig holds Lark messaging configuration
type LarkConfig struct {
	AppID     string
	AppSecret string
	// ChatID is the approvals chat every workflow notification goes to.
	ChatID string
}

// LarkSender delivers workflow notifications as text messages to a Lark
// chat.
type LarkSender struct {
	client *lark.Client
	chatID string
	logger *zap.Logger
}

// NewLarkSender creates a Lark-backed notification sender.
func NewLarkSender(cfg LarkConfig, logger *zap.Logger) *LarkSender {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithEnableTokenCache(true),
	)
	return &LarkSender{
		client: client,
		chatID: cfg.ChatID,
		logger: logger,
	}
}

// Send posts the notification text to the configured chat.
func (s *LarkSender) Send(ctx context.Context, n port.Notification) error {
	content, err := textContent(messageText(n))
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(s.chatID).
			MsgType("text").
			Content(content).
			Build()).
		Build()

	resp, err := s.client.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send lark message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("lark API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	s.logger.Debug("Lark notification delivered",
		zap.String("notification_id", n.ID),
		zap.String("type", string(n.Type)))
	return nil
}

func messageText(n port.Notification) string {
	switch n.Type {
	case port.NotifyApprovalRequired:
		return fmt.Sprintf("Approval required: %s %s awaits the %s level", n.Kind, n.DocumentID, n.Level)
	case port.NotifyApproved:
		return fmt.Sprintf("Approved: %s %s cleared its full approval chain", n.Kind, n.DocumentID)
	case port.NotifyRejected:
		return fmt.Sprintf("Rejected: %s %s was rejected at the %s level (%s)", n.Kind, n.DocumentID, n.Level, n.Reason)
	case port.NotifyDelegated:
		return fmt.Sprintf("Delegated: %s %s at level %s, %s should act (%s)", n.Kind, n.DocumentID, n.Level, n.ToUser, n.Reason)
	case port.NotifySLABreached:
		return fmt.Sprintf("SLA breached: %s %s pending at %s for %.1f hours past SLA", n.Kind, n.DocumentID, n.Level, n.HoursOverdue)
	}
	return fmt.Sprintf("%s: %s %s", n.Type, n.Kind, n.DocumentID)
}

func textContent(text string) (string, error) {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("encode message content: %w", err)
	}
	return string(content), nil
}

// Verify interface compliance
var _ port.NotificationSender = (*LarkSender)(nil)
