// Package notify pushes reviewer-facing notifications to Lark. All sends
// are best-effort: failures are logged, never propagated, because a broken
// chat integration must not stall the pipeline.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
)

// Config holds Lark notifier configuration
type Config struct {
	AppID        string
	AppSecret    string
	ReviewChatID string
}

// LarkNotifier sends review notifications to a Lark group chat
type LarkNotifier struct {
	client *lark.Client
	chatID string
	logger *zap.Logger
}

// NewLarkNotifier creates a Lark-backed notifier
func NewLarkNotifier(cfg Config, logger *zap.Logger) *LarkNotifier {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
	return &LarkNotifier{
		client: client,
		chatID: cfg.ReviewChatID,
		logger: logger,
	}
}

// EmailParked notifies reviewers that an email is waiting in the queue
func (n *LarkNotifier) EmailParked(ctx context.Context, rec *entity.EmailRecord, reason string) {
	text := fmt.Sprintf(
		"Supplier email parked for review\nFrom: %s\nSubject: %s\nReason: %s\nMessage ID: %s",
		rec.Sender, rec.Subject, reason, rec.MessageID)
	n.send(ctx, text)
}

// SyncBlocked notifies reviewers that an ERP sync was refused
func (n *LarkNotifier) SyncBlocked(ctx context.Context, messageID string, blockers, warnings []string) {
	var b strings.Builder
	fmt.Fprintf(&b, "ERP price sync blocked for message %s\n", messageID)
	for _, blocker := range blockers {
		fmt.Fprintf(&b, "- %s\n", blocker)
	}
	if len(warnings) > 0 {
		b.WriteString("Warnings:\n")
		for _, warning := range warnings {
			fmt.Fprintf(&b, "- %s\n", warning)
		}
	}
	n.send(ctx, b.String())
}

func (n *LarkNotifier) send(ctx context.Context, text string) {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		n.logger.Error("Failed to encode notification", zap.Error(err))
		return
	}

	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(n.chatID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.client.Im.Message.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send Lark notification",
			zap.String("chat_id", n.chatID),
			zap.Error(err))
		return
	}
	if !resp.Success() {
		n.logger.Error("Lark API returned failure",
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
	}
}

// NopNotifier is used when the Lark integration is disabled
type NopNotifier struct{}

func (NopNotifier) EmailParked(context.Context, *entity.EmailRecord, string) {}
func (NopNotifier) SyncBlocked(context.Context, string, []string, []string)  {}
