package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"student_market/internal/models/application"
	"student_market/internal/models/conversation"
	"student_market/internal/models/notification"
	"student_market/internal/models/offer"
)

// SystemSender is the sender recorded on machine-generated chat messages.
const SystemSender = "system"

// Notifier delivers a typed event to a user's inbox. Delivery is advisory:
// implementations never return an error and must not block the business
// transition that triggered them.
type Notifier interface {
	Notify(ctx context.Context, username, eventType string, payload map[string]any)
}

// ConversationBridge resolves the one conversation tied to an application
// and appends a system message describing a lifecycle event. Same contract
// as Notifier: failures are logged and swallowed.
type ConversationBridge interface {
	SystemMessage(ctx context.Context, app application.Application, off offer.Offer, eventTag, body string, payload map[string]any)
}

type NotificationStore interface {
	SaveNotification(ctx context.Context, n notification.Notification) error
}

type ConversationStore interface {
	EnsureConversation(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error)
	AppendMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error)
}

type InboxNotifier struct {
	store NotificationStore
	log   *slog.Logger
}

func NewInboxNotifier(store NotificationStore, log *slog.Logger) *InboxNotifier {
	return &InboxNotifier{store: store, log: log}
}

func (n *InboxNotifier) Notify(ctx context.Context, username, eventType string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		n.log.Error("failed to encode notification payload",
			slog.String("event", eventType), slog.String("error", err.Error()))
		return
	}

	err = n.store.SaveNotification(ctx, notification.Notification{
		Username:  username,
		EventType: eventType,
		Payload:   raw,
	})
	if err != nil {
		n.log.Error("failed to deliver notification",
			slog.String("username", username),
			slog.String("event", eventType),
			slog.String("error", err.Error()))
	}
}

type ChatBridge struct {
	store ConversationStore
	log   *slog.Logger
}

func NewChatBridge(store ConversationStore, log *slog.Logger) *ChatBridge {
	return &ChatBridge{store: store, log: log}
}

func (b *ChatBridge) SystemMessage(ctx context.Context, app application.Application, off offer.Offer, eventTag, body string, payload map[string]any) {
	conv, err := b.store.EnsureConversation(ctx, conversation.Conversation{
		ApplicationId:   app.Id,
		OfferId:         off.Id,
		CompanyUsername: off.CompanyUsername,
		StudentUsername: app.StudentUsername,
	})
	if err != nil {
		b.log.Error("failed to resolve conversation",
			slog.String("applicationId", app.Id), slog.String("error", err.Error()))
		return
	}

	var raw json.RawMessage
	if payload != nil {
		raw, err = json.Marshal(payload)
		if err != nil {
			b.log.Error("failed to encode message payload",
				slog.String("event", eventTag), slog.String("error", err.Error()))
			return
		}
	}

	_, err = b.store.AppendMessage(ctx, conversation.Message{
		ConversationId: conv.Id,
		SenderUsername: SystemSender,
		Body:           body,
		EventTag:       eventTag,
		Payload:        raw,
	})
	if err != nil {
		b.log.Error("failed to append system message",
			slog.String("conversationId", conv.Id),
			slog.String("event", eventTag),
			slog.String("error", err.Error()))
	}
}
