package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"student_market/internal/models/conversation"

	"github.com/google/uuid"
)

const conversationColumns = `id, application_id, offer_id, company_username, student_username, created_at`
const messageColumns = `id, conversation_id, sender_username, body, event_tag, payload, created_at`

func scanConversation(row interface{ Scan(...any) error }) (conversation.Conversation, error) {
	var conv conversation.Conversation
	err := row.Scan(&conv.Id, &conv.ApplicationId, &conv.OfferId,
		&conv.CompanyUsername, &conv.StudentUsername, &conv.CreatedAt)
	return conv, err
}

func scanMessage(row interface{ Scan(...any) error }) (conversation.Message, error) {
	var msg conversation.Message
	var payload []byte
	err := row.Scan(&msg.Id, &msg.ConversationId, &msg.SenderUsername,
		&msg.Body, &msg.EventTag, &payload, &msg.CreatedAt)
	if len(payload) > 0 {
		msg.Payload = json.RawMessage(payload)
	}
	return msg, err
}

// EnsureConversation returns the one conversation tied to the application,
// creating it if needed. The UNIQUE constraint on application_id keeps
// concurrent callers from producing duplicates.
func (s *Storage) EnsureConversation(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	const op = "storage.postgres.EnsureConversation"

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO conversations(id, application_id, offer_id, company_username, student_username)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (application_id) DO NOTHING
	`, uuid.NewString(), conv.ApplicationId, conv.OfferId, conv.CompanyUsername, conv.StudentUsername)
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("%s: %w", op, err)
	}

	result, err := scanConversation(s.db.QueryRowContext(ctx, `
	SELECT `+conversationColumns+`
	FROM conversations
	WHERE application_id = $1
	`, conv.ApplicationId))
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

func (s *Storage) GetConversationByApplication(ctx context.Context, applicationId string) (conversation.Conversation, error) {
	const op = "storage.postgres.GetConversationByApplication"

	conv, err := scanConversation(s.db.QueryRowContext(ctx, `
	SELECT `+conversationColumns+`
	FROM conversations
	WHERE application_id = $1
	`, applicationId))

	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Conversation{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("%s: %w", op, err)
	}

	return conv, nil
}

func (s *Storage) AppendMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error) {
	const op = "storage.postgres.AppendMessage"

	var payload any
	if len(msg.Payload) > 0 {
		payload = []byte(msg.Payload)
	}

	result, err := scanMessage(s.db.QueryRowContext(ctx, `
	INSERT INTO messages(id, conversation_id, sender_username, body, event_tag, payload)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING `+messageColumns,
		uuid.NewString(), msg.ConversationId, msg.SenderUsername, msg.Body, msg.EventTag, payload))

	if err != nil {
		return conversation.Message{}, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

func (s *Storage) ReadMessages(ctx context.Context, conversationId string, limit, offset int) ([]conversation.Message, error) {
	const op = "storage.postgres.ReadMessages"
	result := make([]conversation.Message, 0)

	rows, err := s.db.QueryContext(ctx, `
	SELECT `+messageColumns+`
	FROM messages
	WHERE conversation_id = $1
	ORDER BY created_at ASC
	LIMIT $2
	OFFSET $3
	`, conversationId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, msg)
	}

	return result, nil
}
