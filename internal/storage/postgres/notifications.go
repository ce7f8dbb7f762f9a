package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"student_market/internal/models/notification"

	"github.com/google/uuid"
)

const notificationColumns = `id, username, event_type, payload, read_at, created_at`

func scanNotification(row interface{ Scan(...any) error }) (notification.Notification, error) {
	var n notification.Notification
	var payload []byte
	err := row.Scan(&n.Id, &n.Username, &n.EventType, &payload, &n.ReadAt, &n.CreatedAt)
	if len(payload) > 0 {
		n.Payload = json.RawMessage(payload)
	}
	return n, err
}

func (s *Storage) SaveNotification(ctx context.Context, n notification.Notification) error {
	const op = "storage.postgres.SaveNotification"

	var payload any
	if len(n.Payload) > 0 {
		payload = []byte(n.Payload)
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO notifications(id, username, event_type, payload)
	VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), n.Username, n.EventType, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) ReadMyNotifications(ctx context.Context, username string, limit, offset int) ([]notification.Notification, error) {
	const op = "storage.postgres.ReadMyNotifications"
	result := make([]notification.Notification, 0)

	rows, err := s.db.QueryContext(ctx, `
	SELECT `+notificationColumns+`
	FROM notifications
	WHERE username = $1
	ORDER BY read_at IS NOT NULL, created_at DESC
	LIMIT $2
	OFFSET $3
	`, username, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, n)
	}

	return result, nil
}

// MarkNotificationRead stamps read_at; notifications are otherwise
// append-only and never mutated.
func (s *Storage) MarkNotificationRead(ctx context.Context, notificationId, username string) (notification.Notification, error) {
	const op = "storage.postgres.MarkNotificationRead"

	n, err := scanNotification(s.db.QueryRowContext(ctx, `
	UPDATE notifications
	SET read_at = COALESCE(read_at, now())
	WHERE id = $1 AND username = $2
	RETURNING `+notificationColumns,
		notificationId, username))

	if errors.Is(err, sql.ErrNoRows) {
		return notification.Notification{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return notification.Notification{}, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}
