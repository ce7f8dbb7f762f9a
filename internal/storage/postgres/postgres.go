package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"student_market/internal/models/user"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Sentinel errors the service layer translates into domain error kinds.
var (
	ErrNotFound       = errors.New("not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrConflict       = errors.New("concurrent update conflict")
	ErrAlreadyApplied = errors.New("student already has an active application for this offer")
)

type Storage struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username VARCHAR(100) UNIQUE NOT NULL,
		role VARCHAR(20) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS offers (
		id UUID PRIMARY KEY,
		company_username VARCHAR(100) NOT NULL REFERENCES users(username) ON DELETE CASCADE,
		name VARCHAR(100) NOT NULL,
		description VARCHAR(2000) NOT NULL,
		category VARCHAR(100) NOT NULL,
		kind VARCHAR(20) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'draft',
		rate NUMERIC(12,2),
		salary_min NUMERIC(12,2),
		salary_max NUMERIC(12,2),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS applications (
		id UUID PRIMARY KEY,
		offer_id UUID NOT NULL REFERENCES offers(id) ON DELETE CASCADE,
		student_username VARCHAR(100) NOT NULL REFERENCES users(username) ON DELETE CASCADE,
		status VARCHAR(20) NOT NULL DEFAULT 'sent',
		proposed_rate NUMERIC(12,2),
		counter_rate NUMERIC(12,2),
		agreed_rate NUMERIC(12,2),
		message VARCHAR(2000) NOT NULL DEFAULT '',
		decided_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		cancel_reason VARCHAR(500) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS applications_one_active
		ON applications(offer_id, student_username)
		WHERE status IN ('sent', 'countered', 'accepted');`,
	`CREATE TABLE IF NOT EXISTS contracts (
		id UUID PRIMARY KEY,
		application_id UUID NOT NULL UNIQUE REFERENCES applications(id) ON DELETE CASCADE,
		status VARCHAR(20) NOT NULL DEFAULT 'awaiting_funding',
		total NUMERIC(12,2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		cancelled_at TIMESTAMPTZ
	);`,
	`CREATE TABLE IF NOT EXISTS milestones (
		id UUID PRIMARY KEY,
		contract_id UUID NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		title VARCHAR(200) NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		position INT NOT NULL,
		delivered_at TIMESTAMPTZ,
		auto_accept_at TIMESTAMPTZ
	);`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		application_id UUID NOT NULL UNIQUE REFERENCES applications(id) ON DELETE CASCADE,
		offer_id UUID NOT NULL,
		company_username VARCHAR(100) NOT NULL,
		student_username VARCHAR(100) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_username VARCHAR(100) NOT NULL,
		body VARCHAR(4000) NOT NULL,
		event_tag VARCHAR(50) NOT NULL DEFAULT '',
		payload JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		username VARCHAR(100) NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		payload JSONB,
		read_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS notifications_username_idx ON notifications(username, created_at DESC);`,
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &Storage{db: db}, nil
}

func (s *Storage) SaveUser(username, role string) (user.User, error) {
	const op = "storage.postgres.SaveUser"
	var usr user.User

	err := s.db.QueryRow(`
	INSERT INTO users(id, username, role)
	VALUES ($1, $2, $3)
	RETURNING id, username, role, created_at
	`, uuid.NewString(), username, role).Scan(&usr.Id, &usr.Username, &usr.Role, &usr.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, fmt.Errorf("%s: %w", op, ErrConflict)
		}
		return user.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return usr, nil
}

func (s *Storage) FetchUser(username string) (user.User, error) {
	const op = "storage.postgres.FetchUser"
	var usr user.User

	err := s.db.QueryRow(`
	SELECT id, username, role, created_at
	FROM users
	WHERE username = $1
	`, username).Scan(&usr.Id, &usr.Username, &usr.Role, &usr.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return user.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return usr, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
