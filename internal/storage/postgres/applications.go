package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"student_market/internal/models/application"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const applicationColumns = `id, offer_id, student_username, status, proposed_rate, counter_rate, agreed_rate, message, decided_at, cancelled_at, cancel_reason, created_at`

func scanApplication(row interface{ Scan(...any) error }) (application.Application, error) {
	var app application.Application
	err := row.Scan(&app.Id, &app.OfferId, &app.StudentUsername, &app.Status,
		&app.ProposedRate, &app.CounterRate, &app.AgreedRate, &app.Message,
		&app.DecidedAt, &app.CancelledAt, &app.CancelReason, &app.CreatedAt)
	return app, err
}

func (s *Storage) SaveApplication(ctx context.Context, app application.Application) (application.Application, error) {
	const op = "storage.postgres.SaveApplication"

	result, err := scanApplication(s.db.QueryRowContext(ctx, `
	INSERT INTO applications(id, offer_id, student_username, status, proposed_rate, message)
	VALUES ($1, $2, $3, 'sent', $4, $5)
	RETURNING `+applicationColumns,
		uuid.NewString(), app.OfferId, app.StudentUsername, app.ProposedRate, app.Message))

	if err != nil {
		if isUniqueViolation(err) {
			return application.Application{}, fmt.Errorf("%s: %w", op, ErrAlreadyApplied)
		}
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

func (s *Storage) GetApplication(ctx context.Context, applicationId string) (application.Application, error) {
	const op = "storage.postgres.GetApplication"

	app, err := scanApplication(s.db.QueryRowContext(ctx, `
	SELECT `+applicationColumns+`
	FROM applications
	WHERE id = $1
	`, applicationId))

	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	return app, nil
}

func (s *Storage) ReadMyApplications(ctx context.Context, studentUsername string, limit, offset int) ([]application.Application, error) {
	const op = "storage.postgres.ReadMyApplications"
	return s.readApplications(ctx, op, `
	SELECT `+applicationColumns+`
	FROM applications
	WHERE student_username = $1
	ORDER BY created_at DESC
	LIMIT $2
	OFFSET $3
	`, studentUsername, limit, offset)
}

func (s *Storage) ReadOfferApplications(ctx context.Context, offerId string, limit, offset int) ([]application.Application, error) {
	const op = "storage.postgres.ReadOfferApplications"
	return s.readApplications(ctx, op, `
	SELECT `+applicationColumns+`
	FROM applications
	WHERE offer_id = $1
	ORDER BY created_at ASC
	LIMIT $2
	OFFSET $3
	`, offerId, limit, offset)
}

func (s *Storage) readApplications(ctx context.Context, op, query string, args ...any) ([]application.Application, error) {
	result := make([]application.Application, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, app)
	}

	return result, nil
}

// CounterApplication moves a sent application to countered with the given
// counter rate, clearing any stale agreement fields. The write is a CAS on
// status = 'sent'; a lost race surfaces as ErrConflict.
func (s *Storage) CounterApplication(ctx context.Context, applicationId string, counterRate decimal.Decimal) (application.Application, error) {
	const op = "storage.postgres.CounterApplication"

	app, err := scanApplication(s.db.QueryRowContext(ctx, `
	UPDATE applications
	SET status = 'countered', counter_rate = $1, agreed_rate = NULL, decided_at = NULL
	WHERE id = $2 AND status = 'sent'
	RETURNING `+applicationColumns,
		counterRate, applicationId))

	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	return app, nil
}

// ProposeNewRate reopens the loop after a counter: back to sent with a fresh
// proposed rate, counter and agreement cleared.
func (s *Storage) ProposeNewRate(ctx context.Context, applicationId string, proposedRate decimal.Decimal) (application.Application, error) {
	const op = "storage.postgres.ProposeNewRate"

	app, err := scanApplication(s.db.QueryRowContext(ctx, `
	UPDATE applications
	SET status = 'sent', proposed_rate = $1, counter_rate = NULL, agreed_rate = NULL, decided_at = NULL
	WHERE id = $2 AND status = 'countered'
	RETURNING `+applicationColumns,
		proposedRate, applicationId))

	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	return app, nil
}

func (s *Storage) RejectApplication(ctx context.Context, applicationId string) (application.Application, error) {
	const op = "storage.postgres.RejectApplication"

	app, err := scanApplication(s.db.QueryRowContext(ctx, `
	UPDATE applications
	SET status = 'rejected', decided_at = now()
	WHERE id = $1 AND status IN ('sent', 'countered')
	RETURNING `+applicationColumns,
		applicationId))

	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	return app, nil
}

func (s *Storage) WithdrawApplication(ctx context.Context, applicationId string) (application.Application, error) {
	const op = "storage.postgres.WithdrawApplication"

	app, err := scanApplication(s.db.QueryRowContext(ctx, `
	UPDATE applications
	SET status = 'cancelled', cancelled_at = now()
	WHERE id = $1 AND status IN ('sent', 'countered')
	RETURNING `+applicationColumns,
		applicationId))

	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	return app, nil
}

// AcceptApplication performs the accepting write and, for single-hire
// offers, the competing-application sweep in one transaction: the winner is
// CAS'd to accepted, every sibling still in sent/countered is rejected, and
// the offer flips published -> in_progress. Two concurrent accepts on the
// same offer cannot both commit; the loser observes ErrConflict.
func (s *Storage) AcceptApplication(ctx context.Context, applicationId, fromStatus string, agreedRate decimal.Decimal, singleHire bool) (application.Application, []application.Application, error) {
	const op = "storage.postgres.AcceptApplication"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return application.Application{}, nil, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	winner, err := scanApplication(tx.QueryRowContext(ctx, `
	UPDATE applications
	SET status = 'accepted', agreed_rate = $1, decided_at = now()
	WHERE id = $2 AND status = $3
	RETURNING `+applicationColumns,
		agreedRate, applicationId, fromStatus))

	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, nil, fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return application.Application{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	rejected := make([]application.Application, 0)
	if singleHire {
		_, err = scanOffer(tx.QueryRowContext(ctx, `
		UPDATE offers
		SET status = 'in_progress'
		WHERE id = $1 AND status = 'published'
		RETURNING `+offerColumns,
			winner.OfferId))

		if errors.Is(err, sql.ErrNoRows) {
			return application.Application{}, nil, fmt.Errorf("%s: %w", op, ErrConflict)
		}
		if err != nil {
			return application.Application{}, nil, fmt.Errorf("%s: %w", op, err)
		}

		rows, err := tx.QueryContext(ctx, `
		UPDATE applications
		SET status = 'rejected', decided_at = now()
		WHERE offer_id = $1 AND id <> $2 AND status IN ('sent', 'countered')
		RETURNING `+applicationColumns,
			winner.OfferId, winner.Id)

		if err != nil {
			return application.Application{}, nil, fmt.Errorf("%s: %w", op, err)
		}

		for rows.Next() {
			app, err := scanApplication(rows)
			if err != nil {
				rows.Close()
				return application.Application{}, nil, fmt.Errorf("%s: %w", op, err)
			}
			rejected = append(rejected, app)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return application.Application{}, nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return application.Application{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	return winner, rejected, nil
}

// CancelApplication is the authoritative cancel routine: the accepted
// application becomes cancelled with reason and timestamp, its contract (if
// any) and offer are closed out in the same transaction.
func (s *Storage) CancelApplication(ctx context.Context, applicationId, reason string) (application.Application, error) {
	const op = "storage.postgres.CancelApplication"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	app, err := scanApplication(tx.QueryRowContext(ctx, `
	UPDATE applications
	SET status = 'cancelled', cancelled_at = now(), cancel_reason = $1
	WHERE id = $2 AND status = 'accepted'
	RETURNING `+applicationColumns,
		reason, applicationId))

	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE contracts
	SET status = 'cancelled', cancelled_at = now()
	WHERE application_id = $1 AND status <> 'completed'
	`, app.Id)
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE offers
	SET status = 'cancelled'
	WHERE id = $1 AND status = 'in_progress'
	`, app.OfferId)
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	return app, nil
}
