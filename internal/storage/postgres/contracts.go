package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"student_market/internal/models/contract"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const contractColumns = `id, application_id, status, total, created_at, cancelled_at`
const milestoneColumns = `id, contract_id, title, amount, status, position, delivered_at, auto_accept_at`

func scanContract(row interface{ Scan(...any) error }) (contract.Contract, error) {
	var con contract.Contract
	err := row.Scan(&con.Id, &con.ApplicationId, &con.Status, &con.Total, &con.CreatedAt, &con.CancelledAt)
	return con, err
}

func scanMilestone(row interface{ Scan(...any) error }) (contract.Milestone, error) {
	var mil contract.Milestone
	err := row.Scan(&mil.Id, &mil.ContractId, &mil.Title, &mil.Amount, &mil.Status,
		&mil.Position, &mil.DeliveredAt, &mil.AutoAcceptAt)
	return mil, err
}

// EnsureContract creates the contract for an accepted application exactly
// once. Idempotency rides on the UNIQUE constraint over application_id:
// concurrent callers race on the insert, losers fall through to the select
// and observe the single surviving row.
func (s *Storage) EnsureContract(ctx context.Context, applicationId string, total decimal.Decimal, milestoneTitle string) (contract.Contract, error) {
	const op = "storage.postgres.EnsureContract"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	contractId := uuid.NewString()
	res, err := tx.ExecContext(ctx, `
	INSERT INTO contracts(id, application_id, status, total)
	VALUES ($1, $2, 'awaiting_funding', $3)
	ON CONFLICT (application_id) DO NOTHING
	`, contractId, applicationId, total)
	if err != nil {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, err)
	}

	if inserted == 1 {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO milestones(id, contract_id, title, amount, status, position)
		VALUES ($1, $2, $3, $4, 'pending', 1)
		`, uuid.NewString(), contractId, milestoneTitle, total)
		if err != nil {
			return contract.Contract{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	con, err := scanContract(tx.QueryRowContext(ctx, `
	SELECT `+contractColumns+`
	FROM contracts
	WHERE application_id = $1
	`, applicationId))
	if err != nil {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, err)
	}

	con.Milestones, err = s.readMilestones(ctx, con.Id)
	if err != nil {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, err)
	}

	return con, nil
}

func (s *Storage) GetContract(ctx context.Context, contractId string) (contract.Contract, error) {
	const op = "storage.postgres.GetContract"

	con, err := scanContract(s.db.QueryRowContext(ctx, `
	SELECT `+contractColumns+`
	FROM contracts
	WHERE id = $1
	`, contractId))

	if errors.Is(err, sql.ErrNoRows) {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, err)
	}

	con.Milestones, err = s.readMilestones(ctx, con.Id)
	if err != nil {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, err)
	}

	return con, nil
}

func (s *Storage) GetContractByApplication(ctx context.Context, applicationId string) (contract.Contract, error) {
	const op = "storage.postgres.GetContractByApplication"

	con, err := scanContract(s.db.QueryRowContext(ctx, `
	SELECT `+contractColumns+`
	FROM contracts
	WHERE application_id = $1
	`, applicationId))

	if errors.Is(err, sql.ErrNoRows) {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, err)
	}

	con.Milestones, err = s.readMilestones(ctx, con.Id)
	if err != nil {
		return contract.Contract{}, fmt.Errorf("%s: %w", op, err)
	}

	return con, nil
}

func (s *Storage) readMilestones(ctx context.Context, contractId string) ([]contract.Milestone, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+milestoneColumns+`
	FROM milestones
	WHERE contract_id = $1
	ORDER BY position ASC
	`, contractId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]contract.Milestone, 0)
	for rows.Next() {
		mil, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, mil)
	}

	return result, rows.Err()
}

func (s *Storage) GetMilestone(ctx context.Context, milestoneId string) (contract.Milestone, error) {
	const op = "storage.postgres.GetMilestone"

	mil, err := scanMilestone(s.db.QueryRowContext(ctx, `
	SELECT `+milestoneColumns+`
	FROM milestones
	WHERE id = $1
	`, milestoneId))

	if errors.Is(err, sql.ErrNoRows) {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	return mil, nil
}

// AddMilestone appends a pending milestone and grows the contract total by
// its amount, keeping the milestone-sum reconciliation intact.
func (s *Storage) AddMilestone(ctx context.Context, contractId, title string, amount decimal.Decimal) (contract.Milestone, error) {
	const op = "storage.postgres.AddMilestone"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	mil, err := scanMilestone(tx.QueryRowContext(ctx, `
	INSERT INTO milestones(id, contract_id, title, amount, status, position)
	VALUES ($1, $2, $3, $4, 'pending',
		(SELECT COALESCE(MAX(position), 0) + 1 FROM milestones WHERE contract_id = $2))
	RETURNING `+milestoneColumns,
		uuid.NewString(), contractId, title, amount))

	if err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE contracts
	SET total = total + $1
	WHERE id = $2
	`, amount, contractId)
	if err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	return mil, nil
}

// FundMilestone escrows a pending milestone. Funding the first milestone
// moves the contract from awaiting_funding to active.
func (s *Storage) FundMilestone(ctx context.Context, milestoneId string) (contract.Milestone, error) {
	const op = "storage.postgres.FundMilestone"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	mil, err := scanMilestone(tx.QueryRowContext(ctx, `
	UPDATE milestones
	SET status = 'funded'
	WHERE id = $1 AND status = 'pending'
	RETURNING `+milestoneColumns,
		milestoneId))

	if errors.Is(err, sql.ErrNoRows) {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE contracts
	SET status = 'active'
	WHERE id = $1 AND status = 'awaiting_funding'
	`, mil.ContractId)
	if err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	return mil, nil
}

func (s *Storage) DeliverMilestone(ctx context.Context, milestoneId string, autoAcceptAt time.Time) (contract.Milestone, error) {
	const op = "storage.postgres.DeliverMilestone"

	mil, err := scanMilestone(s.db.QueryRowContext(ctx, `
	UPDATE milestones
	SET status = 'delivered', delivered_at = now(), auto_accept_at = $1
	WHERE id = $2 AND status = 'funded'
	RETURNING `+milestoneColumns,
		autoAcceptAt, milestoneId))

	if errors.Is(err, sql.ErrNoRows) {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	return mil, nil
}

// AcceptMilestone releases a delivered milestone. Sibling milestones past
// their auto_accept_at deadline already read as accepted everywhere, so the
// same transaction persists them before checking for completion. When every
// milestone of the contract is settled, the contract, its application and
// the offer are closed out as completed.
func (s *Storage) AcceptMilestone(ctx context.Context, milestoneId string) (contract.Milestone, error) {
	const op = "storage.postgres.AcceptMilestone"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	mil, err := scanMilestone(tx.QueryRowContext(ctx, `
	UPDATE milestones
	SET status = 'accepted'
	WHERE id = $1 AND status = 'delivered'
	RETURNING `+milestoneColumns,
		milestoneId))

	if errors.Is(err, sql.ErrNoRows) {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE milestones
	SET status = 'accepted'
	WHERE contract_id = $1 AND status = 'delivered' AND auto_accept_at <= now()
	`, mil.ContractId)
	if err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	var contractDone bool
	err = tx.QueryRowContext(ctx, `
	UPDATE contracts
	SET status = 'completed'
	WHERE id = $1 AND status = 'active'
		AND NOT EXISTS (
			SELECT 1 FROM milestones
			WHERE contract_id = $1 AND status <> 'accepted'
		)
	RETURNING true
	`, mil.ContractId).Scan(&contractDone)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	if contractDone {
		_, err = tx.ExecContext(ctx, `
		UPDATE applications
		SET status = 'completed'
		WHERE id = (SELECT application_id FROM contracts WHERE id = $1) AND status = 'accepted'
		`, mil.ContractId)
		if err != nil {
			return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
		}

		_, err = tx.ExecContext(ctx, `
		UPDATE offers
		SET status = 'completed'
		WHERE status = 'in_progress' AND id = (
			SELECT a.offer_id FROM applications a
			JOIN contracts c ON c.application_id = a.id
			WHERE c.id = $1
		)
		`, mil.ContractId)
		if err != nil {
			return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return contract.Milestone{}, fmt.Errorf("%s: %w", op, err)
	}

	return mil, nil
}
