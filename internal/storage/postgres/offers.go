package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"student_market/internal/models/offer"

	"github.com/google/uuid"
)

const offerColumns = `id, company_username, name, description, category, kind, status, rate, salary_min, salary_max, created_at`

func scanOffer(row interface{ Scan(...any) error }) (offer.Offer, error) {
	var off offer.Offer
	err := row.Scan(&off.Id, &off.CompanyUsername, &off.Name, &off.Description, &off.Category,
		&off.Kind, &off.Status, &off.Rate, &off.SalaryMin, &off.SalaryMax, &off.CreatedAt)
	return off, err
}

func (s *Storage) SaveOffer(off offer.Offer) (offer.Offer, error) {
	const op = "storage.postgres.SaveOffer"

	result, err := scanOffer(s.db.QueryRow(`
	INSERT INTO offers(id, company_username, name, description, category, kind, status, rate, salary_min, salary_max)
	VALUES ($1, $2, $3, $4, $5, $6, 'draft', $7, $8, $9)
	RETURNING `+offerColumns,
		uuid.NewString(), off.CompanyUsername, off.Name, off.Description, off.Category,
		off.Kind, off.Rate, off.SalaryMin, off.SalaryMax))

	if err != nil {
		return offer.Offer{}, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

func (s *Storage) GetOffer(offerId string) (offer.Offer, error) {
	const op = "storage.postgres.GetOffer"

	off, err := scanOffer(s.db.QueryRow(`
	SELECT `+offerColumns+`
	FROM offers
	WHERE id = $1
	`, offerId))

	if errors.Is(err, sql.ErrNoRows) {
		return offer.Offer{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return offer.Offer{}, fmt.Errorf("%s: %w", op, err)
	}

	return off, nil
}

func (s *Storage) ReadMyOffers(companyUsername string, limit, offset int) ([]offer.Offer, error) {
	const op = "storage.postgres.ReadMyOffers"
	result := make([]offer.Offer, 0)

	rows, err := s.db.Query(`
	SELECT `+offerColumns+`
	FROM offers
	WHERE company_username = $1
	ORDER BY created_at DESC
	LIMIT $2
	OFFSET $3
	`, companyUsername, limit, offset)

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		off, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, off)
	}

	return result, nil
}

// UpdateOfferStatus moves the offer between lifecycle states with a
// compare-and-swap on the current status. A vanished precondition is a
// conflict, not a silent overwrite.
func (s *Storage) UpdateOfferStatus(offerId, fromStatus, toStatus string) (offer.Offer, error) {
	const op = "storage.postgres.UpdateOfferStatus"

	off, err := scanOffer(s.db.QueryRow(`
	UPDATE offers
	SET status = $1
	WHERE id = $2 AND status = $3
	RETURNING `+offerColumns,
		toStatus, offerId, fromStatus))

	if errors.Is(err, sql.ErrNoRows) {
		return offer.Offer{}, fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return offer.Offer{}, fmt.Errorf("%s: %w", op, err)
	}

	return off, nil
}
