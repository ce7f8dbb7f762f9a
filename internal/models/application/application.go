package application

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusSent      = "sent"
	StatusCountered = "countered"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Terminal reports whether no further negotiation transition can leave status.
func Terminal(status string) bool {
	switch status {
	case StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Active reports whether the application is still progressing toward a hire.
// At most one active application per (offer, student) pair may exist.
func Active(status string) bool {
	switch status {
	case StatusSent, StatusCountered, StatusAccepted:
		return true
	}
	return false
}

type Application struct {
	Id              string              `json:"id"`
	OfferId         string              `json:"offerId"`
	StudentUsername string              `json:"studentUsername"`
	Status          string              `json:"status"`
	ProposedRate    decimal.NullDecimal `json:"proposedRate"`
	CounterRate     decimal.NullDecimal `json:"counterRate"`
	AgreedRate      decimal.NullDecimal `json:"agreedRate"`
	Message         string              `json:"message"`
	DecidedAt       *time.Time          `json:"decidedAt,omitempty"`
	CancelledAt     *time.Time          `json:"cancelledAt,omitempty"`
	CancelReason    string              `json:"cancelReason,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
}

type ApplyRequest struct {
	OfferId      string `json:"offerId" validate:"required"`
	ProposedRate string `json:"proposedRate,omitempty"`
	Message      string `json:"message,omitempty"`
}

type CounterRequest struct {
	CounterRate string `json:"counterRate" validate:"required"`
}

type ProposeRequest struct {
	ProposedRate string `json:"proposedRate" validate:"required"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}
