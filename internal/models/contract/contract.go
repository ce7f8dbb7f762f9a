package contract

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusAwaitingFunding = "awaiting_funding"
	StatusActive          = "active"
	StatusCompleted       = "completed"
	StatusCancelled       = "cancelled"
)

const (
	MilestonePending   = "pending"
	MilestoneFunded    = "funded"
	MilestoneDelivered = "delivered"
	MilestoneAccepted  = "accepted"
)

type Contract struct {
	Id            string          `json:"id"`
	ApplicationId string          `json:"applicationId"`
	Status        string          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"createdAt"`
	CancelledAt   *time.Time      `json:"cancelledAt,omitempty"`
	Milestones    []Milestone     `json:"milestones,omitempty"`
}

type Milestone struct {
	Id           string          `json:"id"`
	ContractId   string          `json:"contractId"`
	Title        string          `json:"title"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	Position     int             `json:"position"`
	DeliveredAt  *time.Time      `json:"deliveredAt,omitempty"`
	AutoAcceptAt *time.Time      `json:"autoAcceptAt,omitempty"`
}

// EffectiveStatus resolves auto-acceptance at read time: a delivered
// milestone whose auto_accept_at deadline has elapsed counts as accepted
// for every downstream consumer, even without an explicit company action.
func (m Milestone) EffectiveStatus(now time.Time) string {
	if m.Status == MilestoneDelivered && m.AutoAcceptAt != nil && !now.Before(*m.AutoAcceptAt) {
		return MilestoneAccepted
	}
	return m.Status
}

// Paid reports whether the milestone's escrow has been released to the student.
func (m Milestone) Paid(now time.Time) bool {
	return m.EffectiveStatus(now) == MilestoneAccepted
}

// InEscrow reports whether funds are held but not yet released.
func (m Milestone) InEscrow(now time.Time) bool {
	switch m.EffectiveStatus(now) {
	case MilestoneFunded, MilestoneDelivered:
		return true
	}
	return false
}

// Summary is the aggregation consumed by reporting surfaces. The contract's
// own status stays the authoritative completion signal.
type Summary struct {
	ContractId    string          `json:"contractId"`
	Status        string          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	PaidTotal     decimal.Decimal `json:"paidTotal"`
	InEscrowTotal decimal.Decimal `json:"inEscrowTotal"`
	Milestones    []Milestone     `json:"milestones"`
}

type AddMilestoneRequest struct {
	Title  string `json:"title" validate:"required"`
	Amount string `json:"amount" validate:"required"`
}
