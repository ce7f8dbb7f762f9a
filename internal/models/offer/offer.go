package offer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the offer variant tag. A single_hire offer takes exactly one
// accepted application; a multi_instance offer (platform services,
// micro-tasks) may have many simultaneous winners.
const (
	KindSingleHire    = "single_hire"
	KindMultiInstance = "multi_instance"
)

const (
	StatusDraft      = "draft"
	StatusPublished  = "published"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

type Offer struct {
	Id              string              `json:"id"`
	CompanyUsername string              `json:"companyUsername"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	Category        string              `json:"category"`
	Kind            string              `json:"kind"`
	Status          string              `json:"status"`
	Rate            decimal.NullDecimal `json:"rate"`
	SalaryMin       decimal.NullDecimal `json:"salaryMin"`
	SalaryMax       decimal.NullDecimal `json:"salaryMax"`
	CreatedAt       time.Time           `json:"createdAt"`
}

type CreateRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Kind        string `json:"kind" validate:"required,oneof=single_hire multi_instance"`
	Rate        string `json:"rate,omitempty"`
	SalaryMin   string `json:"salaryMin,omitempty"`
	SalaryMax   string `json:"salaryMax,omitempty"`
}
