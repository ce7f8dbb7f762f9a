package notification

import (
	"encoding/json"
	"time"
)

const (
	EventProposalAccepted  = "proposal_accepted"
	EventCounterOffer      = "counter_offer"
	EventNewProposal       = "new_proposal"
	EventRejected          = "rejected"
	EventWithdrawn         = "withdrawn"
	EventOfferFilled       = "offer_filled"
	EventCancelled         = "cancelled"
	EventMilestoneFunded   = "milestone_funded"
	EventMilestoneDelivery = "milestone_delivered"
	EventMilestoneAccepted = "milestone_accepted"
)

// Notification is an append-only inbox entry; only read_at is ever mutated.
type Notification struct {
	Id        string          `json:"id"`
	Username  string          `json:"username"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ReadAt    *time.Time      `json:"readAt,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
