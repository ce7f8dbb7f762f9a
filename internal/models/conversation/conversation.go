package conversation

import (
	"encoding/json"
	"time"
)

// Event tags carried by system-generated messages.
const (
	EventProposalAccepted = "proposal_accepted"
	EventCounterOffer     = "counter_offer"
	EventNewProposal      = "new_proposal"
	EventRejected         = "rejected"
	EventWithdrawn        = "withdrawn"
	EventCancelled        = "cancelled"
)

type Conversation struct {
	Id              string    `json:"id"`
	ApplicationId   string    `json:"applicationId"`
	OfferId         string    `json:"offerId"`
	CompanyUsername string    `json:"companyUsername"`
	StudentUsername string    `json:"studentUsername"`
	CreatedAt       time.Time `json:"createdAt"`
}

type Message struct {
	Id             string          `json:"id"`
	ConversationId string          `json:"conversationId"`
	SenderUsername string          `json:"senderUsername"`
	Body           string          `json:"body"`
	EventTag       string          `json:"eventTag,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type PostMessageRequest struct {
	Body string `json:"body" validate:"required"`
}
