package models

import (
	"time"

	"github.com/google/uuid"
)

// Source tells where a ticket identifier entered the console.
type Source string

const (
	SourceScan     Source = "scan"
	SourceManual   Source = "manual"
	SourceDeepLink Source = "link"
)

func ParseSource(s string) Source {
	switch Source(s) {
	case SourceScan, SourceDeepLink:
		return Source(s)
	default:
		return SourceManual
	}
}

// Outcome is how a check-in attempt settled.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeAlreadyDone Outcome = "already_done"
	OutcomeFailed      Outcome = "failed"
)

// Settlement describes a finished lookup or redemption attempt.
type Settlement struct {
	EventID   string    `json:"event_id"`
	TicketID  string    `json:"ticket_id"`
	Owner     string    `json:"owner,omitempty"`
	OwnerName string    `json:"owner_name,omitempty"`
	Validator string    `json:"validator,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Kind      ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"message"`
	TxHash    string    `json:"tx_hash,omitempty"`
	SettledAt time.Time `json:"settled_at"`
}

// Receipt is returned by the redemption submitter once the transaction is confirmed.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

// JournalEntry is a persisted settlement (checkin_journal table).
type JournalEntry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	EventID   string    `json:"event_id" db:"event_id"`
	TicketID  string    `json:"ticket_id" db:"ticket_id"`
	Owner     string    `json:"owner" db:"owner_address"`
	Validator string    `json:"validator" db:"validator_address"`
	Outcome   Outcome   `json:"outcome" db:"outcome"`
	TxHash    *string   `json:"tx_hash,omitempty" db:"tx_hash"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TicketRedeemedEvent is published to the broker when a ticket is checked in.
type TicketRedeemedEvent struct {
	EventID    string `json:"event_id"`
	TicketID   string `json:"ticket_id"`
	Owner      string `json:"owner"`
	OwnerName  string `json:"owner_name,omitempty"`
	Validator  string `json:"validator"`
	Outcome    string `json:"outcome"`
	TxHash     string `json:"tx_hash,omitempty"`
	RedeemedAt string `json:"redeemed_at"`
}

// TicketRequest is the body of POST /console/tickets.
type TicketRequest struct {
	Ticket string `json:"ticket" binding:"required"`
	Source string `json:"source"`
}

// ConfirmRequest is the body of POST /console/confirm: the ticket shown to the operator.
type ConfirmRequest struct {
	Ticket string `json:"ticket" binding:"required"`
}
