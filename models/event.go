package models

import (
	"time"
)

// EventSnapshot is the on-chain state of an event contract as read by the authorization gate.
type EventSnapshot struct {
	EventID          string    `json:"event_id"`
	Exists           bool      `json:"exists"`
	Validators       []string  `json:"validators"`
	TotalTicketsSold uint64    `json:"total_tickets_sold"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// Authorization is the outcome of checking a validator identity against an event.
type Authorization struct {
	EventID    string        `json:"event_id"`
	Identity   string        `json:"identity"`
	Authorized bool          `json:"authorized"`
	Event      EventSnapshot `json:"event"`
}
