package models

// TicketRecord is the backend's view of one minted ticket and its owner.
type TicketRecord struct {
	TicketID  string `json:"ticket_id"`
	Owner     string `json:"owner"`
	OwnerName string `json:"owner_name,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	Redeemed  bool   `json:"redeemed"`
}

// DisplayOwner returns the owner's name, or a shortened address when no name is known.
func (t TicketRecord) DisplayOwner() string {
	return displayName(t.OwnerName, t.Owner)
}

// RecentEntry is one already checked-in ticket as listed by the backend.
type RecentEntry struct {
	TicketID   string `json:"ticket_id"`
	Owner      string `json:"owner"`
	OwnerName  string `json:"owner_name,omitempty"`
	RedeemedAt string `json:"redeemed_at"`
}

func (e RecentEntry) DisplayOwner() string {
	return displayName(e.OwnerName, e.Owner)
}

// TicketDataResponse mirrors GET /ticket-data/{ticketId}.
type TicketDataResponse struct {
	Owner     string `json:"owner"`
	OwnerName string `json:"ownerName"`
	Ticket    struct {
		NFTMint  string `json:"nftMint"`
		Event    string `json:"event"`
		Redeemed bool   `json:"redeemed"`
	} `json:"ticket"`
	Event *struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	} `json:"event,omitempty"`
	Error string `json:"error,omitempty"`
}

// ValidatedTicketResponse mirrors one element of GET /event/{eventId}/validated-tickets.
// Older backend builds send the owner's name as "name".
type ValidatedTicketResponse struct {
	NFTMint    string `json:"nftMint"`
	Owner      string `json:"owner"`
	OwnerName  string `json:"ownerName"`
	Name       string `json:"name"`
	RedeemedAt string `json:"redeemedAt"`
}

func displayName(name, address string) string {
	if name != "" {
		return name
	}
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
