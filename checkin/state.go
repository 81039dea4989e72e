package checkin

import (
	"ticketfy-checkin/models"
)

// Phase is the coordinator's position in the check-in flow.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseLookingUp      Phase = "looking_up"
	PhaseReadyToConfirm Phase = "ready_to_confirm"
	PhaseSubmitting     Phase = "submitting"
	PhaseSettled        Phase = "settled"
)

// State is a snapshot for rendering. Outcome is set only in PhaseSettled; Last holds
// the most recent settlement and survives the return to Idle or ReadyToConfirm.
type State struct {
	Phase         Phase                `json:"phase"`
	TicketID      string               `json:"ticket_id,omitempty"`
	Source        models.Source        `json:"source,omitempty"`
	Ticket        *models.TicketRecord `json:"ticket,omitempty"`
	Outcome       models.Outcome       `json:"outcome,omitempty"`
	Last          *models.Settlement   `json:"last,omitempty"`
	Authorization models.Authorization `json:"authorization"`
	ReadOnly      bool                 `json:"read_only"`
	CanConfirm    bool                 `json:"can_confirm"`
	ConfirmLabel  string               `json:"confirm_label,omitempty"`
}

// withAffordances fills CanConfirm and ConfirmLabel from the rest of the state.
func (s State) withAffordances() State {
	s.CanConfirm = false
	s.ConfirmLabel = ""
	switch {
	case s.Phase == PhaseSubmitting:
		s.ConfirmLabel = "checking in..."
	case s.Phase != PhaseReadyToConfirm || s.Ticket == nil:
	case s.Ticket.Redeemed:
		s.ConfirmLabel = "already checked in"
	case s.ReadOnly:
		s.ConfirmLabel = "read-only console"
	case !s.Authorization.Authorized:
		s.ConfirmLabel = "not an authorized validator"
	default:
		s.CanConfirm = true
		s.ConfirmLabel = "confirm check-in"
	}
	return s
}

func (s State) clone() State {
	if s.Ticket != nil {
		t := *s.Ticket
		s.Ticket = &t
	}
	if s.Last != nil {
		l := *s.Last
		s.Last = &l
	}
	v := s.Authorization.Event.Validators
	s.Authorization.Event.Validators = append([]string(nil), v...)
	return s
}
