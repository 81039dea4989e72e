// Package checkin drives one validator console: identifier lookup, confirmation,
// on-chain redemption and the follow-up refreshes.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticketfy-checkin/claims"
	"ticketfy-checkin/models"
	"ticketfy-checkin/redemption"
)

var (
	ErrBusy             = errors.New("a check-in is being submitted")
	ErrStale            = errors.New("superseded by a newer identifier")
	ErrNothingToConfirm = errors.New("no ticket is ready to confirm")
	ErrClaimed          = fmt.Errorf("%w: another station is checking in this ticket", ErrBusy)
	ErrClosed           = errors.New("console is closed")
	ErrTicketChanged    = fmt.Errorf("%w: the tracked ticket changed", ErrStale)
)

type Lookup interface {
	Lookup(ctx context.Context, ticketID string) (models.TicketRecord, error)
}

type Gate interface {
	Check(ctx context.Context, eventID, identity string) (models.Authorization, error)
}

type Submitter interface {
	Submit(ctx context.Context, req redemption.Request) (models.Receipt, error)
}

// Recent is the recent-entries feed the console shows next to the scanner.
type Recent interface {
	Refresh(ctx context.Context) error
	Entries() []models.RecentEntry
	Subscribe() (<-chan []models.RecentEntry, func())
	Stop()
}

// Sink receives every redemption settlement. Errors are logged only.
type Sink interface {
	Record(ctx context.Context, s models.Settlement) error
}

type Claims interface {
	Acquire(ctx context.Context, eventID, ticketID, station string) (bool, error)
	Release(ctx context.Context, eventID, ticketID, station string) error
}

// Location removes the ticket parameter from the page URL after a deep-link check-in.
type Location interface {
	ClearTicketParam()
}

type Config struct {
	EventID  string
	Identity string
	Lookup   Lookup
	Gate     Gate
	// Submitter is nil on a read-only console.
	Submitter Submitter
	Feed      Recent
	// Claims defaults to an in-process claim set.
	Claims   Claims
	Sinks    []Sink
	Location Location
	Logger   *slog.Logger
	// Station identifies this console to other stations; random when empty.
	Station string
}

type Coordinator struct {
	eventID   string
	identity  string
	station   string
	lookup    Lookup
	gate      Gate
	submitter Submitter
	feed      Recent
	claims    Claims
	sinks     []Sink
	location  Location
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     State
	gen       uint64
	watchers  map[int]chan State
	nextWatch int
	closed    bool
}

func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	station := cfg.Station
	if station == "" {
		station = uuid.NewString()
	}
	cl := cfg.Claims
	if cl == nil {
		cl = claims.NewLocal(claims.DefaultTTL)
	}
	return &Coordinator{
		eventID:   cfg.EventID,
		identity:  cfg.Identity,
		station:   station,
		lookup:    cfg.Lookup,
		gate:      cfg.Gate,
		submitter: cfg.Submitter,
		feed:      cfg.Feed,
		claims:    cl,
		sinks:     cfg.Sinks,
		location:  cfg.Location,
		logger:    logger.With("event", cfg.EventID, "station", station),
		now:       time.Now,
		state: State{
			Phase:    PhaseIdle,
			ReadOnly: cfg.Submitter == nil,
			Authorization: models.Authorization{
				EventID:  cfg.EventID,
				Identity: cfg.Identity,
				Event:    models.EventSnapshot{EventID: cfg.EventID},
			},
		},
		watchers: make(map[int]chan State),
	}
}

func (c *Coordinator) EventID() string  { return c.eventID }
func (c *Coordinator) Identity() string { return c.identity }

// Authorize reads the validator set and stores the result. On error the console stays
// unauthorized and the error is returned for a retry prompt.
func (c *Coordinator) Authorize(ctx context.Context) (models.Authorization, error) {
	auth, err := c.gate.Check(ctx, c.eventID, c.identity)
	if err != nil {
		c.logger.Warn("authorization check failed", "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Authorization = auth
	c.publishLocked()
	return auth, err
}

// Submit looks up a scanned, typed or deep-linked identifier. Only the most recent
// identifier's lookup is applied; earlier ones return ErrStale.
func (c *Coordinator) Submit(ctx context.Context, raw string, source models.Source) (State, error) {
	ticketID := ParseIdentifier(raw)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.State(), ErrClosed
	}
	if c.state.Phase == PhaseSubmitting {
		c.mu.Unlock()
		return c.State(), ErrBusy
	}
	c.gen++
	gen := c.gen
	c.state = State{
		Phase:         PhaseLookingUp,
		TicketID:      ticketID,
		Source:        source,
		Last:          c.state.Last,
		Authorization: c.state.Authorization,
		ReadOnly:      c.state.ReadOnly,
	}
	c.publishLocked()
	c.mu.Unlock()

	record, err := c.lookup.Lookup(ctx, ticketID)
	if err == nil && record.EventID != "" && !strings.EqualFold(record.EventID, c.eventID) {
		err = models.NewError(models.KindNotFound, "ticket is for a different event", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state.TicketID != ticketID {
		return c.state.withAffordances().clone(), ErrStale
	}

	if err != nil {
		c.logger.Info("ticket lookup failed", "ticket", ticketID, "error", err)
		settlement := models.Settlement{
			EventID:   c.eventID,
			TicketID:  ticketID,
			Outcome:   models.OutcomeFailed,
			Kind:      models.KindOf(err),
			Message:   models.MessageOf(err),
			SettledAt: c.now(),
		}
		c.state.Phase = PhaseSettled
		c.state.Outcome = models.OutcomeFailed
		c.state.Last = &settlement
		c.publishLocked()
		return c.state.withAffordances().clone(), err
	}

	if record.EventID == "" {
		record.EventID = c.eventID
	}
	c.state.Phase = PhaseReadyToConfirm
	c.state.Ticket = &record
	c.publishLocked()
	return c.state.withAffordances().clone(), nil
}

// Confirm redeems the ticket in ReadyToConfirm. It fails without a network call when the
// ticket is already redeemed, the console is unauthorized or read-only. The submission
// is not cancelled when ctx is.
func (c *Coordinator) Confirm(ctx context.Context) (State, error) {
	return c.ConfirmTicket(ctx, "")
}

// ConfirmTicket is Confirm for callers that render the state remotely: ticketID is the
// ticket the operator saw, and ErrTicketChanged is returned when another ticket is tracked
// by now. An empty ticketID confirms whatever is tracked.
func (c *Coordinator) ConfirmTicket(ctx context.Context, ticketID string) (State, error) {
	c.mu.Lock()
	if err := c.confirmableLocked(ParseIdentifier(ticketID)); err != nil {
		snapshot := c.state.withAffordances().clone()
		c.mu.Unlock()
		return snapshot, err
	}
	ticket := *c.state.Ticket
	source := c.state.Source
	c.gen++
	gen := c.gen
	c.state.Phase = PhaseSubmitting
	c.state.Outcome = ""
	c.publishLocked()
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	logger := c.logger.With("ticket", ticket.TicketID)

	ok, err := c.claims.Acquire(ctx, c.eventID, ticket.TicketID, c.station)
	if err != nil {
		logger.Warn("claim store unavailable, submitting without a claim", "error", err)
		ok = true
	}
	if !ok {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.state.Phase = PhaseReadyToConfirm
		c.publishLocked()
		return c.state.withAffordances().clone(), ErrClaimed
	}
	defer func() {
		if err := c.claims.Release(ctx, c.eventID, ticket.TicketID, c.station); err != nil {
			logger.Warn("failed to release claim", "error", err)
		}
	}()

	receipt, err := c.submitter.Submit(ctx, redemption.Request{
		TicketID:  ticket.TicketID,
		EventID:   c.eventID,
		Owner:     ticket.Owner,
		Validator: c.identity,
	})
	settlement := c.settle(ticket, receipt, err)
	c.record(ctx, settlement)

	if settlement.Outcome == models.OutcomeFailed {
		logger.Warn("redemption failed", "kind", settlement.Kind, "error", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		c.state.Phase = PhaseReadyToConfirm
		c.state.Last = &settlement
		c.publishLocked()
		return c.state.withAffordances().clone(), err
	}
	logger.Info("ticket checked in", "outcome", settlement.Outcome, "tx", settlement.TxHash)

	c.mu.Lock()
	ticket.Redeemed = true
	c.state.Phase = PhaseSettled
	c.state.Outcome = settlement.Outcome
	c.state.Ticket = &ticket
	c.state.Last = &settlement
	c.publishLocked()
	settled := c.state.withAffordances().clone()
	c.mu.Unlock()

	c.afterRedemption(ctx, source)

	c.mu.Lock()
	if c.gen == gen {
		c.state = State{
			Phase:         PhaseIdle,
			Last:          c.state.Last,
			Authorization: c.state.Authorization,
			ReadOnly:      c.state.ReadOnly,
		}
		c.publishLocked()
	}
	c.mu.Unlock()
	return settled, nil
}

func (c *Coordinator) confirmableLocked(ticketID string) error {
	switch {
	case c.closed:
		return ErrClosed
	case c.state.Phase == PhaseSubmitting:
		return ErrBusy
	case c.state.Phase != PhaseReadyToConfirm || c.state.Ticket == nil:
		return ErrNothingToConfirm
	case ticketID != "" && !strings.EqualFold(ticketID, c.state.TicketID):
		return ErrTicketChanged
	case c.state.Ticket.Redeemed:
		return models.NewError(models.KindAlreadyRedeemed, models.DefaultMessage(models.KindAlreadyRedeemed), nil)
	case c.submitter == nil:
		return models.NewError(models.KindUnauthorized, "console is read-only, no validator key configured", nil)
	case !c.state.Authorization.Authorized:
		return models.NewError(models.KindUnauthorized, models.DefaultMessage(models.KindUnauthorized), nil)
	}
	return nil
}

func (c *Coordinator) settle(ticket models.TicketRecord, receipt models.Receipt, err error) models.Settlement {
	s := models.Settlement{
		EventID:   c.eventID,
		TicketID:  ticket.TicketID,
		Owner:     ticket.Owner,
		OwnerName: ticket.OwnerName,
		Validator: c.identity,
		SettledAt: c.now(),
	}
	switch kind := models.KindOf(err); kind {
	case models.KindNone:
		s.Outcome = models.OutcomeSuccess
		s.Message = "checked in"
		s.TxHash = receipt.TxHash
	case models.KindAlreadyRedeemed:
		s.Outcome = models.OutcomeAlreadyDone
		s.Kind = kind
		s.Message = models.DefaultMessage(kind)
	default:
		s.Outcome = models.OutcomeFailed
		s.Kind = kind
		s.Message = models.MessageOf(err)
	}
	return s
}

func (c *Coordinator) record(ctx context.Context, s models.Settlement) {
	for _, sink := range c.sinks {
		if err := sink.Record(ctx, s); err != nil {
			c.logger.Warn("failed to record settlement", "ticket", s.TicketID, "outcome", s.Outcome, "error", err)
		}
	}
}

func (c *Coordinator) afterRedemption(ctx context.Context, source models.Source) {
	if c.feed != nil {
		if err := c.feed.Refresh(ctx); err != nil {
			c.logger.Warn("failed to refresh recent entries after check-in", "error", err)
		}
	}
	c.Authorize(ctx)
	if source == models.SourceDeepLink && c.location != nil {
		c.location.ClearTicketParam()
	}
}

// Dismiss drops the tracked identifier. It returns ErrBusy while a submission is in
// flight and never cancels it.
func (c *Coordinator) Dismiss() (State, error) {
	c.mu.Lock()
	if c.state.Phase == PhaseSubmitting {
		snapshot := c.state.withAffordances().clone()
		c.mu.Unlock()
		return snapshot, ErrBusy
	}
	deepLink := c.state.Source == models.SourceDeepLink && c.state.TicketID != ""
	c.gen++
	c.state = State{
		Phase:         PhaseIdle,
		Last:          c.state.Last,
		Authorization: c.state.Authorization,
		ReadOnly:      c.state.ReadOnly,
	}
	c.publishLocked()
	snapshot := c.state.withAffordances().clone()
	c.mu.Unlock()

	if deepLink && c.location != nil {
		c.location.ClearTicketParam()
	}
	return snapshot, nil
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.withAffordances().clone()
}

// Recent returns the feed's last good list.
func (c *Coordinator) Recent() []models.RecentEntry {
	if c.feed == nil {
		return nil
	}
	return c.feed.Entries()
}

// Watch delivers the current state and every change after it. Slow watchers only see
// the latest state. The channel is closed by Close.
func (c *Coordinator) Watch() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextWatch
	c.nextWatch++
	c.watchers[id] = ch
	ch <- c.state.withAffordances().clone()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(w)
		}
	}
}

// Close stops polling and closes every watcher. A submission in flight still settles.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, ch := range c.watchers {
		delete(c.watchers, id)
		close(ch)
	}
	c.mu.Unlock()

	if c.feed != nil {
		c.feed.Stop()
	}
}

func (c *Coordinator) publishLocked() {
	snapshot := c.state.withAffordances()
	for _, ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot.clone()
	}
}
