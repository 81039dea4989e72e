// Package gate decides whether a wallet may check tickets in for an event.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ticketfy-checkin/contracts"
	"ticketfy-checkin/models"
)

const DefaultTimeout = 12 * time.Second

// Gate reads the event contract's validator set.
type Gate struct {
	caller  contracts.Caller
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func New(caller contracts.Caller, timeout time.Duration, logger *slog.Logger) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{caller: caller, timeout: timeout, logger: logger, now: time.Now}
}

// Check returns Authorized=false without an error when no identity is connected, the
// identity is not in the validator set, or the event contract is not deployed. A failed
// or timed out read returns Authorized=false with a transient error.
func (g *Gate) Check(ctx context.Context, eventID, identity string) (models.Authorization, error) {
	auth := models.Authorization{
		EventID:  eventID,
		Identity: identity,
		Event:    models.EventSnapshot{EventID: eventID},
	}

	if !common.IsHexAddress(eventID) {
		g.logger.Warn("event id is not an address", "event", eventID)
		return auth, nil
	}
	if !common.IsHexAddress(identity) || common.HexToAddress(identity) == (common.Address{}) {
		return auth, nil
	}

	event, err := contracts.NewEventContract(g.caller, eventID)
	if err != nil {
		return auth, models.NewError(models.KindTransient, "could not read event, retry", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	exists, err := event.Exists(ctx)
	if err != nil {
		return auth, g.transient(eventID, err)
	}
	if !exists {
		return auth, nil
	}

	validators, err := event.Validators(ctx)
	if err != nil {
		return auth, g.transient(eventID, err)
	}
	sold, err := event.TotalTicketsSold(ctx)
	if err != nil {
		return auth, g.transient(eventID, err)
	}

	who := common.HexToAddress(identity)
	auth.Event.Exists = true
	auth.Event.TotalTicketsSold = sold.Uint64()
	auth.Event.FetchedAt = g.now()
	for _, v := range validators {
		auth.Event.Validators = append(auth.Event.Validators, v.Hex())
		if v == who {
			auth.Authorized = true
		}
	}
	return auth, nil
}

func (g *Gate) transient(eventID string, err error) error {
	g.logger.Warn("failed to read event state", "event", eventID, "error", err)
	return models.NewError(models.KindTransient, "could not read event state, retry", err)
}
