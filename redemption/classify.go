package redemption

import (
	"context"
	"errors"
	"strings"

	"ticketfy-checkin/contracts"
	"ticketfy-checkin/models"
)

// alreadyRedeemedHints are matched against error text when the node returns no revert
// data. Only used as a fallback to the TicketAlreadyRedeemed() selector.
var alreadyRedeemedHints = []string{
	"ticketalreadyredeemed",
	"already redeemed",
	"already been redeemed",
	"already checked in",
}

// Classify maps an error from simulation, sending or a reverted receipt onto the closed
// set of redemption error kinds.
func Classify(event *contracts.EventContract, err error) error {
	if err == nil {
		return nil
	}

	if revert, ok := contracts.RevertData(err); ok {
		if event.IsAlreadyRedeemed(revert) {
			return models.NewError(models.KindAlreadyRedeemed, models.DefaultMessage(models.KindAlreadyRedeemed), err)
		}
		message := models.DefaultMessage(models.KindSubmissionFailed)
		if reason := event.RevertReason(revert); reason != "" {
			message = "check-in failed (" + reason + "), retry"
		}
		return models.NewError(models.KindSubmissionFailed, message, err)
	}

	if looksAlreadyRedeemed(err.Error()) {
		return models.NewError(models.KindAlreadyRedeemed, models.DefaultMessage(models.KindAlreadyRedeemed), err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewError(models.KindTransient, models.DefaultMessage(models.KindTransient), err)
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return models.NewError(models.KindSubmissionFailed, models.DefaultMessage(models.KindSubmissionFailed), err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return models.NewError(models.KindTransient, models.DefaultMessage(models.KindTransient), err)
	}
	return models.NewError(models.KindSubmissionFailed, models.DefaultMessage(models.KindSubmissionFailed), err)
}

func looksAlreadyRedeemed(text string) bool {
	text = strings.ToLower(text)
	for _, hint := range alreadyRedeemedHints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}
