package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ticketfy-checkin/checkin"
	"ticketfy-checkin/models"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func RespondWithError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}

// statusOf maps coordinator and check-in errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, checkin.ErrBusy), errors.Is(err, checkin.ErrStale), errors.Is(err, checkin.ErrNothingToConfirm):
		return http.StatusConflict
	case errors.Is(err, checkin.ErrClosed):
		return http.StatusGone
	}
	switch models.KindOf(err) {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindUnauthorized:
		return http.StatusForbidden
	case models.KindAlreadyRedeemed:
		return http.StatusConflict
	case models.KindSubmissionRejected:
		return http.StatusUnprocessableEntity
	case models.KindSubmissionFailed:
		return http.StatusBadGateway
	}
	return http.StatusServiceUnavailable
}

func messageOf(err error) string {
	var e *models.Error
	if errors.As(err, &e) {
		return models.MessageOf(err)
	}
	switch {
	case errors.Is(err, checkin.ErrClaimed):
		return "another station is checking in this ticket"
	case errors.Is(err, checkin.ErrBusy):
		return "a check-in is in progress"
	case errors.Is(err, checkin.ErrTicketChanged):
		return "a different ticket is on screen now, confirm again"
	case errors.Is(err, checkin.ErrStale):
		return "a newer ticket was entered"
	case errors.Is(err, checkin.ErrNothingToConfirm):
		return "scan or enter a ticket first"
	case errors.Is(err, checkin.ErrClosed):
		return "console was closed, reopen it"
	}
	return models.MessageOf(err)
}

func codeOf(err error) string {
	var e *models.Error
	switch {
	case errors.As(err, &e):
		return string(e.Kind)
	case errors.Is(err, checkin.ErrClaimed):
		return "claimed"
	case errors.Is(err, checkin.ErrBusy):
		return "busy"
	case errors.Is(err, checkin.ErrTicketChanged):
		return "ticket_changed"
	case errors.Is(err, checkin.ErrStale):
		return "stale"
	case errors.Is(err, checkin.ErrNothingToConfirm):
		return "nothing_to_confirm"
	case errors.Is(err, checkin.ErrClosed):
		return "closed"
	}
	return string(models.KindOf(err))
}

// respondState writes the coordinator state; a non-nil err turns it into an error response
// that still carries the state for rendering.
func respondState(c *gin.Context, s *session, state checkin.State, err error) {
	body := gin.H{
		"success":            err == nil,
		"session_id":         s.id,
		"state":              state,
		"clear_ticket_param": s.location.take(),
	}
	if err != nil {
		body["error"] = codeOf(err)
		body["message"] = messageOf(err)
		c.JSON(statusOf(err), body)
		return
	}
	c.JSON(http.StatusOK, body)
}
