// Package lookup talks to the ticketing backend's REST API.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ticketfy-checkin/models"
)

const (
	DefaultTimeout = 12 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client resolves ticket identifiers and lists validated tickets.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// Lookup fetches GET /ticket-data/{ticketId}. A 4xx answer is a not-found error; network
// failures, timeouts, 5xx answers and unreadable bodies are transient.
func (c *Client) Lookup(ctx context.Context, ticketID string) (models.TicketRecord, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return models.TicketRecord{}, models.NewError(models.KindNotFound, "ticket id is required", nil)
	}

	var body models.TicketDataResponse
	status, err := c.get(ctx, "/ticket-data/"+url.PathEscape(ticketID), &body)
	if err != nil {
		return models.TicketRecord{}, err
	}
	if status >= 400 && status < 500 {
		detail := body.Error
		if detail == "" {
			detail = http.StatusText(status)
		}
		return models.TicketRecord{}, models.NewError(models.KindNotFound, models.DefaultMessage(models.KindNotFound), errors.New(detail))
	}
	if status >= 300 {
		return models.TicketRecord{}, models.NewError(models.KindTransient, models.DefaultMessage(models.KindTransient), fmt.Errorf("ticket-data returned status %d", status))
	}

	record := models.TicketRecord{
		TicketID:  body.Ticket.NFTMint,
		Owner:     body.Owner,
		OwnerName: body.OwnerName,
		EventID:   body.Ticket.Event,
		Redeemed:  body.Ticket.Redeemed,
	}
	if record.TicketID == "" {
		record.TicketID = ticketID
	}
	if record.EventID == "" && body.Event != nil {
		record.EventID = body.Event.Address
	}
	if record.Owner == "" {
		return models.TicketRecord{}, models.NewError(models.KindTransient, models.DefaultMessage(models.KindTransient), errors.New("ticket-data response has no owner"))
	}
	return record, nil
}

// FetchRecent fetches GET /event/{eventId}/validated-tickets, keeping the server's order.
func (c *Client) FetchRecent(ctx context.Context, eventID string) ([]models.RecentEntry, error) {
	var body []models.ValidatedTicketResponse
	status, err := c.get(ctx, "/event/"+url.PathEscape(eventID)+"/validated-tickets", &body)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, models.NewError(models.KindTransient, "could not load validated tickets", fmt.Errorf("validated-tickets returned status %d", status))
	}

	entries := make([]models.RecentEntry, 0, len(body))
	for _, v := range body {
		name := v.OwnerName
		if name == "" {
			name = v.Name
		}
		entries = append(entries, models.RecentEntry{
			TicketID:   v.NFTMint,
			Owner:      v.Owner,
			OwnerName:  name,
			RedeemedAt: v.RedeemedAt,
		})
	}
	return entries, nil
}

// get decodes JSON bodies of any status into out; a body that does not decode is only an
// error on success statuses.
func (c *Client) get(ctx context.Context, path string, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, models.NewError(models.KindTransient, models.DefaultMessage(models.KindTransient), err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "path", path, "error", err)
		return 0, models.NewError(models.KindTransient, models.DefaultMessage(models.KindTransient), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, models.NewError(models.KindTransient, models.DefaultMessage(models.KindTransient), fmt.Errorf("failed to read response: %w", err))
	}

	if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode < 300 {
		return 0, models.NewError(models.KindTransient, models.DefaultMessage(models.KindTransient), fmt.Errorf("failed to decode response: %w", err))
	}
	return resp.StatusCode, nil
}
