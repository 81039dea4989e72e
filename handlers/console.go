package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"ticketfy-checkin/checkin"
	"ticketfy-checkin/claims"
	"ticketfy-checkin/feed"
	"ticketfy-checkin/models"
)

// SessionHeader carries the session id Open returns. GET requests may pass it as the
// session query parameter instead.
const SessionHeader = "X-Console-Session"

// DefaultSessionIdle is how long an untouched console keeps polling before it is torn down.
const DefaultSessionIdle = 30 * time.Minute

// Backend resolves tickets and lists validated tickets (the lookup client).
type Backend interface {
	checkin.Lookup
	feed.Fetcher
}

// History lists journaled settlements.
type History interface {
	List(ctx context.Context, eventID string, limit int) ([]models.JournalEntry, error)
}

type ConsoleConfig struct {
	Backend  Backend
	Gate     checkin.Gate
	Identity string
	// Submitter and History are optional.
	Submitter    checkin.Submitter
	History      History
	Claims       checkin.Claims
	Sinks        []checkin.Sink
	PollInterval time.Duration
	SessionIdle  time.Duration
	PublicURL    string
	Logger       *slog.Logger
}

// ConsoleHandler serves validator consoles. Every device that opens an event gets its own
// session, with its own coordinator and polling feed, until it is torn down or left idle.
// Sessions share the claim store, so two devices never submit the same ticket at once.
type ConsoleHandler struct {
	cfg    ConsoleConfig
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id          string
	eventID     string
	coordinator *checkin.Coordinator
	feed        *feed.Feed
	location    *ticketParam
	openedAt    time.Time
	lastSeen    atomic.Int64
}

func (s *session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// ticketParam tells the frontend to drop the ?ticket= parameter after a deep-link
// check-in. The flag is reported once.
type ticketParam struct{ clear atomic.Bool }

func (p *ticketParam) ClearTicketParam() { p.clear.Store(true) }

func (p *ticketParam) take() bool { return p.clear.Swap(false) }

func NewConsoleHandler(cfg ConsoleConfig) *ConsoleHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Claims == nil {
		cfg.Claims = claims.NewLocal(claims.DefaultTTL)
	}
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = DefaultSessionIdle
	}
	return &ConsoleHandler{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

func (h *ConsoleHandler) RegisterRoutes(api *gin.RouterGroup) {
	console := api.Group("/events/:eventId/console")
	{
		console.POST("", h.Open)
		console.GET("", h.Resume)
		console.DELETE("", h.Teardown)
		console.POST("/tickets", h.SubmitTicket)
		console.GET("/validate", h.ValidateLink)
		console.POST("/confirm", h.Confirm)
		console.POST("/dismiss", h.Dismiss)
		console.GET("/recent", h.Recent)
		console.GET("/recent.csv", h.RecentCSV)
		console.GET("/history", h.History)
		console.GET("/link.png", h.LinkQR)
	}
}

// Open starts a console session for the calling device and runs the validator check.
func (h *ConsoleHandler) Open(c *gin.Context) {
	eventID, ok := h.eventID(c)
	if !ok {
		return
	}
	h.reapIdle(time.Now())
	s := h.open(eventID)
	h.respondConsole(c, http.StatusCreated, s)
}

// Resume re-runs the validator check for an open session, as a page reload does.
func (h *ConsoleHandler) Resume(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respondConsole(c, http.StatusOK, s)
}

func (h *ConsoleHandler) respondConsole(c *gin.Context, status int, s *session) {
	_, err := s.coordinator.Authorize(c.Request.Context())

	body := gin.H{
		"success":    true,
		"session_id": s.id,
		"state":      s.coordinator.State(),
		"recent":     s.coordinator.Recent(),
		"opened_at":  s.openedAt,
	}
	if err != nil {
		body["authorization_error"] = models.MessageOf(err)
	}
	c.JSON(status, body)
}

// Teardown stops polling for the calling session only.
func (h *ConsoleHandler) Teardown(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()

	s.coordinator.Close()
	h.logger.Info("console closed", "event", s.eventID, "session", s.id)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "console closed"})
}

func (h *ConsoleHandler) SubmitTicket(c *gin.Context) {
	var req models.TicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	s, ok := h.authorizedSession(c)
	if !ok {
		return
	}
	state, err := s.coordinator.Submit(c.Request.Context(), req.Ticket, models.ParseSource(req.Source))
	respondState(c, s, state, err)
}

// ValidateLink handles the validation link a participant shows at the door.
func (h *ConsoleHandler) ValidateLink(c *gin.Context) {
	ticket := c.Query("ticket")
	if ticket == "" {
		RespondWithError(c, http.StatusBadRequest, "ticket parameter is required")
		return
	}
	s, ok := h.authorizedSession(c)
	if !ok {
		return
	}
	state, err := s.coordinator.Submit(c.Request.Context(), ticket, models.SourceDeepLink)
	respondState(c, s, state, err)
}

// Confirm checks in the ticket the operator was shown. The body names it so that a
// ticket entered since then is never redeemed in its place.
func (h *ConsoleHandler) Confirm(c *gin.Context) {
	var req models.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	s, ok := h.authorizedSession(c)
	if !ok {
		return
	}
	state, err := s.coordinator.ConfirmTicket(c.Request.Context(), req.Ticket)
	respondState(c, s, state, err)
}

func (h *ConsoleHandler) Dismiss(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	state, err := s.coordinator.Dismiss()
	respondState(c, s, state, err)
}

func (h *ConsoleHandler) Recent(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": s.coordinator.Recent()})
}

// RecentCSV exports the validated tickets list.
func (h *ConsoleHandler) RecentCSV(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	entries := s.coordinator.Recent()

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="validated-tickets-%s.csv"`, s.eventID))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	w.Write([]string{"ticket", "owner", "owner_name", "redeemed_at"})
	for _, e := range entries {
		w.Write([]string{e.TicketID, e.Owner, e.DisplayOwner(), e.RedeemedAt})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.logger.Warn("failed to write csv export", "event", s.eventID, "error", err)
	}
}

// History lists journaled check-ins for the event, newest first.
func (h *ConsoleHandler) History(c *gin.Context) {
	eventID, ok := h.eventID(c)
	if !ok {
		return
	}
	if h.cfg.History == nil {
		RespondWithError(c, http.StatusServiceUnavailable, "check-in journal is not configured")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		RespondWithError(c, http.StatusBadRequest, "limit must be a positive number")
		return
	}

	entries, err := h.cfg.History.List(c.Request.Context(), eventID, limit)
	if err != nil {
		h.logger.Error("failed to list journal", "event", eventID, "error", err)
		RespondWithError(c, http.StatusInternalServerError, "Database error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// LinkQR renders the validation link for a ticket as a PNG QR code.
func (h *ConsoleHandler) LinkQR(c *gin.Context) {
	eventID, ok := h.eventID(c)
	if !ok {
		return
	}
	ticket := c.Query("ticket")
	if ticket == "" {
		RespondWithError(c, http.StatusBadRequest, "ticket parameter is required")
		return
	}

	link := checkin.ValidationLink(h.cfg.PublicURL, eventID, ticket)
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		h.logger.Error("failed to encode validation link", "event", eventID, "error", err)
		RespondWithError(c, http.StatusInternalServerError, "failed to generate QR code")
		return
	}
	c.Header("X-Validation-Link", link)
	c.Data(http.StatusOK, "image/png", png)
}

// Close tears down every open console.
func (h *ConsoleHandler) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.coordinator.Close()
	}
}

func (h *ConsoleHandler) eventID(c *gin.Context) (string, bool) {
	eventID := c.Param("eventId")
	if !common.IsHexAddress(eventID) {
		RespondWithError(c, http.StatusBadRequest, "event id must be a contract address")
		return "", false
	}
	return eventID, true
}

// session returns the caller's open console for the event in the path.
func (h *ConsoleHandler) session(c *gin.Context) (*session, bool) {
	eventID, ok := h.eventID(c)
	if !ok {
		return nil, false
	}
	id := c.GetHeader(SessionHeader)
	if id == "" {
		id = c.Query("session")
	}
	if id == "" {
		RespondWithError(c, http.StatusBadRequest, "console session is required, open the console first")
		return nil, false
	}

	h.mu.Lock()
	s, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok || !strings.EqualFold(s.eventID, eventID) {
		RespondWithError(c, http.StatusNotFound, "console is not open")
		return nil, false
	}
	s.touch()
	return s, true
}

func (h *ConsoleHandler) open(eventID string) *session {
	s := h.newSession(eventID)
	s.touch()

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	s.feed.Start(context.Background())
	h.logger.Info("console opened", "event", eventID, "session", s.id, "read_only", h.cfg.Submitter == nil)
	return s
}

// reapIdle tears down sessions nobody has touched for SessionIdle. A session in the
// middle of a submission is left alone.
func (h *ConsoleHandler) reapIdle(now time.Time) {
	var idle []*session
	h.mu.Lock()
	for id, s := range h.sessions {
		if s.idleSince(now) < h.cfg.SessionIdle || s.coordinator.State().Phase == checkin.PhaseSubmitting {
			continue
		}
		delete(h.sessions, id)
		idle = append(idle, s)
	}
	h.mu.Unlock()

	for _, s := range idle {
		s.coordinator.Close()
		h.logger.Info("idle console closed", "event", s.eventID, "session", s.id)
	}
}

// authorizedSession applies the page-level gate: a keyed console only serves tickets to
// a validator. A read-only console still looks tickets up; confirming is refused later.
func (h *ConsoleHandler) authorizedSession(c *gin.Context) (*session, bool) {
	s, ok := h.session(c)
	if !ok {
		return nil, false
	}
	if h.cfg.Submitter != nil && !s.coordinator.State().Authorization.Authorized {
		RespondWithError(c, http.StatusForbidden, models.DefaultMessage(models.KindUnauthorized))
		return nil, false
	}
	return s, true
}

func (h *ConsoleHandler) newSession(eventID string) *session {
	id := uuid.NewString()
	logger := h.logger.With("session", id)
	f := feed.New(h.cfg.Backend, eventID, h.cfg.PollInterval, logger)
	location := &ticketParam{}
	return &session{
		id:       id,
		eventID:  eventID,
		feed:     f,
		location: location,
		openedAt: time.Now(),
		coordinator: checkin.New(checkin.Config{
			EventID:   eventID,
			Identity:  h.cfg.Identity,
			Lookup:    h.cfg.Backend,
			Gate:      h.cfg.Gate,
			Submitter: h.cfg.Submitter,
			Feed:      f,
			Claims:    h.cfg.Claims,
			Sinks:     h.cfg.Sinks,
			Location:  location,
			Logger:    logger,
			Station:   id,
		}),
	}
}
