package chat

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/swapmeet/marketplace/backend/internal/auth"
	"github.com/swapmeet/marketplace/backend/internal/middleware"
	"github.com/swapmeet/marketplace/backend/internal/models"
	"github.com/swapmeet/marketplace/backend/internal/response"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

// JournalReader lists recent relay journal entries.
type JournalReader interface {
	Recent(ctx context.Context, limit int64) ([]models.JournalEntry, error)
}

// AdminChecker fails unless the user is an admin.
type AdminChecker interface {
	RequireAdmin(ctx context.Context, userID int64) error
}

// HandlerConfig wires the chat HTTP surface.
type HandlerConfig struct {
	Relay          *Relay
	Tokens         middleware.TokenVerifier
	Admins         AdminChecker
	Journal        JournalReader // optional
	RequireAuth    bool
	AllowedOrigins []string
	Errors         response.Writer
	Log            logrus.FieldLogger
}

// Handler serves the websocket endpoint and the message REST routes.
type Handler struct {
	relay       *Relay
	tokens      middleware.TokenVerifier
	admins      AdminChecker
	journal     JournalReader
	requireAuth bool
	upgrader    websocket.Upgrader
	errs        response.Writer
	log         logrus.FieldLogger
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		relay:       cfg.Relay,
		tokens:      cfg.Tokens,
		admins:      cfg.Admins,
		journal:     cfg.Journal,
		requireAuth: cfg.RequireAuth,
		errs:        cfg.Errors,
		log:         cfg.Log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// originChecker allows requests without an Origin header, any origin when
// the list contains "*", and otherwise only listed origins.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] {
			return true
		}
		if set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// ServeWS upgrades to a websocket. The token comes from ?token= or the
// Authorization header; without one the connection is anonymous unless
// authentication is required.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.BearerToken(r)
	}

	var userID int64
	switch {
	case token != "":
		claims, err := h.tokens.Verify(token)
		if err != nil {
			response.Fail(w, http.StatusForbidden, "Invalid or expired token")
			return
		}
		userID = claims.ID
	case h.requireAuth:
		response.Fail(w, http.StatusUnauthorized, "Access token required")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("relay: upgrade failed")
		return
	}

	c := h.relay.Attach(userID)
	s := &session{
		relay: h.relay,
		ws:    ws,
		conn:  c,
		log:   h.log.WithFields(logrus.Fields{"conn": c.ID, "user_id": userID}),
	}
	s.serve()
}

// ItemMessages handles GET /api/messages/item/{itemId}.
func (h *Handler) ItemMessages(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemId"), 10, 64)
	if err != nil || itemID <= 0 {
		response.Fail(w, http.StatusBadRequest, "Invalid item id")
		return
	}
	msgs, err := h.relay.GetMessages(r.Context(), itemID)
	if err != nil {
		h.errs.Error(w, r, err)
		return
	}
	response.OK(w, "Messages retrieved successfully", msgs)
}

// UserChats handles GET /api/messages/chats.
func (h *Handler) UserChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.relay.GetUserChats(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.errs.Error(w, r, err)
		return
	}
	response.OK(w, "Chats retrieved successfully", chats)
}

// Send handles POST /api/messages with the caller as author.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req models.SendRequest
	if err := response.Decode(r, &req); err != nil {
		h.errs.Error(w, r, err)
		return
	}
	msg, err := h.relay.Send(r.Context(), nil, auth.UserID(r.Context()), req)
	if err != nil {
		h.errs.Error(w, r, err)
		return
	}
	response.Created(w, "Message sent successfully", msg)
}

// Journal handles GET /api/admin/journal?limit=.
func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) {
	if err := h.admins.RequireAdmin(r.Context(), auth.UserID(r.Context())); err != nil {
		h.errs.Error(w, r, err)
		return
	}
	if h.journal == nil {
		response.Fail(w, http.StatusServiceUnavailable, "Journal not configured")
		return
	}

	limit := int64(defaultJournalLimit)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			response.Fail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		h.errs.Error(w, r, err)
		return
	}
	response.OK(w, "Journal retrieved successfully", entries)
}
