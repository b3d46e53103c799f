package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"

	"vandalwatch/internal/session"
)

// SessionHandler manages reviewer session lifecycle via JSON API.
type SessionHandler struct {
	mgr      *session.Manager
	channels map[string]bool
}

// NewSessionHandler creates a session handler. channels is the set of
// scoring channels reviewers may select.
func NewSessionHandler(mgr *session.Manager, channels []string) *SessionHandler {
	set := make(map[string]bool, len(channels))
	for _, ch := range channels {
		set[ch] = true
	}
	return &SessionHandler{mgr: mgr, channels: set}
}

// Open starts a new reviewer session.
func (h *SessionHandler) Open(c fiber.Ctx) error {
	var body struct {
		Channel string `json:"channel"`
	}
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	if body.Channel != "" && !h.channels[body.Channel] {
		return jsonError(c, fiber.StatusBadRequest, "unknown channel")
	}

	id, q := h.mgr.Open(body.Channel)
	return jsonSuccess(c, fiber.Map{
		"session_id": id,
		"channel":    q.Channel(),
	})
}

// Close ends a reviewer session, releasing everything it holds.
func (h *SessionHandler) Close(c fiber.Ctx) error {
	id := c.Params("id")
	if err := h.mgr.Close(c.Context(), id); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return jsonError(c, fiber.StatusNotFound, "session not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to close session")
	}
	return jsonSuccess(c, fiber.Map{"session_id": id})
}

// SetChannel switches a session to another scoring channel.
func (h *SessionHandler) SetChannel(c fiber.Ctx) error {
	q, err := h.mgr.Get(c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusNotFound, "session not found")
	}

	var body struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if !h.channels[body.Channel] {
		return jsonError(c, fiber.StatusBadRequest, "unknown channel")
	}

	q.SetChannel(c.Context(), body.Channel)
	return jsonSuccess(c, fiber.Map{"channel": body.Channel})
}

// SetRollback toggles native-rollback hydration for a session.
func (h *SessionHandler) SetRollback(c fiber.Ctx) error {
	q, err := h.mgr.Get(c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusNotFound, "session not found")
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	q.SetRollbackMode(c.Context(), body.Enabled)
	return jsonSuccess(c, fiber.Map{"rollback": body.Enabled})
}
