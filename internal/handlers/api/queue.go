package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"vandalwatch/internal/classifier"
	"vandalwatch/internal/db"
	"vandalwatch/internal/models"
	"vandalwatch/internal/session"
)

// nextItemWait bounds the long poll on an empty channel; clients retry.
const nextItemWait = 30 * time.Second

// FeedbackStore is the slice of the store feedback handling needs.
type FeedbackStore interface {
	InsertFeedback(ctx context.Context, revisionID uint64, sessionID, verdict string) error
	DeleteItem(ctx context.Context, revisionID uint64) error
	GetMetadata(ctx context.Context, revisionID uint64) (*models.EditMetadata, error)
}

// QueueHandler serves review items and takes verdicts back.
type QueueHandler struct {
	mgr     *session.Manager
	store   FeedbackStore
	trainer *classifier.Trainer
}

// NewQueueHandler creates a queue handler. trainer may be nil when no
// model retraining is configured.
func NewQueueHandler(mgr *session.Manager, store FeedbackStore, trainer *classifier.Trainer) *QueueHandler {
	return &QueueHandler{mgr: mgr, store: store, trainer: trainer}
}

// Next returns the next review item for a session. previous=true swaps in
// the back buffer instead. Blocks up to nextItemWait when the channel is
// empty and answers 204 so the client can retry.
func (h *QueueHandler) Next(c fiber.Ctx) error {
	q, err := h.mgr.Get(c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusNotFound, "session not found")
	}

	previous := c.Query("previous") == "true"

	ctx, cancel := context.WithTimeout(c.Context(), nextItemWait)
	defer cancel()

	item, err := q.NextItem(ctx, previous)
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			return jsonError(c, fiber.StatusGone, "session closed")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch next item")
	}

	return jsonSuccess(c, item)
}

// Feedback records a reviewer verdict: the item leaves the scoring
// channels, the verdict is persisted, and guilty/innocent labels feed the
// model's training buffer.
func (h *QueueHandler) Feedback(c fiber.Ctx) error {
	sessionID := c.Params("id")
	if _, err := h.mgr.Get(sessionID); err != nil {
		return jsonError(c, fiber.StatusNotFound, "session not found")
	}

	var body struct {
		RevisionID uint64 `json:"revision_id"`
		Verdict    string `json:"verdict"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if body.RevisionID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "revision_id is required")
	}
	if !models.ValidVerdict(body.Verdict) {
		return jsonError(c, fiber.StatusBadRequest, "verdict must be innocent, guilty, or pass")
	}

	ctx := c.Context()
	if err := h.store.InsertFeedback(ctx, body.RevisionID, sessionID, body.Verdict); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to record feedback")
	}

	// Any verdict retires the item from every channel and frees its lease.
	if err := h.store.DeleteItem(ctx, body.RevisionID); err != nil && !errors.Is(err, db.ErrItemNotFound) {
		return jsonError(c, fiber.StatusInternalServerError, "failed to retire item")
	}

	// A pass carries no label, so only definite verdicts train the model.
	if h.trainer != nil && body.Verdict != models.VerdictPass {
		if md, err := h.store.GetMetadata(ctx, body.RevisionID); err == nil {
			h.trainer.Record(ctx, classifier.Example{
				Features:  classifier.Extract(*md),
				Vandalism: body.Verdict == models.VerdictGuilty,
			})
		}
	}

	return jsonSuccess(c, fiber.Map{"revision_id": body.RevisionID})
}
