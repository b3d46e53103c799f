package classifier

import (
	"context"
	"log/slog"
	"sync"
)

// Trainer buffers reviewer feedback and retrains the model every
// RetrainInterval classified edits. A cadence of -1 disables retraining
// entirely; feedback is still buffered so a later manual Flush can use it.
type Trainer struct {
	mu    sync.Mutex
	c     Classifier
	buf   []Example
	since int
}

// NewTrainer creates a trainer for c.
func NewTrainer(c Classifier) *Trainer {
	return &Trainer{c: c}
}

// Record buffers one labelled example and retrains when the cadence is due.
// Training failures are logged and the buffer kept for the next attempt.
func (t *Trainer) Record(ctx context.Context, ex Example) {
	t.mu.Lock()
	t.buf = append(t.buf, ex)
	t.since++
	every := t.c.RetrainInterval()
	due := every > 0 && t.since >= every
	if due {
		t.since = 0
	}
	t.mu.Unlock()

	if due {
		t.Flush(ctx)
	}
}

// Flush submits all buffered examples to the model.
func (t *Trainer) Flush(ctx context.Context) {
	t.mu.Lock()
	batch := t.buf
	t.buf = nil
	t.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := t.c.Train(ctx, batch); err != nil {
		slog.Warn("retrain failed", "examples", len(batch), "error", err)
		t.mu.Lock()
		t.buf = append(batch, t.buf...)
		t.mu.Unlock()
	}
}
