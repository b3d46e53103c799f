// Package pipeline turns matured edit identifiers into scored, queued
// review candidates.
package pipeline

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"strings"
	"sync"

	"vandalwatch/internal/admission"
	"vandalwatch/internal/classifier"
	"vandalwatch/internal/config"
	"vandalwatch/internal/detector"
	"vandalwatch/internal/metrics"
	"vandalwatch/internal/models"
	"vandalwatch/internal/wiki"
)

// toolSignature marks comments that already reference this tool; such
// edits are review traffic, not candidates.
const toolSignature = "VANDALWATCH"

// ContentAPI is the slice of the platform client the workers need.
type ContentAPI interface {
	detector.ContentAPI
	FetchMetadata(ctx context.Context, revisionID uint64) (*models.EditMetadata, error)
}

// Store is the slice of the scoring-channel store the workers need.
type Store interface {
	InsertScore(ctx context.Context, item models.ScoredItem) error
	UpsertMetadata(ctx context.Context, md *models.EditMetadata) error
	InsertOffendingEdit(ctx context.Context, off *models.OffendingEdit) error
}

// SecondaryScorer is the independent external scoring source.
type SecondaryScorer interface {
	Score(ctx context.Context, revisionID uint64) (float64, error)
}

// Dispatcher owns a fixed pool of workers fed from a task channel. A
// panicking task is recovered inside its worker, so the pool never shrinks.
type Dispatcher struct {
	cfg       *config.Config
	queue     *admission.Queue
	api       ContentAPI
	det       *detector.Detector
	cls       classifier.Classifier
	secondary SecondaryScorer // nil when unconfigured
	store     Store

	tasks chan models.EditRef
	wg    sync.WaitGroup
}

// New creates a dispatcher. secondary may be nil.
func New(cfg *config.Config, queue *admission.Queue, api ContentAPI, det *detector.Detector, cls classifier.Classifier, secondary SecondaryScorer, store Store) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		queue:     queue,
		api:       api,
		det:       det,
		cls:       cls,
		secondary: secondary,
		store:     store,
		tasks:     make(chan models.EditRef),
	}
}

// Start spawns the worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	log.Printf("Worker pool started (%d workers)", d.cfg.WorkerCount)
}

// Submit hands one matured item to the pool, blocking until a worker is
// free or ctx is cancelled.
func (d *Dispatcher) Submit(ctx context.Context, ref models.EditRef) {
	select {
	case d.tasks <- ref:
	case <-ctx.Done():
	}
}

// Stop closes the intake and waits for in-progress work to finish. No
// in-flight classification is killed.
func (d *Dispatcher) Stop() {
	close(d.tasks)
	d.wg.Wait()
	log.Println("Worker pool drained")
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for ref := range d.tasks {
		d.processSafe(ctx, ref)
	}
}

// processSafe keeps a panicking item from taking its worker down.
func (d *Dispatcher) processSafe(ctx context.Context, ref models.EditRef) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker recovered from panic", "revision", ref.RevisionID, "panic", r)
		}
	}()
	d.process(ctx, ref)
}

// process runs the full task body for one edit. All steps for one item run
// on one worker; errors are per-item and never propagate.
func (d *Dispatcher) process(ctx context.Context, ref models.EditRef) {
	md, err := d.api.FetchMetadata(ctx, ref.RevisionID)
	if err != nil {
		if errors.Is(err, wiki.ErrNotFound) {
			d.retry(ref)
			return
		}
		slog.Warn("metadata fetch failed", "revision", ref.RevisionID, "error", err)
		return
	}

	if md.Namespace != d.cfg.MonitoredNamespace {
		return
	}

	res := d.det.Inspect(ctx, *md)
	md.IsRevert = res.Origin != models.OriginNone
	if md.IsRevert {
		metrics.RevertsDetected.WithLabelValues(string(res.Origin)).Inc()
	}
	if res.Offender != nil {
		if err := d.store.InsertOffendingEdit(ctx, res.Offender); err != nil {
			slog.Warn("offending edit not recorded", "revision", ref.RevisionID, "error", err)
		} else {
			metrics.OffendersLocated.Inc()
		}
	}

	score, err := d.cls.Classify(ctx, classifier.Extract(*md))
	if err != nil {
		// Not committed to a channel: better never queued than queued
		// with bad data.
		slog.Warn("classification failed", "revision", ref.RevisionID, "error", err)
		metrics.ClassifierErrors.Inc()
		return
	}

	item := models.ScoredItem{
		Channel:       d.cfg.DefaultChannel,
		RevisionID:    md.RevisionID,
		PageID:        md.PageID,
		Score:         score,
		QueueEligible: d.eligible(md, res),
	}
	if err := d.store.InsertScore(ctx, item); err != nil {
		slog.Warn("score not published", "revision", ref.RevisionID, "error", err)
		return
	}
	metrics.EditsScored.WithLabelValues(item.Channel).Inc()

	if err := d.store.UpsertMetadata(ctx, md); err != nil {
		slog.Warn("metadata not persisted", "revision", ref.RevisionID, "error", err)
	}

	d.secondaryScore(ctx, md)
}

// retry re-admits an item whose metadata the platform has not replicated
// yet, until the budget runs out.
func (d *Dispatcher) retry(ref models.EditRef) {
	if ref.RetriesRemaining <= 0 {
		slog.Warn("dropping edit after retry budget exhausted", "revision", ref.RevisionID)
		metrics.EditsDropped.Inc()
		return
	}
	ref.RetriesRemaining--
	d.queue.Offer(ref)
}

// eligible applies the short-circuit policy: edits strongly indicative of
// non-vandalism are published but never queued for review.
func (d *Dispatcher) eligible(md *models.EditMetadata, res detector.Result) bool {
	if res.SelfRevert {
		return false
	}
	upperUser := strings.ToUpper(md.User)
	if strings.HasSuffix(upperUser, "BOT") {
		return false
	}
	if strings.Contains(strings.ToUpper(md.Comment), toolSignature) {
		return false
	}
	// Don't template the regulars: established editors are not queued.
	if !md.UserIsAnon && md.UserEditCount >= d.cfg.RegularEditThreshold {
		return false
	}
	return true
}

// secondaryScore queries the independent scoring source, publishing to its
// own channel. Best effort: failure never touches the primary result.
func (d *Dispatcher) secondaryScore(ctx context.Context, md *models.EditMetadata) {
	if d.secondary == nil {
		return
	}
	score, err := d.secondary.Score(ctx, md.RevisionID)
	if err != nil {
		slog.Debug("secondary scorer unavailable", "revision", md.RevisionID, "error", err)
		return
	}
	item := models.ScoredItem{
		Channel:       d.cfg.ExternalChannel,
		RevisionID:    md.RevisionID,
		PageID:        md.PageID,
		Score:         score,
		QueueEligible: true,
	}
	if err := d.store.InsertScore(ctx, item); err != nil {
		slog.Warn("secondary score not published", "revision", md.RevisionID, "error", err)
		return
	}
	metrics.EditsScored.WithLabelValues(item.Channel).Inc()
}
