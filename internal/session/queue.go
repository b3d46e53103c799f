// Package session multiplexes the shared scoring channels to concurrent
// reviewer sessions: each session leases batches of items under fresh
// reservation ids, hydrates them concurrently, and serves them one at a
// time with no repeats and no staleness.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"vandalwatch/internal/metrics"
	"vandalwatch/internal/models"
)

// ErrClosed is returned by NextItem after the session has been closed.
var ErrClosed = errors.New("session closed")

// State of a session queue.
type State int

const (
	StateIdle State = iota
	StateLeasing
	StateServing
	StateDraining
)

// Store is the external scoring-channel store contract the queue needs.
// It is the single source of truth for cross-session mutual exclusion.
type Store interface {
	LeaseBatch(ctx context.Context, channel, sessionID string, reservationID int64, limit int) ([]models.ItemRef, error)
	ReleaseReservation(ctx context.Context, reservationID int64) error
	DeleteItem(ctx context.Context, revisionID uint64) error
}

// Options tune one session queue.
type Options struct {
	Channel      string
	MinQueueSize int // low-water mark that triggers leasing
	Capacity     int // bounded wait cache
	BatchSize    int
	HistorySize  int // last K reservation ids kept alive
	Rollback     bool
	LeaseBackoff time.Duration // how long NextItem waits before re-trying an empty channel
}

// Queue is one reviewer session's cache over a scoring channel.
type Queue struct {
	id       string
	store    Store
	hydrator Hydrator
	inactive *InactiveSet
	sem      *semaphore.Weighted

	cache chan *models.ReviewItem

	mu           sync.Mutex
	opts         Options
	state        State
	leasing      bool
	closed       bool
	pending      int                 // hydrations in flight
	shown        map[uint64]struct{} // revisions served this session, ever
	resident     map[uint64]uint64   // pageID -> revisionID currently cached
	reservations []int64             // open reservation ids, oldest first
	back         *models.ReviewItem  // one-slot undo buffer
	last         *models.ReviewItem  // most recently served item

	hctx    context.Context
	hcancel context.CancelFunc
	wg      sync.WaitGroup
}

// newQueue is called by the Manager; sem and inactive are shared across
// all sessions of the process.
func newQueue(id string, store Store, hydrator Hydrator, inactive *InactiveSet, sem *semaphore.Weighted, opts Options) *Queue {
	if opts.LeaseBackoff <= 0 {
		opts.LeaseBackoff = 250 * time.Millisecond
	}
	hctx, hcancel := context.WithCancel(context.Background())
	return &Queue{
		id:       id,
		store:    store,
		hydrator: hydrator,
		inactive: inactive,
		sem:      sem,
		opts:     opts,
		cache:    make(chan *models.ReviewItem, opts.Capacity),
		shown:    make(map[uint64]struct{}),
		resident: make(map[uint64]uint64),
		hctx:     hctx,
		hcancel:  hcancel,
	}
}

// State returns the queue's current state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Channel returns the channel this session is reviewing.
func (q *Queue) Channel() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.opts.Channel
}

// NextItem returns the next review item. With previous it swaps in the
// one-slot back buffer instead of touching the cache. Otherwise it pops
// from the cache, silently skipping anything already shown this session or
// known stale, and blocks until an item is available or ctx ends.
func (q *Queue) NextItem(ctx context.Context, previous bool) (*models.ReviewItem, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	if previous && q.back != nil {
		item := q.back
		q.back, q.last = q.last, item
		q.mu.Unlock()
		return item, nil
	}
	backoff := q.opts.LeaseBackoff
	q.mu.Unlock()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		q.mu.Unlock()

		q.maybeLease()

		select {
		case item := <-q.cache:
			rev := item.Ref.RevisionID
			q.mu.Lock()
			delete(q.resident, item.Ref.PageID)
			if _, seen := q.shown[rev]; seen {
				q.mu.Unlock()
				continue
			}
			if !q.inactive.Active(rev, true) {
				// The maintainer already deleted it from the store when
				// it was recorded; just discard.
				q.mu.Unlock()
				continue
			}
			q.shown[rev] = struct{}{}
			q.back = q.last
			q.last = item
			if len(q.cache) == 0 && !q.leasing {
				q.state = StateIdle
			}
			q.mu.Unlock()
			metrics.ItemsServed.Inc()
			return item, nil

		case <-ctx.Done():
			return nil, ctx.Err()

		case <-time.After(backoff):
			// Re-check the low-water mark; the channel may have refilled.
		}
	}
}

// maybeLease starts a lease cycle when the cache has fallen below the
// low-water mark and no cycle is already running.
func (q *Queue) maybeLease() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.leasing || q.state == StateDraining {
		return
	}
	if len(q.cache)+q.pending >= q.opts.MinQueueSize {
		return
	}
	q.leasing = true
	q.state = StateLeasing
	hctx := q.hctx
	q.wg.Add(1)
	go q.lease(hctx)
}

// lease requests one batch under a fresh reservation id and hydrates the
// items concurrently, each hydration capped by the shared semaphore.
func (q *Queue) lease(ctx context.Context) {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		q.leasing = false
		if q.state == StateLeasing {
			if len(q.cache) > 0 {
				q.state = StateServing
			} else {
				q.state = StateIdle
			}
		}
		q.mu.Unlock()
	}()

	q.mu.Lock()
	channel := q.opts.Channel
	batch := q.opts.BatchSize
	rollback := q.opts.Rollback
	q.mu.Unlock()

	rid := rand.Int64()
	items, err := q.store.LeaseBatch(ctx, channel, q.id, rid, batch)
	if err != nil {
		slog.Warn("lease failed", "session", q.id, "channel", channel, "error", err)
		return
	}
	q.trackReservation(rid)
	if len(items) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range items {
		q.mu.Lock()
		_, seen := q.shown[ref.RevisionID]
		if !seen {
			q.pending++
		}
		q.mu.Unlock()
		if seen {
			continue
		}

		g.Go(func() error {
			defer func() {
				q.mu.Lock()
				q.pending--
				q.mu.Unlock()
			}()

			if err := q.sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			item, err := q.hydrator.Hydrate(gctx, ref, rollback)
			q.sem.Release(1)
			if err != nil {
				if gctx.Err() == nil {
					slog.Warn("hydration failed", "revision", ref.RevisionID, "error", err)
				}
				return nil
			}

			q.mu.Lock()
			q.resident[ref.PageID] = ref.RevisionID
			q.mu.Unlock()

			select {
			case q.cache <- item:
			case <-gctx.Done():
				q.mu.Lock()
				delete(q.resident, ref.PageID)
				q.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// trackReservation remembers rid and keeps only the last HistorySize ids
// alive; evicted ids are released back to the store so other sessions can
// claim their unserved items.
func (q *Queue) trackReservation(rid int64) {
	q.mu.Lock()
	q.reservations = append(q.reservations, rid)
	var evicted int64
	if len(q.reservations) > q.opts.HistorySize {
		evicted = q.reservations[0]
		q.reservations = q.reservations[1:]
	}
	q.mu.Unlock()

	if evicted != 0 {
		if err := q.store.ReleaseReservation(context.Background(), evicted); err != nil {
			slog.Warn("reservation release failed", "reservation", evicted, "error", err)
		}
	}
}

// Snapshot returns the (page -> revision) pairs currently resident in the
// cache, for the maintainer's ground-truth check.
func (q *Queue) Snapshot() map[uint64]uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	snap := make(map[uint64]uint64, len(q.resident))
	for page, rev := range q.resident {
		snap[page] = rev
	}
	return snap
}

// SetChannel switches the session to another scoring channel, draining
// first so nothing hydrated under the old channel is ever served.
func (q *Queue) SetChannel(ctx context.Context, channel string) {
	q.mu.Lock()
	if q.opts.Channel == channel {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	q.drain(ctx)

	q.mu.Lock()
	q.opts.Channel = channel
	q.mu.Unlock()
}

// SetRollbackMode toggles native-rollback hydration, draining first so no
// item carrying a token from the old mode is ever served.
func (q *Queue) SetRollbackMode(ctx context.Context, enabled bool) {
	q.mu.Lock()
	if q.opts.Rollback == enabled {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	q.drain(ctx)

	q.mu.Lock()
	q.opts.Rollback = enabled
	q.mu.Unlock()
}

// Close drains the queue and marks the session finished.
func (q *Queue) Close(ctx context.Context) {
	q.drain(ctx)
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// drain cancels in-flight hydration, clears the wait cache, and wipes all
// previously issued reservation ids back to the store. The shown set
// survives: a session must never see the same item twice, even across a
// channel switch.
func (q *Queue) drain(ctx context.Context) {
	q.mu.Lock()
	q.state = StateDraining
	cancel := q.hcancel
	q.mu.Unlock()

	cancel()
	q.wg.Wait()

	// Flush whatever made it into the cache.
	for {
		select {
		case item := <-q.cache:
			q.mu.Lock()
			delete(q.resident, item.Ref.PageID)
			q.mu.Unlock()
		default:
			goto flushed
		}
	}
flushed:

	q.mu.Lock()
	released := q.reservations
	q.reservations = nil
	q.resident = make(map[uint64]uint64)
	q.back = nil
	q.last = nil
	q.pending = 0
	q.hctx, q.hcancel = context.WithCancel(context.Background())
	q.state = StateIdle
	q.mu.Unlock()

	for _, rid := range released {
		if err := q.store.ReleaseReservation(ctx, rid); err != nil {
			slog.Warn("reservation wipe failed", "reservation", rid, "error", err)
		}
	}
}
