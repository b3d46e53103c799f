package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"vandalwatch/internal/models"
)

// fakeStore hands out scored items in insertion order and records
// reservation lifecycles.
type fakeStore struct {
	mu       sync.Mutex
	items    []models.ItemRef
	leased   map[uint64]int64 // revision -> reservation holding it
	byRes    map[int64][]uint64
	released []int64
	deleted  []uint64
}

func newFakeStore(items ...models.ItemRef) *fakeStore {
	return &fakeStore{
		items:  items,
		leased: make(map[uint64]int64),
		byRes:  make(map[int64][]uint64),
	}
}

func (f *fakeStore) LeaseBatch(ctx context.Context, channel, sessionID string, reservationID int64, limit int) ([]models.ItemRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ItemRef
	for _, ref := range f.items {
		if len(out) >= limit {
			break
		}
		if _, taken := f.leased[ref.RevisionID]; taken {
			continue
		}
		f.leased[ref.RevisionID] = reservationID
		f.byRes[reservationID] = append(f.byRes[reservationID], ref.RevisionID)
		out = append(out, ref)
	}
	return out, nil
}

func (f *fakeStore) ReleaseReservation(ctx context.Context, reservationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, reservationID)
	for _, rev := range f.byRes[reservationID] {
		delete(f.leased, rev)
	}
	delete(f.byRes, reservationID)
	return nil
}

func (f *fakeStore) DeleteItem(ctx context.Context, revisionID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, revisionID)
	for i, ref := range f.items {
		if ref.RevisionID == revisionID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) releasedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.released)
}

// fakeHydrator builds items from the ref alone; optionally slow, to keep
// hydrations in flight during a drain.
type fakeHydrator struct {
	delay time.Duration
	mu    sync.Mutex
	calls int
}

func (f *fakeHydrator) Hydrate(ctx context.Context, ref models.ItemRef, withToken bool) (*models.ReviewItem, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	item := &models.ReviewItem{
		Ref:  ref,
		Diff: fmt.Sprintf("diff for %d", ref.RevisionID),
	}
	item.Metadata.RevisionID = ref.RevisionID
	item.Metadata.PageID = ref.PageID
	if withToken {
		item.Metadata.RollbackToken = "token"
	}
	return item, nil
}

func testOptions() Options {
	return Options{
		Channel:      "main",
		MinQueueSize: 2,
		Capacity:     8,
		BatchSize:    4,
		HistorySize:  3,
		LeaseBackoff: 10 * time.Millisecond,
	}
}

func newTestQueue(store Store, opts Options) *Queue {
	return newQueue("session-test", store, &fakeHydrator{}, NewInactiveSet(), semaphore.NewWeighted(4), opts)
}

func refs(n int) []models.ItemRef {
	out := make([]models.ItemRef, n)
	for i := range out {
		out[i] = models.ItemRef{RevisionID: uint64(100 + i), PageID: uint64(1 + i)}
	}
	return out
}

func TestNextItemServesDistinctItems(t *testing.T) {
	store := newFakeStore(refs(10)...)
	q := newTestQueue(store, testOptions())
	defer q.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := make(map[uint64]bool)
	for i := 0; i < 10; i++ {
		item, err := q.NextItem(ctx, false)
		if err != nil {
			t.Fatalf("NextItem() #%d error = %v", i, err)
		}
		if seen[item.Ref.RevisionID] {
			t.Fatalf("revision %d served twice", item.Ref.RevisionID)
		}
		seen[item.Ref.RevisionID] = true
	}
}

func TestNextItemBackBuffer(t *testing.T) {
	store := newFakeStore(refs(4)...)
	q := newTestQueue(store, testOptions())
	defer q.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := q.NextItem(ctx, false)
	if err != nil {
		t.Fatalf("NextItem() error = %v", err)
	}
	second, err := q.NextItem(ctx, false)
	if err != nil {
		t.Fatalf("NextItem() error = %v", err)
	}

	// One undo step: previous returns the item before the current one.
	prev, err := q.NextItem(ctx, true)
	if err != nil {
		t.Fatalf("NextItem(previous) error = %v", err)
	}
	if prev.Ref.RevisionID != first.Ref.RevisionID {
		t.Errorf("previous = %d, want %d", prev.Ref.RevisionID, first.Ref.RevisionID)
	}

	// And forward again without touching the cache.
	cur, err := q.NextItem(ctx, true)
	if err != nil {
		t.Fatalf("NextItem(previous) swap-back error = %v", err)
	}
	if cur.Ref.RevisionID != second.Ref.RevisionID {
		t.Errorf("swap-back = %d, want %d", cur.Ref.RevisionID, second.Ref.RevisionID)
	}
}

func TestNextItemSkipsInactive(t *testing.T) {
	store := newFakeStore(refs(6)...)
	inactive := NewInactiveSet()
	q := newQueue("session-test", store, &fakeHydrator{}, inactive, semaphore.NewWeighted(4), testOptions())
	defer q.Close(context.Background())

	// Mark two revisions stale before anything is served.
	inactive.Add(100)
	inactive.Add(102)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 4; i++ {
		item, err := q.NextItem(ctx, false)
		if err != nil {
			t.Fatalf("NextItem() error = %v", err)
		}
		if item.Ref.RevisionID == 100 || item.Ref.RevisionID == 102 {
			t.Fatalf("stale revision %d was served", item.Ref.RevisionID)
		}
	}

	// Stale entries were consumed on skip.
	if inactive.Len() != 0 {
		t.Errorf("inactive set length = %d, want 0 after consumption", inactive.Len())
	}
}

func TestDrainWipesReservationsAndCancelsHydration(t *testing.T) {
	store := newFakeStore(refs(8)...)
	hydrator := &fakeHydrator{delay: 200 * time.Millisecond}
	q := newQueue("session-test", store, hydrator, NewInactiveSet(), semaphore.NewWeighted(4), testOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Trigger leasing, then switch channels while hydration is in flight.
	go q.NextItem(ctx, false)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	q.SetChannel(ctx, "external")
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("drain waited %v, want hydration cancelled early", elapsed)
	}

	if store.releasedCount() == 0 {
		t.Error("no reservation ids were wiped on channel switch")
	}
	if got := q.Channel(); got != "external" {
		t.Errorf("Channel() = %q, want external", got)
	}
	if len(q.Snapshot()) != 0 {
		t.Errorf("resident items after drain = %d, want 0", len(q.Snapshot()))
	}
	q.Close(context.Background())
}

func TestReservationHistoryEviction(t *testing.T) {
	// Every lease returns one item, so serving K+2 items issues K+2
	// reservations against a history of K.
	opts := testOptions()
	opts.BatchSize = 1
	opts.MinQueueSize = 1
	opts.HistorySize = 3

	store := newFakeStore(refs(6)...)
	q := newTestQueue(store, opts)
	defer q.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		item, err := q.NextItem(ctx, false)
		if err != nil {
			t.Fatalf("NextItem() error = %v", err)
		}
		// A verdict removes the item, as feedback handling does.
		if err := store.DeleteItem(ctx, item.Ref.RevisionID); err != nil {
			t.Fatalf("DeleteItem() error = %v", err)
		}
	}

	q.mu.Lock()
	open := len(q.reservations)
	q.mu.Unlock()
	if open > opts.HistorySize {
		t.Errorf("open reservations = %d, want at most %d", open, opts.HistorySize)
	}
	if store.releasedCount() == 0 {
		t.Error("no reservation was released on eviction")
	}
}

func TestCloseMakesNextItemFail(t *testing.T) {
	store := newFakeStore(refs(2)...)
	q := newTestQueue(store, testOptions())
	q.Close(context.Background())

	if _, err := q.NextItem(context.Background(), false); err != ErrClosed {
		t.Errorf("NextItem() after close error = %v, want ErrClosed", err)
	}
}

func TestInactiveSet(t *testing.T) {
	s := NewInactiveSet()

	if !s.Add(5) {
		t.Error("first Add(5) = false, want true")
	}
	if s.Add(5) {
		t.Error("second Add(5) = true, want false")
	}
	if s.Active(5, false) {
		t.Error("Active(5) = true for a recorded revision")
	}
	if !s.Active(6, false) {
		t.Error("Active(6) = false for an unknown revision")
	}

	// discard consumes the entry.
	if s.Active(5, true) {
		t.Error("Active(5, discard) = true")
	}
	if !s.Active(5, false) {
		t.Error("entry not consumed by discard")
	}
}

func TestRollbackModeTogglesHydration(t *testing.T) {
	store := newFakeStore(refs(8)...)
	q := newTestQueue(store, testOptions())
	defer q.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	item, err := q.NextItem(ctx, false)
	if err != nil {
		t.Fatalf("NextItem() error = %v", err)
	}
	if item.Metadata.RollbackToken != "" {
		t.Error("rollback token present with rollback mode off")
	}

	q.SetRollbackMode(ctx, true)

	item, err = q.NextItem(ctx, false)
	if err != nil {
		t.Fatalf("NextItem() after mode switch error = %v", err)
	}
	if item.Metadata.RollbackToken == "" {
		t.Error("rollback token missing with rollback mode on")
	}
}
