// Package jobs holds the background loops of the service.
package jobs

import (
	"context"
	"log"
	"time"

	"vandalwatch/internal/metrics"
	"vandalwatch/internal/session"
)

// Sessions is the view of the session layer the maintainer needs: the
// merged resident (page -> revision) pairs of every open session, and the
// shared stale-revision set.
type Sessions interface {
	Snapshot() map[uint64]uint64
	Inactive() *session.InactiveSet
}

// Platform answers which revision is currently the most recent one per page.
type Platform interface {
	FetchMostRecent(ctx context.Context, pageIDs []uint64) (map[uint64]uint64, error)
}

// Store removes items that are no longer worth reviewing.
type Store interface {
	DeleteItem(ctx context.Context, revisionID uint64) error
}

// Maintainer periodically compares every resident item against the
// platform's ground truth and evicts items whose page has moved on. Each
// stale revision is recorded once and deleted once; sessions that still
// hold it in their cache discard it on pop.
type Maintainer struct {
	sessions Sessions
	platform Platform
	store    Store
	interval time.Duration
}

// NewMaintainer creates a queue maintainer.
func NewMaintainer(sessions Sessions, platform Platform, store Store, interval time.Duration) *Maintainer {
	return &Maintainer{
		sessions: sessions,
		platform: platform,
		store:    store,
		interval: interval,
	}
}

// Start begins the maintenance loop.
func (m *Maintainer) Start(ctx context.Context) {
	log.Printf("Queue maintainer started (interval: %v)", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Queue maintainer stopped")
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep runs one ground-truth pass over the current residents.
func (m *Maintainer) sweep(ctx context.Context) {
	resident := m.sessions.Snapshot()
	if len(resident) == 0 {
		return
	}

	pages := make([]uint64, 0, len(resident))
	for page := range resident {
		pages = append(pages, page)
	}

	latest, err := m.platform.FetchMostRecent(ctx, pages)
	if err != nil {
		log.Printf("Queue maintainer: ground-truth fetch failed: %v", err)
		return
	}

	inactive := m.sessions.Inactive()
	for page, rev := range resident {
		// A page the platform no longer knows (deleted, merged away)
		// is as stale as a superseded one.
		current, known := latest[page]
		if known && current == rev {
			continue
		}
		if !inactive.Add(rev) {
			continue // already evicted in an earlier sweep
		}
		metrics.StaleEvictions.Inc()
		if err := m.store.DeleteItem(ctx, rev); err != nil {
			log.Printf("Queue maintainer: delete of revision %d failed: %v", rev, err)
		}
	}
}
