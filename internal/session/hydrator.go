package session

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"vandalwatch/internal/models"
)

// Hydrator turns a leased (revision, page) pair into a fully loaded review
// item.
type Hydrator interface {
	Hydrate(ctx context.Context, ref models.ItemRef, withToken bool) (*models.ReviewItem, error)
}

// HydrationAPI is the slice of the platform client hydration needs.
type HydrationAPI interface {
	FetchMetadata(ctx context.Context, revisionID uint64) (*models.EditMetadata, error)
	FetchDiff(ctx context.Context, revisionID uint64) (string, error)
	FetchRollbackToken(ctx context.Context, revisionID uint64) (string, error)
}

// APIHydrator fetches metadata and diff concurrently from the platform.
type APIHydrator struct {
	api HydrationAPI
}

// NewHydrator creates a hydrator over api.
func NewHydrator(api HydrationAPI) *APIHydrator {
	return &APIHydrator{api: api}
}

// Hydrate loads everything a reviewer needs to judge the edit. withToken
// additionally fetches a fresh native-rollback token so the reviewer can
// revert in one action.
func (h *APIHydrator) Hydrate(ctx context.Context, ref models.ItemRef, withToken bool) (*models.ReviewItem, error) {
	var (
		md    *models.EditMetadata
		diff  string
		token string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		md, err = h.api.FetchMetadata(gctx, ref.RevisionID)
		return err
	})
	g.Go(func() error {
		var err error
		diff, err = h.api.FetchDiff(gctx, ref.RevisionID)
		return err
	})
	if withToken {
		g.Go(func() error {
			var err error
			token, err = h.api.FetchRollbackToken(gctx, ref.RevisionID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hydrate revision %d: %w", ref.RevisionID, err)
	}

	item := &models.ReviewItem{
		Ref:      ref,
		Metadata: *md,
		Diff:     diff,
	}
	item.Metadata.RollbackToken = token
	return item, nil
}
