package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"vandalwatch/internal/models"
)

// InsertScore publishes a scored item to its channel. Any prior row for
// the same page in the same channel is superseded inside the transaction,
// keeping exactly one active row per page per channel.
func (d *DB) InsertScore(ctx context.Context, item models.ScoredItem) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM scores WHERE channel = $1 AND page_id = $2`,
		item.Channel, item.PageID,
	); err != nil {
		return fmt.Errorf("supersede prior score: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO scores (channel, revision_id, page_id, score, queue_eligible)
		VALUES ($1, $2, $3, $4, $5)
	`, item.Channel, item.RevisionID, item.PageID, item.Score, item.QueueEligible); err != nil {
		return fmt.Errorf("insert score: %w", err)
	}

	return tx.Commit(ctx)
}

// GetScoreByPage returns the single active row for a page in a channel.
func (d *DB) GetScoreByPage(ctx context.Context, channel string, pageID uint64) (*models.ScoredItem, error) {
	var item models.ScoredItem
	err := d.Pool.QueryRow(ctx, `
		SELECT channel, revision_id, page_id, score, queue_eligible
		FROM scores WHERE channel = $1 AND page_id = $2
	`, channel, pageID).Scan(&item.Channel, &item.RevisionID, &item.PageID, &item.Score, &item.QueueEligible)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteByPage removes the active row for a page from a channel.
func (d *DB) DeleteByPage(ctx context.Context, channel string, pageID uint64) error {
	_, err := d.Pool.Exec(ctx,
		`DELETE FROM scores WHERE channel = $1 AND page_id = $2`, channel, pageID)
	return err
}

// DeleteItem removes a revision from every channel and releases any lease
// on it. Used when an item is discovered stale or has been reviewed.
func (d *DB) DeleteItem(ctx context.Context, revisionID uint64) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM reservation_items WHERE revision_id = $1`, revisionID); err != nil {
		return fmt.Errorf("delete item lease: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM scores WHERE revision_id = $1`, revisionID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	return tx.Commit(ctx)
}
