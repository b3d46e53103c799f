package db

import (
	"context"
	"fmt"

	"vandalwatch/internal/models"
)

// LeaseBatch leases up to limit of the highest-scored eligible items in a
// channel that are not already held by another outstanding reservation.
// Row locks with SKIP LOCKED keep concurrent sessions from racing over the
// same items; the unique index on reservation_items enforces at most one
// outstanding lease per item.
func (d *DB) LeaseBatch(ctx context.Context, channel, sessionID string, reservationID int64, limit int) ([]models.ItemRef, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("lease batch: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO reservations (id, session_id, channel)
		VALUES ($1, $2, $3)
	`, reservationID, sessionID, channel); err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT s.revision_id, s.page_id
		FROM scores s
		LEFT JOIN reservation_items ri ON ri.revision_id = s.revision_id
		WHERE s.channel = $1 AND s.queue_eligible AND ri.revision_id IS NULL
		ORDER BY s.score DESC
		LIMIT $2
		FOR UPDATE OF s SKIP LOCKED
	`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("select leasable items: %w", err)
	}

	var items []models.ItemRef
	for rows.Next() {
		var ref models.ItemRef
		if err := rows.Scan(&ref.RevisionID, &ref.PageID); err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ref := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservation_items (reservation_id, revision_id, page_id)
			VALUES ($1, $2, $3)
		`, reservationID, ref.RevisionID, ref.PageID); err != nil {
			return nil, fmt.Errorf("record leased item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

// ReleaseReservation wipes a reservation and all its leased items, making
// those items claimable by other sessions again.
func (d *DB) ReleaseReservation(ctx context.Context, reservationID int64) error {
	tag, err := d.Pool.Exec(ctx,
		`DELETE FROM reservations WHERE id = $1`, reservationID)
	if err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}
