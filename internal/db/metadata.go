package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"vandalwatch/internal/models"
)

// UpsertMetadata persists an edit's metadata for audit and training.
func (d *DB) UpsertMetadata(ctx context.Context, md *models.EditMetadata) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO edit_metadata (revision_id, page_id, edit_timestamp, namespace,
			title, editor, editor_is_anon, editor_edits, comment, country, tags, is_revert)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (revision_id) DO UPDATE SET is_revert = EXCLUDED.is_revert
	`, md.RevisionID, md.PageID, md.Timestamp, md.Namespace, md.Title, md.User,
		md.UserIsAnon, md.UserEditCount, md.Comment, md.Country, md.Tags, md.IsRevert)
	if err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}
	return nil
}

// GetMetadata returns the stored metadata for a revision.
func (d *DB) GetMetadata(ctx context.Context, revisionID uint64) (*models.EditMetadata, error) {
	var md models.EditMetadata
	err := d.Pool.QueryRow(ctx, `
		SELECT revision_id, page_id, edit_timestamp, namespace, title, editor,
			editor_is_anon, editor_edits, comment, country, tags, is_revert
		FROM edit_metadata WHERE revision_id = $1
	`, revisionID).Scan(&md.RevisionID, &md.PageID, &md.Timestamp, &md.Namespace,
		&md.Title, &md.User, &md.UserIsAnon, &md.UserEditCount, &md.Comment,
		&md.Country, &md.Tags, &md.IsRevert)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMetadataNotFound
	}
	if err != nil {
		return nil, err
	}
	return &md, nil
}

// InsertOffendingEdit records a located offending edit. Written once; a
// duplicate flag for the same offender is ignored.
func (d *DB) InsertOffendingEdit(ctx context.Context, off *models.OffendingEdit) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO offending_edits (offender_revision_id, offender_page_id,
			offender_user, flagging_revision_id, origin)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (offender_revision_id) DO NOTHING
	`, off.Offender.RevisionID, off.Offender.PageID, off.Offender.User,
		off.FlaggingRevisionID, off.Origin)
	if err != nil {
		return fmt.Errorf("insert offending edit: %w", err)
	}
	return nil
}

// InsertFeedback records a reviewer verdict for a revision.
func (d *DB) InsertFeedback(ctx context.Context, revisionID uint64, sessionID, verdict string) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO feedback (revision_id, session_id, verdict)
		VALUES ($1, $2, $3)
		ON CONFLICT (revision_id, session_id) DO UPDATE SET verdict = EXCLUDED.verdict
	`, revisionID, sessionID, verdict)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}
