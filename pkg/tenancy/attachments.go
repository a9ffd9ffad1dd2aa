package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateAttachmentAuthoritative inserts an attachment row inside a single
// serializable tenant transaction that re-counts the card's attachments and
// calls check with the fresh count before the insert. Two racing inserts
// against the same card conflict at commit instead of both slipping under a
// limit; the caller handles the serialization failure.
//
// The row is created with uploaded = FALSE. Bytes go to object storage only
// after this commits, then MarkAttachmentUploaded flips the flag.
func (s *Store) CreateAttachmentAuthoritative(ctx context.Context, card *Card, fileName string, sizeBytes int64, check func(current int) error) (*Attachment, error) {
	a := &Attachment{
		OrgID:     s.tc.OrgID,
		BoardID:   card.BoardID,
		CardID:    card.ID,
		FileName:  fileName,
		SizeBytes: sizeBytes,
	}

	err := RunInSerializableTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		var current int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM attachments WHERE card_id = $1 AND org_id = $2`,
			card.ID, s.tc.OrgID,
		).Scan(&current)
		if err != nil {
			return fmt.Errorf("failed to count attachments: %w", err)
		}

		if err := check(current); err != nil {
			return err
		}

		insert := `
			INSERT INTO attachments (org_id, board_id, card_id, file_name, object_key, size_bytes, uploaded)
			VALUES ($1, $2, $3, $4, '', $5, FALSE)
			RETURNING id, created_at
		`
		if err := tx.QueryRowContext(ctx, insert, s.tc.OrgID, card.BoardID, card.ID, fileName, sizeBytes).
			Scan(&a.ID, &a.CreatedAt); err != nil {
			return fmt.Errorf("failed to create attachment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// CountAttachments returns the number of attachments on a card. This is the
// advisory read used outside the serializable path.
func (s *Store) CountAttachments(ctx context.Context, cardID int64) (int, error) {
	var count int
	err := RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM attachments WHERE card_id = $1 AND org_id = $2`,
			cardID, s.tc.OrgID,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count attachments: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PurgeAbandonedUploads deletes attachment rows whose bytes never arrived.
// A row stuck at uploaded = FALSE past the grace period belongs to a failed
// upload and would otherwise hold one of the card's attachment slots forever.
// Run from the background sweep; returns how many rows were removed.
func PurgeAbandonedUploads(ctx context.Context, db *sql.DB, olderThan time.Duration) (int64, error) {
	var purged int64
	err := RunInMaintenanceTx(ctx, db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM attachments WHERE uploaded = FALSE AND created_at < $1`,
			time.Now().Add(-olderThan),
		)
		if err != nil {
			return fmt.Errorf("failed to purge abandoned uploads: %w", err)
		}
		purged, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}
