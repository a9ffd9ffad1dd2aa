package tenancy

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/observability"
)

// Store is the per-request, org-scoped data-access facade. It is constructed
// from a verified TenantContext and never exposes an unscoped query.
//
// Every statement, reads included, runs inside a tenant transaction so the
// session settings the row policies key on are always established. Row-level
// security is forced even for the table owner, so a query issued outside the
// tenant transaction would see no rows at all.
//
// Reads additionally filter by the context's org id. Writes fetch the target
// row and verify ownership before touching it; a row that belongs to another
// org yields apperrors.ErrNotFound, identical to a row that does not exist,
// so a caller cannot fish for foreign ids.
type Store struct {
	db      *sql.DB
	tc      *identity.TenantContext
	metrics *observability.Metrics
}

// NewStore creates a facade bound to one request's tenant context.
func NewStore(db *sql.DB, tc *identity.TenantContext, metrics *observability.Metrics) *Store {
	return &Store{db: db, tc: tc, metrics: metrics}
}

// Tenant returns the context the store is bound to.
func (s *Store) Tenant() *identity.TenantContext { return s.tc }

func (s *Store) deny(entity string) error {
	if s.metrics != nil {
		s.metrics.IsolationDenials.WithLabelValues(entity).Inc()
	}
	return apperrors.ErrNotFound
}

// ListBoards returns all boards in the caller's organization.
func (s *Store) ListBoards(ctx context.Context) ([]*Board, error) {
	query := `
		SELECT id, org_id, title, created_by, created_at, updated_at
		FROM boards
		WHERE org_id = $1
		ORDER BY created_at ASC
	`
	var boards []*Board
	err := RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, s.tc.OrgID)
		if err != nil {
			return fmt.Errorf("failed to list boards: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			b := &Board{}
			if err := rows.Scan(&b.ID, &b.OrgID, &b.Title, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
				return fmt.Errorf("failed to scan board: %w", err)
			}
			boards = append(boards, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return boards, nil
}

// GetBoard retrieves one board, scoped to the caller's organization.
func (s *Store) GetBoard(ctx context.Context, id int64) (*Board, error) {
	query := `
		SELECT id, org_id, title, created_by, created_at, updated_at
		FROM boards
		WHERE id = $1 AND org_id = $2
	`
	b := &Board{}
	err := RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, query, id, s.tc.OrgID).Scan(
			&b.ID, &b.OrgID, &b.Title, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
		)
		if err == sql.ErrNoRows {
			return s.deny("board")
		}
		if err != nil {
			return fmt.Errorf("failed to get board: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// CreateBoard inserts a board and makes the creator its owner, in one tenant
// transaction so the row policies see both statements.
func (s *Store) CreateBoard(ctx context.Context, title string) (*Board, error) {
	b := &Board{OrgID: s.tc.OrgID, Title: title}

	err := RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		insert := `
			INSERT INTO boards (org_id, title, created_by)
			VALUES ($1, $2, $3)
			RETURNING id, created_by, created_at, updated_at
		`
		if err := tx.QueryRowContext(ctx, insert, s.tc.OrgID, title, s.tc.UserID).
			Scan(&b.ID, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return fmt.Errorf("failed to create board: %w", err)
		}

		member := `
			INSERT INTO board_members (org_id, board_id, user_id, role)
			VALUES ($1, $2, $3, 'owner')
		`
		if _, err := tx.ExecContext(ctx, member, s.tc.OrgID, b.ID, s.tc.UserID); err != nil {
			return fmt.Errorf("failed to add board owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// UpdateBoard renames a board after verifying ownership.
func (s *Store) UpdateBoard(ctx context.Context, id int64, title string) error {
	return RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT org_id FROM boards WHERE id = $1`, id).Scan(&owner)
		if err == sql.ErrNoRows || (err == nil && owner != s.tc.OrgID) {
			return s.deny("board")
		}
		if err != nil {
			return fmt.Errorf("failed to verify board ownership: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE boards SET title = $1, updated_at = NOW() WHERE id = $2 AND org_id = $3`,
			title, id, s.tc.OrgID,
		)
		if err != nil {
			return fmt.Errorf("failed to update board: %w", err)
		}
		return nil
	})
}

// DeleteBoard removes a board after verifying ownership.
func (s *Store) DeleteBoard(ctx context.Context, id int64) error {
	return RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT org_id FROM boards WHERE id = $1`, id).Scan(&owner)
		if err == sql.ErrNoRows || (err == nil && owner != s.tc.OrgID) {
			return s.deny("board")
		}
		if err != nil {
			return fmt.Errorf("failed to verify board ownership: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM boards WHERE id = $1 AND org_id = $2`, id, s.tc.OrgID); err != nil {
			return fmt.Errorf("failed to delete board: %w", err)
		}
		return nil
	})
}

// CountBoards returns the number of boards in the caller's organization.
func (s *Store) CountBoards(ctx context.Context) (int, error) {
	var count int
	err := RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM boards WHERE org_id = $1`, s.tc.OrgID).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count boards: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetList retrieves one list, scoped to the caller's organization.
func (s *Store) GetList(ctx context.Context, id int64) (*List, error) {
	query := `
		SELECT id, org_id, board_id, title, position, created_at, updated_at
		FROM lists
		WHERE id = $1 AND org_id = $2
	`
	l := &List{}
	err := RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, query, id, s.tc.OrgID).Scan(
			&l.ID, &l.OrgID, &l.BoardID, &l.Title, &l.Position, &l.CreatedAt, &l.UpdatedAt,
		)
		if err == sql.ErrNoRows {
			return s.deny("list")
		}
		if err != nil {
			return fmt.Errorf("failed to get list: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return l, nil
}

// CreateList appends a list to a board the caller's org owns.
func (s *Store) CreateList(ctx context.Context, boardID int64, title string) (*List, error) {
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	l := &List{OrgID: s.tc.OrgID, BoardID: board.ID, Title: title}
	query := `
		INSERT INTO lists (org_id, board_id, title, position)
		VALUES ($1, $2, $3, COALESCE((SELECT MAX(position) + 1 FROM lists WHERE board_id = $2), 0))
		RETURNING id, position, created_at, updated_at
	`
	err = RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, query, s.tc.OrgID, board.ID, title).
			Scan(&l.ID, &l.Position, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create list: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return l, nil
}

// GetCard retrieves one card, scoped to the caller's organization.
func (s *Store) GetCard(ctx context.Context, id int64) (*Card, error) {
	query := `
		SELECT id, org_id, board_id, list_id, title, description, position, created_at, updated_at
		FROM cards
		WHERE id = $1 AND org_id = $2
	`
	c := &Card{}
	err := RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, query, id, s.tc.OrgID).Scan(
			&c.ID, &c.OrgID, &c.BoardID, &c.ListID, &c.Title, &c.Description, &c.Position,
			&c.CreatedAt, &c.UpdatedAt,
		)
		if err == sql.ErrNoRows {
			return s.deny("card")
		}
		if err != nil {
			return fmt.Errorf("failed to get card: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

// CreateCard appends a card to a list the caller's org owns.
func (s *Store) CreateCard(ctx context.Context, listID int64, title, description string) (*Card, error) {
	list, err := s.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}

	c := &Card{OrgID: s.tc.OrgID, BoardID: list.BoardID, ListID: list.ID, Title: title, Description: description}
	query := `
		INSERT INTO cards (org_id, board_id, list_id, title, description, position)
		VALUES ($1, $2, $3, $4, $5, COALESCE((SELECT MAX(position) + 1 FROM cards WHERE list_id = $3), 0))
		RETURNING id, position, created_at, updated_at
	`
	err = RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, query, s.tc.OrgID, list.BoardID, list.ID, title, description).
			Scan(&c.ID, &c.Position, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create card: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

// UpdateCard edits a card after verifying ownership.
func (s *Store) UpdateCard(ctx context.Context, id int64, title, description string) error {
	return RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT org_id FROM cards WHERE id = $1`, id).Scan(&owner)
		if err == sql.ErrNoRows || (err == nil && owner != s.tc.OrgID) {
			return s.deny("card")
		}
		if err != nil {
			return fmt.Errorf("failed to verify card ownership: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE cards SET title = $1, description = $2, updated_at = NOW() WHERE id = $3 AND org_id = $4`,
			title, description, id, s.tc.OrgID,
		)
		if err != nil {
			return fmt.Errorf("failed to update card: %w", err)
		}
		return nil
	})
}

// DeleteCard removes a card.
func (s *Store) DeleteCard(ctx context.Context, id int64) error {
	return RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT org_id FROM cards WHERE id = $1`, id).Scan(&owner)
		if err == sql.ErrNoRows || (err == nil && owner != s.tc.OrgID) {
			return s.deny("card")
		}
		if err != nil {
			return fmt.Errorf("failed to verify card ownership: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = $1 AND org_id = $2`, id, s.tc.OrgID); err != nil {
			return fmt.Errorf("failed to delete card: %w", err)
		}
		return nil
	})
}

// CountCards returns the number of cards on a board.
func (s *Store) CountCards(ctx context.Context, boardID int64) (int, error) {
	var count int
	err := RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM cards WHERE board_id = $1 AND org_id = $2`,
			boardID, s.tc.OrgID,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count cards: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ReorderCards applies a client-supplied card ordering to a list.
//
// The authoritative id set is computed from the database first; any
// client-supplied id outside it rejects the whole request. The ids are
// advisory input, never trusted: a guessed foreign id yields ErrNotFound and
// no position changes at all.
func (s *Store) ReorderCards(ctx context.Context, listID int64, orderedIDs []int64) error {
	if _, err := s.GetList(ctx, listID); err != nil {
		return err
	}
	return s.reorderCardsTx(ctx, listID, orderedIDs)
}

func (s *Store) reorderCardsTx(ctx context.Context, listID int64, orderedIDs []int64) error {
	return RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM cards WHERE list_id = $1 AND org_id = $2`,
			listID, s.tc.OrgID,
		)
		if err != nil {
			return fmt.Errorf("failed to load card whitelist: %w", err)
		}

		allowed := make(map[int64]bool)
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan card id: %w", err)
			}
			allowed[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read card whitelist: %w", err)
		}

		for _, id := range orderedIDs {
			if !allowed[id] {
				return s.deny("card")
			}
		}

		for position, id := range orderedIDs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE cards SET position = $1, updated_at = NOW() WHERE id = $2 AND list_id = $3 AND org_id = $4`,
				position, id, listID, s.tc.OrgID,
			); err != nil {
				return fmt.Errorf("failed to reorder card %d: %w", id, err)
			}
		}
		return nil
	})
}

// ListAttachments returns the attachments on a card.
func (s *Store) ListAttachments(ctx context.Context, cardID int64) ([]*Attachment, error) {
	if _, err := s.GetCard(ctx, cardID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, org_id, board_id, card_id, file_name, object_key, size_bytes, uploaded, created_at
		FROM attachments
		WHERE card_id = $1 AND org_id = $2
		ORDER BY created_at ASC
	`
	var attachments []*Attachment
	err := RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, cardID, s.tc.OrgID)
		if err != nil {
			return fmt.Errorf("failed to list attachments: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			a := &Attachment{}
			if err := rows.Scan(&a.ID, &a.OrgID, &a.BoardID, &a.CardID, &a.FileName,
				&a.ObjectKey, &a.SizeBytes, &a.Uploaded, &a.CreatedAt); err != nil {
				return fmt.Errorf("failed to scan attachment: %w", err)
			}
			attachments = append(attachments, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return attachments, nil
}

// MarkAttachmentUploaded records that the attachment bytes landed in object
// storage.
func (s *Store) MarkAttachmentUploaded(ctx context.Context, id int64, objectKey string) error {
	return RunInTenantTx(ctx, s.db, s.tc, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE attachments SET uploaded = TRUE, object_key = $1 WHERE id = $2 AND org_id = $3`,
			objectKey, id, s.tc.OrgID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark attachment uploaded: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return s.deny("attachment")
		}

		return nil
	})
}
