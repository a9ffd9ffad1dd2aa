package perm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/tenancy"
)

// SchemeStore persists permission schemes and their entries. Every operation
// runs inside a tenant transaction so the scheme tables' row policies see
// the caller's organization.
type SchemeStore struct {
	db *sql.DB
}

// NewSchemeStore creates a scheme store.
func NewSchemeStore(db *sql.DB) *SchemeStore {
	return &SchemeStore{db: db}
}

// GetScheme loads a scheme and its entries, scoped to the caller's
// organization.
func (s *SchemeStore) GetScheme(ctx context.Context, tc *identity.TenantContext, id int64) (*Scheme, error) {
	var scheme *Scheme
	err := tenancy.RunInTenantTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		var err error
		scheme, err = s.getSchemeTx(ctx, tx, tc.OrgID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return scheme, nil
}

func (s *SchemeStore) getSchemeTx(ctx context.Context, tx *sql.Tx, orgID string, id int64) (*Scheme, error) {
	scheme := &Scheme{}
	err := tx.QueryRowContext(ctx,
		`SELECT id, org_id, name FROM permission_schemes WHERE id = $1 AND org_id = $2`,
		id, orgID,
	).Scan(&scheme.ID, &scheme.OrgID, &scheme.Name)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheme: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT role, permission, granted FROM permission_scheme_entries WHERE scheme_id = $1`,
		scheme.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheme entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e SchemeEntry
		if err := rows.Scan(&e.Role, &e.Permission, &e.Granted); err != nil {
			return nil, fmt.Errorf("failed to scan scheme entry: %w", err)
		}
		scheme.Entries = append(scheme.Entries, e)
	}

	return scheme, rows.Err()
}

// ListSchemes returns all schemes in the caller's organization, without
// entries.
func (s *SchemeStore) ListSchemes(ctx context.Context, tc *identity.TenantContext) ([]*Scheme, error) {
	var schemes []*Scheme
	err := tenancy.RunInTenantTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, org_id, name FROM permission_schemes WHERE org_id = $1 ORDER BY name ASC`,
			tc.OrgID,
		)
		if err != nil {
			return fmt.Errorf("failed to list schemes: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			scheme := &Scheme{}
			if err := rows.Scan(&scheme.ID, &scheme.OrgID, &scheme.Name); err != nil {
				return fmt.Errorf("failed to scan scheme: %w", err)
			}
			schemes = append(schemes, scheme)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return schemes, nil
}

// CreateScheme creates a scheme with its entries in one transaction.
func (s *SchemeStore) CreateScheme(ctx context.Context, tc *identity.TenantContext, name string, entries []SchemeEntry) (*Scheme, error) {
	scheme := &Scheme{OrgID: tc.OrgID, Name: name, Entries: entries}

	err := tenancy.RunInTenantTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO permission_schemes (org_id, name) VALUES ($1, $2) RETURNING id`,
			tc.OrgID, name,
		).Scan(&scheme.ID)
		if err != nil {
			return fmt.Errorf("failed to create scheme: %w", err)
		}

		for _, e := range entries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO permission_scheme_entries (scheme_id, role, permission, granted) VALUES ($1, $2, $3, $4)`,
				scheme.ID, e.Role, e.Permission, e.Granted,
			)
			if err != nil {
				return fmt.Errorf("failed to create scheme entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return scheme, nil
}

// SetEntry upserts one (role, permission) decision on a scheme.
func (s *SchemeStore) SetEntry(ctx context.Context, tc *identity.TenantContext, schemeID int64, entry SchemeEntry) error {
	return tenancy.RunInTenantTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM permission_schemes WHERE id = $1 AND org_id = $2)`,
			schemeID, tc.OrgID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check scheme: %w", err)
		}
		if !exists {
			return apperrors.ErrNotFound
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO permission_scheme_entries (scheme_id, role, permission, granted)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (scheme_id, role, permission) DO UPDATE SET granted = EXCLUDED.granted
		`, schemeID, entry.Role, entry.Permission, entry.Granted)
		if err != nil {
			return fmt.Errorf("failed to set scheme entry: %w", err)
		}

		return nil
	})
}

// DeleteScheme removes a scheme. Boards pointing at it fall back to role
// defaults; the foreign key clears their reference on delete.
func (s *SchemeStore) DeleteScheme(ctx context.Context, tc *identity.TenantContext, id int64) error {
	return tenancy.RunInTenantTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM permission_schemes WHERE id = $1 AND org_id = $2`,
			id, tc.OrgID,
		)
		if err != nil {
			return fmt.Errorf("failed to delete scheme: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return apperrors.ErrNotFound
		}

		return nil
	})
}

// AttachToBoard points a board's scheme reference at a scheme in the same
// organization. The reference governs every present and future member of the
// board.
func (s *SchemeStore) AttachToBoard(ctx context.Context, tc *identity.TenantContext, boardID, schemeID int64) error {
	return tenancy.RunInTenantTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM permission_schemes WHERE id = $1 AND org_id = $2)`,
			schemeID, tc.OrgID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check scheme: %w", err)
		}
		if !exists {
			return apperrors.ErrNotFound
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE boards SET permission_scheme_id = $1, updated_at = NOW() WHERE id = $2 AND org_id = $3`,
			schemeID, boardID, tc.OrgID,
		)
		if err != nil {
			return fmt.Errorf("failed to attach scheme: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return apperrors.ErrNotFound
		}

		return nil
	})
}
