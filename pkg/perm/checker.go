package perm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/orgs"
	"github.com/slateboards/slate/pkg/tenancy"
)

// Checker answers permission questions for a verified tenant context.
type Checker struct {
	db        *sql.DB
	schemes   *SchemeStore
	demoOrgID string
}

// NewChecker creates a permission checker. demoOrgID may be empty, which
// disables the demo read-only guard.
func NewChecker(db *sql.DB, demoOrgID string) *Checker {
	return &Checker{
		db:        db,
		schemes:   NewSchemeStore(db),
		demoOrgID: demoOrgID,
	}
}

// RequireOrgRole checks the caller's organization role against a minimum.
func (c *Checker) RequireOrgRole(tc *identity.TenantContext, want orgs.Role) error {
	if !RoleAtLeast(tc.OrgRole, want) {
		return fmt.Errorf("role %s below required %s: %w", tc.OrgRole, want, apperrors.ErrForbidden)
	}
	return nil
}

// GuardWrite rejects any mutation against the demo organization.
func (c *Checker) GuardWrite(tc *identity.TenantContext) error {
	if c.demoOrgID != "" && tc.OrgID == c.demoOrgID {
		return apperrors.ErrDemoReadOnly
	}
	return nil
}

// boardAccess is the caller's standing on one board: an effective role and
// the scheme attached to the board, if any.
type boardAccess struct {
	role   orgs.Role
	scheme *Scheme
}

// resolveBoardAccess finds the caller's effective role on a board, in one
// tenant transaction. An explicit board membership wins; org admins and
// owners hold their org role on every board in the org. Anyone else gets the
// same answer as a board that does not exist. The scheme reference lives on
// the board row, so it governs every member regardless of when they joined.
func (c *Checker) resolveBoardAccess(ctx context.Context, tc *identity.TenantContext, boardID int64) (*boardAccess, error) {
	var access *boardAccess
	err := tenancy.RunInTenantTx(ctx, c.db, tc, func(tx *sql.Tx) error {
		query := `
			SELECT bm.role, b.permission_scheme_id
			FROM board_members bm
			JOIN boards b ON b.id = bm.board_id
			WHERE bm.board_id = $1 AND bm.user_id = $2 AND b.org_id = $3
		`
		var role orgs.Role
		var schemeID sql.NullInt64
		err := tx.QueryRowContext(ctx, query, boardID, tc.UserID, tc.OrgID).Scan(&role, &schemeID)
		if err == sql.ErrNoRows {
			if !RoleAtLeast(tc.OrgRole, orgs.RoleAdmin) {
				return apperrors.ErrNotFound
			}
			err = tx.QueryRowContext(ctx,
				`SELECT permission_scheme_id FROM boards WHERE id = $1 AND org_id = $2`,
				boardID, tc.OrgID,
			).Scan(&schemeID)
			if err == sql.ErrNoRows {
				return apperrors.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to check board: %w", err)
			}
			role = tc.OrgRole
		} else if err != nil {
			return fmt.Errorf("failed to resolve board membership: %w", err)
		}

		access = &boardAccess{role: role}
		if schemeID.Valid {
			scheme, err := c.schemes.getSchemeTx(ctx, tx, tc.OrgID, schemeID.Int64)
			if err != nil && err != apperrors.ErrNotFound {
				return err
			}
			access.scheme = scheme
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return access, nil
}

// Can checks one permission on one board for the caller. Denials surface as
// ErrForbidden; a board the caller cannot see at all surfaces as ErrNotFound.
func (c *Checker) Can(ctx context.Context, tc *identity.TenantContext, boardID int64, perm Permission) error {
	access, err := c.resolveBoardAccess(ctx, tc, boardID)
	if err != nil {
		return err
	}
	if !access.scheme.Resolve(access.role, perm) {
		return fmt.Errorf("%s denied for role %s: %w", perm, access.role, apperrors.ErrForbidden)
	}
	return nil
}

// BoardRole returns the caller's effective role on a board.
func (c *Checker) BoardRole(ctx context.Context, tc *identity.TenantContext, boardID int64) (orgs.Role, error) {
	access, err := c.resolveBoardAccess(ctx, tc, boardID)
	if err != nil {
		return "", err
	}
	return access.role, nil
}
