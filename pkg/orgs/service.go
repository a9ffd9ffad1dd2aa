package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/slateboards/slate/pkg/apperrors"
)

// PostgresService implements organization and membership storage using
// PostgreSQL.
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// EnsureOrganization creates the organization for an external org id if it
// does not exist yet, and returns the current row either way. The insert is
// an upsert so two concurrent first-board-creation requests both succeed.
func (s *PostgresService) EnsureOrganization(ctx context.Context, externalOrgID, name string) (*Organization, error) {
	query := `
		INSERT INTO organizations (id, name, plan)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, externalOrgID, name, PlanFree); err != nil {
		return nil, fmt.Errorf("failed to ensure organization: %w", err)
	}

	return s.GetOrganization(ctx, externalOrgID)
}

// GetOrganization retrieves an organization by its external id.
func (s *PostgresService) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	query := `
		SELECT id, name, plan, ai_calls_used, ai_calls_reset_at, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`
	org := &Organization{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID, &org.Name, &org.Plan, &org.AICallsUsed, &org.AICallsResetAt,
		&org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// GetMembership retrieves the membership joining a user to an organization.
// Returns apperrors.ErrForbidden when no membership exists; callers must not
// treat a missing membership differently from an inactive one.
func (s *PostgresService) GetMembership(ctx context.Context, orgID string, userID int64) (*Membership, error) {
	query := `
		SELECT id, org_id, user_id, role, status, created_at, updated_at
		FROM organization_members
		WHERE org_id = $1 AND user_id = $2
	`
	m := &Membership{}
	err := s.db.QueryRowContext(ctx, query, orgID, userID).Scan(
		&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return m, nil
}

// AddMember adds a user to an organization with the given role and status.
func (s *PostgresService) AddMember(ctx context.Context, orgID string, userID int64, role Role, status MembershipStatus) error {
	query := `
		INSERT INTO organization_members (org_id, user_id, role, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, orgID, userID, role, status)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("member already exists: %w", apperrors.ErrConflict)
	}

	return nil
}

// UpdateMemberStatus changes a membership's status.
func (s *PostgresService) UpdateMemberStatus(ctx context.Context, orgID string, userID int64, status MembershipStatus) error {
	query := `UPDATE organization_members SET status = $1, updated_at = NOW() WHERE org_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, status, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// UpdateMemberRole changes a member's org-level role.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, orgID string, userID int64, role Role) error {
	query := `UPDATE organization_members SET role = $1, updated_at = NOW() WHERE org_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, role, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// RemoveMember removes a user from an organization.
func (s *PostgresService) RemoveMember(ctx context.Context, orgID string, userID int64) error {
	query := `DELETE FROM organization_members WHERE org_id = $1 AND user_id = $2`
	result, err := s.db.ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}
