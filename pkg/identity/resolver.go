package identity

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/observability"
	"github.com/slateboards/slate/pkg/orgs"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// MembershipReader loads the membership joining a user to an organization.
type MembershipReader interface {
	GetMembership(ctx context.Context, orgID string, userID int64) (*orgs.Membership, error)
}

// Resolver builds TenantContexts from auth assertions, self-provisioning
// missing user records on first login.
type Resolver struct {
	db       *sql.DB
	provider Provider
	members  MembershipReader
	metrics  *observability.Metrics
}

// NewResolver creates a new Resolver.
func NewResolver(db *sql.DB, provider Provider, members MembershipReader, metrics *observability.Metrics) *Resolver {
	return &Resolver{db: db, provider: provider, members: members, metrics: metrics}
}

// Resolve turns an assertion into a verified TenantContext.
//
// Fails with apperrors.ErrUnauthenticated when the assertion carries no user
// or no selected organization, and with apperrors.ErrForbidden when the user
// has no active membership in that organization. A memoized context from an
// earlier call in the same request is returned as-is.
func (r *Resolver) Resolve(ctx context.Context, assertion Assertion) (*TenantContext, error) {
	if tc := FromContext(ctx); tc != nil && tc.ExternalID == assertion.UserID && tc.OrgID == assertion.OrgID {
		return tc, nil
	}

	if assertion.UserID == "" || assertion.OrgID == "" {
		r.count("unauthenticated")
		return nil, apperrors.ErrUnauthenticated
	}

	userID, err := r.ensureUser(ctx, assertion.UserID)
	if err != nil {
		r.count("error")
		return nil, err
	}

	membership, err := r.members.GetMembership(ctx, assertion.OrgID, userID)
	if err != nil {
		if apperrors.IsForbidden(err) {
			r.count("forbidden")
		} else {
			r.count("error")
		}
		return nil, err
	}
	if !membership.IsActive() {
		r.count("forbidden")
		return nil, fmt.Errorf("membership is %s: %w", membership.Status, apperrors.ErrForbidden)
	}

	r.count("ok")
	return &TenantContext{
		UserID:     userID,
		ExternalID: assertion.UserID,
		OrgID:      assertion.OrgID,
		OrgRole:    membership.Role,
		Membership: MembershipInfo{Role: membership.Role, IsActive: true},
	}, nil
}

// ensureUser returns the internal id for an external user id, creating the
// row on first login. Concurrent first logins race on the unique index;
// the loser swallows the conflict and re-reads the winner's row.
func (r *Resolver) ensureUser(ctx context.Context, externalID string) (int64, error) {
	id, err := r.lookupUser(ctx, externalID)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up user: %w", err)
	}

	profile, err := r.provider.FetchProfile(ctx, externalID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch profile for new user: %w", err)
	}

	insert := `
		INSERT INTO users (external_id, email, name, image_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, insert, profile.ExternalID, profile.Email, profile.Name, profile.ImageURL).Scan(&id)
	if err == nil {
		return id, nil
	}

	if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
		// Another request created the row between our lookup and insert.
		// That is success, not failure.
		id, err = r.lookupUser(ctx, externalID)
		if err != nil {
			return 0, fmt.Errorf("failed to re-read user after conflict: %w", err)
		}
		return id, nil
	}

	return 0, fmt.Errorf("failed to create user: %w", err)
}

// SyncMembership enrolls the assertion's user into the assertion's org with
// the role the identity provider vouched for. Only recognized role values
// enroll; anything else is dropped. An existing row keeps its status, so a
// suspended member cannot re-activate themselves by logging in again.
func (r *Resolver) SyncMembership(ctx context.Context, assertion *Assertion) error {
	role := orgs.Role(assertion.Role)
	switch role {
	case orgs.RoleOwner, orgs.RoleAdmin, orgs.RoleMember, orgs.RoleViewer:
	default:
		return fmt.Errorf("unrecognized role %q in assertion", assertion.Role)
	}

	userID, err := r.ensureUser(ctx, assertion.UserID)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO organization_members (org_id, user_id, role, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (org_id, user_id) DO NOTHING
	`, assertion.OrgID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to sync membership: %w", err)
	}
	return nil
}

// ResolveServiceKey builds a TenantContext for a programmatic caller whose
// API key already authenticated the organization. The key acts on behalf of
// its creator: the creator's membership must still be active, and a
// read-only key is capped at the viewer role no matter what the creator
// holds. A key whose creator left the organization is dead.
func (r *Resolver) ResolveServiceKey(ctx context.Context, orgID string, creatorID int64, readOnly bool) (*TenantContext, error) {
	if creatorID == 0 {
		r.count("forbidden")
		return nil, fmt.Errorf("api key has no owner: %w", apperrors.ErrForbidden)
	}

	membership, err := r.members.GetMembership(ctx, orgID, creatorID)
	if err != nil {
		if apperrors.IsForbidden(err) {
			r.count("forbidden")
		} else {
			r.count("error")
		}
		return nil, err
	}
	if !membership.IsActive() {
		r.count("forbidden")
		return nil, fmt.Errorf("membership is %s: %w", membership.Status, apperrors.ErrForbidden)
	}

	var externalID string
	err = r.db.QueryRowContext(ctx, `SELECT external_id FROM users WHERE id = $1`, creatorID).Scan(&externalID)
	if err != nil {
		r.count("error")
		return nil, fmt.Errorf("failed to look up key owner: %w", err)
	}

	role := membership.Role
	if readOnly {
		role = orgs.RoleViewer
	}

	r.count("ok")
	return &TenantContext{
		UserID:     creatorID,
		ExternalID: externalID,
		OrgID:      orgID,
		OrgRole:    role,
		Membership: MembershipInfo{Role: role, IsActive: true},
	}, nil
}

func (r *Resolver) lookupUser(ctx context.Context, externalID string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE external_id = $1`, externalID).Scan(&id)
	return id, err
}

func (r *Resolver) count(outcome string) {
	if r.metrics != nil {
		r.metrics.TenantResolutions.WithLabelValues(outcome).Inc()
	}
}
