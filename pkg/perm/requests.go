package perm

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/orgs"
	"github.com/slateboards/slate/pkg/tenancy"
)

// RequestStatus is the lifecycle state of a membership request. PENDING is
// the only non-terminal state; every other status is final.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestWithdrawn RequestStatus = "withdrawn"
	RequestExpired   RequestStatus = "expired"
)

// IsTerminal reports whether the status permits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	return s != RequestPending
}

// MembershipRequest is a user's ask to join an organization, or a board
// within it when BoardID is set.
type MembershipRequest struct {
	ID            int64         `json:"id"`
	OrgID         string        `json:"org_id"`
	BoardID       sql.NullInt64 `json:"board_id,omitempty"`
	UserID        int64         `json:"user_id"`
	RequestedRole orgs.Role     `json:"requested_role"`
	Status        RequestStatus `json:"status"`
	Message       string        `json:"message,omitempty"`
	ExpiresAt     sql.NullTime  `json:"expires_at,omitempty"`
	DecidedBy     sql.NullInt64 `json:"decided_by,omitempty"`
	DecidedAt     sql.NullTime  `json:"decided_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// RequestTTL bounds how long a request stays pending before the sweep
// expires it.
const RequestTTL = 14 * 24 * time.Hour

// RequestStore persists membership requests and drives their state machine.
// Request-path operations run inside tenant transactions for the row
// policies; the expiry sweep runs on the maintenance path.
type RequestStore struct {
	db *sql.DB
}

// NewRequestStore creates a request store.
func NewRequestStore(db *sql.DB) *RequestStore {
	return &RequestStore{db: db}
}

const requestColumns = `id, org_id, board_id, user_id, requested_role, status, message, expires_at, decided_by, decided_at, created_at`

func scanRequest(row interface {
	Scan(dest ...interface{}) error
}) (*MembershipRequest, error) {
	r := &MembershipRequest{}
	err := row.Scan(&r.ID, &r.OrgID, &r.BoardID, &r.UserID, &r.RequestedRole, &r.Status,
		&r.Message, &r.ExpiresAt, &r.DecidedBy, &r.DecidedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CreateRequest opens a pending request for the caller. A user with a
// pending request for the same org and board cannot open a second one.
func (s *RequestStore) CreateRequest(ctx context.Context, tc *identity.TenantContext, boardID *int64, role orgs.Role, message string) (*MembershipRequest, error) {
	var request *MembershipRequest
	err := tenancy.RunInTenantTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		var existing int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM membership_requests
			WHERE org_id = $1 AND user_id = $2 AND board_id IS NOT DISTINCT FROM $3 AND status = 'pending'
		`, tc.OrgID, tc.UserID, boardID).Scan(&existing)
		if err != nil {
			return fmt.Errorf("failed to check pending requests: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("request already pending: %w", apperrors.ErrConflict)
		}

		query := `
			INSERT INTO membership_requests (org_id, board_id, user_id, requested_role, status, message, expires_at)
			VALUES ($1, $2, $3, $4, 'pending', $5, $6)
			RETURNING ` + requestColumns
		request, err = scanRequest(tx.QueryRowContext(ctx, query, tc.OrgID, boardID, tc.UserID, role, message, time.Now().Add(RequestTTL)))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// GetRequest loads one request, scoped to the caller's organization.
func (s *RequestStore) GetRequest(ctx context.Context, tc *identity.TenantContext, id int64) (*MembershipRequest, error) {
	var request *MembershipRequest
	err := tenancy.RunInTenantTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		query := `SELECT ` + requestColumns + ` FROM membership_requests WHERE id = $1 AND org_id = $2`
		r, err := scanRequest(tx.QueryRowContext(ctx, query, id, tc.OrgID))
		if err == sql.ErrNoRows {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get request: %w", err)
		}
		request = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// ListPending returns the open requests an admin should review.
func (s *RequestStore) ListPending(ctx context.Context, tc *identity.TenantContext) ([]*MembershipRequest, error) {
	var requests []*MembershipRequest
	err := tenancy.RunInTenantTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		query := `SELECT ` + requestColumns + ` FROM membership_requests WHERE org_id = $1 AND status = 'pending' ORDER BY created_at ASC`
		rows, err := tx.QueryContext(ctx, query, tc.OrgID)
		if err != nil {
			return fmt.Errorf("failed to list pending requests: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRequest(rows)
			if err != nil {
				return fmt.Errorf("failed to scan request: %w", err)
			}
			requests = append(requests, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return requests, nil
}

// Approve transitions a pending request to approved and activates (or
// creates) the membership it asked for, all in one transaction. The row is
// locked first so two admins deciding the same request serialize, and the
// loser sees a terminal state instead of double-applying.
func (s *RequestStore) Approve(ctx context.Context, tc *identity.TenantContext, requestID int64) error {
	return s.decide(ctx, tc, requestID, RequestApproved)
}

// Reject transitions a pending request to rejected.
func (s *RequestStore) Reject(ctx context.Context, tc *identity.TenantContext, requestID int64) error {
	return s.decide(ctx, tc, requestID, RequestRejected)
}

func (s *RequestStore) decide(ctx context.Context, tc *identity.TenantContext, requestID int64, target RequestStatus) error {
	return tenancy.RunInTenantTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		query := `
			SELECT ` + requestColumns + `
			FROM membership_requests
			WHERE id = $1 AND org_id = $2
			FOR UPDATE
		`
		r, err := scanRequest(tx.QueryRowContext(ctx, query, requestID, tc.OrgID))
		if err == sql.ErrNoRows {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get request: %w", err)
		}

		if r.Status.IsTerminal() {
			return fmt.Errorf("request already %s: %w", r.Status, apperrors.ErrConflict)
		}
		if r.ExpiresAt.Valid && time.Now().After(r.ExpiresAt.Time) {
			return fmt.Errorf("request expired: %w", apperrors.ErrConflict)
		}

		if target == RequestApproved {
			if r.BoardID.Valid {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO board_members (org_id, board_id, user_id, role)
					VALUES ($1, $2, $3, $4)
					ON CONFLICT (board_id, user_id) DO UPDATE SET role = EXCLUDED.role
				`, r.OrgID, r.BoardID.Int64, r.UserID, r.RequestedRole)
				if err != nil {
					return fmt.Errorf("failed to add board member: %w", err)
				}
			} else {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO organization_members (org_id, user_id, role, status)
					VALUES ($1, $2, $3, 'active')
					ON CONFLICT (org_id, user_id) DO UPDATE SET status = 'active', role = EXCLUDED.role
				`, r.OrgID, r.UserID, r.RequestedRole)
				if err != nil {
					return fmt.Errorf("failed to add organization member: %w", err)
				}
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE membership_requests SET status = $1, decided_by = $2, decided_at = NOW() WHERE id = $3
		`, target, tc.UserID, r.ID)
		if err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}

		return nil
	})
}

// Withdraw lets the requester close their own pending request.
func (s *RequestStore) Withdraw(ctx context.Context, tc *identity.TenantContext, requestID int64) error {
	return tenancy.RunInTenantTx(ctx, s.db, tc, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE membership_requests SET status = 'withdrawn', decided_at = NOW()
			WHERE id = $1 AND org_id = $2 AND user_id = $3 AND status = 'pending'
		`, requestID, tc.OrgID, tc.UserID)
		if err != nil {
			return fmt.Errorf("failed to withdraw request: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("request not pending: %w", apperrors.ErrNotFound)
		}

		return nil
	})
}

// ExpirePending moves overdue pending requests to expired. Run from the
// background sweep; returns how many rows transitioned.
func (s *RequestStore) ExpirePending(ctx context.Context) (int64, error) {
	var expired int64
	err := tenancy.RunInMaintenanceTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE membership_requests SET status = 'expired', decided_at = NOW()
			WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < NOW()
		`)
		if err != nil {
			return fmt.Errorf("failed to expire requests: %w", err)
		}
		expired, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}
