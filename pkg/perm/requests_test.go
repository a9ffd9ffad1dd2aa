package perm

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/orgs"
)

func requestColumnNames() []string {
	return []string{"id", "org_id", "board_id", "user_id", "requested_role", "status", "message", "expires_at", "decided_by", "decided_at", "created_at"}
}

func adminTenant() *identity.TenantContext {
	return &identity.TenantContext{UserID: 1, ExternalID: "admin_1", OrgID: "org_1", OrgRole: orgs.RoleAdmin}
}

func requesterTenant() *identity.TenantContext {
	return &identity.TenantContext{UserID: 9, ExternalID: "user_9", OrgID: "org_1", OrgRole: orgs.RoleViewer}
}

func expectRequestSession(mock sqlmock.Sqlmock, tc *identity.TenantContext) {
	mock.ExpectExec("SELECT set_config").
		WithArgs(tc.OrgID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestApprove_PendingOrgRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expires := time.Now().Add(time.Hour)
	mock.ExpectBegin()
	expectRequestSession(mock, adminTenant())
	mock.ExpectQuery("SELECT (.+) FROM membership_requests (.+) FOR UPDATE").
		WithArgs(int64(5), "org_1").
		WillReturnRows(sqlmock.NewRows(requestColumnNames()).
			AddRow(int64(5), "org_1", nil, int64(9), "member", "pending", "", expires, nil, nil, time.Now()))
	mock.ExpectExec("INSERT INTO organization_members").
		WithArgs("org_1", int64(9), orgs.RoleMember).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE membership_requests SET status").
		WithArgs(RequestApproved, int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewRequestStore(db)
	err = store.Approve(context.Background(), adminTenant(), 5)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprove_BoardRequestAddsBoardMember(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expires := time.Now().Add(time.Hour)
	mock.ExpectBegin()
	expectRequestSession(mock, adminTenant())
	mock.ExpectQuery("SELECT (.+) FROM membership_requests (.+) FOR UPDATE").
		WithArgs(int64(6), "org_1").
		WillReturnRows(sqlmock.NewRows(requestColumnNames()).
			AddRow(int64(6), "org_1", int64(3), int64(9), "viewer", "pending", "", expires, nil, nil, time.Now()))
	mock.ExpectExec("INSERT INTO board_members").
		WithArgs("org_1", int64(3), int64(9), orgs.RoleViewer).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE membership_requests SET status").
		WithArgs(RequestApproved, int64(1), int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewRequestStore(db)
	err = store.Approve(context.Background(), adminTenant(), 6)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprove_TerminalRequestIsImmutable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectRequestSession(mock, adminTenant())
	mock.ExpectQuery("SELECT (.+) FROM membership_requests (.+) FOR UPDATE").
		WithArgs(int64(5), "org_1").
		WillReturnRows(sqlmock.NewRows(requestColumnNames()).
			AddRow(int64(5), "org_1", nil, int64(9), "member", "rejected", "", nil, int64(2), time.Now(), time.Now()))
	// No membership insert, no status update: a decided request stays
	// decided no matter who asks again.
	mock.ExpectRollback()

	store := NewRequestStore(db)
	err = store.Approve(context.Background(), adminTenant(), 5)
	assert.True(t, apperrors.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReject_OverdueRequestConflicts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lapsed := time.Now().Add(-time.Hour)
	mock.ExpectBegin()
	expectRequestSession(mock, adminTenant())
	mock.ExpectQuery("SELECT (.+) FROM membership_requests (.+) FOR UPDATE").
		WithArgs(int64(5), "org_1").
		WillReturnRows(sqlmock.NewRows(requestColumnNames()).
			AddRow(int64(5), "org_1", nil, int64(9), "member", "pending", "", lapsed, nil, nil, time.Now()))
	mock.ExpectRollback()

	store := NewRequestStore(db)
	err = store.Reject(context.Background(), adminTenant(), 5)
	assert.True(t, apperrors.IsConflict(err))
}

func TestApprove_MissingRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectRequestSession(mock, adminTenant())
	mock.ExpectQuery("SELECT (.+) FROM membership_requests (.+) FOR UPDATE").
		WithArgs(int64(404), "org_1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	store := NewRequestStore(db)
	err = store.Approve(context.Background(), adminTenant(), 404)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestWithdraw_NonPendingRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectRequestSession(mock, requesterTenant())
	mock.ExpectExec("UPDATE membership_requests SET status = 'withdrawn'").
		WithArgs(int64(5), "org_1", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	store := NewRequestStore(db)
	err = store.Withdraw(context.Background(), requesterTenant(), 5)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCreateRequest_DuplicatePendingConflicts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectRequestSession(mock, requesterTenant())
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM membership_requests").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	store := NewRequestStore(db)
	_, err = store.CreateRequest(context.Background(), requesterTenant(), nil, orgs.RoleMember, "")
	assert.True(t, apperrors.IsConflict(err))
}

func TestExpirePending_SweepsOverdueRequests(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The sweep has no tenant; it runs on the maintenance path the row
	// policies admit.
	mock.ExpectBegin()
	mock.ExpectExec("SELECT set_config\\('app.maintenance'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE membership_requests SET status = 'expired'").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	store := NewRequestStore(db)
	n, err := store.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
