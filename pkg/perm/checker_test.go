package perm

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/orgs"
)

func memberContext(role orgs.Role) *identity.TenantContext {
	return &identity.TenantContext{UserID: 7, ExternalID: "user_7", OrgID: "org_1", OrgRole: role}
}

func expectCheckerSession(mock sqlmock.Sqlmock) {
	mock.ExpectExec("SELECT set_config").
		WithArgs("org_1", "7").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectBoardMembership(mock sqlmock.Sqlmock, role orgs.Role, schemeID interface{}) {
	mock.ExpectQuery("SELECT bm.role, b.permission_scheme_id").
		WithArgs(int64(3), int64(7), "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"role", "permission_scheme_id"}).AddRow(role, schemeID))
}

func expectNoBoardMembership(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT bm.role, b.permission_scheme_id").
		WithArgs(int64(3), int64(7), "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"role", "permission_scheme_id"}))
}

func expectSchemeFetch(mock sqlmock.Sqlmock, schemeID int64, entries *sqlmock.Rows) {
	mock.ExpectQuery("SELECT id, org_id, name FROM permission_schemes").
		WithArgs(schemeID, "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name"}).AddRow(schemeID, "org_1", "locked-down"))
	mock.ExpectQuery("SELECT role, permission, granted FROM permission_scheme_entries").
		WithArgs(schemeID).
		WillReturnRows(entries)
}

func TestCan_BoardMemberWithDefaultGrants(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectCheckerSession(mock)
	expectBoardMembership(mock, orgs.RoleMember, nil)
	mock.ExpectCommit()

	checker := NewChecker(db, "")
	err = checker.Can(context.Background(), memberContext(orgs.RoleMember), 3, PermCardCreate)
	assert.NoError(t, err)
}

func TestCan_ViewerCannotEdit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectCheckerSession(mock)
	expectBoardMembership(mock, orgs.RoleViewer, nil)
	mock.ExpectCommit()

	checker := NewChecker(db, "")
	err = checker.Can(context.Background(), memberContext(orgs.RoleMember), 3, PermCardEdit)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestCan_SchemeOverridesDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectCheckerSession(mock)
	expectBoardMembership(mock, orgs.RoleMember, int64(11))
	expectSchemeFetch(mock, 11, sqlmock.NewRows([]string{"role", "permission", "granted"}).
		AddRow(orgs.RoleMember, PermCardCreate, false))
	mock.ExpectCommit()

	checker := NewChecker(db, "")
	err = checker.Can(context.Background(), memberContext(orgs.RoleMember), 3, PermCardCreate)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestCan_SchemeGovernsMembersAddedAfterAttach(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The scheme reference lives on the board row, so a member whose row was
	// created after the scheme was attached picks it up on their first
	// request; there is no per-member copy to go stale.
	mock.ExpectBegin()
	expectCheckerSession(mock)
	expectBoardMembership(mock, orgs.RoleMember, int64(11))
	expectSchemeFetch(mock, 11, sqlmock.NewRows([]string{"role", "permission", "granted"}).
		AddRow(orgs.RoleMember, PermAttachmentAdd, false))
	mock.ExpectCommit()

	checker := NewChecker(db, "")
	err = checker.Can(context.Background(), memberContext(orgs.RoleMember), 3, PermAttachmentAdd)
	assert.True(t, apperrors.IsForbidden(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCan_NonMemberSeesNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectCheckerSession(mock)
	expectNoBoardMembership(mock)
	mock.ExpectRollback()

	checker := NewChecker(db, "")
	err = checker.Can(context.Background(), memberContext(orgs.RoleMember), 3, PermBoardView)
	// Same answer as a board that does not exist, so a caller learns nothing.
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCan_OrgAdminWithoutMembershipRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectCheckerSession(mock)
	expectNoBoardMembership(mock)
	mock.ExpectQuery("SELECT permission_scheme_id FROM boards").
		WithArgs(int64(3), "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"permission_scheme_id"}).AddRow(nil))
	mock.ExpectCommit()

	checker := NewChecker(db, "")
	err = checker.Can(context.Background(), memberContext(orgs.RoleAdmin), 3, PermBoardDelete)
	assert.NoError(t, err)
}

func TestCan_OrgAdminMissingBoard(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectCheckerSession(mock)
	expectNoBoardMembership(mock)
	mock.ExpectQuery("SELECT permission_scheme_id FROM boards").
		WithArgs(int64(3), "org_1").
		WillReturnRows(sqlmock.NewRows([]string{"permission_scheme_id"}))
	mock.ExpectRollback()

	checker := NewChecker(db, "")
	err = checker.Can(context.Background(), memberContext(orgs.RoleAdmin), 3, PermBoardView)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestBoardRole_ExplicitMembershipWins(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// An owner of the org who was explicitly added as viewer on this board
	// holds viewer there.
	mock.ExpectBegin()
	expectCheckerSession(mock)
	expectBoardMembership(mock, orgs.RoleViewer, nil)
	mock.ExpectCommit()

	checker := NewChecker(db, "")
	role, err := checker.BoardRole(context.Background(), memberContext(orgs.RoleOwner), 3)
	require.NoError(t, err)
	assert.Equal(t, orgs.RoleViewer, role)
}
