package tenancy

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/identity"
)

func testTenant() *identity.TenantContext {
	return &identity.TenantContext{UserID: 42, ExternalID: "user_1", OrgID: "org_alpha"}
}

func expectSessionConfig(mock sqlmock.Sqlmock) {
	mock.ExpectExec("SELECT set_config").
		WithArgs("org_alpha", "42").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func boardColumns() []string {
	return []string{"id", "org_id", "title", "created_by", "created_at", "updated_at"}
}

func TestGetBoard_SameOrg(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	expectSessionConfig(mock)
	mock.ExpectQuery("SELECT (.+) FROM boards").
		WithArgs(int64(1), "org_alpha").
		WillReturnRows(sqlmock.NewRows(boardColumns()).AddRow(int64(1), "org_alpha", "Roadmap", int64(42), now, now))
	mock.ExpectCommit()

	store := NewStore(db, testTenant(), nil)
	board, err := store.GetBoard(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Roadmap", board.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBoard_CrossTenantLooksLikeMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The board exists under another org; the scoped query returns no rows,
	// which must surface exactly like a board that never existed.
	mock.ExpectBegin()
	expectSessionConfig(mock)
	mock.ExpectQuery("SELECT (.+) FROM boards").
		WithArgs(int64(99), "org_alpha").
		WillReturnRows(sqlmock.NewRows(boardColumns()))
	mock.ExpectRollback()

	store := NewStore(db, testTenant(), nil)
	_, err = store.GetBoard(context.Background(), 99)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCreateBoard_OwnerMembershipInSameTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	expectSessionConfig(mock)
	mock.ExpectQuery("INSERT INTO boards").
		WithArgs("org_alpha", "Roadmap", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_by", "created_at", "updated_at"}).
			AddRow(int64(5), int64(42), now, now))
	mock.ExpectExec("INSERT INTO board_members").
		WithArgs("org_alpha", int64(5), int64(42)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	store := NewStore(db, testTenant(), nil)
	board, err := store.CreateBoard(context.Background(), "Roadmap")
	require.NoError(t, err)
	assert.Equal(t, int64(5), board.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBoard_CrossTenantRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectSessionConfig(mock)
	mock.ExpectQuery("SELECT org_id FROM boards").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"org_id"}).AddRow("org_beta"))
	mock.ExpectRollback()

	store := NewStore(db, testTenant(), nil)
	err = store.UpdateBoard(context.Background(), 7, "Hijacked")
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReorderCards_AppliesPositions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectSessionConfig(mock)
	mock.ExpectQuery("SELECT id FROM cards WHERE list_id").
		WithArgs(int64(3), "org_alpha").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)).AddRow(int64(11)).AddRow(int64(12)))
	mock.ExpectExec("UPDATE cards SET position").
		WithArgs(0, int64(12), int64(3), "org_alpha").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE cards SET position").
		WithArgs(1, int64(10), int64(3), "org_alpha").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE cards SET position").
		WithArgs(2, int64(11), int64(3), "org_alpha").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewStore(db, testTenant(), nil)
	err = store.reorderCardsTx(context.Background(), 3, []int64{12, 10, 11})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReorderCards_ForeignIDRejectsEntirely(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectSessionConfig(mock)
	mock.ExpectQuery("SELECT id FROM cards WHERE list_id").
		WithArgs(int64(3), "org_alpha").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)).AddRow(int64(11)))
	// No UPDATE expectations: one foreign id must abort before any position
	// changes.
	mock.ExpectRollback()

	store := NewStore(db, testTenant(), nil)
	err = store.reorderCardsTx(context.Background(), 3, []int64{10, 11, int64(9999)})
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountBoards(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	expectSessionConfig(mock)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM boards").
		WithArgs("org_alpha").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectCommit()

	store := NewStore(db, testTenant(), nil)
	count, err := store.CountBoards(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
