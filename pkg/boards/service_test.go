package boards

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/identity"
	"github.com/slateboards/slate/pkg/orgs"
	"github.com/slateboards/slate/pkg/perm"
	"github.com/slateboards/slate/pkg/ratelimit"
	"github.com/slateboards/slate/pkg/storage"
	"github.com/slateboards/slate/pkg/tenancy"
)

const demoOrgID = "org_demo"

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	orgService := orgs.NewPostgresService(db)
	checker := perm.NewChecker(db, demoOrgID)
	limiter := ratelimit.NewLimiter(client, "test:ratelimit", nil)

	return NewService(db, orgService, checker, limiter, storage.NewMemoryStore(), nil), mock, mr
}

func memberTenant() *identity.TenantContext {
	return &identity.TenantContext{UserID: 42, ExternalID: "user_42", OrgID: "org_alpha", OrgRole: orgs.RoleMember}
}

func expectOrganization(mock sqlmock.Sqlmock, orgID string, plan orgs.Plan, aiCallsUsed int) {
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id").
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "plan", "ai_calls_used", "ai_calls_reset_at", "created_at", "updated_at"}).
			AddRow(orgID, "Alpha", plan, aiCallsUsed, now.AddDate(0, 1, 0), now, now))
}

func expectSessionConfig(mock sqlmock.Sqlmock, tc *identity.TenantContext) {
	mock.ExpectExec("SELECT set_config").
		WithArgs(tc.OrgID, "42").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestCreateBoard_DemoOrgIsReadOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	tc := &identity.TenantContext{UserID: 1, OrgID: demoOrgID, OrgRole: orgs.RoleOwner}

	_, err := svc.CreateBoard(context.Background(), tc, "Scratch")
	assert.True(t, apperrors.IsDemoReadOnly(err))
}

func TestCreateBoard_ViewerForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)
	tc := memberTenant()
	tc.OrgRole = orgs.RoleViewer

	_, err := svc.CreateBoard(context.Background(), tc, "Roadmap")
	assert.True(t, apperrors.IsForbidden(err))
}

func TestCreateBoard_UnderQuota(t *testing.T) {
	svc, mock, _ := newTestService(t)
	tc := memberTenant()
	now := time.Now()

	expectOrganization(mock, tc.OrgID, orgs.PlanFree, 0)
	mock.ExpectBegin()
	expectSessionConfig(mock, tc)
	mock.ExpectQuery("SELECT COUNT(.+) FROM boards WHERE org_id").
		WithArgs(tc.OrgID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectCommit()

	mock.ExpectBegin()
	expectSessionConfig(mock, tc)
	mock.ExpectQuery("INSERT INTO boards").
		WithArgs(tc.OrgID, "Roadmap", tc.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_by", "created_at", "updated_at"}).
			AddRow(int64(10), tc.UserID, now, now))
	mock.ExpectExec("INSERT INTO board_members").
		WithArgs(tc.OrgID, int64(10), tc.UserID).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	board, err := svc.CreateBoard(context.Background(), tc, "Roadmap")
	require.NoError(t, err)
	assert.Equal(t, int64(10), board.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBoard_AtQuotaRejected(t *testing.T) {
	svc, mock, _ := newTestService(t)
	tc := memberTenant()

	expectOrganization(mock, tc.OrgID, orgs.PlanFree, 0)
	mock.ExpectBegin()
	expectSessionConfig(mock, tc)
	mock.ExpectQuery("SELECT COUNT(.+) FROM boards WHERE org_id").
		WithArgs(tc.OrgID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectCommit()

	_, err := svc.CreateBoard(context.Background(), tc, "One Too Many")
	require.Error(t, err)
	assert.True(t, apperrors.IsLimitReached(err))

	var limitErr *apperrors.LimitReachedError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 5, limitErr.Limit)
	assert.Equal(t, 5, limitErr.Current)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAICall_PreCheckRejectsWithoutSpending(t *testing.T) {
	svc, mock, _ := newTestService(t)
	tc := memberTenant()

	expectOrganization(mock, tc.OrgID, orgs.PlanFree, 50)

	err := svc.RecordAICall(context.Background(), tc)
	assert.True(t, apperrors.IsLimitReached(err))
	// No UPDATE expectation: a rejected call must not touch the counter.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAICall_PostIncrementRaceRejected(t *testing.T) {
	svc, mock, _ := newTestService(t)
	tc := memberTenant()

	expectOrganization(mock, tc.OrgID, orgs.PlanFree, 49)
	mock.ExpectQuery("UPDATE organizations SET ai_calls_used").
		WithArgs(tc.OrgID).
		WillReturnRows(sqlmock.NewRows([]string{"ai_calls_used"}).AddRow(51))

	err := svc.RecordAICall(context.Background(), tc)
	assert.True(t, apperrors.IsLimitReached(err))
}

func TestRecordAICall_SpendsOneCall(t *testing.T) {
	svc, mock, _ := newTestService(t)
	tc := memberTenant()

	expectOrganization(mock, tc.OrgID, orgs.PlanFree, 10)
	mock.ExpectQuery("UPDATE organizations SET ai_calls_used").
		WithArgs(tc.OrgID).
		WillReturnRows(sqlmock.NewRows([]string{"ai_calls_used"}).AddRow(11))

	err := svc.RecordAICall(context.Background(), tc)
	assert.NoError(t, err)
}

func TestCreateAttachmentAuthoritative_RetriesOnceOnSerializationFailure(t *testing.T) {
	svc, mock, _ := newTestService(t)
	tc := memberTenant()
	store := svc.store(tc)
	card := &tenancy.Card{ID: 7, OrgID: tc.OrgID, BoardID: 3, ListID: 2}

	// First attempt loses the serializable race at commit.
	mock.ExpectBegin()
	expectSessionConfig(mock, tc)
	mock.ExpectQuery("SELECT COUNT(.+) FROM attachments").
		WithArgs(card.ID, tc.OrgID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("INSERT INTO attachments").
		WithArgs(tc.OrgID, card.BoardID, card.ID, "design.pdf", int64(2048)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(21), time.Now()))
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001"})

	// Retry sees fresh state and commits.
	mock.ExpectBegin()
	expectSessionConfig(mock, tc)
	mock.ExpectQuery("SELECT COUNT(.+) FROM attachments").
		WithArgs(card.ID, tc.OrgID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery("INSERT INTO attachments").
		WithArgs(tc.OrgID, card.BoardID, card.ID, "design.pdf", int64(2048)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(22), time.Now()))
	mock.ExpectCommit()

	attachment, err := svc.createAttachmentAuthoritative(context.Background(), store, card, "design.pdf", 2048, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(22), attachment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAttachmentAuthoritative_PersistentConflictDenied(t *testing.T) {
	svc, mock, _ := newTestService(t)
	tc := memberTenant()
	store := svc.store(tc)
	card := &tenancy.Card{ID: 7, OrgID: tc.OrgID, BoardID: 3, ListID: 2}

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		expectSessionConfig(mock, tc)
		mock.ExpectQuery("SELECT COUNT(.+) FROM attachments").
			WithArgs(card.ID, tc.OrgID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
		mock.ExpectQuery("INSERT INTO attachments").
			WithArgs(tc.OrgID, card.BoardID, card.ID, "design.pdf", int64(2048)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(21), time.Now()))
		mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001"})
	}

	_, err := svc.createAttachmentAuthoritative(context.Background(), store, card, "design.pdf", 2048, 5)
	require.Error(t, err)
	assert.True(t, apperrors.IsLimitReached(err))

	var limitErr *apperrors.LimitReachedError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 5, limitErr.Limit)
}

func TestCreateAttachmentAuthoritative_FreshCountAtCeilingRejects(t *testing.T) {
	svc, mock, _ := newTestService(t)
	tc := memberTenant()
	store := svc.store(tc)
	card := &tenancy.Card{ID: 7, OrgID: tc.OrgID, BoardID: 3, ListID: 2}

	mock.ExpectBegin()
	expectSessionConfig(mock, tc)
	mock.ExpectQuery("SELECT COUNT(.+) FROM attachments").
		WithArgs(card.ID, tc.OrgID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectRollback()

	_, err := svc.createAttachmentAuthoritative(context.Background(), store, card, "design.pdf", 2048, 5)
	assert.True(t, apperrors.IsLimitReached(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCard_ForbiddenCallerSpendsNoRateLimit(t *testing.T) {
	svc, mock, mr := newTestService(t)
	tc := memberTenant()
	now := time.Now()

	mock.ExpectBegin()
	expectSessionConfig(mock, tc)
	mock.ExpectQuery("SELECT (.+) FROM lists").
		WithArgs(int64(5), tc.OrgID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "board_id", "title", "position", "created_at", "updated_at"}).
			AddRow(int64(5), tc.OrgID, int64(3), "Backlog", 0, now, now))
	mock.ExpectCommit()

	// Board viewer: card.create is denied before the limiter is consulted,
	// so the caller sees FORBIDDEN, never RATE_LIMITED, and burns no budget.
	mock.ExpectBegin()
	expectSessionConfig(mock, tc)
	mock.ExpectQuery("SELECT bm.role, b.permission_scheme_id").
		WithArgs(int64(3), tc.UserID, tc.OrgID).
		WillReturnRows(sqlmock.NewRows([]string{"role", "permission_scheme_id"}).AddRow(orgs.RoleViewer, nil))
	mock.ExpectCommit()

	_, err := svc.CreateCard(context.Background(), tc, 5, "Ship it", "")
	assert.True(t, apperrors.IsForbidden(err))
	assert.Empty(t, mr.Keys())
	assert.NoError(t, mock.ExpectationsWereMet())
}
