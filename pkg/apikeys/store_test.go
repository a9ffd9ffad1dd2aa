package apikeys

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slateboards/slate/pkg/apperrors"
)

func keyColumns() []string {
	return []string{"id", "org_id", "name", "key_prefix", "scopes", "created_by", "expires_at", "last_used_at", "revoked_at", "created_at"}
}

func TestCreate_ReturnsSecretOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO api_keys").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	store := NewStore(db)
	key, err := store.Create(context.Background(), "org_1", "ci", []string{ScopeWrite}, 42, 0)
	require.NoError(t, err)

	assert.NotEmpty(t, key.SecretOnce)
	assert.True(t, key.HasScope(ScopeWrite))
	assert.False(t, key.HasScope(ScopeRead))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidate_UnknownKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	secret, _, _, err := GenerateSecret()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM api_keys").
		WillReturnRows(sqlmock.NewRows(keyColumns()))

	store := NewStore(db)
	_, err = store.Validate(context.Background(), secret)
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestValidate_MalformedKeySkipsDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	_, err = store.Validate(context.Background(), "Bearer garbage")
	assert.True(t, apperrors.IsUnauthenticated(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidate_RevokedKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	secret, _, prefix, err := GenerateSecret()
	require.NoError(t, err)

	revoked := time.Now().Add(-time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM api_keys").
		WithArgs(HashSecret(secret)).
		WillReturnRows(sqlmock.NewRows(keyColumns()).
			AddRow(int64(1), "org_1", "ci", prefix, pq.Array([]string{ScopeRead}), int64(42), nil, nil, revoked, time.Now()))

	store := NewStore(db)
	_, err = store.Validate(context.Background(), secret)
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestValidate_ExpiredKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	secret, _, prefix, err := GenerateSecret()
	require.NoError(t, err)

	expired := time.Now().Add(-time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM api_keys").
		WithArgs(HashSecret(secret)).
		WillReturnRows(sqlmock.NewRows(keyColumns()).
			AddRow(int64(1), "org_1", "ci", prefix, pq.Array([]string{ScopeRead}), int64(42), expired, nil, nil, time.Now()))

	store := NewStore(db)
	_, err = store.Validate(context.Background(), secret)
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestValidate_GoodKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	secret, _, prefix, err := GenerateSecret()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM api_keys").
		WithArgs(HashSecret(secret)).
		WillReturnRows(sqlmock.NewRows(keyColumns()).
			AddRow(int64(1), "org_1", "ci", prefix, pq.Array([]string{ScopeRead, ScopeWrite}), int64(42), nil, nil, nil, time.Now()))
	mock.ExpectExec("UPDATE api_keys SET last_used_at").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db)
	key, err := store.Validate(context.Background(), secret)
	require.NoError(t, err)
	assert.Equal(t, "org_1", key.OrgID)
	assert.Equal(t, int64(42), key.CreatedBy)
	assert.True(t, key.HasScope(ScopeWrite))
}

func TestRevoke_AlreadyRevoked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE api_keys SET revoked_at").
		WithArgs(int64(1), "org_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	err = store.Revoke(context.Background(), "org_1", 1)
	assert.True(t, apperrors.IsNotFound(err))
}
