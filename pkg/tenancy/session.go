package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/slateboards/slate/pkg/identity"
)

// RunInTenantTx wraps a multi-statement operation in one transaction with the
// tenant session settings established before any other statement runs.
//
// set_config(..., true) scopes the settings to the transaction: they vanish
// at commit or rollback, so nothing persists on the pooled connection. Never
// SET a session variable outside this helper and expect a later statement to
// see it; the pool may hand the later statement a different connection.
func RunInTenantTx(ctx context.Context, db *sql.DB, tc *identity.TenantContext, fn func(tx *sql.Tx) error) error {
	return runInTenantTx(ctx, db, tc, nil, fn)
}

// RunInSerializableTenantTx is RunInTenantTx at SERIALIZABLE isolation, for
// the authoritative quota re-check where two concurrent below-limit reads
// must not both commit.
func RunInSerializableTenantTx(ctx context.Context, db *sql.DB, tc *identity.TenantContext, fn func(tx *sql.Tx) error) error {
	return runInTenantTx(ctx, db, tc, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
}

// RunInMaintenanceTx runs a background sweep in a transaction flagged as
// maintenance. The row policies admit the flag without a tenant, so sweeps
// can touch rows across organizations; nothing in the request path sets it.
func RunInMaintenanceTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin maintenance transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.maintenance', 'on', true)`); err != nil {
		return fmt.Errorf("failed to set maintenance flag: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func runInTenantTx(ctx context.Context, db *sql.DB, tc *identity.TenantContext, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin tenant transaction: %w", err)
	}
	defer tx.Rollback()

	// Both settings before any caller statement. The third argument makes
	// them transaction-local.
	_, err = tx.ExecContext(ctx,
		`SELECT set_config('app.current_org_id', $1, true), set_config('app.current_user_id', $2, true)`,
		tc.OrgID, strconv.FormatInt(tc.UserID, 10),
	)
	if err != nil {
		return fmt.Errorf("failed to set tenant session settings: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
