package tenancy

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema and row-policy migrations, in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and organizations",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					external_id TEXT NOT NULL UNIQUE,
					email TEXT NOT NULL DEFAULT '',
					name TEXT NOT NULL DEFAULT '',
					image_url TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS organizations (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					plan TEXT NOT NULL DEFAULT 'free',
					ai_calls_used INT NOT NULL DEFAULT 0,
					ai_calls_reset_at TIMESTAMPTZ NOT NULL DEFAULT (date_trunc('month', NOW()) + INTERVAL '1 month'),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS organization_members (
					id BIGSERIAL PRIMARY KEY,
					org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role TEXT NOT NULL DEFAULT 'member',
					status TEXT NOT NULL DEFAULT 'pending',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(org_id, user_id)
				);

				CREATE INDEX idx_org_members_user_id ON organization_members(user_id);
			`,
		},
		{
			Version:     2,
			Description: "Create boards, lists, cards, attachments",
			SQL: `
				CREATE TABLE IF NOT EXISTS boards (
					id BIGSERIAL PRIMARY KEY,
					org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					title TEXT NOT NULL,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_boards_org_id ON boards(org_id);

				CREATE TABLE IF NOT EXISTS board_members (
					id BIGSERIAL PRIMARY KEY,
					org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					board_id BIGINT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role TEXT NOT NULL DEFAULT 'member',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(board_id, user_id)
				);

				CREATE INDEX idx_board_members_user_id ON board_members(user_id);
				CREATE INDEX idx_board_members_board_id ON board_members(board_id);

				CREATE TABLE IF NOT EXISTS lists (
					id BIGSERIAL PRIMARY KEY,
					org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					board_id BIGINT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
					title TEXT NOT NULL,
					position INT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_lists_board_id ON lists(board_id);

				CREATE TABLE IF NOT EXISTS cards (
					id BIGSERIAL PRIMARY KEY,
					org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					board_id BIGINT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
					list_id BIGINT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
					title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					position INT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_cards_list_id ON cards(list_id);
				CREATE INDEX idx_cards_board_id ON cards(board_id);

				CREATE TABLE IF NOT EXISTS attachments (
					id BIGSERIAL PRIMARY KEY,
					org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					board_id BIGINT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
					card_id BIGINT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
					file_name TEXT NOT NULL,
					object_key TEXT NOT NULL DEFAULT '',
					size_bytes BIGINT NOT NULL DEFAULT 0,
					uploaded BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_attachments_card_id ON attachments(card_id);
			`,
		},
		{
			Version:     3,
			Description: "Create permission schemes and membership requests",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_schemes (
					id BIGSERIAL PRIMARY KEY,
					org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(org_id, name)
				);

				CREATE TABLE IF NOT EXISTS permission_scheme_entries (
					id BIGSERIAL PRIMARY KEY,
					scheme_id BIGINT NOT NULL REFERENCES permission_schemes(id) ON DELETE CASCADE,
					role TEXT NOT NULL,
					permission TEXT NOT NULL,
					granted BOOLEAN NOT NULL DEFAULT FALSE,
					UNIQUE(scheme_id, role, permission)
				);

				-- The scheme reference lives on the board, not on individual
				-- membership rows, so members added after a scheme is attached
				-- are governed by it from their first request.
				ALTER TABLE boards ADD COLUMN permission_scheme_id BIGINT
					REFERENCES permission_schemes(id) ON DELETE SET NULL;

				CREATE TABLE IF NOT EXISTS membership_requests (
					id BIGSERIAL PRIMARY KEY,
					org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					board_id BIGINT REFERENCES boards(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					requested_role TEXT NOT NULL DEFAULT 'member',
					status TEXT NOT NULL DEFAULT 'pending',
					message TEXT NOT NULL DEFAULT '',
					expires_at TIMESTAMPTZ,
					decided_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					decided_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_membership_requests_org_id ON membership_requests(org_id);
				CREATE INDEX idx_membership_requests_status ON membership_requests(status);
			`,
		},
		{
			Version:     4,
			Description: "Create api_keys",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_keys (
					id BIGSERIAL PRIMARY KEY,
					org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					key_hash TEXT NOT NULL UNIQUE,
					key_prefix TEXT NOT NULL,
					scopes TEXT[] NOT NULL DEFAULT '{}',
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					expires_at TIMESTAMPTZ,
					last_used_at TIMESTAMPTZ,
					revoked_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_api_keys_org_id ON api_keys(org_id);
			`,
		},
		{
			Version:     5,
			Description: "Row-level security policies",
			SQL: `
				-- Board access lookup used inside policies on board-scoped
				-- tables: explicit board membership, or an active admin or
				-- owner role in the board's organization, which holds on every
				-- board there. SECURITY DEFINER with a pinned search path so
				-- the lookup itself is not re-filtered by the board_members
				-- policy (which would recurse).
				CREATE OR REPLACE FUNCTION slate_has_board_access(target_board_id BIGINT) RETURNS BOOLEAN
				LANGUAGE plpgsql STABLE SECURITY DEFINER SET search_path = public AS $func$
				DECLARE
					uid BIGINT := NULLIF(current_setting('app.current_user_id', true), '')::BIGINT;
				BEGIN
					RETURN EXISTS (
						SELECT 1 FROM board_members
						WHERE board_id = target_board_id AND user_id = uid
					) OR EXISTS (
						SELECT 1 FROM boards b
						JOIN organization_members om ON om.org_id = b.org_id
						WHERE b.id = target_board_id
						  AND om.user_id = uid
						  AND om.role IN ('admin', 'owner')
						  AND om.status = 'active'
					);
				END;
				$func$;

				-- FORCE applies the policies to the table owner too; the
				-- service connects as the owner after running migrations, and
				-- without FORCE Postgres would silently skip every policy for
				-- it.
				ALTER TABLE boards ENABLE ROW LEVEL SECURITY;
				ALTER TABLE boards FORCE ROW LEVEL SECURITY;
				CREATE POLICY boards_org_isolation ON boards
					USING (org_id = current_setting('app.current_org_id', true))
					WITH CHECK (org_id = current_setting('app.current_org_id', true));

				ALTER TABLE board_members ENABLE ROW LEVEL SECURITY;
				ALTER TABLE board_members FORCE ROW LEVEL SECURITY;
				CREATE POLICY board_members_org_isolation ON board_members
					USING (org_id = current_setting('app.current_org_id', true))
					WITH CHECK (org_id = current_setting('app.current_org_id', true));

				ALTER TABLE lists ENABLE ROW LEVEL SECURITY;
				ALTER TABLE lists FORCE ROW LEVEL SECURITY;
				CREATE POLICY lists_org_isolation ON lists
					USING (org_id = current_setting('app.current_org_id', true) AND slate_has_board_access(board_id))
					WITH CHECK (org_id = current_setting('app.current_org_id', true) AND slate_has_board_access(board_id));

				ALTER TABLE cards ENABLE ROW LEVEL SECURITY;
				ALTER TABLE cards FORCE ROW LEVEL SECURITY;
				CREATE POLICY cards_org_isolation ON cards
					USING (org_id = current_setting('app.current_org_id', true) AND slate_has_board_access(board_id))
					WITH CHECK (org_id = current_setting('app.current_org_id', true) AND slate_has_board_access(board_id));

				ALTER TABLE attachments ENABLE ROW LEVEL SECURITY;
				ALTER TABLE attachments FORCE ROW LEVEL SECURITY;
				CREATE POLICY attachments_org_isolation ON attachments
					USING (org_id = current_setting('app.current_org_id', true) AND slate_has_board_access(board_id))
					WITH CHECK (org_id = current_setting('app.current_org_id', true) AND slate_has_board_access(board_id));

				ALTER TABLE permission_schemes ENABLE ROW LEVEL SECURITY;
				ALTER TABLE permission_schemes FORCE ROW LEVEL SECURITY;
				CREATE POLICY permission_schemes_org_isolation ON permission_schemes
					USING (org_id = current_setting('app.current_org_id', true))
					WITH CHECK (org_id = current_setting('app.current_org_id', true));

				ALTER TABLE membership_requests ENABLE ROW LEVEL SECURITY;
				ALTER TABLE membership_requests FORCE ROW LEVEL SECURITY;
				CREATE POLICY membership_requests_org_isolation ON membership_requests
					USING (org_id = current_setting('app.current_org_id', true))
					WITH CHECK (org_id = current_setting('app.current_org_id', true));

				-- Background sweeps run without a tenant. They mark their
				-- transaction and these permissive policies admit it; nothing
				-- in the request path ever sets app.maintenance.
				CREATE POLICY membership_requests_maintenance ON membership_requests
					USING (current_setting('app.maintenance', true) = 'on');
				CREATE POLICY attachments_maintenance ON attachments
					USING (current_setting('app.maintenance', true) = 'on');
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tenancy_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM tenancy_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tenancy_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
