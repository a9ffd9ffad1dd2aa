package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// IncrementAICalls atomically bumps the AI-call counter and returns the new
// value. The increment-and-read is one statement so concurrent requests
// cannot both observe the pre-increment count.
func (s *PostgresService) IncrementAICalls(ctx context.Context, orgID string) (int, error) {
	query := `
		UPDATE organizations
		SET ai_calls_used = ai_calls_used + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING ai_calls_used
	`
	var used int
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("organization %s not found", orgID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment AI calls: %w", err)
	}

	return used, nil
}

// ResetAICallCounters zeroes the AI-call counter for every organization whose
// reset timestamp has lapsed. Run from the monthly cron job.
func (s *PostgresService) ResetAICallCounters(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE organizations
		SET ai_calls_used = 0, ai_calls_reset_at = $1, updated_at = NOW()
		WHERE ai_calls_reset_at <= NOW()
	`
	nextReset := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	result, err := s.db.ExecContext(ctx, query, nextReset)
	if err != nil {
		return 0, fmt.Errorf("failed to reset AI call counters: %w", err)
	}

	return result.RowsAffected()
}

// SetPlan updates an organization's subscription plan. Called by the billing
// collaborator; the string is stored as-is and normalized at enforcement time.
func (s *PostgresService) SetPlan(ctx context.Context, orgID string, plan Plan) error {
	query := `UPDATE organizations SET plan = $1, updated_at = NOW() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, plan, orgID)
	if err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("organization %s not found", orgID)
	}

	return nil
}
