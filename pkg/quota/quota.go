// Package quota enforces per-plan resource ceilings.
//
// Limits are a static table keyed by plan; every enforcement path reads the
// same table, so advisory checks and the authoritative serializable re-check
// cannot disagree about the ceiling. An organization with an unrecognized
// plan gets the free tier.
package quota

import (
	"fmt"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/orgs"
)

// Resource names a countable thing a plan caps.
type Resource string

const (
	ResourceBoards             Resource = "boards"
	ResourceCardsPerBoard      Resource = "cards_per_board"
	ResourceAttachmentsPerCard Resource = "attachments_per_card"
	ResourceAICallsPerMonth    Resource = "ai_calls_per_month"
)

// Limits caps one plan.
type Limits struct {
	MaxBoards             int
	MaxCardsPerBoard      int
	MaxAttachmentsPerCard int
	MaxAICallsPerMonth    int
}

var planLimits = map[orgs.Plan]Limits{
	orgs.PlanFree: {
		MaxBoards:             5,
		MaxCardsPerBoard:      500,
		MaxAttachmentsPerCard: 5,
		MaxAICallsPerMonth:    50,
	},
	orgs.PlanPro: {
		MaxBoards:             100,
		MaxCardsPerBoard:      5000,
		MaxAttachmentsPerCard: 100,
		MaxAICallsPerMonth:    1000,
	},
}

// ForPlan returns the limits for a plan. Unknown plans fall back to free.
func ForPlan(plan orgs.Plan) Limits {
	limits, ok := planLimits[plan]
	if !ok {
		return planLimits[orgs.PlanFree]
	}
	return limits
}

// limitFor maps a resource to its ceiling within a plan's limits.
func (l Limits) limitFor(resource Resource) int {
	switch resource {
	case ResourceBoards:
		return l.MaxBoards
	case ResourceCardsPerBoard:
		return l.MaxCardsPerBoard
	case ResourceAttachmentsPerCard:
		return l.MaxAttachmentsPerCard
	case ResourceAICallsPerMonth:
		return l.MaxAICallsPerMonth
	default:
		return 0
	}
}

// Evaluate checks a fresh count against a plan's ceiling for one resource.
// The boundary is strict: a count already at the limit rejects the next
// creation.
func Evaluate(plan orgs.Plan, resource Resource, current int) error {
	limit := ForPlan(plan).limitFor(resource)
	if current >= limit {
		return &apperrors.LimitReachedError{
			Resource: string(resource),
			Current:  current,
			Limit:    limit,
		}
	}
	return nil
}

// Check is Evaluate with an explicit limit, for callers that already
// resolved the plan.
func Check(resource Resource, current, limit int) error {
	if current >= limit {
		return &apperrors.LimitReachedError{
			Resource: string(resource),
			Current:  current,
			Limit:    limit,
		}
	}
	return nil
}

// String describes limits for logs.
func (l Limits) String() string {
	return fmt.Sprintf("boards=%d cards/board=%d attachments/card=%d ai/month=%d",
		l.MaxBoards, l.MaxCardsPerBoard, l.MaxAttachmentsPerCard, l.MaxAICallsPerMonth)
}
