package quota

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slateboards/slate/pkg/apperrors"
	"github.com/slateboards/slate/pkg/orgs"
)

func TestEvaluate_UnderLimit(t *testing.T) {
	err := Evaluate(orgs.PlanFree, ResourceBoards, 4)
	assert.NoError(t, err)
}

func TestEvaluate_AtLimit(t *testing.T) {
	err := Evaluate(orgs.PlanFree, ResourceBoards, 5)
	require.Error(t, err)
	assert.True(t, apperrors.IsLimitReached(err))

	var limitErr *apperrors.LimitReachedError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, "boards", limitErr.Resource)
	assert.Equal(t, 5, limitErr.Limit)
	assert.Equal(t, 5, limitErr.Current)
}

func TestEvaluate_OverLimit(t *testing.T) {
	err := Evaluate(orgs.PlanFree, ResourceCardsPerBoard, 501)
	assert.True(t, apperrors.IsLimitReached(err))
}

func TestEvaluate_ProPlanHigherCeiling(t *testing.T) {
	assert.NoError(t, Evaluate(orgs.PlanPro, ResourceBoards, 5))
	assert.Error(t, Evaluate(orgs.PlanPro, ResourceBoards, 100))
}

func TestForPlan_UnknownPlanFallsBackToFree(t *testing.T) {
	limits := ForPlan(orgs.Plan("enterprise-beta"))
	assert.Equal(t, planLimits[orgs.PlanFree], limits)

	// An org with a corrupted plan value must not get unlimited resources.
	err := Evaluate(orgs.Plan("enterprise-beta"), ResourceAttachmentsPerCard, 5)
	assert.True(t, apperrors.IsLimitReached(err))
}

func TestCheck_ExplicitLimit(t *testing.T) {
	assert.NoError(t, Check(ResourceAttachmentsPerCard, 4, 5))
	assert.True(t, apperrors.IsLimitReached(Check(ResourceAttachmentsPerCard, 5, 5)))
}
