package service_test

import (
	"context"
	"testing"

	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/domain"
	"github.com/straye-as/indicator-api/internal/service"
	"github.com/straye-as/indicator-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var followupRules = []catalog.CarryForwardRule{
	{Final: "followup_final", Exits: "followup_exits", Initial: "followup_initial"},
}

func TestCarryForwardService_ComputeInitialValues(t *testing.T) {
	ctx := context.Background()

	t.Run("no previous record yields an empty map", func(t *testing.T) {
		h := newHarness(t)
		values, err := h.carryForward.ComputeInitialValues(ctx, socialAssistance, "north", domain.MonthlyPeriod(2024, 3), followupRules)
		require.NoError(t, err)
		assert.NotNil(t, values)
		assert.Empty(t, values)
	})

	t.Run("final minus exits", func(t *testing.T) {
		h := newHarness(t)
		testutil.CreateTestSubmission(t, h.db, socialAssistance, "north", domain.MonthlyPeriod(2024, 2),
			map[string]any{"followup_final": 40, "followup_exits": 5})

		values, err := h.carryForward.ComputeInitialValues(ctx, socialAssistance, "north", domain.MonthlyPeriod(2024, 3), followupRules)
		require.NoError(t, err)
		assert.Equal(t, 35.0, values["followup_initial"])
	})

	t.Run("january reads december of the previous year", func(t *testing.T) {
		h := newHarness(t)
		testutil.CreateTestSubmission(t, h.db, socialAssistance, "north", domain.MonthlyPeriod(2023, 12),
			map[string]any{"followup_final": 12, "followup_exits": 2})

		values, err := h.carryForward.ComputeInitialValues(ctx, socialAssistance, "north", domain.MonthlyPeriod(2024, 1), followupRules)
		require.NoError(t, err)
		assert.Equal(t, 10.0, values["followup_initial"])
	})

	t.Run("records of other units are not used", func(t *testing.T) {
		h := newHarness(t)
		testutil.CreateTestSubmission(t, h.db, socialAssistance, "south", domain.MonthlyPeriod(2024, 2),
			map[string]any{"followup_final": 40})

		values, err := h.carryForward.ComputeInitialValues(ctx, socialAssistance, "north", domain.MonthlyPeriod(2024, 3), followupRules)
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("missing and malformed inputs count as zero", func(t *testing.T) {
		h := newHarness(t)
		testutil.CreateTestSubmission(t, h.db, socialAssistance, "north", domain.MonthlyPeriod(2024, 2),
			map[string]any{"followup_final": "n/a"})

		values, err := h.carryForward.ComputeInitialValues(ctx, socialAssistance, "north", domain.MonthlyPeriod(2024, 3), followupRules)
		require.NoError(t, err)
		assert.Equal(t, 0.0, values["followup_initial"])
	})

	t.Run("negative results are kept", func(t *testing.T) {
		h := newHarness(t)
		testutil.CreateTestSubmission(t, h.db, socialAssistance, "north", domain.MonthlyPeriod(2024, 2),
			map[string]any{"followup_final": 3, "followup_exits": 8})

		values, err := h.carryForward.ComputeInitialValues(ctx, socialAssistance, "north", domain.MonthlyPeriod(2024, 3), followupRules)
		require.NoError(t, err)
		assert.Equal(t, -5.0, values["followup_initial"])
	})

	t.Run("daily periods read the previous day", func(t *testing.T) {
		h := newHarness(t)
		rules := []catalog.CarryForwardRule{{Final: "shelter_final", Exits: "shelter_exits", Initial: "shelter_initial"}}
		testutil.CreateTestSubmission(t, h.db, emergencyShelter, "", domain.Period{Year: 2024, Month: 2, Day: 29},
			map[string]any{"shelter_final": 20, "shelter_exits": 3})

		values, err := h.carryForward.ComputeInitialValues(ctx, emergencyShelter, "", domain.Period{Year: 2024, Month: 3, Day: 1}, rules)
		require.NoError(t, err)
		assert.Equal(t, 17.0, values["shelter_initial"])
	})

	t.Run("no rules skips the lookup", func(t *testing.T) {
		h := newHarness(t)
		h.closeDB(t)
		values, err := h.carryForward.ComputeInitialValues(ctx, socialAssistance, "north", domain.MonthlyPeriod(2024, 3), nil)
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("read failure is a store failure", func(t *testing.T) {
		h := newHarness(t)
		h.closeDB(t)
		_, err := h.carryForward.ComputeInitialValues(ctx, socialAssistance, "north", domain.MonthlyPeriod(2024, 3), followupRules)
		assert.ErrorIs(t, err, service.ErrStoreFailure)
	})
}

func TestApplyCarryForward(t *testing.T) {
	rules := []catalog.CarryForwardRule{
		{Final: "a_final", Exits: "a_exits", Initial: "a_initial"},
		{Final: "b_final", Initial: "b_initial"},
	}
	values := service.ApplyCarryForward(map[string]any{
		"a_final": "12.5",
		"a_exits": 2.5,
		"b_final": 7,
	}, rules)

	assert.Equal(t, map[string]any{"a_initial": 10.0, "b_initial": 7.0}, values)
}
