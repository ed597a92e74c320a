package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bloomline-ai/promoflow/convengine/config"
	"github.com/bloomline-ai/promoflow/convengine/record"
	"github.com/bloomline-ai/promoflow/convengine/testutil"
)

func marketingGuard() *Guard {
	return NewGuard(config.DefaultHandlers()[record.HandlerMarketing], config.DefaultCoreConfig())
}

func TestGuardEvaluate(t *testing.T) {
	g := marketingGuard()

	t.Run("fresh record continues", func(t *testing.T) {
		rec := testutil.NewRecord(record.StageInitial, nil)
		assert.Equal(t, ActionContinue, g.Evaluate(rec).Action)
	})

	t.Run("terminated record ends", func(t *testing.T) {
		rec := testutil.NewRecord(record.StageGoalSetting, nil)
		rec.Terminate()
		assert.Equal(t, ActionEnd, g.Evaluate(rec).Action)
	})

	t.Run("completed stage ends", func(t *testing.T) {
		rec := testutil.NewRecord(record.StageCompleted, nil)
		assert.Equal(t, ActionEnd, g.Evaluate(rec).Action)
	})

	t.Run("hard cap forces advance", func(t *testing.T) {
		rec := testutil.NewRecord(record.StageInitial, nil)
		rec.IterationCount = 5

		v := g.Evaluate(rec)
		assert.Equal(t, ActionAdvance, v.Action)
		assert.Equal(t, record.StageGoalSetting, v.Target)
		assert.Equal(t, "hard_cap", v.Trigger)
	})

	t.Run("feedback cap forces execution", func(t *testing.T) {
		rec := testutil.NewRecord(record.StageContentFeedback, nil)
		rec.FeedbackCount = 5

		v := g.Evaluate(rec)
		assert.Equal(t, ActionAdvance, v.Action)
		assert.Equal(t, record.StageExecution, v.Target)
		assert.Equal(t, "feedback_cap", v.Trigger)
	})

	t.Run("error stage retries within budget", func(t *testing.T) {
		rec := testutil.NewRecord(record.StageError, nil)
		rec.RetryCount = 2

		v := g.Evaluate(rec)
		assert.Equal(t, ActionAdvance, v.Action)
		assert.Equal(t, record.StageInitial, v.Target)
	})

	t.Run("error stage ends after exhausted retries", func(t *testing.T) {
		rec := testutil.NewRecord(record.StageError, nil)
		rec.RetryCount = 3

		v := g.Evaluate(rec)
		assert.Equal(t, ActionEnd, v.Action)
		assert.Equal(t, "retries_exhausted", v.Trigger)
	})

	t.Run("unconfigured stage is a config error", func(t *testing.T) {
		rec := testutil.NewRecord(record.StageInitial, nil)
		rec.CurrentStage = "warmup"
		assert.Equal(t, ActionError, g.Evaluate(rec).Action)
	})
}

func TestGuardAllowsEdge(t *testing.T) {
	g := marketingGuard()

	assert.True(t, g.AllowsEdge(record.StageInitial, record.StageGoalSetting))
	assert.True(t, g.AllowsEdge(record.StageContentFeedback, record.StageContentCreation))
	assert.False(t, g.AllowsEdge(record.StageInitial, record.StageExecution))
	assert.False(t, g.AllowsEdge(record.StageGoalSetting, record.StageInitial))
}
