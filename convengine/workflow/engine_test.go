package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloomline-ai/promoflow/commbus"
	"github.com/bloomline-ai/promoflow/convengine/config"
	"github.com/bloomline-ai/promoflow/convengine/llm"
	"github.com/bloomline-ai/promoflow/convengine/record"
	"github.com/bloomline-ai/promoflow/convengine/session"
	"github.com/bloomline-ai/promoflow/convengine/store"
	"github.com/bloomline-ai/promoflow/convengine/testutil"
)

func newTestEngine(t *testing.T, gen llm.Generator) (*Engine, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	e, err := NewEngine(config.DefaultHandlers(), config.DefaultCoreConfig(), gen, st, nil, nil, nil)
	require.NoError(t, err)
	return e, st
}

func marketingTurn(sessionID, message string) *TurnRequest {
	return &TurnRequest{
		SessionID: sessionID,
		UserID:    "user_1",
		Message:   message,
		Handler:   record.HandlerMarketing,
	}
}

func TestProcessTurnValidation(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMockGenerator())
	_, err := e.ProcessTurn(context.Background(), &TurnRequest{SessionID: "sess_a"})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestProcessTurnGeneratesSessionID(t *testing.T) {
	e, st := newTestEngine(t, testutil.NewMockGenerator())

	resp, err := e.ProcessTurn(context.Background(), &TurnRequest{
		UserID:  "user_1",
		Message: "마케팅 도와주세요",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)

	_, err = st.Load(context.Background(), resp.SessionID)
	assert.NoError(t, err)
}

func TestProcessTurnFirstTurnRoutes(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMockGenerator())

	resp, err := e.ProcessTurn(context.Background(), &TurnRequest{
		SessionID: "sess_route",
		UserID:    "user_1",
		Message:   "신메뉴 홍보 마케팅 캠페인을 하고 싶어요",
	})
	require.NoError(t, err)
	assert.Equal(t, record.HandlerMarketing, resp.Handler)
}

func TestTerminationBound(t *testing.T) {
	// Adversarial model: never emits a control token, never mentions
	// anything extractable. The conversation must still reach a terminal
	// stage within the sum of the per-stage hard caps.
	gen := testutil.NewMockGenerator()
	gen.DefaultResponse = "흠, 그렇군요."
	e, _ := newTestEngine(t, gen)

	maxTurns := config.DefaultHandlers()[record.HandlerMarketing].MaxTurns()

	turns := 0
	for ; turns < maxTurns+5; turns++ {
		resp, err := e.ProcessTurn(context.Background(), marketingTurn("sess_bound", "그냥요"))
		require.NoError(t, err)
		if resp.IsCompleted {
			break
		}
	}

	assert.LessOrEqual(t, turns, maxTurns, "conversation exceeded the hard-cap bound")
}

func TestMonotonicStageProgression(t *testing.T) {
	gen := testutil.NewMockGenerator()
	gen.DefaultResponse = "알겠습니다."
	e, _ := newTestEngine(t, gen)
	handler := config.DefaultHandlers()[record.HandlerMarketing]

	observed := []record.Stage{record.StageInitial}
	for i := 0; i < 60; i++ {
		resp, err := e.ProcessTurn(context.Background(), marketingTurn("sess_walk", "카페 신메뉴 홍보요"))
		require.NoError(t, err)
		observed = append(observed, resp.CurrentStage)
		if resp.IsCompleted {
			break
		}
	}

	for i := 1; i < len(observed); i++ {
		from, to := observed[i-1], observed[i]
		if from == to {
			continue
		}
		assert.True(t, handler.HasEdge(from, to),
			"observed transition %s -> %s is not a graph edge", from, to)
	}
}

func TestFeedbackLoopForcedToExecution(t *testing.T) {
	// Drive a session into CONTENT_FEEDBACK, then send five revision
	// requests; the fifth must land in EXECUTION via the feedback cap.
	gen := testutil.NewMockGenerator()
	gen.DefaultResponse = "네, 확인했어요."
	e, st := newTestEngine(t, gen)

	_, err := e.ProcessTurn(context.Background(), marketingTurn("sess_fb", "마케팅이요"))
	require.NoError(t, err)

	rec, err := st.Load(context.Background(), "sess_fb")
	require.NoError(t, err)
	rec.CurrentStage = record.StageContentFeedback
	rec.IterationCount = 0
	rec.FeedbackCount = 0
	require.NoError(t, st.Save(context.Background(), rec))

	gen.DefaultResponse = "수정했어요. 어떠세요?"
	var resp *TurnResponse
	for i := 0; i < 5; i++ {
		resp, err = e.ProcessTurn(context.Background(), marketingTurn("sess_fb", "수정해주세요"))
		require.NoError(t, err)
	}

	assert.Equal(t, record.StageExecution, resp.CurrentStage)
}

func TestTerminatedSessionShortCircuits(t *testing.T) {
	gen := testutil.NewMockGenerator()
	e, st := newTestEngine(t, gen)

	rec := record.New("sess_done", "user_1", record.HandlerMarketing)
	rec.Terminate()
	require.NoError(t, st.Save(context.Background(), rec))

	resp, err := e.ProcessTurn(context.Background(), marketingTurn("sess_done", "여보세요?"))
	require.NoError(t, err)

	assert.True(t, resp.IsCompleted)
	assert.Zero(t, gen.CallCount(), "terminated session must not invoke stage logic")

	// The stored record stays untouched.
	after, err := st.Load(context.Background(), "sess_done")
	require.NoError(t, err)
	assert.Zero(t, after.IterationCount)
}

func TestErrorRetryPathIsBounded(t *testing.T) {
	gen := testutil.NewMockGenerator().WithError(errors.New("provider down"))
	e, st := newTestEngine(t, gen)

	rec := record.New("sess_err", "user_1", record.HandlerMarketing)
	require.NoError(t, st.Save(context.Background(), rec))

	runUntilError := func() {
		for i := 0; i < 3; i++ {
			_, err := e.ProcessTurn(context.Background(), marketingTurn("sess_err", "안녕하세요"))
			require.NoError(t, err)
		}
		stored, err := st.Load(context.Background(), "sess_err")
		require.NoError(t, err)
		require.Equal(t, record.StageError, stored.CurrentStage)
	}

	// First escalation, then the retry edge back to INITIAL.
	runUntilError()
	resp, err := e.ProcessTurn(context.Background(), marketingTurn("sess_err", "다시요"))
	require.NoError(t, err)
	assert.Equal(t, record.StageInitial, resp.CurrentStage)
	assert.False(t, resp.IsCompleted)

	// Second escalation and second retry.
	runUntilError()
	resp, err = e.ProcessTurn(context.Background(), marketingTurn("sess_err", "다시요"))
	require.NoError(t, err)
	assert.Equal(t, record.StageInitial, resp.CurrentStage)

	// Third escalation exhausts the retry budget.
	runUntilError()
	resp, err = e.ProcessTurn(context.Background(), marketingTurn("sess_err", "다시요"))
	require.NoError(t, err)
	assert.True(t, resp.IsCompleted)
}

func TestUnknownHandlerIsSurfacedWithoutCorruption(t *testing.T) {
	e, st := newTestEngine(t, testutil.NewMockGenerator())

	rec := record.New("sess_bad", "user_1", "concierge")
	require.NoError(t, st.Save(context.Background(), rec))

	_, err := e.ProcessTurn(context.Background(), marketingTurn("sess_bad", "안녕하세요"))
	assert.ErrorIs(t, err, ErrUnknownHandler)

	stored, loadErr := st.Load(context.Background(), "sess_bad")
	require.NoError(t, loadErr)
	assert.Zero(t, stored.IterationCount)
	assert.Zero(t, stored.MessageCount())
}

func TestRateLimitedTurnGetsApology(t *testing.T) {
	gen := testutil.NewMockGenerator()
	st := store.NewMemory()
	limiter := session.NewRateLimiter(session.RateLimitConfig{RequestsPerMinute: 1})
	e, err := NewEngine(config.DefaultHandlers(), config.DefaultCoreConfig(), gen, st, nil, limiter, nil)
	require.NoError(t, err)

	_, err = e.ProcessTurn(context.Background(), marketingTurn("sess_rl", "마케팅이요"))
	require.NoError(t, err)
	callsAfterFirst := gen.CallCount()

	// Budget exhausted: the turn still succeeds, with the apology text, and
	// the provider is never consulted.
	resp, err := e.ProcessTurn(context.Background(), marketingTurn("sess_rl", "계속요"))
	require.NoError(t, err)
	assert.False(t, resp.IsCompleted)
	assert.Equal(t, callsAfterFirst, gen.CallCount())
}

func TestRetrievalAndDeliveryCollaborators(t *testing.T) {
	gen := testutil.NewMockGenerator()
	gen.DefaultResponse = "이런 문구 어떠세요?"
	st := store.NewMemory()
	bus := commbus.NewInMemoryCommBus(time.Second, nil)

	var retrievalCalls, deliveries int
	require.NoError(t, bus.RegisterHandler("RetrievalQuery", func(ctx context.Context, msg commbus.Message) (any, error) {
		retrievalCalls++
		return &commbus.RetrievalResult{Documents: []string{"참고 사례"}}, nil
	}))
	require.NoError(t, bus.RegisterHandler("DeliveryRequest", func(ctx context.Context, msg commbus.Message) (any, error) {
		deliveries++
		return nil, nil
	}))

	e, err := NewEngine(config.DefaultHandlers(), config.DefaultCoreConfig(), gen, st, bus, nil, nil)
	require.NoError(t, err)

	// Content creation consults retrieval.
	rec := record.New("sess_bus", "user_1", record.HandlerMarketing)
	rec.CurrentStage = record.StageContentCreation
	require.NoError(t, st.Save(context.Background(), rec))

	_, err = e.ProcessTurn(context.Background(), marketingTurn("sess_bus", "홍보 문구 만들어주세요"))
	require.NoError(t, err)
	assert.Equal(t, 1, retrievalCalls)

	// Execution dispatches delivery.
	rec, err = st.Load(context.Background(), "sess_bus")
	require.NoError(t, err)
	rec.CurrentStage = record.StageExecution
	rec.IterationCount = 0
	require.NoError(t, st.Save(context.Background(), rec))

	_, err = e.ProcessTurn(context.Background(), marketingTurn("sess_bus", "올려주세요"))
	require.NoError(t, err)
	assert.Equal(t, 1, deliveries)
}

func TestTurnEventsPublished(t *testing.T) {
	gen := testutil.NewMockGenerator()
	st := store.NewMemory()
	bus := commbus.NewInMemoryCommBus(time.Second, nil)

	var turns int
	bus.Subscribe("TurnCompleted", func(ctx context.Context, msg commbus.Message) (any, error) {
		turns++
		return nil, nil
	})

	e, err := NewEngine(config.DefaultHandlers(), config.DefaultCoreConfig(), gen, st, bus, nil, nil)
	require.NoError(t, err)

	_, err = e.ProcessTurn(context.Background(), marketingTurn("sess_ev", "마케팅이요"))
	require.NoError(t, err)
	assert.Equal(t, 1, turns)
}
