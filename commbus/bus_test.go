package commbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *InMemoryCommBus {
	return NewInMemoryCommBus(time.Second, nil)
}

func TestPublishFanOut(t *testing.T) {
	bus := newTestBus()
	var calls atomic.Int64

	for i := 0; i < 3; i++ {
		bus.Subscribe("TurnCompleted", func(ctx context.Context, msg Message) (any, error) {
			calls.Add(1)
			return nil, nil
		})
	}

	err := bus.Publish(context.Background(), &TurnCompleted{SessionID: "sess_a", Status: "success"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestPublishSubscriberErrorDoesNotStopOthers(t *testing.T) {
	bus := newTestBus()
	var succeeded atomic.Int64

	bus.Subscribe("StageAdvanced", func(ctx context.Context, msg Message) (any, error) {
		return nil, errors.New("subscriber down")
	})
	bus.Subscribe("StageAdvanced", func(ctx context.Context, msg Message) (any, error) {
		succeeded.Add(1)
		return nil, nil
	})

	err := bus.Publish(context.Background(), &StageAdvanced{SessionID: "sess_a", FromStage: "initial", ToStage: "goal_setting"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), succeeded.Load())
}

func TestPublishNoSubscribers(t *testing.T) {
	bus := newTestBus()
	assert.NoError(t, bus.Publish(context.Background(), &ContentDrafted{SessionID: "sess_a"}))
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()
	var calls atomic.Int64

	unsub1 := bus.Subscribe("TurnCompleted", func(ctx context.Context, msg Message) (any, error) {
		calls.Add(1)
		return nil, nil
	})
	bus.Subscribe("TurnCompleted", func(ctx context.Context, msg Message) (any, error) {
		calls.Add(1)
		return nil, nil
	})

	unsub1()
	unsub1() // idempotent

	require.NoError(t, bus.Publish(context.Background(), &TurnCompleted{}))
	assert.Equal(t, int64(1), calls.Load())
	assert.Len(t, bus.GetSubscribers("TurnCompleted"), 1)
}

func TestSendCommand(t *testing.T) {
	bus := newTestBus()

	var got *DeliveryRequest
	require.NoError(t, bus.RegisterHandler("DeliveryRequest", func(ctx context.Context, msg Message) (any, error) {
		got = msg.(*DeliveryRequest)
		return nil, nil
	}))

	err := bus.Send(context.Background(), &DeliveryRequest{
		SessionID: "sess_a",
		Channel:   "인스타그램",
		Content:   "신메뉴 출시!",
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "인스타그램", got.Channel)
}

func TestSendWithoutHandlerIsSilent(t *testing.T) {
	bus := newTestBus()
	assert.NoError(t, bus.Send(context.Background(), &DeliveryRequest{SessionID: "sess_a"}))
}

func TestRegisterHandlerDuplicate(t *testing.T) {
	bus := newTestBus()
	noop := func(ctx context.Context, msg Message) (any, error) { return nil, nil }

	require.NoError(t, bus.RegisterHandler("RetrievalQuery", noop))
	err := bus.RegisterHandler("RetrievalQuery", noop)

	var dup *HandlerAlreadyRegisteredError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "RetrievalQuery", dup.MessageType)
	assert.True(t, bus.HasHandler("RetrievalQuery"))
}

func TestQuerySync(t *testing.T) {
	t.Run("returns handler result", func(t *testing.T) {
		bus := newTestBus()
		require.NoError(t, bus.RegisterHandler("RetrievalQuery", func(ctx context.Context, msg Message) (any, error) {
			q := msg.(*RetrievalQuery)
			return &RetrievalResult{Documents: []string{"ref for " + q.Text}}, nil
		}))

		res, err := bus.QuerySync(context.Background(), &RetrievalQuery{Text: "카페 홍보"})
		require.NoError(t, err)
		assert.Equal(t, []string{"ref for 카페 홍보"}, res.(*RetrievalResult).Documents)
	})

	t.Run("no handler", func(t *testing.T) {
		bus := newTestBus()
		_, err := bus.QuerySync(context.Background(), &RetrievalQuery{Text: "x"})

		var noHandler *NoHandlerError
		assert.ErrorAs(t, err, &noHandler)
	})

	t.Run("timeout", func(t *testing.T) {
		bus := NewInMemoryCommBus(20*time.Millisecond, nil)
		require.NoError(t, bus.RegisterHandler("RetrievalQuery", func(ctx context.Context, msg Message) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))

		_, err := bus.QuerySync(context.Background(), &RetrievalQuery{Text: "x"})

		var timeout *QueryTimeoutError
		assert.ErrorAs(t, err, &timeout)
	})
}

func TestMiddlewareAbort(t *testing.T) {
	bus := newTestBus()
	var handled atomic.Int64

	bus.Subscribe("TurnCompleted", func(ctx context.Context, msg Message) (any, error) {
		handled.Add(1)
		return nil, nil
	})
	bus.AddMiddleware(middlewareFunc{
		before: func(ctx context.Context, msg Message) (Message, error) { return nil, nil },
	})

	require.NoError(t, bus.Publish(context.Background(), &TurnCompleted{}))
	assert.Zero(t, handled.Load())
}

func TestCircuitBreaker(t *testing.T) {
	breaker := NewCircuitBreakerMiddleware(2, 50*time.Millisecond, nil, nil)
	bus := newTestBus()
	bus.AddMiddleware(breaker)

	failures := atomic.Int64{}
	require.NoError(t, bus.RegisterHandler("DeliveryRequest", func(ctx context.Context, msg Message) (any, error) {
		failures.Add(1)
		return nil, errors.New("smtp down")
	}))

	// Two failures open the circuit.
	_ = bus.Send(context.Background(), &DeliveryRequest{})
	_ = bus.Send(context.Background(), &DeliveryRequest{})
	assert.Equal(t, "open", breaker.GetStates()["DeliveryRequest"])

	// While open, requests are blocked before the handler.
	_ = bus.Send(context.Background(), &DeliveryRequest{})
	assert.Equal(t, int64(2), failures.Load())

	// After the reset timeout the circuit half-opens and a success closes it.
	time.Sleep(60 * time.Millisecond)
	bus.Clear()
	bus.AddMiddleware(breaker)
	require.NoError(t, bus.RegisterHandler("DeliveryRequest", func(ctx context.Context, msg Message) (any, error) {
		return nil, nil
	}))
	_ = bus.Send(context.Background(), &DeliveryRequest{})
	assert.Equal(t, "closed", breaker.GetStates()["DeliveryRequest"])
}

func TestGetMessageType(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{&SessionRouted{}, "SessionRouted"},
		{&TurnCompleted{}, "TurnCompleted"},
		{&StageAdvanced{}, "StageAdvanced"},
		{&ContentDrafted{}, "ContentDrafted"},
		{&DeliveryRequest{}, "DeliveryRequest"},
		{&RetrievalQuery{}, "RetrievalQuery"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetMessageType(tt.msg))
	}
}

func TestMessageCategories(t *testing.T) {
	assert.Equal(t, "event", (&TurnCompleted{}).Category())
	assert.Equal(t, "command", (&DeliveryRequest{}).Category())
	assert.Equal(t, "query", (&RetrievalQuery{}).Category())
}

// middlewareFunc adapts plain functions to Middleware for tests.
type middlewareFunc struct {
	before func(ctx context.Context, msg Message) (Message, error)
	after  func(ctx context.Context, msg Message, result any, err error) (any, error)
}

func (m middlewareFunc) Before(ctx context.Context, msg Message) (Message, error) {
	if m.before == nil {
		return msg, nil
	}
	return m.before(ctx, msg)
}

func (m middlewareFunc) After(ctx context.Context, msg Message, result any, err error) (any, error) {
	if m.after == nil {
		return result, nil
	}
	return m.after(ctx, msg, result, err)
}
