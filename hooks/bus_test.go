package hooks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/hooks"
)

func TestBusPublishFansOutInRegistrationOrder(t *testing.T) {
	b := hooks.NewBus()
	var order []string

	_, err := b.Register(hooks.SubscriberFunc(func(_ context.Context, e hooks.Event) error {
		order = append(order, "first:"+string(e.Type()))
		return nil
	}))
	require.NoError(t, err)

	_, err = b.Register(hooks.SubscriberFunc(func(_ context.Context, e hooks.Event) error {
		order = append(order, "second:"+string(e.Type()))
		return nil
	}))
	require.NoError(t, err)

	id := atp.NewExecutionID()
	require.NoError(t, b.Publish(context.Background(), hooks.NewStartEvent(id)))

	require.Equal(t, []string{"first:start", "second:start"}, order)
}

func TestBusPublishStopsAtFirstSubscriberError(t *testing.T) {
	b := hooks.NewBus()
	boom := errors.New("boom")
	var secondCalled bool

	_, err := b.Register(hooks.SubscriberFunc(func(_ context.Context, _ hooks.Event) error {
		return boom
	}))
	require.NoError(t, err)

	_, err = b.Register(hooks.SubscriberFunc(func(_ context.Context, _ hooks.Event) error {
		secondCalled = true
		return nil
	}))
	require.NoError(t, err)

	id := atp.NewExecutionID()
	err = b.Publish(context.Background(), hooks.NewStartEvent(id))
	require.ErrorIs(t, err, boom)
	require.False(t, secondCalled)
}

func TestSubscriptionCloseUnregistersAndIsIdempotent(t *testing.T) {
	b := hooks.NewBus()
	var calls int

	sub, err := b.Register(hooks.SubscriberFunc(func(_ context.Context, _ hooks.Event) error {
		calls++
		return nil
	}))
	require.NoError(t, err)

	id := atp.NewExecutionID()
	require.NoError(t, b.Publish(context.Background(), hooks.NewStartEvent(id)))
	require.Equal(t, 1, calls)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.NoError(t, b.Publish(context.Background(), hooks.NewStartEvent(id)))
	require.Equal(t, 1, calls)
}

func TestBusRegisterRejectsNilSubscriber(t *testing.T) {
	b := hooks.NewBus()
	_, err := b.Register(nil)
	require.Error(t, err)
}
