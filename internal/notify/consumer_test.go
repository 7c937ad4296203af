package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-sla/internal/clock"
)

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, job Job) ([]string, error) {
	args := m.Called(ctx, job)
	failed, _ := args.Get(0).([]string)
	return failed, args.Error(1)
}

func TestConsumerDefersFailedChannels(t *testing.T) {
	ctx := context.Background()
	list := newFakeList()
	q := NewQueue(list, "jobs")
	require.NoError(t, q.Publish(ctx, Job{ID: "j-1", Kind: KindSLAWarning}))
	clk := clock.Fake(time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC))

	deliverer := &mockDeliverer{}
	deliverer.On("Deliver", mock.Anything, mock.MatchedBy(func(j Job) bool { return j.Retries == 0 })).
		Return([]string{"sms"}, errors.New("gateway down")).Once()
	deliverer.On("Deliver", mock.Anything, mock.MatchedBy(func(j Job) bool { return j.Retries == 1 })).
		Return(nil, nil).Once()

	c := NewConsumer(q, deliverer, ConsumerConfig{
		MaxRetries:   3,
		Retry:        RetryPolicy{Initial: 10 * time.Second, Max: time.Minute},
		BlockTimeout: time.Millisecond,
		Clock:        clk,
	}, zap.NewNop(), nil)

	handled, err := c.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 0, list.len("jobs"))
	assert.Equal(t, 1, list.delayed("jobs:delayed"))

	clk.Advance(9 * time.Second)
	handled, err = c.ProcessOne(ctx)
	require.NoError(t, err)
	assert.False(t, handled, "retry must wait for its backoff")

	clk.Advance(time.Second)
	handled, err = c.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 0, list.delayed("jobs:delayed"))

	deliverer.AssertExpectations(t)
	retried := deliverer.Calls[1].Arguments.Get(1).(Job)
	assert.Equal(t, []string{"sms"}, retried.Channels)
}

func TestConsumerBackoffGrowsPerAttempt(t *testing.T) {
	ctx := context.Background()
	list := newFakeList()
	q := NewQueue(list, "jobs")
	start := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)
	clk := clock.Fake(start)
	require.NoError(t, q.Publish(ctx, Job{ID: "j-1", Kind: KindSLABreach, Retries: 2}))

	deliverer := &mockDeliverer{}
	deliverer.On("Deliver", mock.Anything, mock.Anything).Return([]string{"email"}, errors.New("smtp down")).Once()

	c := NewConsumer(q, deliverer, ConsumerConfig{
		MaxRetries:   5,
		Retry:        RetryPolicy{Initial: time.Second, Max: time.Minute},
		BlockTimeout: time.Millisecond,
		Clock:        clk,
	}, zap.NewNop(), nil)
	_, err := c.ProcessOne(ctx)
	require.NoError(t, err)

	moved, err := q.PromoteDue(ctx, start.Add(4*time.Second-time.Millisecond))
	require.NoError(t, err)
	assert.Zero(t, moved)
	moved, err = q.PromoteDue(ctx, start.Add(4*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
}

func TestConsumerDropsAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	list := newFakeList()
	q := NewQueue(list, "jobs")
	require.NoError(t, q.Publish(ctx, Job{ID: "j-1", Kind: KindSLABreach, Retries: 3}))

	deliverer := &mockDeliverer{}
	deliverer.On("Deliver", mock.Anything, mock.Anything).Return([]string{"email"}, errors.New("smtp down")).Once()

	c := NewConsumer(q, deliverer, ConsumerConfig{MaxRetries: 3, BlockTimeout: time.Millisecond}, zap.NewNop(), nil)
	_, err := c.ProcessOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, list.len("jobs"))
	assert.Equal(t, 0, list.delayed("jobs:delayed"))
}

func TestConsumerIdleWait(t *testing.T) {
	deliverer := &mockDeliverer{}
	c := NewConsumer(NewQueue(newFakeList(), "jobs"), deliverer, ConsumerConfig{BlockTimeout: time.Millisecond}, zap.NewNop(), nil)

	handled, err := c.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, handled)
	deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}
