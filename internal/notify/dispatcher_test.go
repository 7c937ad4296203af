package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubChannel struct {
	name    string
	accepts bool
	err     error
	calls   int
}

func (s *stubChannel) Name() string { return s.name }
func (s *stubChannel) Accepts(Job) bool { return s.accepts }
func (s *stubChannel) Deliver(context.Context, Job) error {
	s.calls++
	return s.err
}

func TestDispatcherReportsFailedChannels(t *testing.T) {
	email := &stubChannel{name: "email", accepts: true}
	sms := &stubChannel{name: "sms", accepts: true, err: errors.New("gateway down")}
	push := &stubChannel{name: "push", accepts: false}
	d := NewDispatcher(zap.NewNop(), DefaultBreakerSettings, email, sms, push)

	failed, err := d.Deliver(context.Background(), Job{Kind: KindSLABreach})
	require.Error(t, err)
	assert.Equal(t, []string{"sms"}, failed)
	assert.Equal(t, 1, email.calls)
	assert.Equal(t, 0, push.calls)
}

func TestDispatcherRetriesOnlyListedChannels(t *testing.T) {
	email := &stubChannel{name: "email", accepts: true}
	sms := &stubChannel{name: "sms", accepts: true}
	d := NewDispatcher(zap.NewNop(), DefaultBreakerSettings, email, sms)

	failed, err := d.Deliver(context.Background(), Job{Kind: KindSLAWarning, Channels: []string{"sms"}})
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, 0, email.calls)
	assert.Equal(t, 1, sms.calls)
}

func TestDispatcherBreakerOpens(t *testing.T) {
	sms := &stubChannel{name: "sms", accepts: true, err: errors.New("gateway down")}
	settings := BreakerSettings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Hour, FailureRatio: 0.5, MinRequests: 2}
	d := NewDispatcher(zap.NewNop(), settings, sms)

	for i := 0; i < 2; i++ {
		_, err := d.Deliver(context.Background(), Job{})
		require.Error(t, err)
	}
	_, err := d.Deliver(context.Background(), Job{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, sms.calls)
}
