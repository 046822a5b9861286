package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func newTestBreaker(now *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(&Config{
		Name:                "test",
		ConsecutiveFailures: 3,
		OpenTimeout:         10 * time.Second,
		HalfOpenMaxCalls:    1,
	})
	cb.now = func() time.Time { return *now }
	return cb
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Now()
	cb := newTestBreaker(&now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func() error { return errUpstream })
		require.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, int64(1), cb.GetStats().Rejected)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Now()
	cb := newTestBreaker(&now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func() error { return errUpstream })
	}
	now = now.Add(11 * time.Second)

	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := newTestBreaker(&now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func() error { return errUpstream })
	}
	now = now.Add(11 * time.Second)

	_ = cb.Execute(ctx, func() error { return errUpstream })
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	errNotFound := errors.New("not found")
	cb := NewCircuitBreaker(&Config{
		Name:                "ignore",
		ConsecutiveFailures: 1,
		OpenTimeout:         time.Minute,
		IsFailure:           func(err error) bool { return !errors.Is(err, errNotFound) },
	})

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error { return errNotFound })
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestManagerReusesBreakers(t *testing.T) {
	m := NewManager(nil)
	a := m.GetOrCreate("coingecko")
	b := m.GetOrCreate("coingecko")
	c := m.GetOrCreate("mempool")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	stats := m.AllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "coingecko", stats[0].Name)
}
