package workerpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func double(_ context.Context, in int) (int, error) {
	return in * 2, nil
}

func TestPoolPreservesOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := New(ctx, 4, double)
	defer p.Close()

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(i))
	}
	for i := 0; i < n; i++ {
		v, err := p.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, i*2, v)
	}
}

func TestPoolSingleWorker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := New(ctx, 1, double)
	defer p.Close()

	require.NoError(t, p.Submit(5))
	require.NoError(t, p.Submit(6))

	v, err := p.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, v)

	v, err = p.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 12, v)
}

func TestPoolReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := New(ctx, 2, double)
	defer p.Close()

	require.NoError(t, p.Submit(1))
	require.NoError(t, p.Submit(2))
	// Give workers a moment to process before resetting, to exercise the
	// in-flight-result-discarded path rather than just a queue drain.
	time.Sleep(10 * time.Millisecond)

	p.Reset()

	require.NoError(t, p.Submit(100))
	v, err := p.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 200, v)
}

func TestPoolCloseThenSubmitFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := New(ctx, 2, double)
	require.NoError(t, p.Close())

	err := p.Submit(1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestPoolPropagatesProcessError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sentinel := errFailing{}
	p := New(ctx, 1, func(context.Context, int) (int, error) {
		return 0, sentinel
	})
	defer p.Close()

	require.NoError(t, p.Submit(1))
	_, err := p.Next(ctx)
	require.ErrorIs(t, err, sentinel)
}

type errFailing struct{}

func (errFailing) Error() string { return "failing" }
