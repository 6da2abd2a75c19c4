package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitRunsJobAndReturnsResult(t *testing.T) {
	p := New(2, 4)
	defer p.Shutdown(context.Background())

	v, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestSubmitPropagatesJobError(t *testing.T) {
	p := New(1, 1)
	defer p.Shutdown(context.Background())

	boom := errors.New("boom")
	_, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestSubmitUsesDefaultDeadlineWhenContextHasNone(t *testing.T) {
	p := New(1, 1)
	defer p.Shutdown(context.Background())

	var gotDeadline bool
	_, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) {
		_, gotDeadline = ctx.Deadline()
		return nil, nil
	})
	require.NoError(t, err)
	require.True(t, gotDeadline)
}

func TestSubmitRespectsCallerCancellation(t *testing.T) {
	p := New(1, 1)
	defer p.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Submit(ctx, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSubmitAfterShutdownReturnsErrClosed(t *testing.T) {
	p := New(1, 1)
	require.NoError(t, p.Shutdown(context.Background()))

	_, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, ErrClosed)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(2, 8)
	defer p.Shutdown(context.Background())

	var inFlight, maxInFlight int32
	release := make(chan struct{})
	done := make(chan struct{}, 4)

	for i := 0; i < 4; i++ {
		go func() {
			_, _ = p.Submit(context.Background(), func(ctx context.Context) (any, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxInFlight)
					if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&inFlight, -1)
				return nil, nil
			})
			done <- struct{}{}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
	close(release)
	for i := 0; i < 4; i++ {
		<-done
	}
}
