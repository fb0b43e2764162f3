package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitRunsJobAndReturnsItsError(t *testing.T) {
	p := New(2, 4)
	defer p.Stop()

	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		return nil
	}))

	wantErr := context.Canceled
	err := p.Submit(context.Background(), func(context.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestSubmitRunsConcurrentlyAcrossWorkers(t *testing.T) {
	p := New(4, 8)
	defer p.Stop()

	var inflight int32
	var maxInflight int32
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		go func() {
			_ = p.Submit(context.Background(), func(context.Context) error {
				n := atomic.AddInt32(&inflight, 1)
				for {
					max := atomic.LoadInt32(&maxInflight)
					if n <= max || atomic.CompareAndSwapInt32(&maxInflight, max, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inflight, -1)
				return nil
			})
			done <- struct{}{}
		}()
	}

	for i := 0; i < 4; i++ {
		<-done
	}

	require.Greater(t, atomic.LoadInt32(&maxInflight), int32(1))
}

func TestSubmitAfterStopReturnsErrPoolStopped(t *testing.T) {
	p := New(1, 1)
	p.Stop()

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrPoolStopped)
}

func TestSubmitRespectsContextCancellation(t *testing.T) {
	p := New(1, 0)
	defer p.Stop()

	block := make(chan struct{})
	go func() {
		_ = p.Submit(context.Background(), func(context.Context) error {
			<-block
			return nil
		})
	}()

	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Submit(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}
