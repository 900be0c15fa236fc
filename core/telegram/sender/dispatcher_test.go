package sender

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func newTestDispatcher(t *testing.T, opts Options) *Dispatcher {
	t.Helper()
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	d := NewDispatcher(opts)
	t.Cleanup(d.Close)
	return d
}

func TestEnqueueRunsJob(t *testing.T) {
	d := newTestDispatcher(t, Options{QueueSize: 4, Workers: 1})

	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "send.text", "sendMessage", func(ctx context.Context) error {
		close(done)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestEnqueueRetriesTransientErrors(t *testing.T) {
	d := newTestDispatcher(t, Options{QueueSize: 4, Workers: 1, MaxRetries: 3})

	var calls atomic.Int32
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "send.text", "sendMessage", func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return &tele.Error{Code: 502, Description: "Bad Gateway"}
		}
		close(done)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not succeed after retries")
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, uint64(0), d.ErrorCount())
}

func TestEnqueueDoesNotRetryRejections(t *testing.T) {
	d := newTestDispatcher(t, Options{QueueSize: 4, Workers: 1, MaxRetries: 3})

	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func(ctx context.Context) error {
		calls.Add(1)
		return &tele.Error{Code: 400, Description: "chat not found"}
	}))

	assert.Eventually(t, func() bool {
		return d.ErrorCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEnqueueOnceNeverRetries(t *testing.T) {
	d := newTestDispatcher(t, Options{QueueSize: 4, Workers: 1, MaxRetries: 3})

	var calls atomic.Int32
	require.NoError(t, d.EnqueueOnce(context.Background(), "delivery", "deliver", func(ctx context.Context) error {
		calls.Add(1)
		return &tele.Error{Code: 502, Description: "Bad Gateway"}
	}))

	assert.Eventually(t, func() bool {
		return d.ErrorCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestJobContextCarriesDeadline(t *testing.T) {
	d := newTestDispatcher(t, Options{QueueSize: 4, Workers: 1, MaxDuration: 5 * time.Second})

	deadlines := make(chan bool, 1)
	require.NoError(t, d.EnqueueOnce(context.Background(), "delivery", "deliver", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		deadlines <- ok
		return nil
	}))

	select {
	case ok := <-deadlines:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	d := newTestDispatcher(t, Options{QueueSize: 1, Workers: 1})

	release := make(chan struct{})
	blocker := func(ctx context.Context) error {
		<-release
		return nil
	}
	require.NoError(t, d.Enqueue(context.Background(), "a", "", blocker))
	// Give the worker time to pick up the first job, then saturate the queue.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.Enqueue(context.Background(), "b", "", blocker))

	err := d.Enqueue(context.Background(), "c", "", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 1, Workers: 1})
	d.Close()

	err := d.Enqueue(context.Background(), "a", "", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}
