package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDispatcherKeepsPerChatOrder(t *testing.T) {
	d := NewDispatcher(Options{Workers: 3, QueueSize: 128})

	var mu sync.Mutex
	got := map[int64][]int{}
	for i := 0; i < 30; i++ {
		chat := int64(i % 3)
		seq := i
		require.NoError(t, d.Enqueue(context.Background(), chat, "send.text", func() error {
			mu.Lock()
			got[chat] = append(got[chat], seq)
			mu.Unlock()
			return nil
		}))
	}
	d.Close()

	for chat, seqs := range got {
		require.Len(t, seqs, 10, "chat %d", chat)
		for i := 1; i < len(seqs); i++ {
			assert.Less(t, seqs[i-1], seqs[i], "chat %d out of order: %v", chat, seqs)
		}
	}
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	var results []error
	d := NewDispatcher(Options{
		Workers:      1,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		OnResult:     func(_ string, err error) { results = append(results, err) },
	})

	calls := 0
	transient := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	require.NoError(t, d.Enqueue(context.Background(), 1, "send.text", func() error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	}))
	d.Close()

	assert.Equal(t, 3, calls)
	require.Len(t, results, 1)
	assert.NoError(t, results[0])
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	calls := 0
	require.NoError(t, d.Enqueue(context.Background(), 1, "send.text", func() error {
		calls++
		return fmt.Errorf("telegram: bad request (400)")
	}))
	d.Close()

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Close()
	d.Close()

	err := d.Enqueue(context.Background(), 1, "send.text", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Error(t, d.Enqueue(context.Background(), 1, "send.text", nil))
}

func TestDispatcherReportsFullQueue(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	block := func() error { <-release; return nil }

	require.NoError(t, d.Enqueue(context.Background(), 1, "a", block))
	// the worker may or may not have picked up the first job yet
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = d.Enqueue(context.Background(), 1, "b", block)
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	d.Close()
}

func TestDispatcherEnqueueWaitBlocksUntilRoom(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	var got []string
	record := func(s string) func() error {
		return func() error { got = append(got, s); return nil }
	}

	require.NoError(t, d.Enqueue(context.Background(), 1, "a", func() error {
		<-release
		got = append(got, "a")
		return nil
	}))
	done := make(chan error, 1)
	go func() {
		for _, s := range []string{"b", "c", "d"} {
			if err := d.EnqueueWait(context.Background(), 1, s, record(s)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	close(release)
	require.NoError(t, <-done)
	d.Close()

	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestDispatcherEnqueueWaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	block := func() error { <-release; return nil }
	require.NoError(t, d.Enqueue(context.Background(), 1, "a", block))
	require.NoError(t, d.EnqueueWait(context.Background(), 1, "b", block))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// "b" only fits once the worker holds "a", so the slot stays taken
	assert.ErrorIs(t, d.EnqueueWait(ctx, 1, "c", block), context.DeadlineExceeded)

	close(release)
	d.Close()
	assert.ErrorIs(t, d.EnqueueWait(context.Background(), 1, "d", block), ErrQueueClosed)
}

func TestSanitizeErrorMessage(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123:ABC-def_1/sendMessage": timeout`)
	assert.Equal(t, `Post "https://api.telegram.org/bot<redacted>/sendMessage": timeout`, sanitizeErrorMessage(err))
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "dial", classifyError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
}
