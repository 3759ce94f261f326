package serial

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (q *Queue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func TestQueueKeepsOrderPerKey(t *testing.T) {
	var (
		q   Queue
		mu  sync.Mutex
		got []int
	)

	for i := 0; i < 50; i++ {
		q.Go("chat", func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.Wait()

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.size())
}

func TestQueueRunsOneAtATimePerKey(t *testing.T) {
	var (
		q       Queue
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		q.Go("chat", func() {
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		})
	}
	q.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestQueueGoDoesNotBlock(t *testing.T) {
	var q Queue
	release := make(chan struct{})

	q.Go("a", func() { <-release })

	submitted := make(chan struct{})
	go func() {
		q.Go("a", func() {})
		close(submitted)
	}()

	select {
	case <-submitted:
	case <-time.After(time.Second):
		require.Fail(t, "submitting behind a busy key blocked")
	}

	otherDone := make(chan struct{})
	q.Go("b", func() { close(otherDone) })

	select {
	case <-otherDone:
	case <-time.After(time.Second):
		require.Fail(t, "another key waited for a busy key")
	}

	close(release)
	q.Wait()
	assert.Equal(t, 0, q.size())
}
