package serial

import "sync"

// Queue runs functions one at a time per key. Submitting never blocks: the
// first function for an idle key starts a goroutine that drains everything
// queued under that key, then exits. Different keys run concurrently.
type Queue struct {
	mu      sync.Mutex
	pending map[string][]func()
	wg      sync.WaitGroup
}

// Go schedules fn after every function previously submitted under key.
// fn must not panic, a panic would stop the key's drain goroutine.
func (q *Queue) Go(key string, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == nil {
		q.pending = make(map[string][]func())
	}

	tasks, running := q.pending[key]
	q.pending[key] = append(tasks, fn)
	if running {
		return
	}

	q.wg.Add(1)
	go q.drain(key)
}

// Wait blocks until all submitted functions have returned.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) drain(key string) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		tasks := q.pending[key]
		if len(tasks) == 0 {
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		fn := tasks[0]
		tasks[0] = nil
		q.pending[key] = tasks[1:]
		q.mu.Unlock()

		fn()
	}
}
