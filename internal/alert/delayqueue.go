package alert

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// dispatchJob identifies one delivery attempt to run.
type dispatchJob struct {
	alertID   uuid.UUID
	contactID string
}

type retryEntry struct {
	at  time.Time
	job dispatchJob
}

type retryHeap []retryEntry

func (h retryHeap) Len() int            { return len(h) }
func (h retryHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h retryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x interface{}) { *h = append(*h, x.(retryEntry)) }
func (h *retryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// delayQueue holds scheduled retries keyed by next-retry time, so waiting
// retries never occupy a dispatch worker. A single run loop releases due
// entries into the job channel.
type delayQueue struct {
	mu      sync.Mutex
	entries retryHeap
	wake    chan struct{}
}

func newDelayQueue() *delayQueue {
	return &delayQueue{wake: make(chan struct{}, 1)}
}

// Schedule enqueues a retry to fire at the given time.
func (q *delayQueue) Schedule(at time.Time, job dispatchJob) {
	q.mu.Lock()
	heap.Push(&q.entries, retryEntry{at: at, job: job})
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// CancelAlert drops every scheduled retry belonging to the alert. Called on
// resolve and expiry.
func (q *delayQueue) CancelAlert(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.job.alertID != id {
			kept = append(kept, e)
		}
	}
	q.entries = kept
	heap.Init(&q.entries)
}

// Len returns the number of scheduled retries.
func (q *delayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// pop removes and returns the earliest entry if it is due at now. The second
// return is the wait until the earliest entry when nothing is due (zero when
// the queue is empty).
func (q *delayQueue) pop(now time.Time) (dispatchJob, bool, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return dispatchJob{}, false, 0
	}
	if wait := q.entries[0].at.Sub(now); wait > 0 {
		return dispatchJob{}, false, wait
	}
	e := heap.Pop(&q.entries).(retryEntry)
	return e.job, true, 0
}

// run releases due retries into out until ctx is cancelled.
func (q *delayQueue) run(ctx context.Context, out chan<- dispatchJob, now func() time.Time) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		job, due, wait := q.pop(now())
		if due {
			select {
			case out <- job:
			case <-ctx.Done():
				return
			}
			continue
		}

		if wait == 0 {
			// empty queue, sleep until woken
			select {
			case <-q.wake:
			case <-ctx.Done():
				return
			}
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-q.wake:
		case <-ctx.Done():
			return
		}
	}
}
