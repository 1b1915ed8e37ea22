package worker

import "sync"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64
	compactShrinkFactor = 4
)

// TaskQueue is an unbounded FIFO mailbox with a blocking Pop.
// Any number of goroutines may Submit; only one should Pop.
type TaskQueue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	tasks       []Task
	interrupted bool
}

func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{
		tasks: make([]Task, 0, defaultQueueCap),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Submit appends t to the tail and wakes the consumer. It never runs t and never
// waits on anything but the queue mutex.
func (q *TaskQueue) Submit(t Task) error {
	if t == nil {
		return ErrNilTask
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.interrupted {
		return ErrQueueInterrupted
	}
	q.tasks = append(q.tasks, t)
	q.cond.Signal()
	return nil
}

// Pop removes and returns the front task, suspending while the queue is empty.
// The emptiness check and the suspend happen under the same mutex that Submit
// signals under, so a wake-up cannot slip between them.
//
// After Interrupt, Pop keeps handing out tasks that are still queued and
// returns (nil, false) once the queue is empty.
func (q *TaskQueue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.tasks) == 0 {
		if q.interrupted {
			return nil, false
		}
		q.cond.Wait()
	}

	t := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()
	return t, true
}

// Interrupt makes a suspended Pop return and rejects every later Submit.
func (q *TaskQueue) Interrupt() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.interrupted = true
	q.cond.Broadcast()
}

// Interrupted reports whether Interrupt has been called.
func (q *TaskQueue) Interrupted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.interrupted
}

// InterruptAndDiscard interrupts the queue and drops every pending task under
// one lock, so a running Pop cannot hand out a task in between. It returns how
// many tasks were dropped.
func (q *TaskQueue) InterruptAndDiscard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.interrupted = true
	n := len(q.tasks)
	clear(q.tasks)
	q.tasks = make([]Task, 0, defaultQueueCap)
	q.cond.Broadcast()
	return n
}

func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *TaskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]Task, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	compacted := make([]Task, n, max(c/2, defaultQueueCap, n))
	copy(compacted, q.tasks)
	q.tasks = compacted
}
