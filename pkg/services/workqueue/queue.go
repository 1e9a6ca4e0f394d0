package workqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("work queue is closed")

const defaultHistoryLimit = 100

// Queue runs tasks in the background with an optional concurrency cap.
// Running tasks are never cancelled; Close only stops new work from being
// accepted and Wait lets callers drain what is in flight.
type Queue struct {
	mu     sync.Mutex
	tasks  []*TaskState
	byID   map[string]*TaskState
	closed bool

	maxRunning   int
	running      int
	historyLimit int

	// done is closed when all tasks are terminal
	done chan struct{}
	wg   sync.WaitGroup

	// Callbacks
	onUpdate func(TaskSnapshot)

	logger *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxConcurrent caps the number of tasks running at once. Zero or
// negative means unlimited.
func WithMaxConcurrent(n int) QueueOption {
	return func(q *Queue) {
		q.maxRunning = n
	}
}

// WithHistoryLimit sets how many finished tasks are kept for status lookups.
func WithHistoryLimit(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.historyLimit = n
		}
	}
}

// New creates a new work queue with the given options.
func New(logger *zap.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		tasks:        make([]*TaskState, 0),
		byID:         make(map[string]*TaskState),
		historyLimit: defaultHistoryLimit,
		done:         make(chan struct{}),
		logger:       logger.Named("workqueue"),
	}
	close(q.done)

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// SetOnUpdate sets the callback invoked when a task changes state.
//
// WARNING: The callback is invoked while holding the queue's internal lock.
// Do NOT call any Queue methods from within the callback or it will deadlock.
func (q *Queue) SetOnUpdate(callback func(TaskSnapshot)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onUpdate = callback
}

// Enqueue adds a task to the queue and starts it when a slot is free.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("Queue closed, rejecting task",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()))
		return ErrQueueClosed
	}

	// Reset done channel if it was closed from a previous batch
	q.resetDoneLocked()

	state := NewTaskState(task)
	q.tasks = append(q.tasks, state)
	q.byID[task.ID()] = state

	q.logger.Debug("Task enqueued",
		zap.String("task_id", task.ID()),
		zap.String("task_name", task.Name()))

	q.notifyUpdateLocked(state)
	q.tryStartTasksLocked()
	return nil
}

// tryStartTasksLocked starts pending tasks while slots are free.
// Must be called with lock held.
func (q *Queue) tryStartTasksLocked() {
	for _, ts := range q.tasks {
		if q.maxRunning > 0 && q.running >= q.maxRunning {
			return
		}
		if ts.GetStatus() != TaskStatusPending {
			continue
		}

		q.running++
		ts.SetStatus(TaskStatusRunning)
		q.notifyUpdateLocked(ts)

		q.logger.Info("Starting task",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()))

		q.wg.Add(1)
		go q.runTask(ts)
	}
}

// runTask executes a task. A panic fails the task instead of the process.
func (q *Queue) runTask(ts *TaskState) {
	defer q.wg.Done()

	result, err := q.execute(ts)
	q.complete(ts, result, err)
}

func (q *Queue) execute(ts *TaskState) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Task panicked",
				zap.String("task_id", ts.Task.ID()),
				zap.String("task_name", ts.Task.Name()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return ts.Task.Execute(context.Background())
}

func (q *Queue) complete(ts *TaskState, result any, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.running--
	ts.finish(result, err)

	if err != nil {
		q.logger.Error("Task failed",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()),
			zap.Error(err))
	} else {
		q.logger.Info("Task completed",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()))
	}

	q.notifyUpdateLocked(ts)
	q.pruneLocked()

	if q.allTasksDoneLocked() {
		q.closeDoneLocked()
		return
	}

	q.tryStartTasksLocked()
}

// pruneLocked drops the oldest finished tasks beyond the history limit.
// Must be called with lock held.
func (q *Queue) pruneLocked() {
	finished := 0
	for _, ts := range q.tasks {
		if ts.GetStatus().IsTerminal() {
			finished++
		}
	}
	if finished <= q.historyLimit {
		return
	}

	drop := finished - q.historyLimit
	kept := q.tasks[:0]
	for _, ts := range q.tasks {
		if drop > 0 && ts.GetStatus().IsTerminal() {
			delete(q.byID, ts.Task.ID())
			drop--
			continue
		}
		kept = append(kept, ts)
	}
	q.tasks = kept
}

// allTasksDoneLocked returns true if all tasks are in a terminal state.
// Must be called with lock held.
func (q *Queue) allTasksDoneLocked() bool {
	for _, ts := range q.tasks {
		if !ts.GetStatus().IsTerminal() {
			return false
		}
	}
	return true
}

// closeDoneLocked safely closes the done channel.
// Must be called with lock held.
func (q *Queue) closeDoneLocked() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// resetDoneLocked recreates the done channel if it was closed.
// Must be called with lock held.
func (q *Queue) resetDoneLocked() {
	select {
	case <-q.done:
		q.done = make(chan struct{})
	default:
	}
}

// notifyUpdateLocked calls the update callback.
// Must be called with lock held.
func (q *Queue) notifyUpdateLocked(ts *TaskState) {
	if q.onUpdate == nil {
		return
	}
	q.onUpdate(ts.Snapshot())
}

// Get returns the snapshot of one task.
func (q *Queue) Get(id string) (TaskSnapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ts, ok := q.byID[id]
	if !ok {
		return TaskSnapshot{}, false
	}
	return ts.Snapshot(), true
}

// Wait blocks until every enqueued task is terminal or ctx is done.
// Returns the first task error if any task failed.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
		q.mu.Lock()
		defer q.mu.Unlock()
		for _, ts := range q.tasks {
			if ts.GetStatus() == TaskStatusFailed {
				return ts.GetError()
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new tasks. Running tasks continue; use Wait to
// drain them.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.logger.Info("Queue closed", zap.Int("running", q.running))
}
