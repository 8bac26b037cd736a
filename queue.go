package denkmit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	taskPending int32 = iota
	taskRunning
	taskWithdrawn
)

type task struct {
	name  string
	run   func(ctx context.Context) error
	done  chan error
	state atomic.Int32
}

// taskQueue runs tasks one at a time in submission order. Tasks still
// pending when the queue is cleared or closed are dropped and their waiters
// receive ErrClosed.
type taskQueue struct {
	log *zap.Logger

	mu      sync.Mutex
	pending []*task
	closed  bool

	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	tickers sync.WaitGroup
}

func newTaskQueue(log *zap.Logger) *taskQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &taskQueue{
		log:     log,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go q.loop()
	return q
}

// Enqueue schedules run and returns a channel that receives its result.
func (q *taskQueue) Enqueue(name string, run func(ctx context.Context) error) <-chan error {
	return q.enqueue(name, run).done
}

func (q *taskQueue) enqueue(name string, run func(ctx context.Context) error) *task {
	t := &task{name: name, run: run, done: make(chan error, 1)}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		t.done <- ErrClosed
		return t
	}
	q.pending = append(q.pending, t)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return t
}

// Do enqueues run and waits for it. If ctx is done before the task starts,
// the task is withdrawn and ctx.Err() returned; once started it runs to
// completion and Do returns its result.
func (q *taskQueue) Do(ctx context.Context, name string, run func(ctx context.Context) error) error {
	t := q.enqueue(name, run)
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		if t.state.CompareAndSwap(taskPending, taskWithdrawn) {
			return ctx.Err()
		}
		return <-t.done
	}
}

func (q *taskQueue) next() (*task, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.pending) > 0 {
			t := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return t, true
		}
		q.mu.Unlock()
		select {
		case <-q.wake:
		case <-q.ctx.Done():
			return nil, false
		}
	}
}

func (q *taskQueue) loop() {
	defer close(q.stopped)
	for {
		t, ok := q.next()
		if !ok {
			return
		}
		if !t.state.CompareAndSwap(taskPending, taskRunning) {
			q.log.Debug("task withdrawn", zap.String("task", t.name))
			continue
		}
		start := time.Now()
		err := t.run(q.ctx)
		if err != nil {
			q.log.Debug("task failed", zap.String("task", t.name), zap.Duration("took", time.Since(start)), zap.Error(err))
		}
		t.done <- err
	}
}

// Len is the number of tasks waiting to run.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear drops every pending task.
func (q *taskQueue) Clear() {
	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, t := range dropped {
		t.done <- ErrClosed
	}
}

// Every enqueues run once per interval until the queue is closed. A tick is
// skipped while the previous one is still queued or running.
func (q *taskQueue) Every(interval time.Duration, name string, run func(ctx context.Context) error) {
	q.tickers.Add(1)
	go func() {
		defer q.tickers.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var busy atomic.Bool
		for {
			select {
			case <-q.ctx.Done():
				return
			case <-ticker.C:
				if !busy.CompareAndSwap(false, true) {
					continue
				}
				done := q.Enqueue(name, run)
				go func() {
					<-done
					busy.Store(false)
				}()
			}
		}
	}()
}

// Close drops pending tasks, cancels the running one and waits for the
// worker and tickers to stop.
func (q *taskQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.Clear()
	q.cancel()
	<-q.stopped
	q.tickers.Wait()
}
