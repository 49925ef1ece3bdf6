// Package shutdownqueue runs cleanup tasks in reverse order of registration
// when the process stops.
//
// Components register their cleanup right after acquiring a resource, and
// main drains the queue once:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
//	defer cancel()
//	defer shutdownqueue.Shutdown(ctx)
//
// Tasks run once. Panics are recovered and reported as errors.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned when a task is added after Shutdown started.
var ErrClosed = errors.New("shutdown queue closed")

// Task is a shutdown function. It should honor ctx.
type Task func(ctx context.Context) error

type entry struct {
	name    string
	run     Task
	timeout time.Duration
}

// Option configures a single task.
type Option func(*entry)

// WithTimeout bounds a task on its own, inside the overall shutdown deadline.
// A slow task then cannot starve the ones registered before it.
func WithTimeout(d time.Duration) Option {
	return func(e *entry) {
		e.timeout = d
	}
}

// Queue is a LIFO list of shutdown tasks. The zero value is ready to use.
type Queue struct {
	mu     sync.Mutex
	tasks  []entry
	closed bool
	log    *slog.Logger
}

// New returns a queue that reports finished tasks to log. A nil log means
// slog.Default at drain time.
func New(log *slog.Logger) *Queue {
	return &Queue{log: log}
}

var std Queue

// Add registers an unnamed task on the process queue.
func Add(t Task) {
	_ = std.Add("", t)
}

// AddNamed registers a task on the process queue. The name shows up in logs
// and in the error returned by Shutdown.
func AddNamed(name string, t Task, opts ...Option) {
	_ = std.Add(name, t, opts...)
}

// Shutdown drains the process queue.
func Shutdown(ctx context.Context) error {
	return std.Shutdown(ctx)
}

// Add registers t. Nil tasks are ignored.
func (q *Queue) Add(name string, t Task, opts ...Option) error {
	if t == nil {
		return nil
	}

	e := entry{name: name, run: t}
	for _, o := range opts {
		o(&e)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.tasks = append(q.tasks, e)

	return nil
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Shutdown runs all tasks newest first. Later calls are no-ops. When ctx ends
// mid-drain the remaining tasks are skipped and the context error is joined
// with the task errors collected so far.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("shutdown canceled with %d tasks left: %w", i+1, ctx.Err()))

			break
		}

		err := q.run(ctx, tasks[i])
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (q *Queue) run(ctx context.Context, e entry) (err error) {
	started := time.Now()

	if e.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic in shutdown task: %v", r)
		}

		if e.name == "" {
			return
		}

		if err != nil {
			err = fmt.Errorf("%s: %w", e.name, err)
		}

		q.logger().Info("shutdown task finished",
			"task", e.name, "duration", time.Since(started), "error", err)
	}()

	return e.run(ctx)
}

func (q *Queue) logger() *slog.Logger {
	if q.log != nil {
		return q.log
	}

	return slog.Default()
}
