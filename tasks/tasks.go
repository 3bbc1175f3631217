// Package tasks provides the background-task queue the harness forces into
// eager mode for the run: tasks execute synchronously and inline, so their
// side effects are observable within the test that enqueued them.
package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/akheron/nosedjango/component"
	"github.com/akheron/nosedjango/logger"
)

// Task is a unit of background work.
type Task struct {
	// Name identifies the task in logs.
	Name string
	// Run executes the task.
	Run func(ctx context.Context) error
}

// Restore reverts a forced execution mode.
type Restore func()

// Queue dispatches tasks either to a background worker or, in eager mode,
// inline on the caller's goroutine. It implements component.Component.
type Queue struct {
	log     *logger.Logger
	eager   bool
	pending chan Task
	done    chan struct{}
	started bool
	mu      sync.Mutex
}

var _ component.Component = (*Queue)(nil)

// queueDepth bounds the deferred-task buffer in worker mode.
const queueDepth = 64

// NewQueue creates a task queue. Eager mode executes tasks inline.
func NewQueue(eager bool, log *logger.Logger) *Queue {
	return &Queue{
		log:   log.WithComponent("tasks"),
		eager: eager,
	}
}

// Eager reports whether the queue executes tasks inline.
func (q *Queue) Eager() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.eager
}

// ForceEager switches the queue to eager execution and returns a Restore that
// reinstates the previous mode.
func (q *Queue) ForceEager() Restore {
	q.mu.Lock()
	defer q.mu.Unlock()

	saved := q.eager
	q.eager = true
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.eager = saved
	}
}

// Enqueue submits a task. In eager mode the task runs before Enqueue returns
// and its error is returned directly. In worker mode the task is deferred and
// Enqueue only fails when the queue is saturated or stopped.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	eager := q.eager
	started := q.started
	q.mu.Unlock()

	if eager {
		q.log.Debug("Running task eagerly", map[string]interface{}{"task": task.Name})
		return task.Run(ctx)
	}

	if !started {
		return fmt.Errorf("task queue not started")
	}
	select {
	case q.pending <- task:
		return nil
	default:
		return fmt.Errorf("task queue full")
	}
}

// Name returns the component name.
func (q *Queue) Name() string { return "task-queue" }

// Start launches the background worker. Eager mode needs no worker but the
// queue still tracks started state for lifecycle symmetry.
func (q *Queue) Start(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return fmt.Errorf("task queue already started")
	}

	q.pending = make(chan Task, queueDepth)
	q.done = make(chan struct{})
	q.started = true

	go q.worker()
	return nil
}

// Stop shuts the worker down, abandoning any still-deferred tasks.
func (q *Queue) Stop(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return nil
	}
	q.started = false
	close(q.pending)
	<-q.done
	return nil
}

// Health reports queue state.
func (q *Queue) Health(_ context.Context) component.Health {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return component.Health{Name: q.Name(), Status: component.StatusUnhealthy, Message: "not started"}
	}
	return component.Health{Name: q.Name(), Status: component.StatusHealthy}
}

func (q *Queue) worker() {
	defer close(q.done)
	for task := range q.pending {
		if err := task.Run(context.Background()); err != nil {
			q.log.Error("Deferred task failed", map[string]interface{}{
				"task":  task.Name,
				"error": err.Error(),
			})
		}
	}
}
