// Package queue provides single-worker task queues. Tasks enqueued on one
// Queue run one at a time in FIFO order. Enqueue never blocks.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrClosed is returned when enqueueing on a closed Queue.
var ErrClosed = errors.New("queue closed")

// Task is a unit of work.
type Task func()

// Queue runs its tasks on a single goroutine.
type Queue struct {
	id     string
	mu     sync.Mutex
	tasks  []Task
	closed bool

	signal chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	logger *logrus.Entry
}

// New creates a Queue and starts its worker.
func New(id string, logger *logrus.Entry) *Queue {
	if logger == nil {
		l := logrus.New()
		l.Level = logrus.PanicLevel
		logger = logrus.NewEntry(l)
	}
	q := &Queue{
		id:     id,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger.WithField("queue", id),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// ID ...
func (q *Queue) ID() string {
	return q.id
}

// Enqueue appends task to the queue.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the queue and waits for its result. The task still runs if ctx
// expires first; only the wait is abandoned.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	resCh := make(chan error, 1)
	if err := q.Enqueue(func() { resCh <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-resCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops the worker after the running task returns. Waiting tasks are
// dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := len(q.tasks)
	q.tasks = nil
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()

	if dropped > 0 {
		q.logger.WithField("dropped", dropped).Debug("Queue closed")
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case <-q.signal:
		}
		for {
			task, ok := q.next()
			if !ok {
				break
			}
			task()
		}
	}
}

func (q *Queue) next() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task, true
}

// Manager hands out one Queue per id.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*Queue
	closed bool
	logger *logrus.Entry
}

// NewManager ...
func NewManager(logger *logrus.Entry) *Manager {
	return &Manager{
		queues: make(map[string]*Queue),
		logger: logger,
	}
}

// Get returns the Queue of id, creating it if needed.
func (m *Manager) Get(id string) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	q, ok := m.queues[id]
	if !ok {
		q = New(id, m.logger)
		m.queues[id] = q
	}
	return q, nil
}

// Enqueue adds task to the Queue of id.
func (m *Manager) Enqueue(id string, task Task) error {
	q, err := m.Get(id)
	if err != nil {
		return err
	}
	return q.Enqueue(task)
}

// Len returns the number of queues.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

// Close closes every queue.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, q := range queues {
		wg.Add(1)
		go func(q *Queue) {
			defer wg.Done()
			q.Close()
		}(q)
	}
	wg.Wait()
}
