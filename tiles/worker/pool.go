package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("worker pool closed")

// Pool runs tasks on at most maxWorkers goroutines.
type Pool struct {
	workers chan struct{}
	tasks   chan Task
	quit    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
}

type Task struct {
	Ctx     context.Context
	Work    func(ctx context.Context) error
	Timeout time.Duration
}

func NewPool(maxWorkers, queueSize int) *Pool {
	p := &Pool{
		workers: make(chan struct{}, max(1, maxWorkers)),
		tasks:   make(chan Task, max(1, queueSize)),
		quit:    make(chan struct{}),
	}

	p.wg.Add(1)
	go p.dispatcher()
	return p
}

func (p *Pool) dispatcher() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.tasks:
			// wait for a free slot instead of spinning
			select {
			case <-p.quit:
				return
			case p.workers <- struct{}{}:
			}
			p.wg.Add(1)
			go p.run(task)
		}
	}
}

func (p *Pool) run(task Task) {
	defer p.wg.Done()
	defer func() { <-p.workers }()

	ctx := task.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return
	}
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}
	_ = task.Work(ctx)
}

// Submit queues task. It blocks while the queue is full and fails once the pool is shut down
// or the task context is done.
func (p *Pool) Submit(task Task) error {
	ctx := task.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-p.quit:
		return ErrClosed
	default:
	}
	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops dispatching and waits for running tasks. Queued tasks are dropped.
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
