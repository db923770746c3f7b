// Package offload runs CPU-bound computations on a fixed pool of
// long-lived workers, away from the request-handling goroutines.
//
// Work crosses the boundary as msgpack-encoded bytes in both directions:
// arguments are encoded at submission and results are encoded by the
// worker, so no live reference is ever shared between a caller and a task.
package offload

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/chartd/log"
	"github.com/justapithecus/chartd/metrics"
	"github.com/justapithecus/chartd/types"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("offload pool closed")

// ErrUnknownTask rejects a work item naming an unregistered task.
var ErrUnknownTask = errors.New("unknown task")

// Args is the encoded argument payload handed to a task.
type Args []byte

// Decode unmarshals the payload into v.
func (a Args) Decode(v any) error {
	return msgpack.Unmarshal(a, v)
}

// TaskFunc is a named computation. The returned value is msgpack-encoded
// before it leaves the worker.
type TaskFunc func(ctx context.Context, args Args) (any, error)

// WorkItem names a task and carries its arguments.
type WorkItem struct {
	Task string
	Args any
}

type job struct {
	task   string
	args   []byte
	future *Future
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithCollector records submissions and outcomes.
func WithCollector(c *metrics.Collector) Option {
	return func(p *Pool) { p.collector = c }
}

// Pool is a fixed set of workers consuming an unbounded FIFO queue.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []job
	closed bool
	tasks  map[string]TaskFunc

	workers int
	wg      sync.WaitGroup
	// ctx is handed to every task; it outlives Close so queued work drains.
	ctx context.Context

	logger    *log.Logger
	collector *metrics.Collector
}

// New starts a pool with the given number of workers.
// workers <= 0 selects runtime.NumCPU().
func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		tasks:   make(map[string]TaskFunc),
		workers: workers,
		ctx:     context.Background(),
		logger:  log.NewNop(),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Register binds name to fn, replacing any previous binding.
func (p *Pool) Register(name string, fn TaskFunc) {
	p.mu.Lock()
	p.tasks[name] = fn
	p.mu.Unlock()
}

// Pending returns the number of queued items not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Submit encodes the item's arguments and queues it. It never blocks on
// worker availability.
func (p *Pool) Submit(item WorkItem) (*Future, error) {
	args, err := msgpack.Marshal(item.Args)
	if err != nil {
		return nil, types.NewOffloadError(item.Task, fmt.Errorf("encode args: %w", err))
	}

	f := newFuture(item.Task)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.queue = append(p.queue, job{task: item.Task, args: args, future: f})
	p.cond.Signal()
	p.mu.Unlock()

	p.collector.IncOffloadSubmitted()
	return f, nil
}

// Close stops intake, lets workers drain the queue, and waits for them.
// Safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue[0] = job{}
		p.queue = p.queue[1:]
		fn := p.tasks[j.task]
		p.mu.Unlock()

		p.run(j, fn)
	}
}

func (p *Pool) run(j job, fn TaskFunc) {
	if fn == nil {
		p.reject(j, ErrUnknownTask)
		return
	}

	value, err := p.call(fn, j.args)
	if err != nil {
		p.reject(j, err)
		return
	}

	result, err := msgpack.Marshal(value)
	if err != nil {
		p.reject(j, fmt.Errorf("encode result: %w", err))
		return
	}

	j.future.resolve(result, nil)
	p.collector.IncOffloadSucceeded()
}

// call runs fn, converting a panic into an error so the worker survives.
func (p *Pool) call(fn TaskFunc, args []byte) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(p.ctx, Args(args))
}

func (p *Pool) reject(j job, cause error) {
	err := types.NewOffloadError(j.task, cause)
	p.logger.Warn("offload task failed", map[string]any{
		"task":  j.task,
		"error": cause.Error(),
	})
	j.future.resolve(nil, err)
	p.collector.IncOffloadFailed()
}
