package offload

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
)

// Future is the eventual result of a submitted WorkItem.
type Future struct {
	task   string
	done   chan struct{}
	result []byte
	err    error
}

func newFuture(task string) *Future {
	return &Future{task: task, done: make(chan struct{})}
}

func (f *Future) resolve(result []byte, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Task returns the task name the future belongs to.
func (f *Future) Task() string {
	return f.task
}

// Done is closed once the future is resolved or rejected.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx ends. It returns the task
// error, if any. Abandoning a wait does not cancel the task.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Decode waits for the result and unmarshals it into v.
func (f *Future) Decode(ctx context.Context, v any) error {
	if err := f.Wait(ctx); err != nil {
		return err
	}
	return msgpack.Unmarshal(f.result, v)
}

// Await waits for f and decodes its result as T.
func Await[T any](ctx context.Context, f *Future) (T, error) {
	var v T
	err := f.Decode(ctx, &v)
	return v, err
}
