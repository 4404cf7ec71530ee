package broker

import "context"

// Executor runs acquisition callbacks. The callback never runs on the
// caller's goroutine unless the executor puts it there.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(fn func())

// Execute implements Executor
func (f ExecutorFunc) Execute(fn func()) {
	f(fn)
}

var (
	// Goroutine runs every callback on a new goroutine
	Goroutine Executor = ExecutorFunc(func(fn func()) { go fn() })

	// Inline runs the callback on the goroutine that finished the resolution
	Inline Executor = ExecutorFunc(func(fn func()) { fn() })
)

// ChanExecutor queues callbacks for a loop owned by the caller, the way a UI
// thread drains its own queue
type ChanExecutor struct {
	queue chan func()
}

// NewChanExecutor creates an executor with room for size pending callbacks
func NewChanExecutor(size int) *ChanExecutor {
	return &ChanExecutor{queue: make(chan func(), size)}
}

// Execute implements Executor. It blocks while the queue is full.
func (c *ChanExecutor) Execute(fn func()) {
	c.queue <- fn
}

// Run drains the queue until ctx is done
func (c *ChanExecutor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.queue:
			fn()
		}
	}
}

// RunPending runs the callbacks already queued and returns how many ran
func (c *ChanExecutor) RunPending() int {
	n := 0
	for {
		select {
		case fn := <-c.queue:
			fn()
			n++
		default:
			return n
		}
	}
}
