package eventbus

import (
	"sync"

	"commerce-backend/internal/util"

	"go.uber.org/zap"
)

// Pool is a fixed-size worker pool for post-commit handler execution. The
// submitter holds only a fire-and-forget handle; it never blocks on handler
// completion.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

// NewPool starts workers goroutines draining the task queue.
func NewPool(workers, queueSize int) *Pool {
	p := &Pool{tasks: make(chan func(), queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					util.GetLogger().Error("post-commit task panicked", zap.Any("panic", r))
				}
			}()
			task()
		}()
	}
}

// Submit queues a task without blocking and reports whether it was accepted.
// A full queue drops the task; the publishing path must never stall behind
// slow post-commit handlers.
func (p *Pool) Submit(task func()) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop drains outstanding tasks and stops the workers.
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}
