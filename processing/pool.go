package processing

import (
	"context"

	"github.com/juju/errors"
)

const DefaultQueueSize = 400

// Task is one queued process execution. Resp and Error are buffered so a
// worker never blocks on a caller that went away.
type Task struct {
	Ctx       context.Context
	Authority string
	Code      string
	Inputs    map[string]interface{}
	Resp      chan map[string]interface{}
	Error     chan error
}

func NewTask(ctx context.Context, authority, code string, inputs map[string]interface{}) *Task {
	return &Task{
		Ctx:       ctx,
		Authority: authority,
		Code:      code,
		Inputs:    inputs,
		Resp:      make(chan map[string]interface{}, 1),
		Error:     make(chan error, 1),
	}
}

// ProcessPool runs queued tasks on a fixed number of goroutines.
type ProcessPool struct {
	TaskQueue chan *Task
	registry  *Registry
}

func CreateProcessPool(n int, reg *Registry) *ProcessPool {
	p := &ProcessPool{
		TaskQueue: make(chan *Task, DefaultQueueSize),
		registry:  reg,
	}
	for i := 0; i < n; i++ {
		go p.run()
	}
	return p
}

func (p *ProcessPool) run() {
	for task := range p.TaskQueue {
		if err := task.Ctx.Err(); err != nil {
			task.Error <- err
			continue
		}
		out, err := p.registry.Execute(task.Ctx, task.Authority, task.Code, task.Inputs, nil)
		if err != nil {
			task.Error <- err
			continue
		}
		task.Resp <- out
	}
}

// AddQueue enqueues task, failing it immediately when the queue is
// nearly full.
func (p *ProcessPool) AddQueue(task *Task) {
	if len(p.TaskQueue) > DefaultQueueSize-10 {
		task.Error <- errors.QuotaLimitExceededf("process pool queue")
		return
	}
	p.TaskQueue <- task
}

// Close stops the workers once the queue drains.
func (p *ProcessPool) Close() {
	close(p.TaskQueue)
}
