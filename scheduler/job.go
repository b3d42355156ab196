package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/nci/sdi/processing"
)

// ErrJobCancelled is the cause reported for jobs stopped by Cancel.
const ErrJobCancelled = errors.ConstError("job cancelled")

// Listener is told about job transitions. For a given job the calls
// arrive in order: JobStarted, any number of JobProgressing, JobPaused
// and JobResumed, then one of JobSucceeded or JobFailed.
type Listener interface {
	JobStarted(job *Job)
	JobProgressing(job *Job, percent float64, msg string)
	JobPaused(job *Job)
	JobResumed(job *Job)
	JobSucceeded(job *Job, outputs map[string]interface{})
	JobFailed(job *Job, err error)
}

type jobState int

const (
	jobQueued jobState = iota
	jobRunning
	jobPaused
	jobDone
)

// Job is one execution of a task definition.
type Job struct {
	id      string
	def     TaskDefinition
	started time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	listener Listener

	mu        sync.Mutex
	state     jobState
	cancelled bool
	resumed   chan struct{}
}

func newJob(parent context.Context, id string, def TaskDefinition, l Listener) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{id: id, def: def, ctx: ctx, cancel: cancel, listener: l}
}

func (j *Job) ID() string { return j.id }

func (j *Job) TaskID() string { return j.def.ID }

// Title falls back to the process identifier for untitled tasks.
func (j *Job) Title() string {
	if j.def.Title != "" {
		return j.def.Title
	}
	return j.def.Process()
}

func (j *Job) Definition() TaskDefinition { return j.def }

func (j *Job) Started() time.Time { return j.started }

func (j *Job) Paused() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state == jobPaused
}

func (j *Job) start(now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.started = now
	j.state = jobRunning
	j.listener.JobStarted(j)
}

func (j *Job) pause() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.state {
	case jobPaused:
		return nil
	case jobRunning:
	default:
		return errors.NotValidf("pausing job %s which is not running", j.id)
	}
	j.state = jobPaused
	j.resumed = make(chan struct{})
	j.listener.JobPaused(j)
	return nil
}

func (j *Job) resume() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.state {
	case jobRunning:
		return nil
	case jobPaused:
	default:
		return errors.NotValidf("resuming job %s which is not paused", j.id)
	}
	j.state = jobRunning
	close(j.resumed)
	j.listener.JobResumed(j)
	return nil
}

func (j *Job) stop() {
	j.mu.Lock()
	j.cancelled = true
	j.mu.Unlock()
	j.cancel()
}

func (j *Job) progress(percent float64, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == jobDone {
		return
	}
	j.listener.JobProgressing(j, percent, msg)
}

func (j *Job) finish(outputs map[string]interface{}, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled && err == nil && j.ctx.Err() != nil {
		err = j.ctx.Err()
	}
	if j.cancelled && err != nil {
		err = errors.Annotatef(ErrJobCancelled, "job %s", j.id)
	}
	if j.state == jobPaused {
		close(j.resumed)
	}
	j.state = jobDone
	if err != nil {
		j.listener.JobFailed(j, err)
		return
	}
	j.listener.JobSucceeded(j, outputs)
}

// monitor is the processing.Monitor handed to the running process.
type monitor struct {
	job *Job
}

func (m monitor) Progress(percent float64, msg string) {
	if !math.IsNaN(percent) {
		percent = processing.Percent(percent)
	}
	m.job.progress(percent, msg)
}

// Checkpoint blocks while the job is paused and fails once it is
// cancelled.
func (m monitor) Checkpoint(ctx context.Context) error {
	j := m.job
	for {
		j.mu.Lock()
		paused, resumed := j.state == jobPaused, j.resumed
		j.mu.Unlock()
		if !paused {
			break
		}
		select {
		case <-resumed:
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		}
	}
	return errors.Trace(ctx.Err())
}
