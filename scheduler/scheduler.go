// Package scheduler runs processes from the processing registry as jobs,
// on demand or on cron schedules, and reports their progress to a
// Listener.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/robfig/cron/v3"
	"gopkg.in/tomb.v2"

	"github.com/nci/sdi/metrics"
	"github.com/nci/sdi/processing"
)

var logger = loggo.GetLogger("sdi.scheduler")

// ErrStopped is returned for jobs submitted once Stop has been called.
const ErrStopped = errors.ConstError("scheduler stopped")

type Config struct {
	Processes   *processing.Registry
	Listener    Listener
	Clock       clock.Clock
	Concurrency int
	// Metrics receives one record per finished job when set.
	Metrics metrics.Logger
}

func (c Config) Validate() error {
	if c.Processes == nil {
		return errors.NotValidf("nil process registry")
	}
	if c.Listener == nil {
		return errors.NotValidf("nil listener")
	}
	return nil
}

type entry struct {
	def      TaskDefinition
	schedule cron.Schedule
	next     time.Time
}

type Scheduler struct {
	cfg     Config
	clock   clock.Clock
	tomb    tomb.Tomb
	limiter *jobSlots

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}

	mu      sync.Mutex
	stopped bool
	entries map[string]*entry
	jobs    map[string]*Job
}

// New starts the scheduling loop. Stop must be called to release it.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:     cfg,
		clock:   cfg.Clock,
		limiter: newJobSlots(cfg.Concurrency),
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		entries: map[string]*entry{},
		jobs:    map[string]*Job{},
	}
	s.tomb.Go(s.loop)
	return s, nil
}

// Submit runs def now and returns the new job identifier.
func (s *Scheduler) Submit(def TaskDefinition) (string, error) {
	if err := def.Validate(); err != nil {
		return "", errors.Trace(err)
	}
	job := newJob(s.ctx, uuid.New().String(), def, s.cfg.Listener)
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", ErrStopped
	}
	s.jobs[job.id] = job
	s.limiter.admit()
	s.mu.Unlock()

	logger.Debugf("submitting job %s for task %s (%s)", job.id, def.ID, def.Process())
	go s.run(job)
	return job.id, nil
}

// Schedule registers def to be submitted each time its cron expression
// fires, replacing an earlier schedule of the same task.
func (s *Scheduler) Schedule(def TaskDefinition) error {
	if def.ID == "" {
		return errors.NotValidf("scheduling a task without identifier")
	}
	if def.Cron == "" {
		return errors.NotValidf("scheduling task %q without cron expression", def.ID)
	}
	if err := def.Validate(); err != nil {
		return errors.Trace(err)
	}
	schedule, err := ParseCron(def.Cron)
	if err != nil {
		return errors.Trace(err)
	}
	s.mu.Lock()
	s.entries[def.ID] = &entry{def: def, schedule: schedule, next: schedule.Next(s.clock.Now())}
	s.mu.Unlock()
	s.poke()
	return nil
}

// Unschedule drops the schedule of a task. Jobs already running are not
// affected.
func (s *Scheduler) Unschedule(taskID string) error {
	s.mu.Lock()
	_, ok := s.entries[taskID]
	delete(s.entries, taskID)
	s.mu.Unlock()
	if !ok {
		return errors.NotFoundf("schedule of task %q", taskID)
	}
	s.poke()
	return nil
}

// Scheduled returns the scheduled tasks with their next fire time.
func (s *Scheduler) Scheduled() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.next
	}
	return out
}

func (s *Scheduler) job(jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, errors.NotFoundf("job %q", jobID)
	}
	return j, nil
}

func (s *Scheduler) Pause(jobID string) error {
	j, err := s.job(jobID)
	if err != nil {
		return err
	}
	return j.pause()
}

func (s *Scheduler) Resume(jobID string) error {
	j, err := s.job(jobID)
	if err != nil {
		return err
	}
	return j.resume()
}

// Cancel stops a job, which then ends as failed with ErrJobCancelled.
func (s *Scheduler) Cancel(jobID string) error {
	j, err := s.job(jobID)
	if err != nil {
		return err
	}
	j.stop()
	return nil
}

// Running returns the unfinished jobs, oldest first.
func (s *Scheduler) Running() []*Job {
	s.mu.Lock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].started.Equal(out[k].started) {
			return out[i].id < out[k].id
		}
		return out[i].started.Before(out[k].started)
	})
	return out
}

// Stop ends the scheduling loop, cancels the running jobs and waits for
// them to report.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	s.stopped = true
	for _, j := range s.jobs {
		j.stop()
	}
	s.mu.Unlock()
	s.tomb.Kill(nil)
	err := s.tomb.Wait()
	s.cancel()
	s.limiter.wait()
	return err
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() error {
	for {
		var (
			timer clock.Timer
			fire  <-chan time.Time
		)
		if next, ok := s.nextFire(); ok {
			d := next.Sub(s.clock.Now())
			if d < 0 {
				d = 0
			}
			timer = s.clock.NewTimer(d)
			fire = timer.Chan()
		}

		select {
		case <-s.tomb.Dying():
			if timer != nil {
				timer.Stop()
			}
			return tomb.ErrDying
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-fire:
			s.fireDue()
		}
	}
}

func (s *Scheduler) nextFire() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next time.Time
	for _, e := range s.entries {
		if e.next.IsZero() {
			continue
		}
		if next.IsZero() || e.next.Before(next) {
			next = e.next
		}
	}
	return next, !next.IsZero()
}

func (s *Scheduler) fireDue() {
	now := s.clock.Now()
	var due []TaskDefinition
	s.mu.Lock()
	for _, e := range s.entries {
		if e.next.After(now) {
			continue
		}
		due = append(due, e.def)
		e.next = e.schedule.Next(now)
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	for _, def := range due {
		if _, err := s.Submit(def); errors.Is(err, ErrStopped) {
			return
		} else if err != nil {
			logger.Errorf("scheduled task %s: %v", def.ID, err)
		}
	}
}

func (s *Scheduler) run(job *Job) {
	defer s.limiter.done()
	err := s.limiter.acquire(job.ctx)
	if err == nil {
		defer s.limiter.release()
	}

	start := s.clock.Now()
	job.start(start)
	var outputs map[string]interface{}
	if err == nil {
		err = job.ctx.Err()
	}
	if err == nil {
		def := job.def
		outputs, err = s.cfg.Processes.Execute(job.ctx, def.Authority, def.Code, def.Inputs, monitor{job})
	}
	s.mu.Lock()
	delete(s.jobs, job.id)
	s.mu.Unlock()
	job.finish(outputs, err)

	status := "SUCCEED"
	if err != nil {
		status = "FAILED"
		logger.Warningf("job %s of task %s failed: %v", job.id, job.def.ID, err)
	} else {
		logger.Infof("job %s of task %s succeeded", job.id, job.def.ID)
	}
	m := metrics.NewTaskCollector(s.cfg.Metrics, job.def.ID, job.id, job.def.Process())
	m.Info.Task.Status = status
	m.Info.Task.Duration = s.clock.Now().Sub(start)
	m.Log()
}
