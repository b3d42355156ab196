package taskevents

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/pubsub/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nci/sdi/metrics"
	"github.com/nci/sdi/scheduler"
)

var logger = loggo.GetLogger("sdi.taskevents")

const redisPublishTO = 5 * time.Second

// Bridge listens to the scheduler and publishes a TaskStatus on the hub
// for every job transition. When a redis client is set the statuses are
// relayed, as JSON, to the redis channels named after the topics.
type Bridge struct {
	hub   *pubsub.SimpleHub
	redis *redis.Client
	clock clock.Clock

	mu      sync.Mutex
	last    map[string]TaskStatus
	percent map[string]float64
}

var _ scheduler.Listener = (*Bridge)(nil)

// NewBridge returns a bridge publishing on hub. rdb may be nil.
func NewBridge(hub *pubsub.SimpleHub, rdb *redis.Client, clk clock.Clock) *Bridge {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Bridge{
		hub:     hub,
		redis:   rdb,
		clock:   clk,
		last:    map[string]TaskStatus{},
		percent: map[string]float64{},
	}
}

func (b *Bridge) Hub() *pubsub.SimpleHub { return b.hub }

func (b *Bridge) JobStarted(job *scheduler.Job) {
	b.publish(job, StatusStarted, 0, "")
}

// JobProgressing keeps the last known percentage when percent is NaN.
func (b *Bridge) JobProgressing(job *scheduler.Job, percent float64, msg string) {
	b.publish(job, StatusRunning, percent, msg)
}

func (b *Bridge) JobPaused(job *scheduler.Job) {
	b.publish(job, StatusPaused, math.NaN(), "")
}

func (b *Bridge) JobResumed(job *scheduler.Job) {
	b.publish(job, StatusRunning, math.NaN(), "")
}

func (b *Bridge) JobSucceeded(job *scheduler.Job, outputs map[string]interface{}) {
	b.publish(job, StatusSucceed, 100, "")
}

func (b *Bridge) JobFailed(job *scheduler.Job, err error) {
	b.publish(job, StatusFailed, math.NaN(), errors.ErrorStack(err))
}

func (b *Bridge) publish(job *scheduler.Job, status Status, percent float64, msg string) {
	b.mu.Lock()
	if math.IsNaN(percent) {
		percent = b.percent[job.ID()]
	}
	if status.Final() {
		delete(b.percent, job.ID())
	} else {
		b.percent[job.ID()] = percent
	}
	ts := TaskStatus{
		TaskID:  job.TaskID(),
		JobID:   job.ID(),
		Title:   job.Title(),
		Message: msg,
		Percent: percent,
		Status:  status,
		Date:    b.clock.Now().UTC(),
	}
	b.last[ts.TaskID] = ts
	b.mu.Unlock()

	metrics.TaskEventsTotal.WithLabelValues(string(status)).Inc()
	logger.Tracef("task %s job %s: %s %.0f%%", ts.TaskID, ts.JobID, status, percent)

	for _, topic := range []string{Topic, TaskTopic(ts.TaskID)} {
		b.hub.Publish(topic, ts)
		b.relay(topic, ts)
	}
}

func (b *Bridge) relay(topic string, ts TaskStatus) {
	if b.redis == nil {
		return
	}
	data, err := json.Marshal(ts)
	if err != nil {
		logger.Errorf("encoding task status: %v", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), redisPublishTO)
		defer cancel()
		if err := b.redis.Publish(ctx, topic, data).Err(); err != nil {
			logger.Warningf("relaying %s to redis: %v", topic, err)
		}
	}()
}

// Last returns the latest status published for a task.
func (b *Bridge) Last(taskID string) (TaskStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.last[taskID]
	if !ok {
		return ts, errors.NotFoundf("status of task %q", taskID)
	}
	return ts, nil
}

// Statuses returns the latest status of every task, newest first.
func (b *Bridge) Statuses() []TaskStatus {
	b.mu.Lock()
	out := make([]TaskStatus, 0, len(b.last))
	for _, ts := range b.last {
		out = append(out, ts)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// Forget drops the status of a deleted task.
func (b *Bridge) Forget(taskID string) {
	b.mu.Lock()
	delete(b.last, taskID)
	b.mu.Unlock()
}
