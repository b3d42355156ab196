// Package taskevents turns scheduler job transitions into TaskStatus
// snapshots and publishes them to UI clients.
package taskevents

import (
	"encoding/xml"
	"time"
)

type Status string

const (
	StatusStarted Status = "STARTED"
	StatusRunning Status = "RUNNING"
	StatusPaused  Status = "PAUSED"
	StatusSucceed Status = "SUCCEED"
	StatusFailed  Status = "FAILED"
)

// Final reports whether no more statuses follow s for the same job.
func (s Status) Final() bool {
	return s == StatusSucceed || s == StatusFailed
}

// Topic receives every status. Topic/<task id> receives the statuses of
// one task.
const Topic = "/topic/taskevents"

func TaskTopic(taskID string) string {
	return Topic + "/" + taskID
}

// TaskStatus is a snapshot of a job at one transition.
type TaskStatus struct {
	XMLName xml.Name  `json:"-" xml:"TaskStatus"`
	TaskID  string    `json:"taskId" xml:"taskId"`
	JobID   string    `json:"jobId" xml:"jobId"`
	Title   string    `json:"title" xml:"title"`
	Message string    `json:"message,omitempty" xml:"message,omitempty"`
	Percent float64   `json:"percent" xml:"percent"`
	Status  Status    `json:"status" xml:"status"`
	Date    time.Time `json:"date" xml:"date"`
}

// TaskStatusList wraps statuses for XML responses.
type TaskStatusList struct {
	XMLName  xml.Name     `xml:"TaskStatuses"`
	Statuses []TaskStatus `xml:"TaskStatus"`
}
