package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/taskevents"
)

// client talks JSON to the administration API of an sdi server.
type client struct {
	base string
	http *http.Client
}

func newClient(host string) *client {
	base := host
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Error string `json:"error"`
}

func (c *client) do(method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Trace(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return errors.Trace(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Annotatef(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Trace(err)
	}
	if resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(data, &ae) == nil && ae.Error != "" {
			return errors.Errorf("%s %s: %d %s", method, path, resp.StatusCode, ae.Error)
		}
		return errors.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return errors.Annotatef(json.Unmarshal(data, out), "decoding %s", path)
}

type ack struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *client) instances(spec string) ([]configuration.Instance, error) {
	var out []configuration.Instance
	err := c.do(http.MethodGet, "/1/OGC/"+url.PathEscape(spec)+"/all", nil, &out)
	return out, err
}

func (c *client) create(spec string, md *configuration.ServiceMetadata) error {
	return c.do(http.MethodPut, "/1/OGC/"+url.PathEscape(spec), md, nil)
}

func (c *client) action(spec, id, action string) error {
	return c.do(http.MethodPost, fmt.Sprintf("/1/OGC/%s/%s/%s", url.PathEscape(spec), url.PathEscape(id), action), nil, nil)
}

func (c *client) checkDataSource(spec, id string) (ack, error) {
	var out ack
	err := c.do(http.MethodGet, fmt.Sprintf("/1/%s/%s/datasource/check", url.PathEscape(spec), url.PathEscape(id)), nil, &out)
	return out, err
}

type task struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title,omitempty"`
	Authority string                 `json:"authority"`
	Code      string                 `json:"code"`
	Cron      string                 `json:"cron,omitempty"`
	NextRun   *time.Time             `json:"nextRun,omitempty"`
	Status    *taskevents.TaskStatus `json:"status,omitempty"`
	Inputs    map[string]interface{} `json:"inputs,omitempty"`
}

func (c *client) tasks() ([]task, error) {
	var out []task
	err := c.do(http.MethodGet, "/1/task/listTasks", nil, &out)
	return out, err
}

func (c *client) execute(taskID string) (string, error) {
	var out struct {
		JobID string `json:"jobId"`
	}
	err := c.do(http.MethodPost, "/1/task/"+url.PathEscape(taskID)+"/execute", nil, &out)
	return out.JobID, err
}

// runAndFollow subscribes to the statuses of a task, executes it and
// calls fn for each status of the new job until one is final.
func (c *client) runAndFollow(taskID string, fn func(taskevents.TaskStatus)) (taskevents.TaskStatus, error) {
	u, err := url.Parse(c.base + "/topic/taskevents/" + url.PathEscape(taskID))
	if err != nil {
		return taskevents.TaskStatus{}, errors.Trace(err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return taskevents.TaskStatus{}, errors.Annotatef(err, "following task %s", taskID)
	}
	defer conn.Close()

	jobID, err := c.execute(taskID)
	if err != nil {
		return taskevents.TaskStatus{}, err
	}
	for {
		var st taskevents.TaskStatus
		if err := conn.ReadJSON(&st); err != nil {
			return taskevents.TaskStatus{}, errors.Annotatef(err, "job %s", jobID)
		}
		if st.JobID != jobID {
			continue
		}
		fn(st)
		if st.Status.Final() {
			return st, nil
		}
	}
}
