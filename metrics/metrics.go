package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("sdi.metrics")

type URLInfo struct {
	RawURL string            `json:"raw_url"`
	Host   string            `json:"host"`
	Path   string            `json:"path"`
	Query  map[string]string `json:"query"`
}

// AdminInfo describes what an administration request acted upon.
type AdminInfo struct {
	Route    string `json:"route"`
	Spec     string `json:"spec,omitempty"`
	Instance string `json:"instance,omitempty"`
	Action   string `json:"action,omitempty"`
	Error    string `json:"error,omitempty"`
}

// TaskInfo describes a finished scheduler job.
type TaskInfo struct {
	TaskID   string        `json:"task_id"`
	JobID    string        `json:"job_id"`
	Process  string        `json:"process"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
}

type MetricsInfo struct {
	ReqTime     string        `json:"req_time"`
	ReqDuration time.Duration `json:"req_duration"`
	Method      string        `json:"method,omitempty"`
	URL         URLInfo       `json:"url"`
	RemoteAddr  string        `json:"remote_addr"`
	RemoteHost  string        `json:"remote_host"`
	RemotePort  string        `json:"remote_port"`
	HTTPStatus  int           `json:"http_status"`
	Admin       *AdminInfo    `json:"admin,omitempty"`
	Task        *TaskInfo     `json:"task,omitempty"`
}

// MetricsCollector accumulates the record of one request or job and
// hands it to a Logger once complete.
type MetricsCollector struct {
	Info   *MetricsInfo
	logger Logger
}

func NewMetricsCollector(logger Logger) *MetricsCollector {
	return &MetricsCollector{
		Info: &MetricsInfo{
			ReqTime: time.Now().UTC().Format(time.RFC3339Nano),
			Admin:   &AdminInfo{},
		},
		logger: logger,
	}
}

// NewTaskCollector starts the record of a scheduler job.
func NewTaskCollector(logger Logger, taskID, jobID, process string) *MetricsCollector {
	return &MetricsCollector{
		Info: &MetricsInfo{
			ReqTime: time.Now().UTC().Format(time.RFC3339Nano),
			Task:    &TaskInfo{TaskID: taskID, JobID: jobID, Process: process},
		},
		logger: logger,
	}
}

// Log records the collected request in Prometheus and, when configured,
// in the metrics log.
func (m *MetricsCollector) Log() {
	if m.Info.Task != nil {
		JobsTotal.WithLabelValues(m.Info.Task.Status).Inc()
		JobDuration.Observe(m.Info.Task.Duration.Seconds())
	} else if m.Info.Admin != nil {
		status := fmt.Sprintf("%d", m.Info.HTTPStatus)
		RequestsTotal.WithLabelValues(m.Info.Method, m.Info.Admin.Route, status).Inc()
		RequestDuration.WithLabelValues(m.Info.Method, m.Info.Admin.Route).Observe(m.Info.ReqDuration.Seconds())
	}
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

func (i *MetricsInfo) ToJSON() (string, error) {
	i.normaliseNetworkAddr(i.RemoteAddr)
	i.normaliseURLs()

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(i); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (i *MetricsInfo) normaliseNetworkAddr(addr string) {
	if addr == "" {
		return
	}
	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		i.RemoteHost = host
		i.RemotePort = port
	} else {
		i.RemoteHost = addr
	}
}

func (i *MetricsInfo) normaliseURLs() {
	if i.URL.RawURL == "" {
		return
	}
	if err := i.normaliseURL(&i.URL); err != nil {
		logger.Debugf("normalising url %q: %v", i.URL.RawURL, err)
	}
}

func (i *MetricsInfo) normaliseURL(u *URLInfo) error {
	r, err := url.Parse(u.RawURL)
	if err != nil {
		return err
	}

	u.Host = r.Host
	u.Path = r.Path
	query, err := url.ParseQuery(r.RawQuery)
	if err != nil {
		return err
	}

	if u.Query == nil {
		u.Query = make(map[string]string)
	}
	for k, v := range query {
		if len(v) == 1 {
			u.Query[k] = v[0]
		} else if len(v) > 1 {
			u.Query[k] = fmt.Sprintf("%v", v)
		} else {
			u.Query[k] = ""
		}
	}
	return nil
}
