package taskevents

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/pubsub/v2"
	"github.com/stretchr/testify/require"

	"github.com/nci/sdi/processing"
	"github.com/nci/sdi/scheduler"
)

func newHub() *pubsub.SimpleHub {
	return pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: loggo.GetLogger("sdi.taskevents.test"),
	})
}

func startScheduler(t *testing.T, b *Bridge) *scheduler.Scheduler {
	reg := processing.NewRegistry()
	require.NoError(t, processing.RegisterBuiltins(reg, ""))
	s, err := scheduler.New(scheduler.Config{Processes: reg, Listener: b, Concurrency: 1})
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop() })
	return s
}

func collect(t *testing.T, hub *pubsub.SimpleHub, topic string) <-chan TaskStatus {
	out := make(chan TaskStatus, 32)
	unsubscribe := hub.Subscribe(topic, func(_ string, data interface{}) {
		out <- data.(TaskStatus)
	})
	t.Cleanup(unsubscribe)
	return out
}

func untilFinal(t *testing.T, ch <-chan TaskStatus) []TaskStatus {
	t.Helper()
	var got []TaskStatus
	for {
		select {
		case ts := <-ch:
			got = append(got, ts)
			if ts.Status.Final() {
				return got
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("no final status, got %+v", got)
		}
	}
}

func TestBridgePublishesProgress(t *testing.T) {
	hub := newHub()
	b := NewBridge(hub, nil, nil)
	s := startScheduler(t, b)
	all := collect(t, hub, Topic)
	task := collect(t, hub, TaskTopic("nap"))

	jobID, err := s.Submit(scheduler.TaskDefinition{
		ID: "nap", Title: "Short nap", Authority: "util", Code: "sleep",
		Inputs: map[string]interface{}{"duration": 0.02, "steps": 2.0},
	})
	require.NoError(t, err)

	got := untilFinal(t, task)
	var statuses []Status
	var percents []float64
	for _, ts := range got {
		require.Equal(t, "nap", ts.TaskID)
		require.Equal(t, jobID, ts.JobID)
		require.Equal(t, "Short nap", ts.Title)
		statuses = append(statuses, ts.Status)
		percents = append(percents, ts.Percent)
	}
	require.Equal(t, []Status{StatusStarted, StatusRunning, StatusRunning, StatusRunning, StatusSucceed}, statuses)
	require.Equal(t, []float64{0, 0, 50, 100, 100}, percents)
	require.Equal(t, "sleeping 0.02s", got[1].Message)

	require.Len(t, untilFinal(t, all), len(got))

	last, err := b.Last("nap")
	require.NoError(t, err)
	require.Equal(t, StatusSucceed, last.Status)
	require.Len(t, b.Statuses(), 1)

	b.Forget("nap")
	_, err = b.Last("nap")
	require.True(t, errors.Is(err, errors.NotFound))
}

func TestBridgeKeepsLastPercent(t *testing.T) {
	ready, release := make(chan struct{}), make(chan struct{})
	partial := processing.NewProcess(processing.Descriptor{Code: "partial"},
		func(ctx context.Context, inputs map[string]interface{}, mon processing.Monitor) (map[string]interface{}, error) {
			mon.Progress(40, "half way")
			mon.Progress(math.NaN(), "still going")
			close(ready)
			<-release
			if err := mon.Checkpoint(ctx); err != nil {
				return nil, err
			}
			return nil, errors.New("disk full")
		})
	reg := processing.NewRegistry()
	require.NoError(t, reg.Register(processing.NewStaticFactory("test", partial)))

	hub := newHub()
	b := NewBridge(hub, nil, nil)
	s, err := scheduler.New(scheduler.Config{Processes: reg, Listener: b, Concurrency: 1})
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop() })
	task := collect(t, hub, TaskTopic("partial"))

	jobID, err := s.Submit(scheduler.TaskDefinition{ID: "partial", Authority: "test", Code: "partial"})
	require.NoError(t, err)
	<-ready
	require.NoError(t, s.Pause(jobID))
	close(release)
	require.NoError(t, s.Resume(jobID))

	got := untilFinal(t, task)
	var statuses []Status
	var percents []float64
	for _, ts := range got {
		statuses = append(statuses, ts.Status)
		percents = append(percents, ts.Percent)
	}
	require.Equal(t, []Status{
		StatusStarted, StatusRunning, StatusRunning, StatusPaused, StatusRunning, StatusFailed,
	}, statuses)
	require.Equal(t, []float64{0, 40, 40, 40, 40, 40}, percents)
	require.Equal(t, "still going", got[2].Message)
	require.Contains(t, got[5].Message, "disk full")
}

func TestBridgeReportsFailureStack(t *testing.T) {
	hub := newHub()
	b := NewBridge(hub, nil, nil)
	s := startScheduler(t, b)
	task := collect(t, hub, TaskTopic("broken"))

	_, err := s.Submit(scheduler.TaskDefinition{ID: "broken", Authority: "nowhere", Code: "x"})
	require.NoError(t, err)

	got := untilFinal(t, task)
	require.Len(t, got, 2)
	require.Equal(t, StatusStarted, got[0].Status)
	require.Equal(t, StatusFailed, got[1].Status)
	require.Contains(t, got[1].Message, "nowhere")
	require.Contains(t, got[1].Message, "not found")
}

func TestStreamRelaysStatuses(t *testing.T) {
	hub := newHub()
	b := NewBridge(hub, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.Stream(w, r, Topic)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	received := make(chan TaskStatus, 1)
	go func() {
		var ts TaskStatus
		if err := conn.ReadJSON(&ts); err == nil {
			received <- ts
		}
	}()

	// publish until the stream relays one status
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ts := <-received:
			require.Equal(t, "t1", ts.TaskID)
			require.Equal(t, StatusRunning, ts.Status)
			require.Equal(t, 42.0, ts.Percent)
			return
		case <-ticker.C:
			hub.Publish(Topic, TaskStatus{TaskID: "t1", Status: StatusRunning, Percent: 42})
		case <-deadline:
			t.Fatal("no status streamed")
		}
	}
}
