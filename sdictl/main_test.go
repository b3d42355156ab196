package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/juju/loggo"
	"github.com/juju/pubsub/v2"
	"github.com/stretchr/testify/require"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/configurer"
	"github.com/nci/sdi/handlers"
	"github.com/nci/sdi/processing"
	"github.com/nci/sdi/registry"
	"github.com/nci/sdi/scheduler"
	"github.com/nci/sdi/servicedef"
	"github.com/nci/sdi/taskevents"
)

func newServer(t *testing.T) *httptest.Server {
	root := t.TempDir()
	procs := processing.NewRegistry()
	require.NoError(t, processing.RegisterBuiltins(procs, ""))
	services := registry.New(configurer.Deps{
		Dir:       configuration.NewDirectory(root),
		Cache:     configuration.NewMemoryCache(),
		Processes: procs,
	})
	services.Register(servicedef.CSW, registry.DefaultBinding())
	services.Register(servicedef.WMS, registry.DefaultBinding())

	events := taskevents.NewBridge(pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: loggo.GetLogger("sdictl.test"),
	}), nil, nil)
	sched, err := scheduler.New(scheduler.Config{Processes: procs, Listener: events})
	require.NoError(t, err)
	t.Cleanup(func() { sched.Stop() })
	tasks, err := scheduler.OpenTaskStore(root + "/tasks.yaml")
	require.NoError(t, err)

	e := handlers.NewServer(&handlers.Handlers{
		Services:    services,
		Processes:   procs,
		Scheduler:   sched,
		Tasks:       tasks,
		Events:      events,
		TemplateDir: "../data/templates",
	}, "off")
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--host", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestInstanceCommands(t *testing.T) {
	srv := newServer(t)

	out, err := run(t, srv, "create", "WMS", "map", "--name", "Maps")
	require.NoError(t, err)
	require.Contains(t, out, "created WMS instance map")

	_, err = run(t, srv, "create", "WMS", "map")
	require.Error(t, err)

	_, err = run(t, srv, "start", "WMS", "map")
	require.NoError(t, err)
	out, err = run(t, srv, "list", "WMS")
	require.NoError(t, err)
	require.Contains(t, out, "map")
	require.Contains(t, out, string(configuration.StatusStarted))

	_, err = run(t, srv, "stop", "WMS", "map")
	require.NoError(t, err)
	_, err = run(t, srv, "stop", "WMS", "map")
	require.Error(t, err)

	_, err = run(t, srv, "list", "SOS")
	require.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv.URL)
	require.NoError(t, c.create("CSW", &configuration.ServiceMetadata{Identifier: "good"}))
	require.NoError(t, c.create("CSW", &configuration.ServiceMetadata{Identifier: "bad"}))

	out, err := run(t, srv, "check", "CSW")
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(out, passed))

	require.NoError(t, c.do(http.MethodPost, "/1/OGC/CSW/bad/config", map[string]string{
		"format":         "filesystem",
		"data_directory": "/nonexistent/sdi",
	}, nil))
	out, err = run(t, srv, "check")
	require.Error(t, err)
	require.Contains(t, out, "Checking CSW bad: "+failed)
	require.Contains(t, out, "Checking CSW good: "+passed)
}

func TestTaskCommands(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv.URL)
	require.NoError(t, c.do(http.MethodPut, "/1/task", map[string]interface{}{
		"id":        "nap",
		"authority": "util",
		"code":      "sleep",
		"inputs":    map[string]interface{}{"duration": 0.05, "steps": 2},
	}, nil))

	out, err := run(t, srv, "tasks")
	require.NoError(t, err)
	require.Contains(t, out, "util:sleep")

	out, err = run(t, srv, "run", "nap", "--follow")
	require.NoError(t, err)
	require.Contains(t, out, "STARTED")
	require.Contains(t, out, "SUCCEED")
	require.True(t, strings.HasSuffix(strings.TrimSpace(out), passed), out)

	out, err = run(t, srv, "run", "nap")
	require.NoError(t, err)
	require.Contains(t, out, "job ")

	_, err = run(t, srv, "run", "missing")
	require.Error(t, err)
}
