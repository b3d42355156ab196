package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestToJSON(t *testing.T) {
	info := &MetricsInfo{
		RemoteAddr: "10.0.0.1:5555",
		URL:        URLInfo{RawURL: "http://localhost:8080/1/OGC/WMS/all?a=1&b=2&b=3"},
		HTTPStatus: 200,
	}
	out, err := info.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var decoded MetricsInfo
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if decoded.RemoteHost != "10.0.0.1" || decoded.RemotePort != "5555" {
		t.Errorf("address not split: %+v", decoded)
	}
	if decoded.URL.Path != "/1/OGC/WMS/all" || decoded.URL.Query["a"] != "1" || decoded.URL.Query["b"] != "[2 3]" {
		t.Errorf("url not normalised: %+v", decoded.URL)
	}
}

func TestCollectorCountsRequests(t *testing.T) {
	var buf bytes.Buffer
	c := NewMetricsCollector(&StdoutLogger{out: &buf})
	c.Info.Method = "GET"
	c.Info.Admin.Route = "/test/route"
	c.Info.HTTPStatus = 404

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/test/route", "404"))
	c.Log()
	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/test/route", "404"))
	if after != before+1 {
		t.Errorf("request not counted: %v -> %v", before, after)
	}
	if !strings.Contains(buf.String(), `"route":"/test/route"`) {
		t.Errorf("record not written: %s", buf.String())
	}
}

func TestFileLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewFileLogger(dir, 1, 2, false)
	for i := 0; i < 10; i++ {
		c := NewTaskCollector(l, "task", "job", "util:echo")
		c.Info.Task.Status = "SUCCEED"
		c.Info.Task.Duration = time.Millisecond
		c.Log()
	}
	l.Close()

	var lines int
	for i := 0; i < defaultLogWriters; i++ {
		data, err := os.ReadFile(filepath.Join(dir, "log"+string(rune('0'+i))))
		if err != nil && !os.IsNotExist(err) {
			t.Fatal(err)
		}
		lines += strings.Count(string(data), "\n")
	}
	if lines != 10 {
		t.Errorf("expected 10 records, got %d", lines)
	}
}
