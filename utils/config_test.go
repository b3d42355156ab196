package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"

	"github.com/nci/sdi/servicedef"
)

func TestLoadConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
port: 9090
services: [wms, csw, WPS]
cache:
  memcache: ["127.0.0.1:11211"]
scheduler:
  concurrency: 2
`
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config := DefaultServiceConfig()
	if err := config.LoadConfigFile(file); err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	if config.Port != 9090 || config.Scheduler.Concurrency != 2 || len(config.Cache.Memcache) != 1 {
		t.Errorf("unexpected settings %+v", config)
	}
	if config.MaxConns != DefaultMaxConns || config.Scheduler.TaskFile != DefaultTaskFile {
		t.Errorf("defaults lost: %+v", config)
	}

	specs, err := config.EnabledServices()
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 3 || specs[0] != servicedef.WMS || specs[2] != servicedef.WPS {
		t.Errorf("unexpected services %v", specs)
	}

	if err := config.LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Errorf("missing settings file should keep defaults: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SDI_PORT":         "7000",
		"SDI_SERVICES":     "sos, wfs",
		"SDI_WORKER_NODES": "a:6000,b:6000",
	}
	config := DefaultServiceConfig()
	if err := config.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}
	if config.Port != 7000 || len(config.Services) != 2 || len(config.WorkerNodes) != 2 {
		t.Errorf("environment not applied: %+v", config)
	}

	env["SDI_PORT"] = "http"
	if err := config.ApplyEnv(func(k string) string { return env[k] }); !errors.Is(err, errors.NotValid) {
		t.Errorf("bad port should be NotValid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	config := DefaultServiceConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
	config.Services = append(config.Services, "WXS")
	if err := config.Validate(); !errors.Is(err, errors.NotValid) {
		t.Errorf("unknown service should be NotValid, got %v", err)
	}
}
