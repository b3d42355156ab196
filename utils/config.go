package utils

import (
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"

	"github.com/nci/sdi/servicedef"
)

var EtcDir = "."
var DataDir = "."

// CacheConfig selects where parsed instance configurations are cached.
// An empty Memcache list keeps them in process memory.
type CacheConfig struct {
	Disabled   bool     `yaml:"disabled"`
	Memcache   []string `yaml:"memcache"`
	Expiration int32    `yaml:"expiration"`
}

// RedisConfig enables relaying task events to other server nodes.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SchedulerConfig struct {
	Concurrency int    `yaml:"concurrency"`
	TaskFile    string `yaml:"task_file"`
}

// ServiceConfig is the server wide configuration read from the settings
// YAML file and overridden by SDI_* environment variables.
type ServiceConfig struct {
	Hostname    string          `yaml:"hostname"`
	Port        int             `yaml:"port"`
	MaxConns    int             `yaml:"max_conns"`
	Services    []string        `yaml:"services"`
	LogLevel    string          `yaml:"log_level"`
	Cache       CacheConfig     `yaml:"cache"`
	Redis       RedisConfig     `yaml:"redis"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	WorkerNodes []string        `yaml:"worker_nodes"`
}

const (
	DefaultPort        = 8080
	DefaultMaxConns    = 256
	DefaultConcurrency = 4
	DefaultTaskFile    = "tasks.yaml"
)

// DefaultServiceConfig enables every known specification.
func DefaultServiceConfig() *ServiceConfig {
	cfg := &ServiceConfig{
		Port:     DefaultPort,
		MaxConns: DefaultMaxConns,
		LogLevel: "<root>=INFO",
		Scheduler: SchedulerConfig{
			Concurrency: DefaultConcurrency,
			TaskFile:    DefaultTaskFile,
		},
	}
	for _, s := range servicedef.Specifications {
		cfg.Services = append(cfg.Services, string(s))
	}
	return cfg
}

// LoadConfigFile reads the YAML settings file on top of the defaults.
// A missing file leaves the defaults untouched.
func (config *ServiceConfig) LoadConfigFile(configFile string) error {
	cfg, err := ioutil.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Annotatef(err, "reading settings file %s", configFile)
	}
	if err := yaml.Unmarshal(cfg, config); err != nil {
		return errors.Annotatef(err, "parsing settings file %s", configFile)
	}
	return nil
}

// ApplyEnv overrides settings from SDI_* environment variables.
func (config *ServiceConfig) ApplyEnv(getenv func(string) string) error {
	if v := getenv("SDI_HOSTNAME"); v != "" {
		config.Hostname = v
	}
	if v := getenv("SDI_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.NotValidf("SDI_PORT %q", v)
		}
		config.Port = port
	}
	if v := getenv("SDI_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.NotValidf("SDI_MAX_CONNS %q", v)
		}
		config.MaxConns = n
	}
	if v := getenv("SDI_SERVICES"); v != "" {
		config.Services = splitList(v)
	}
	if v := getenv("SDI_LOGLEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := getenv("SDI_MEMCACHE"); v != "" {
		config.Cache.Memcache = splitList(v)
	}
	if v := getenv("SDI_REDIS"); v != "" {
		config.Redis.Address = v
	}
	if v := getenv("SDI_REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := getenv("SDI_WORKER_NODES"); v != "" {
		config.WorkerNodes = splitList(v)
	}
	if v := getenv("SDI_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.NotValidf("SDI_CONCURRENCY %q", v)
		}
		config.Scheduler.Concurrency = n
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EnabledServices validates and returns the services list.
func (config *ServiceConfig) EnabledServices() ([]servicedef.Specification, error) {
	seen := make(map[servicedef.Specification]bool)
	var specs []servicedef.Specification
	for _, name := range config.Services {
		spec, err := servicedef.ParseSpecification(name)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if !seen[spec] {
			seen[spec] = true
			specs = append(specs, spec)
		}
	}
	return specs, nil
}

// Validate checks value ranges once all sources have been merged.
func (config *ServiceConfig) Validate() error {
	if config.Port <= 0 || config.Port > 65535 {
		return errors.NotValidf("port %d", config.Port)
	}
	if config.MaxConns <= 0 {
		return errors.NotValidf("max_conns %d", config.MaxConns)
	}
	if config.Scheduler.Concurrency <= 0 {
		return errors.NotValidf("scheduler concurrency %d", config.Scheduler.Concurrency)
	}
	if _, err := config.EnabledServices(); err != nil {
		return err
	}
	return nil
}

// LoadServiceConfig merges defaults, the settings file and environment.
func LoadServiceConfig(configFile string) (*ServiceConfig, error) {
	config := DefaultServiceConfig()
	if configFile != "" {
		if err := config.LoadConfigFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Dump renders the effective configuration, as printed by -dump_conf.
func (config *ServiceConfig) Dump() (string, error) {
	redacted := *config
	if redacted.Redis.Password != "" {
		redacted.Redis.Password = "********"
	}
	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(out), nil
}
