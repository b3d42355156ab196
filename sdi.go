package main

/* sdi is the administration server of the spatial data infrastructure.
   It manages the configured instances of the OGC services (WMS, WMTS,
   WFS, WCS, CSW, SOS and WPS), publishes processes to WPS instances and
   runs processing tasks, reporting their progress to web clients.
   Server wide settings are read from sdi.yaml in the config directory,
   overridden by SDI_* environment variables and an optional .env file.
   Instance configurations live under <conf_dir>/<SPEC>/<identifier>/. */

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/lumberjack/v2"
	"github.com/juju/pubsub/v2"
	reuseport "github.com/kavu/go_reuseport"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/netutil"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/configurer"
	"github.com/nci/sdi/handlers"
	"github.com/nci/sdi/metrics"
	"github.com/nci/sdi/processing"
	"github.com/nci/sdi/registry"
	"github.com/nci/sdi/scheduler"
	"github.com/nci/sdi/servicedef"
	"github.com/nci/sdi/taskevents"
	"github.com/nci/sdi/utils"
)

const version = "0.1.0"

var (
	port            = flag.Int("p", 0, "Server listening port, overrides the settings file.")
	serverDataDir   = flag.String("data_dir", utils.DataDir, "Server data directory.")
	serverConfigDir = flag.String("conf_dir", utils.EtcDir, "Server config directory.")
	serverLogDir    = flag.String("log_dir", "", "Server log directory, - logs metrics to stdout.")
	validateConfig  = flag.Bool("check_conf", false, "Validate server config files.")
	dumpConfig      = flag.Bool("dump_conf", false, "Dump server config files.")
	verbose         = flag.Bool("v", false, "Verbose mode for more server outputs.")
	settingsFile    = flag.String("settings", "", "Settings file, <conf_dir>/sdi.yaml by default.")
	logLevel        = flag.String("loglevel", "", "Logging configuration such as <root>=DEBUG;sdi.scheduler=TRACE.")
)

var logger = loggo.GetLogger("sdi")

var (
	metricsLogger metrics.Logger
	templateDir   string
)

func loadConfig() (*utils.ServiceConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Annotate(err, "loading .env")
	}
	utils.DataDir = *serverDataDir
	utils.EtcDir = *serverConfigDir

	settings := *settingsFile
	if settings == "" {
		settings = filepath.Join(utils.EtcDir, "sdi.yaml")
	}
	config, err := utils.LoadServiceConfig(settings)
	if err != nil {
		return nil, err
	}
	if *port != 0 {
		config.Port = *port
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	if *verbose {
		config.LogLevel += ";sdi=DEBUG"
	}

	resolver := utils.NewRuntimeFileResolver(utils.DataDir)
	index, err := resolver.Lookup(filepath.Join("templates", "admin_index.jet"))
	if err != nil {
		return nil, errors.Annotate(err, "checking data directory")
	}
	templateDir = filepath.Dir(index)
	return config, nil
}

// setupLogging configures loggo and, with a log directory, the rotated
// server log and the metrics log.
func setupLogging(config *utils.ServiceConfig) error {
	if err := loggo.ConfigureLoggers(config.LogLevel); err != nil {
		return errors.Annotatef(err, "log level %q", config.LogLevel)
	}
	if len(*serverLogDir) == 0 {
		return nil
	}
	if *serverLogDir == "-" {
		metricsLogger = metrics.NewStdoutLogger()
		return nil
	}

	maxLogFileSize := 0
	if val, ok := os.LookupEnv("SDI_MAX_LOG_FILE_SIZE"); ok {
		valInt, e := strconv.Atoi(val)
		if e == nil {
			maxLogFileSize = valInt
		} else {
			logger.Errorf("invalid SDI_MAX_LOG_FILE_SIZE: %v", e)
		}
	}
	maxLogFiles := -1
	if val, ok := os.LookupEnv("SDI_MAX_LOG_FILES"); ok {
		valInt, e := strconv.Atoi(val)
		if e == nil {
			maxLogFiles = valInt
		} else {
			logger.Errorf("invalid SDI_MAX_LOG_FILES: %v", e)
		}
	}

	serverLog := &lumberjack.Logger{
		Filename:   filepath.Join(*serverLogDir, "sdi.log"),
		MaxSize:    100,
		MaxBackups: 5,
	}
	if err := loggo.RegisterWriter("file", loggo.NewSimpleWriter(serverLog, loggo.DefaultFormatter)); err != nil {
		return errors.Trace(err)
	}
	metricsLogger = metrics.NewFileLogger(*serverLogDir, maxLogFileSize, maxLogFiles, *verbose)
	return nil
}

func newCache(c utils.CacheConfig) configuration.Cache {
	switch {
	case c.Disabled:
		return configuration.NoCache
	case len(c.Memcache) > 0:
		logger.Infof("caching configurations in memcache %v", c.Memcache)
		return configuration.NewMemcacheCache(c.Expiration, c.Memcache...)
	}
	return configuration.NewMemoryCache()
}

func newRedis(c utils.RedisConfig) *redis.Client {
	if c.Address == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: c.Address, Password: c.Password, DB: c.DB})
}

func taskFile(config *utils.ServiceConfig) string {
	if filepath.IsAbs(config.Scheduler.TaskFile) {
		return config.Scheduler.TaskFile
	}
	return filepath.Join(utils.EtcDir, config.Scheduler.TaskFile)
}

func main() {
	flag.Parse()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in loading config files: %v\n", err)
		os.Exit(1)
	}
	if *validateConfig {
		os.Exit(0)
	}
	if *dumpConfig {
		out, err := config.Dump()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error in dumping configs: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(out)
		os.Exit(0)
	}
	if err := setupLogging(config); err != nil {
		fmt.Fprintf(os.Stderr, "Error in setting up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		logger.Errorf("%s", errors.ErrorStack(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, config *utils.ServiceConfig) error {
	procs := processing.NewRegistry()
	if err := processing.RegisterBuiltins(procs, ""); err != nil {
		return errors.Trace(err)
	}
	workers := processing.RegisterRemoteWorkers(ctx, procs, config.WorkerNodes)
	defer func() {
		for _, w := range workers {
			w.Close()
		}
	}()

	dir := configuration.NewDirectory(utils.EtcDir)
	cache := newCache(config.Cache)
	services := registry.New(configurer.Deps{Dir: dir, Cache: cache, Processes: procs})
	specs, err := config.EnabledServices()
	if err != nil {
		return errors.Trace(err)
	}
	for _, spec := range specs {
		services.Register(spec, registry.DefaultBinding())
	}

	hub := pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: loggo.GetLogger("sdi.hub"),
	})
	rdb := newRedis(config.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	events := taskevents.NewBridge(hub, rdb, nil)

	sched, err := scheduler.New(scheduler.Config{
		Processes:   procs,
		Listener:    events,
		Concurrency: config.Scheduler.Concurrency,
		Metrics:     metricsLogger,
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer sched.Stop()

	tasks, err := scheduler.OpenTaskStore(taskFile(config))
	if err != nil {
		return errors.Trace(err)
	}
	for _, def := range tasks.List() {
		if def.Cron == "" {
			continue
		}
		if err := sched.Schedule(def); err != nil {
			logger.Errorf("scheduling task %s: %v", def.ID, err)
		}
	}

	onChange := func(spec servicedef.Specification, id, file string) {
		if file != configuration.ConfigFileName(spec) || !services.Running(spec, id) {
			return
		}
		logger.Infof("configuration of %s instance %s changed, restarting", spec, id)
		if err := services.Restart(ctx, spec, id); err != nil {
			logger.Errorf("restarting %s instance %s: %v", spec, id, err)
		}
	}
	onReload := func() { services.RestartRunning(ctx) }
	if err := configuration.Watch(ctx, dir, cache, onChange, onReload); err != nil {
		logger.Warningf("configuration changes will not be followed: %v", err)
	}

	if err := services.StartAll(ctx); err != nil {
		logger.Warningf("some instances did not start: %v", err)
	}
	defer services.StopAll()

	h := &handlers.Handlers{
		Services:    services,
		Processes:   procs,
		Scheduler:   sched,
		Tasks:       tasks,
		Events:      events,
		Metrics:     metricsLogger,
		TemplateDir: templateDir,
		Version:     version,
	}
	echoLevel := "warn"
	if *verbose {
		echoLevel = "info"
	}
	e := handlers.NewServer(h, echoLevel)

	address := fmt.Sprintf("%s:%d", config.Hostname, config.Port)
	l, err := reuseport.Listen("tcp", address)
	if err != nil {
		return errors.Annotatef(err, "listening on %s", address)
	}
	l = netutil.LimitListener(l, config.MaxConns)
	srv := &http.Server{Handler: e}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(l) }()
	logger.Infof("SDI is ready on %s", address)

	select {
	case err := <-serveErr:
		return errors.Trace(err)
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(graceful); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	if fl, ok := metricsLogger.(*metrics.FileLogger); ok {
		fl.Close()
	}
	return nil
}
