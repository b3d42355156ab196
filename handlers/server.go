// Package handlers exposes the administration REST API of the server.
package handlers

import (
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/labstack/echo/v4"

	"github.com/nci/sdi/configurer"
	"github.com/nci/sdi/metrics"
	"github.com/nci/sdi/processing"
	"github.com/nci/sdi/registry"
	"github.com/nci/sdi/scheduler"
	"github.com/nci/sdi/servicedef"
	"github.com/nci/sdi/taskevents"
)

var logger = loggo.GetLogger("sdi.handlers")

// Handlers serves the administration API over the service registry, the
// process registry and the task scheduler.
type Handlers struct {
	Services  *registry.Registry
	Processes *processing.Registry
	Scheduler *scheduler.Scheduler
	Tasks     *scheduler.TaskStore
	Events    *taskevents.Bridge

	// Metrics receives one record per request when set.
	Metrics metrics.Logger
	// TemplateDir holds admin_index.jet.
	TemplateDir string
	Version     string
}

// NewServer returns an echo server with every route of h registered.
func NewServer(h *Handlers, loglevel string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	SetLevel(e, loglevel)
	e.HTTPErrorHandler = ErrorHandler
	e.Use(MetricsMiddleware(h.Metrics))
	e.Use(LogHandlerFunc)
	h.Register(e)
	return e
}

func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/admin", h.AdminIndex)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	e.GET("/admin/process", h.ListRegistries)
	e.GET("/admin/process/:authority", h.ListRegistry)
	e.GET("/1/WPS/:id/process", h.ListServiceProcesses)
	e.PUT("/1/WPS/:id/process", h.AddProcesses)
	e.DELETE("/1/WPS/:id/authority/:code", h.RemoveAuthority)
	e.DELETE("/1/WPS/:id/process/:code/:process", h.RemoveProcess)
	e.POST("/1/WPS/:id/execute", h.ExecuteProcess)

	e.GET("/1/OGC/list", h.ListServices)
	e.GET("/1/OGC/:spec/all", h.ListInstances)
	e.PUT("/1/OGC/:spec", h.CreateInstance)
	e.DELETE("/1/OGC/:spec/:id", h.DeleteInstance)
	e.POST("/1/OGC/:spec/:id/start", h.StartInstance)
	e.POST("/1/OGC/:spec/:id/stop", h.StopInstance)
	e.POST("/1/OGC/:spec/:id/restart", h.RestartInstance)
	e.POST("/1/OGC/:spec/:id/rename", h.RenameInstance)
	e.GET("/1/OGC/:spec/:id/config", h.GetConfiguration)
	e.POST("/1/OGC/:spec/:id/config", h.SetConfiguration)
	e.GET("/1/OGC/:spec/:id/metadata", h.GetMetadata)
	e.POST("/1/OGC/:spec/:id/metadata", h.SetMetadata)

	e.GET("/1/MAP/:spec/:id/layer/all", h.ListLayers)
	e.PUT("/1/MAP/:spec/:id/layer", h.AddLayer)
	e.DELETE("/1/MAP/:spec/:id/layer/:name", h.RemoveLayer)
	e.POST("/1/MAP/:spec/:id/layer/:name/include", h.SetLayerIncluded)

	e.GET("/1/:spec/:id/datasource/check", h.CheckDataSource)

	e.GET("/1/task/listTasks", h.ListTasks)
	e.GET("/1/task/jobs", h.ListJobs)
	e.PUT("/1/task", h.PutTask)
	e.DELETE("/1/task/:id", h.DeleteTask)
	e.POST("/1/task/:id/execute", h.ExecuteTask)
	e.GET("/1/task/:id/status", h.TaskStatus)
	e.POST("/1/task/job/:job/pause", h.PauseJob)
	e.POST("/1/task/job/:job/resume", h.ResumeJob)
	e.POST("/1/task/job/:job/cancel", h.CancelJob)

	e.GET("/topic/taskevents", h.StreamEvents)
	e.GET("/topic/taskevents/:id", h.StreamTaskEvents)
}

func specParam(c echo.Context) (servicedef.Specification, error) {
	return servicedef.ParseSpecification(c.Param("spec"))
}

func (h *Handlers) configurer(c echo.Context) (servicedef.Specification, configurer.Configurer, error) {
	spec, err := specParam(c)
	if err != nil {
		return "", nil, err
	}
	conf, err := h.Services.NewConfigurer(spec)
	if err != nil {
		return "", nil, err
	}
	return spec, conf, nil
}

func (h *Handlers) wpsConfigurer() (*configurer.WPSConfigurer, error) {
	conf, err := h.Services.NewConfigurer(servicedef.WPS)
	if err != nil {
		return nil, err
	}
	wps, ok := conf.(*configurer.WPSConfigurer)
	if !ok {
		return nil, errors.NotSupportedf("process management with %T", conf)
	}
	return wps, nil
}

func (h *Handlers) layerConfigurer(c echo.Context) (*configurer.LayerConfigurer, error) {
	spec, conf, err := h.configurer(c)
	if err != nil {
		return nil, err
	}
	lc, ok := conf.(*configurer.LayerConfigurer)
	if !ok {
		return nil, errors.NotSupportedf("layer management of %s", spec)
	}
	return lc, nil
}
