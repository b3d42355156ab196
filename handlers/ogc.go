package handlers

import (
	"encoding/xml"
	"net/http"

	"github.com/juju/errors"
	"github.com/labstack/echo/v4"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/registry"
)

type serviceList struct {
	XMLName  xml.Name               `xml:"Services"`
	Services []registry.ServiceInfo `xml:"Service"`
}

type instanceList struct {
	XMLName   xml.Name                 `xml:"Instances"`
	Instances []configuration.Instance `xml:"Instance"`
}

func (h *Handlers) ListServices(c echo.Context) error {
	services := h.Services.Services()
	if services == nil {
		services = []registry.ServiceInfo{}
	}
	return respondList(c, http.StatusOK, services, serviceList{Services: services})
}

func (h *Handlers) ListInstances(c echo.Context) error {
	spec, err := specParam(c)
	if err != nil {
		return err
	}
	instances, err := h.Services.Instances(spec)
	if err != nil {
		return err
	}
	return respondList(c, http.StatusOK, instances, instanceList{Instances: instances})
}

// CreateInstance creates an instance from its service metadata. The
// identifier of the metadata names the instance.
func (h *Handlers) CreateInstance(c echo.Context) error {
	_, conf, err := h.configurer(c)
	if err != nil {
		return err
	}
	md := &configuration.ServiceMetadata{}
	if err := decodeBody(c, md); err != nil {
		return err
	}
	if md.Identifier == "" {
		return errors.NotValidf("service metadata without identifier")
	}
	if md.Name == "" {
		md.Name = md.Identifier
	}
	if err := conf.CreateInstance(md.Identifier, md); err != nil {
		return err
	}
	return respond(c, http.StatusCreated, success("instance "+md.Identifier+" created"))
}

func (h *Handlers) DeleteInstance(c echo.Context) error {
	spec, conf, err := h.configurer(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	if err := conf.DeleteInstance(id); err != nil {
		return err
	}
	h.Services.Forget(spec, id)
	return respond(c, http.StatusOK, success("instance "+id+" deleted"))
}

func (h *Handlers) StartInstance(c echo.Context) error {
	spec, err := specParam(c)
	if err != nil {
		return err
	}
	if err := h.Services.Start(c.Request().Context(), spec, c.Param("id")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("instance started"))
}

func (h *Handlers) StopInstance(c echo.Context) error {
	spec, err := specParam(c)
	if err != nil {
		return err
	}
	if err := h.Services.Stop(spec, c.Param("id")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("instance stopped"))
}

func (h *Handlers) RestartInstance(c echo.Context) error {
	spec, err := specParam(c)
	if err != nil {
		return err
	}
	if err := h.Services.Restart(c.Request().Context(), spec, c.Param("id")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("instance restarted"))
}

// RenameInstance renames to the newName query parameter. A running
// instance is stopped first and started again under its new name.
func (h *Handlers) RenameInstance(c echo.Context) error {
	spec, conf, err := h.configurer(c)
	if err != nil {
		return err
	}
	id, newID := c.Param("id"), c.QueryParam("newName")
	if newID == "" {
		return errors.NotValidf("rename without newName")
	}
	running := h.Services.Running(spec, id)
	if err := conf.RenameInstance(id, newID); err != nil {
		return err
	}
	h.Services.Forget(spec, id)
	if running {
		if err := h.Services.Start(c.Request().Context(), spec, newID); err != nil {
			return err
		}
	}
	return respond(c, http.StatusOK, success("instance renamed to "+newID))
}

func (h *Handlers) GetConfiguration(c echo.Context) error {
	_, conf, err := h.configurer(c)
	if err != nil {
		return err
	}
	config, err := conf.InstanceConfiguration(c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, config)
}

// SetConfiguration replaces the configuration of an instance. The body
// must be of the configuration type of the specification.
func (h *Handlers) SetConfiguration(c echo.Context) error {
	_, conf, err := h.configurer(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	if err := conf.EnsureExistingInstance(id); err != nil && !errors.Is(err, configuration.ErrMissingConfiguration) {
		return err
	}
	config := conf.NewConfiguration()
	if err := decodeBody(c, config); err != nil {
		return err
	}
	if err := conf.Configure(id, config); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("configuration updated"))
}

func (h *Handlers) GetMetadata(c echo.Context) error {
	_, conf, err := h.configurer(c)
	if err != nil {
		return err
	}
	md, err := conf.ServiceMetadata(c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, md)
}

func (h *Handlers) SetMetadata(c echo.Context) error {
	_, conf, err := h.configurer(c)
	if err != nil {
		return err
	}
	md := &configuration.ServiceMetadata{}
	if err := decodeBody(c, md); err != nil {
		return err
	}
	if err := conf.SetServiceMetadata(c.Param("id"), md); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("metadata updated"))
}
