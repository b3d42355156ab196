package handlers

import (
	"encoding/xml"
	"net/http"
	"strconv"

	"github.com/juju/errors"
	"github.com/labstack/echo/v4"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/configurer"
)

type layerList struct {
	XMLName xml.Name              `xml:"Layers"`
	Layers  []configuration.Layer `xml:"Layer"`
}

func (h *Handlers) ListLayers(c echo.Context) error {
	lc, err := h.layerConfigurer(c)
	if err != nil {
		return err
	}
	layers, err := lc.Layers(c.Param("id"))
	if err != nil {
		return err
	}
	return respondList(c, http.StatusOK, layers, layerList{Layers: layers})
}

// AddLayer publishes the layer of the body from the source query
// parameter.
func (h *Handlers) AddLayer(c echo.Context) error {
	lc, err := h.layerConfigurer(c)
	if err != nil {
		return err
	}
	var layer configuration.Layer
	if err := decodeBody(c, &layer); err != nil {
		return err
	}
	if err := lc.AddLayer(c.Param("id"), c.QueryParam("source"), layer); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("layer "+layer.Name+" added"))
}

func (h *Handlers) RemoveLayer(c echo.Context) error {
	lc, err := h.layerConfigurer(c)
	if err != nil {
		return err
	}
	id, name := c.Param("id"), c.Param("name")
	removed, err := lc.RemoveLayer(id, name)
	if err != nil {
		return err
	}
	if !removed {
		return errors.NotFoundf("layer %q of instance %q", name, id)
	}
	return respond(c, http.StatusOK, success("layer "+name+" removed"))
}

// SetLayerIncluded shows or hides a layer of a source:
// ?source=<id>&value=<bool>.
func (h *Handlers) SetLayerIncluded(c echo.Context) error {
	lc, err := h.layerConfigurer(c)
	if err != nil {
		return err
	}
	included, err := strconv.ParseBool(c.QueryParam("value"))
	if err != nil {
		return errors.NotValidf("value %q", c.QueryParam("value"))
	}
	changed, err := lc.SetLayerIncluded(c.Param("id"), c.QueryParam("source"), c.Param("name"), included)
	if err != nil {
		return err
	}
	if !changed {
		return respond(c, http.StatusOK, success("unchanged"))
	}
	return respond(c, http.StatusOK, success("updated"))
}

// CheckDataSource reports whether the data store of a CSW or SOS
// instance is reachable. An unreachable store is a Failure, not an
// error.
func (h *Handlers) CheckDataSource(c echo.Context) error {
	spec, conf, err := h.configurer(c)
	if err != nil {
		return err
	}
	checker, ok := conf.(configurer.DataSourceChecker)
	if !ok {
		return errors.NotSupportedf("data source check of %s", spec)
	}
	id := c.Param("id")
	if err := conf.EnsureExistingInstance(id); err != nil {
		return err
	}
	if err := checker.CheckDataSource(c.Request().Context(), id); err != nil {
		return respond(c, http.StatusOK, failure(err.Error()))
	}
	return respond(c, http.StatusOK, success("data source reachable"))
}
