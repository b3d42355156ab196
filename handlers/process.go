package handlers

import (
	"net/http"

	"github.com/juju/errors"
	"github.com/labstack/echo/v4"

	"github.com/nci/sdi/processing"
	"github.com/nci/sdi/utils"
)

func (h *Handlers) ListRegistries(c echo.Context) error {
	regs, err := processing.ListRegistries(c.Request().Context(), h.Processes)
	if err != nil {
		return err
	}
	return respondList(c, http.StatusOK, regs, processing.RegistryList{Registries: regs})
}

func (h *Handlers) ListRegistry(c echo.Context) error {
	reg, err := processing.ListRegistry(c.Request().Context(), h.Processes, c.Param("authority"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, reg)
}

// ListServiceProcesses lists the processes a WPS instance publishes.
func (h *Handlers) ListServiceProcesses(c echo.Context) error {
	wps, err := h.wpsConfigurer()
	if err != nil {
		return err
	}
	regs, err := wps.ListProcesses(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respondList(c, http.StatusOK, regs, processing.RegistryList{Registries: regs})
}

// AddProcesses accepts a JSON list of registries or an XML Registries
// document.
func (h *Handlers) AddProcesses(c echo.Context) error {
	wps, err := h.wpsConfigurer()
	if err != nil {
		return err
	}
	var regs []processing.RegistryDTO
	if isXML(c.Request().Header.Get(echo.HeaderContentType)) {
		var list processing.RegistryList
		if err := decodeBody(c, &list); err != nil {
			return err
		}
		regs = list.Registries
	} else if err := decodeBody(c, &regs); err != nil {
		return err
	}
	if err := wps.AddProcesses(c.Param("id"), regs); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("processes added"))
}

func (h *Handlers) RemoveAuthority(c echo.Context) error {
	wps, err := h.wpsConfigurer()
	if err != nil {
		return err
	}
	if err := wps.RemoveAuthority(c.Param("id"), c.Param("code")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("authority removed"))
}

func (h *Handlers) RemoveProcess(c echo.Context) error {
	wps, err := h.wpsConfigurer()
	if err != nil {
		return err
	}
	if err := wps.RemoveProcess(c.Param("id"), c.Param("code"), c.Param("process")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("process removed"))
}

type executeResponse struct {
	Identifier string                 `json:"identifier"`
	Outputs    map[string]interface{} `json:"outputs"`
}

// ExecuteProcess runs a process published by a WPS instance and waits
// for its outputs. The body is a WPS Execute document or its JSON form.
func (h *Handlers) ExecuteProcess(c echo.Context) error {
	wps, err := h.wpsConfigurer()
	if err != nil {
		return err
	}
	var req *utils.ExecuteRequest
	body := c.Request().Body
	if body == nil {
		return errors.NotValidf("empty request body")
	}
	if isXML(c.Request().Header.Get(echo.HeaderContentType)) {
		req, err = utils.ParseExecuteXML(body)
	} else {
		req, err = utils.ParseExecuteJSON(body)
	}
	if err != nil {
		return err
	}
	authority, code, err := utils.SplitProcessIdentifier(req.Identifier)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	published, err := wps.ListProcesses(ctx, id)
	if err != nil {
		return err
	}
	if !publishes(published, authority, code) {
		return errors.NotFoundf("process %s in WPS instance %q", req.Identifier, id)
	}

	outputs, err := h.Processes.Execute(ctx, authority, code, req.Inputs, nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, executeResponse{Identifier: req.Identifier, Outputs: outputs})
}

func publishes(regs []processing.RegistryDTO, authority, code string) bool {
	for _, r := range regs {
		if r.Name != authority {
			continue
		}
		for _, p := range r.Processes {
			if p.ID == code {
				return true
			}
		}
	}
	return false
}
