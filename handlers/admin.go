package handlers

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/processing"
	"github.com/nci/sdi/taskevents"
	"github.com/nci/sdi/utils"
)

const adminTemplate = "admin_index.jet"

type adminService struct {
	Name      string
	Versions  string
	Instances []configuration.Instance
}

type adminPage struct {
	Services   []adminService
	Registries []processing.RegistryDTO
	Tasks      []taskevents.TaskStatus
}

func (h *Handlers) adminPage(ctx context.Context) (*adminPage, error) {
	page := &adminPage{}
	for _, svc := range h.Services.Services() {
		instances, err := h.Services.Instances(svc.Spec)
		if err != nil {
			return nil, err
		}
		page.Services = append(page.Services, adminService{
			Name:      string(svc.Spec),
			Versions:  strings.Join(svc.Versions, ", "),
			Instances: instances,
		})
	}
	regs, err := processing.ListRegistries(ctx, h.Processes)
	if err != nil {
		return nil, err
	}
	page.Registries = regs
	page.Tasks = h.Events.Statuses()
	return page, nil
}

// AdminIndex renders the overview page of services, processes and tasks.
func (h *Handlers) AdminIndex(c echo.Context) error {
	page, err := h.adminPage(c.Request().Context())
	if err != nil {
		return err
	}
	vars := map[string]interface{}{
		"title":   "SDI administration",
		"version": h.Version,
	}
	var buf bytes.Buffer
	if err := utils.ExecuteWriteTemplateFile(&buf, page, vars, filepath.Join(h.TemplateDir, adminTemplate)); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
