package handlers

import (
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/labstack/echo/v4"

	"github.com/nci/sdi/scheduler"
	"github.com/nci/sdi/taskevents"
)

// taskView is a task definition with its schedule and last status.
type taskView struct {
	scheduler.TaskDefinition
	NextRun *time.Time             `json:"nextRun,omitempty"`
	Status  *taskevents.TaskStatus `json:"status,omitempty"`
}

type jobView struct {
	JobID   string    `json:"jobId"`
	TaskID  string    `json:"taskId"`
	Title   string    `json:"title"`
	Paused  bool      `json:"paused"`
	Started time.Time `json:"started"`
}

// Task definitions carry free form inputs, they are served as JSON only.
func (h *Handlers) ListTasks(c echo.Context) error {
	scheduled := h.Scheduler.Scheduled()
	out := []taskView{}
	for _, def := range h.Tasks.List() {
		v := taskView{TaskDefinition: def}
		if next, ok := scheduled[def.ID]; ok {
			v.NextRun = &next
		}
		if st, err := h.Events.Last(def.ID); err == nil {
			v.Status = &st
		}
		out = append(out, v)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handlers) ListJobs(c echo.Context) error {
	out := []jobView{}
	for _, j := range h.Scheduler.Running() {
		out = append(out, jobView{
			JobID:   j.ID(),
			TaskID:  j.TaskID(),
			Title:   j.Title(),
			Paused:  j.Paused(),
			Started: j.Started(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// PutTask stores a task definition, assigning an identifier when it has
// none, and (un)schedules it following its cron expression.
func (h *Handlers) PutTask(c echo.Context) error {
	var def scheduler.TaskDefinition
	if err := decodeBody(c, &def); err != nil {
		return err
	}
	def, err := h.Tasks.Add(def)
	if err != nil {
		return err
	}
	if def.Cron != "" {
		if err := h.Scheduler.Schedule(def); err != nil {
			return err
		}
	} else if err := h.Scheduler.Unschedule(def.ID); err != nil && !errors.Is(err, errors.NotFound) {
		return err
	}
	return c.JSON(http.StatusCreated, def)
}

func (h *Handlers) DeleteTask(c echo.Context) error {
	id := c.Param("id")
	if err := h.Tasks.Remove(id); err != nil {
		return err
	}
	if err := h.Scheduler.Unschedule(id); err != nil && !errors.Is(err, errors.NotFound) {
		return err
	}
	h.Events.Forget(id)
	return respond(c, http.StatusOK, success("task "+id+" deleted"))
}

func (h *Handlers) ExecuteTask(c echo.Context) error {
	def, err := h.Tasks.Get(c.Param("id"))
	if err != nil {
		return err
	}
	jobID, err := h.Scheduler.Submit(def)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (h *Handlers) TaskStatus(c echo.Context) error {
	st, err := h.Events.Last(c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, st)
}

func (h *Handlers) PauseJob(c echo.Context) error {
	if err := h.Scheduler.Pause(c.Param("job")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("job paused"))
}

func (h *Handlers) ResumeJob(c echo.Context) error {
	if err := h.Scheduler.Resume(c.Param("job")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("job resumed"))
}

func (h *Handlers) CancelJob(c echo.Context) error {
	if err := h.Scheduler.Cancel(c.Param("job")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, success("job cancelled"))
}

func (h *Handlers) StreamEvents(c echo.Context) error {
	h.Events.Stream(c.Response(), c.Request(), taskevents.Topic)
	return nil
}

func (h *Handlers) StreamTaskEvents(c echo.Context) error {
	h.Events.Stream(c.Response(), c.Request(), taskevents.TaskTopic(c.Param("id")))
	return nil
}
