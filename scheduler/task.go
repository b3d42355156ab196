package scheduler

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v2"
)

// TaskDefinition names a process to run, with its inputs, either on
// demand or on a cron schedule.
type TaskDefinition struct {
	ID        string                 `yaml:"id" json:"id"`
	Title     string                 `yaml:"title,omitempty" json:"title,omitempty"`
	Authority string                 `yaml:"authority" json:"authority"`
	Code      string                 `yaml:"code" json:"code"`
	Inputs    map[string]interface{} `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Cron      string                 `yaml:"cron,omitempty" json:"cron,omitempty"`
}

// Process returns the "authority:code" identifier of the task process.
func (d TaskDefinition) Process() string {
	return d.Authority + ":" + d.Code
}

func (d TaskDefinition) Validate() error {
	if d.Authority == "" || d.Code == "" {
		return errors.NotValidf("task %q without process", d.ID)
	}
	if d.Cron != "" {
		if _, err := ParseCron(d.Cron); err != nil {
			return err
		}
	}
	return nil
}

// ParseCron accepts five field expressions as well as the @hourly and
// @every macros.
func ParseCron(expr string) (cron.Schedule, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return nil, errors.NotValidf("empty cron expression")
	}
	var (
		schedule cron.Schedule
		err      error
	)
	if strings.HasPrefix(e, "@") {
		schedule, err = cron.ParseStandard(e)
	} else {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err = parser.Parse(e)
	}
	if err != nil {
		return nil, errors.NewNotValid(err, "cron expression "+e)
	}
	return schedule, nil
}

type taskFile struct {
	Tasks []TaskDefinition `yaml:"tasks"`
}

// TaskStore keeps task definitions in a YAML file.
type TaskStore struct {
	path  string
	mu    sync.RWMutex
	tasks map[string]TaskDefinition
}

// OpenTaskStore loads path, which does not need to exist yet.
func OpenTaskStore(path string) (*TaskStore, error) {
	s := &TaskStore{path: path, tasks: map[string]TaskDefinition{}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "reading task file %s", path)
	}
	var f taskFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.NewNotValid(err, "task file "+path)
	}
	for _, t := range f.Tasks {
		t.Inputs = normalizeYAML(t.Inputs)
		s.tasks[t.ID] = t
	}
	return s, nil
}

// Add stores def, replacing any task with the same identifier. A new
// identifier is assigned when def has none.
func (s *TaskStore) Add(def TaskDefinition) (TaskDefinition, error) {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if err := def.Validate(); err != nil {
		return def, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.copyTasks()
	next[def.ID] = def
	if err := s.save(next); err != nil {
		return def, err
	}
	s.tasks = next
	return def, nil
}

func (s *TaskStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return errors.NotFoundf("task %q", id)
	}
	next := s.copyTasks()
	delete(next, id)
	if err := s.save(next); err != nil {
		return err
	}
	s.tasks = next
	return nil
}

func (s *TaskStore) Get(id string) (TaskDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return t, errors.NotFoundf("task %q", id)
	}
	return t, nil
}

// List returns the tasks ordered by identifier.
func (s *TaskStore) List() []TaskDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TaskDefinition, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *TaskStore) copyTasks() map[string]TaskDefinition {
	out := make(map[string]TaskDefinition, len(s.tasks)+1)
	for id, t := range s.tasks {
		out[id] = t
	}
	return out
}

// save writes tasks to the store file. The store only adopts tasks once
// the file is in place.
func (s *TaskStore) save(tasks map[string]TaskDefinition) error {
	var f taskFile
	for _, t := range tasks {
		f.Tasks = append(f.Tasks, t)
	}
	sort.Slice(f.Tasks, func(i, j int) bool { return f.Tasks[i].ID < f.Tasks[j].ID })
	data, err := yaml.Marshal(&f)
	if err != nil {
		return errors.Trace(err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Trace(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tasks-*")
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Trace(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Trace(err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return errors.Trace(err)
	}
	return nil
}

// normalizeYAML turns the map[interface{}]interface{} values yaml.v2
// produces into map[string]interface{} so inputs look the same as the
// ones decoded from JSON.
func normalizeYAML(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			if ks, ok := k.(string); ok {
				m[ks] = normalizeValue(e)
			}
		}
		return m
	case []interface{}:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	case int:
		return float64(t)
	}
	return v
}
