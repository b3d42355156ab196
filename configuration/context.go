package configuration

// Source returns the source with the given id, or nil.
func (c *LayerContext) Source(id string) *Source {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i]
		}
	}
	return nil
}

func indexOfLayer(layers []Layer, name string) int {
	for i := range layers {
		if layers[i].Name == name {
			return i
		}
	}
	return -1
}

// IsIncluded reports whether name is published by the source.
func (s *Source) IsIncluded(name string) bool {
	if s.LoadAll {
		return indexOfLayer(s.Exclude, name) < 0
	}
	return indexOfLayer(s.Include, name) >= 0
}

// SetIncluded toggles the publication of a layer. It reports whether the
// source was modified; setting the current value again is a no-op.
func (s *Source) SetIncluded(name string, included bool) bool {
	if s.IsIncluded(name) == included {
		return false
	}
	if s.LoadAll {
		if included {
			i := indexOfLayer(s.Exclude, name)
			s.Exclude = append(s.Exclude[:i], s.Exclude[i+1:]...)
		} else {
			s.Exclude = append(s.Exclude, Layer{Name: name})
		}
		return true
	}
	if included {
		s.Include = append(s.Include, Layer{Name: name})
	} else {
		i := indexOfLayer(s.Include, name)
		s.Include = append(s.Include[:i], s.Include[i+1:]...)
	}
	return true
}

// AddLayer publishes layer explicitly from the source identified by
// sourceID, creating the source when needed. The layer is kept in Include
// with its title, alias and styles even when the source loads everything.
func (c *LayerContext) AddLayer(sourceID string, layer Layer) {
	src := c.Source(sourceID)
	if src == nil {
		c.Sources = append(c.Sources, Source{ID: sourceID})
		src = &c.Sources[len(c.Sources)-1]
	}
	if i := indexOfLayer(src.Exclude, layer.Name); i >= 0 {
		src.Exclude = append(src.Exclude[:i], src.Exclude[i+1:]...)
	}
	if i := indexOfLayer(src.Include, layer.Name); i >= 0 {
		src.Include[i] = layer
		return
	}
	src.Include = append(src.Include, layer)
}

// RemoveLayer unpublishes name from every source. It reports whether any
// source changed.
func (c *LayerContext) RemoveLayer(name string) bool {
	changed := false
	for i := range c.Sources {
		if c.Sources[i].SetIncluded(name, false) {
			changed = true
		}
	}
	return changed
}

// Layers lists the explicitly described layers of all sources that are
// currently published. For a load_all source these are the Include
// entries that are not excluded.
func (c *LayerContext) Layers() []Layer {
	var out []Layer
	for i := range c.Sources {
		src := &c.Sources[i]
		for _, l := range src.Include {
			if src.IsIncluded(l.Name) {
				out = append(out, l)
			}
		}
	}
	return out
}

// Factory returns the process factory for authority, or nil.
func (c *ProcessContext) Factory(authority string) *ProcessFactory {
	for i := range c.Processes.Factories {
		if c.Processes.Factories[i].AuthorityCode == authority {
			return &c.Processes.Factories[i]
		}
	}
	return nil
}

// RemoveFactory drops the factory for authority and reports whether it was
// present.
func (c *ProcessContext) RemoveFactory(authority string) bool {
	for i := range c.Processes.Factories {
		if c.Processes.Factories[i].AuthorityCode == authority {
			c.Processes.Factories = append(c.Processes.Factories[:i], c.Processes.Factories[i+1:]...)
			return true
		}
	}
	return false
}

func indexOfProcess(procs []Process, id string) int {
	for i := range procs {
		if procs[i].ID == id {
			return i
		}
	}
	return -1
}

// Includes reports whether the factory selects the process code.
func (f *ProcessFactory) Includes(code string) bool {
	if f.LoadAll {
		return indexOfProcess(f.Exclude, code) < 0
	}
	return indexOfProcess(f.Include, code) >= 0
}

// Add selects code, undoing any previous exclusion.
func (f *ProcessFactory) Add(code string) {
	if i := indexOfProcess(f.Exclude, code); i >= 0 {
		f.Exclude = append(f.Exclude[:i], f.Exclude[i+1:]...)
	}
	if !f.LoadAll && indexOfProcess(f.Include, code) < 0 {
		f.Include = append(f.Include, Process{ID: code})
	}
}

// Remove deselects code.
func (f *ProcessFactory) Remove(code string) {
	if f.LoadAll {
		if indexOfProcess(f.Exclude, code) < 0 {
			f.Exclude = append(f.Exclude, Process{ID: code})
		}
		return
	}
	if i := indexOfProcess(f.Include, code); i >= 0 {
		f.Include = append(f.Include[:i], f.Include[i+1:]...)
	}
}
