package utils

import (
	"html/template"
	"io"
	"path/filepath"
	"sync"

	"github.com/CloudyKit/jet"
	"github.com/juju/errors"
)

var (
	viewsMu sync.Mutex
	views   = make(map[string]*jet.Set)
)

func viewSet(dir string) *jet.Set {
	viewsMu.Lock()
	defer viewsMu.Unlock()
	if set, ok := views[dir]; ok {
		return set
	}
	set := jet.NewSet(jet.SafeWriter(template.HTMLEscape), dir)
	views[dir] = set
	return set
}

// ExecuteWriteTemplateFile renders the jet template at filePath with data
// as context and vars as template variables. Output is HTML escaped.
func ExecuteWriteTemplateFile(w io.Writer, data interface{}, vars map[string]interface{}, filePath string) error {
	set := viewSet(filepath.Dir(filePath))
	tpl, err := set.GetTemplate(filepath.Base(filePath))
	if err != nil {
		return errors.Annotatef(err, "loading template %s", filePath)
	}

	jetVars := make(jet.VarMap)
	for k, v := range vars {
		jetVars.Set(k, v)
	}
	if err := tpl.Execute(w, jetVars, data); err != nil {
		return errors.Annotatef(err, "executing template %s", filePath)
	}
	return nil
}
