package processing

import (
	"context"
	"encoding/xml"

	"github.com/juju/errors"

	"github.com/nci/sdi/configuration"
)

type ProcessDTO struct {
	XMLName     xml.Name `xml:"Process" json:"-"`
	ID          string   `xml:"id" json:"id"`
	Description string   `xml:"description,omitempty" json:"description,omitempty"`
}

// RegistryDTO lists the processes of one authority.
type RegistryDTO struct {
	XMLName   xml.Name     `xml:"Registry" json:"-"`
	Name      string       `xml:"name" json:"name"`
	Processes []ProcessDTO `xml:"processes>Process" json:"processes"`
}

// RegistryList wraps a list of registries for XML responses.
type RegistryList struct {
	XMLName    xml.Name      `xml:"Registries" json:"-"`
	Registries []RegistryDTO `xml:"Registry" json:"registries"`
}

func describe(ctx context.Context, f Factory, keep func(code string) bool) (RegistryDTO, error) {
	descs, err := f.Descriptors(ctx)
	if err != nil {
		return RegistryDTO{}, errors.Annotatef(err, "listing processes of %s", f.Authority())
	}
	dto := RegistryDTO{Name: f.Authority(), Processes: []ProcessDTO{}}
	for _, d := range descs {
		if keep != nil && !keep(d.Code) {
			continue
		}
		desc := d.Description
		if desc == "" {
			desc = d.Title
		}
		dto.Processes = append(dto.Processes, ProcessDTO{ID: d.Code, Description: desc})
	}
	return dto, nil
}

// ListRegistries projects every factory of reg.
func ListRegistries(ctx context.Context, reg *Registry) ([]RegistryDTO, error) {
	out := []RegistryDTO{}
	for _, f := range reg.Factories() {
		dto, err := describe(ctx, f, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

// ListRegistry projects a single authority.
func ListRegistry(ctx context.Context, reg *Registry, authority string) (RegistryDTO, error) {
	f, err := reg.Factory(authority)
	if err != nil {
		return RegistryDTO{}, err
	}
	return describe(ctx, f, nil)
}

// ListServiceProcesses projects the processes selected by a WPS
// configuration. Factories of the configuration that are not registered
// are skipped, as are factories that end up selecting nothing.
func ListServiceProcesses(ctx context.Context, reg *Registry, pc *configuration.ProcessContext) ([]RegistryDTO, error) {
	if pc.Processes.LoadAll {
		return ListRegistries(ctx, reg)
	}

	out := []RegistryDTO{}
	for i := range pc.Processes.Factories {
		pf := &pc.Processes.Factories[i]
		f, err := reg.Factory(pf.AuthorityCode)
		if errors.Is(err, errors.NotFound) {
			logger.Warningf("configured process authority %q is not registered", pf.AuthorityCode)
			continue
		} else if err != nil {
			return nil, err
		}
		dto, err := describe(ctx, f, pf.Includes)
		if err != nil {
			return nil, err
		}
		if len(dto.Processes) > 0 {
			out = append(out, dto)
		}
	}
	return out, nil
}
