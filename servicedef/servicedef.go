// Package servicedef enumerates the OGC service types, versions and
// profiles this server knows how to administer.
package servicedef

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

type Specification string

const (
	WMS  Specification = "WMS"
	WMTS Specification = "WMTS"
	WFS  Specification = "WFS"
	WCS  Specification = "WCS"
	CSW  Specification = "CSW"
	SOS  Specification = "SOS"
	WPS  Specification = "WPS"
)

// Specifications lists every specification in display order.
var Specifications = []Specification{WMS, WMTS, WFS, WCS, CSW, SOS, WPS}

type Organization string

const (
	OGC Organization = "OGC"
	ISO Organization = "ISO"
)

type Profile string

const (
	ProfileNone Profile = "NONE"
	WMSSLD      Profile = "WMS_SLD"
	CSWISO      Profile = "CSW_ISO"
)

// ParseSpecification accepts a specification name in any case.
func ParseSpecification(name string) (Specification, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, s := range Specifications {
		if string(s) == n {
			return s, nil
		}
	}
	return "", errors.NotValidf("specification %q", name)
}

// Version is a three part OGC version number such as 1.3.0.
type Version struct {
	Major, Minor, Patch int
}

func ParseVersion(v string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) != 3 {
		return Version{}, errors.NotValidf("version %q", v)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, errors.NotValidf("version %q", v)
		}
		nums[i] = n
	}
	return Version{nums[0], nums[1], nums[2]}, nil
}

func mustVersion(v string) Version {
	ver, err := ParseVersion(v)
	if err != nil {
		panic(err)
	}
	return ver
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return sign(v.Major - o.Major)
	case v.Minor != o.Minor:
		return sign(v.Minor - o.Minor)
	default:
		return sign(v.Patch - o.Patch)
	}
}

func sign(n int) int {
	if n < 0 {
		return -1
	} else if n > 0 {
		return 1
	}
	return 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(b []byte) error {
	ver, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = ver
	return nil
}

// ServiceDef identifies one implemented flavour of an OGC service. Values
// are only built by this package; callers copy them around by value.
type ServiceDef struct {
	name         string
	spec         Specification
	organization Organization
	version      Version
	profile      Profile
	compliant    bool
	implemented  bool
}

func (d ServiceDef) Name() string                 { return d.name }
func (d ServiceDef) Specification() Specification { return d.spec }
func (d ServiceDef) Organization() Organization   { return d.organization }
func (d ServiceDef) Version() Version             { return d.version }
func (d ServiceDef) Profile() Profile             { return d.profile }
func (d ServiceDef) Compliant() bool              { return d.compliant }
func (d ServiceDef) Implemented() bool            { return d.implemented }

func (d ServiceDef) String() string {
	return fmt.Sprintf("%s %s", d.spec, d.version)
}

func def(name string, spec Specification, org Organization, version string, profile Profile, compliant, implemented bool) ServiceDef {
	return ServiceDef{
		name:         name,
		spec:         spec,
		organization: org,
		version:      mustVersion(version),
		profile:      profile,
		compliant:    compliant,
		implemented:  implemented,
	}
}

var (
	WMS_1_1_1_SLD = def("WMS_1_1_1_SLD", WMS, OGC, "1.1.1", WMSSLD, true, true)
	WMS_1_3_0     = def("WMS_1_3_0", WMS, OGC, "1.3.0", ProfileNone, true, true)
	WMS_1_3_0_SLD = def("WMS_1_3_0_SLD", WMS, OGC, "1.3.0", WMSSLD, true, true)
	WMTS_1_0_0    = def("WMTS_1_0_0", WMTS, OGC, "1.0.0", ProfileNone, true, true)
	WFS_1_1_0     = def("WFS_1_1_0", WFS, OGC, "1.1.0", ProfileNone, true, true)
	WFS_2_0_0     = def("WFS_2_0_0", WFS, OGC, "2.0.0", ProfileNone, true, true)
	WCS_1_0_0     = def("WCS_1_0_0", WCS, OGC, "1.0.0", ProfileNone, true, true)
	WCS_1_1_1     = def("WCS_1_1_1", WCS, OGC, "1.1.1", ProfileNone, false, false)
	CSW_2_0_2     = def("CSW_2_0_2", CSW, OGC, "2.0.2", CSWISO, true, true)
	SOS_1_0_0     = def("SOS_1_0_0", SOS, OGC, "1.0.0", ProfileNone, true, true)
	SOS_2_0_0     = def("SOS_2_0_0", SOS, OGC, "2.0.0", ProfileNone, true, true)
	WPS_1_0_0     = def("WPS_1_0_0", WPS, OGC, "1.0.0", ProfileNone, true, true)
)

var all = []ServiceDef{
	WMS_1_1_1_SLD, WMS_1_3_0, WMS_1_3_0_SLD,
	WMTS_1_0_0,
	WFS_1_1_0, WFS_2_0_0,
	WCS_1_0_0, WCS_1_1_1,
	CSW_2_0_2,
	SOS_1_0_0, SOS_2_0_0,
	WPS_1_0_0,
}

// All returns a copy of the whole enumeration.
func All() []ServiceDef {
	out := make([]ServiceDef, len(all))
	copy(out, all)
	return out
}

// ForSpecification returns the definitions of spec ordered by version.
func ForSpecification(spec Specification) []ServiceDef {
	var out []ServiceDef
	for _, d := range all {
		if d.spec == spec {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].version.Compare(out[j].version) < 0
	})
	return out
}

// Lookup finds the first definition matching spec and version. Profiled
// definitions only match when no plain definition exists for that version.
func Lookup(spec Specification, version string) (ServiceDef, error) {
	ver, err := ParseVersion(version)
	if err != nil {
		return ServiceDef{}, errors.Trace(err)
	}
	var found *ServiceDef
	for i := range all {
		d := &all[i]
		if d.spec != spec || d.version != ver {
			continue
		}
		if found == nil || (found.profile != ProfileNone && d.profile == ProfileNone) {
			found = d
		}
	}
	if found == nil {
		return ServiceDef{}, errors.NotFoundf("%s version %s", spec, version)
	}
	return *found, nil
}

// Highest returns the most recent implemented definition of spec.
func Highest(spec Specification) (ServiceDef, error) {
	defs := ForSpecification(spec)
	for i := len(defs) - 1; i >= 0; i-- {
		if defs[i].implemented {
			return defs[i], nil
		}
	}
	return ServiceDef{}, errors.NotFoundf("implemented %s definition", spec)
}

// Versions lists the distinct implemented version strings of spec.
func Versions(spec Specification) []string {
	var out []string
	seen := map[Version]bool{}
	for _, d := range ForSpecification(spec) {
		if !d.implemented || seen[d.version] {
			continue
		}
		seen[d.version] = true
		out = append(out, d.version.String())
	}
	return out
}
