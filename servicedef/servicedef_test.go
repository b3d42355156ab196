package servicedef

import (
	"testing"

	"github.com/juju/errors"
)

func TestParseSpecification(t *testing.T) {
	spec, err := ParseSpecification(" wms ")
	if err != nil || spec != WMS {
		t.Errorf("expected WMS, got %v, %v", spec, err)
	}

	_, err = ParseSpecification("WXS")
	if !errors.Is(err, errors.NotValid) {
		t.Errorf("unknown specification should be NotValid, got %v", err)
	}
}

func TestVersionCompare(t *testing.T) {
	v111, _ := ParseVersion("1.1.1")
	v130, _ := ParseVersion("1.3.0")
	if v111.Compare(v130) != -1 || v130.Compare(v111) != 1 || v130.Compare(v130) != 0 {
		t.Errorf("unexpected ordering between %v and %v", v111, v130)
	}

	if _, err := ParseVersion("1.3"); err == nil {
		t.Errorf("two part version should not parse")
	}
}

func TestForSpecificationOrdered(t *testing.T) {
	defs := ForSpecification(WMS)
	if len(defs) != 3 {
		t.Fatalf("expected 3 WMS definitions, got %d", len(defs))
	}
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Version().Compare(defs[i].Version()) > 0 {
			t.Errorf("definitions out of order: %v", defs)
		}
	}
}

func TestLookupPrefersPlainProfile(t *testing.T) {
	d, err := Lookup(WMS, "1.3.0")
	if err != nil {
		t.Fatal(err)
	}
	if d != WMS_1_3_0 {
		t.Errorf("expected %v, got %v (%s)", WMS_1_3_0, d, d.Profile())
	}

	d, err = Lookup(WMS, "1.1.1")
	if err != nil || d != WMS_1_1_1_SLD {
		t.Errorf("expected SLD profile for 1.1.1, got %v, %v", d, err)
	}

	if _, err := Lookup(WPS, "2.0.0"); !errors.Is(err, errors.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestHighestSkipsUnimplemented(t *testing.T) {
	d, err := Highest(WCS)
	if err != nil {
		t.Fatal(err)
	}
	if d != WCS_1_0_0 {
		t.Errorf("expected WCS 1.0.0, got %v", d)
	}
}

func TestVersions(t *testing.T) {
	got := Versions(WMS)
	if len(got) != 2 || got[0] != "1.1.1" || got[1] != "1.3.0" {
		t.Errorf("unexpected WMS versions: %v", got)
	}
}

func TestAllIsCopy(t *testing.T) {
	a := All()
	a[0] = WPS_1_0_0
	if All()[0] == WPS_1_0_0 {
		t.Errorf("All() exposes internal slice")
	}
}
