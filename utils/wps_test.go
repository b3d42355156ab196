package utils

import (
	"strings"
	"testing"

	"github.com/juju/errors"
)

func TestParseExecuteXML(t *testing.T) {
	doc := `<?xml version="1.0"?>
<Execute service="WPS" version="1.0.0">
  <Identifier>math:add</Identifier>
  <DataInputs>
    <Input><Identifier>a</Identifier><Data><LiteralData>1.5</LiteralData></Data></Input>
    <Input><Identifier>b</Identifier><Data><LiteralData>2</LiteralData></Data></Input>
    <Input><Identifier>geometry</Identifier><Data><ComplexData>{"type":"Point","coordinates":[1,2]}</ComplexData></Data></Input>
    <Input><Identifier>label</Identifier><Data><LiteralData>rivers</LiteralData></Data></Input>
  </DataInputs>
</Execute>`

	req, err := ParseExecuteXML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("failed to parse Execute: %v", err)
	}
	if req.Identifier != "math:add" {
		t.Errorf("unexpected identifier %q", req.Identifier)
	}
	if req.Inputs["a"] != 1.5 || req.Inputs["b"] != 2.0 || req.Inputs["label"] != "rivers" {
		t.Errorf("unexpected literal inputs %v", req.Inputs)
	}
	geom, ok := req.Inputs["geometry"].(map[string]interface{})
	if !ok || geom["type"] != "Point" {
		t.Errorf("complex data should be decoded as JSON, got %#v", req.Inputs["geometry"])
	}
}

func TestParseExecuteRejects(t *testing.T) {
	_, err := ParseExecuteXML(strings.NewReader(`<Execute service="WMS"><Identifier>math:add</Identifier></Execute>`))
	if !errors.Is(err, errors.NotValid) {
		t.Errorf("non WPS service should be rejected, got %v", err)
	}

	_, err = ParseExecuteJSON(strings.NewReader(`{"identifier": "add"}`))
	if !errors.Is(err, errors.NotValid) {
		t.Errorf("identifier without authority should be rejected, got %v", err)
	}

	req, err := ParseExecuteJSON(strings.NewReader(`{"identifier": "util:echo"}`))
	if err != nil || req.Inputs == nil {
		t.Errorf("missing inputs should default to an empty map: %v %v", req, err)
	}
}

func TestSplitProcessIdentifier(t *testing.T) {
	authority, code, err := SplitProcessIdentifier(" geometry:towkt ")
	if err != nil || authority != "geometry" || code != "towkt" {
		t.Errorf("unexpected split %q %q %v", authority, code, err)
	}
	if _, _, err := SplitProcessIdentifier("a:b:c"); err == nil {
		t.Errorf("three part identifier should not split")
	}
}
