package processing

import (
	"context"
	"encoding/json"

	"github.com/juju/errors"
	geo "github.com/nci/geometry"
)

const GeometryAuthority = "geometry"

// decodeFeature accepts a GeoJSON Feature or bare geometry, either already
// decoded or as text.
func decodeFeature(v interface{}) (*geo.Feature, error) {
	var raw []byte
	switch v := v.(type) {
	case string:
		raw = []byte(v)
	case nil:
		return nil, errors.NotValidf("missing input %q", "geometry")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.NewNotValid(err, "geometry input")
		}
		raw = b
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, errors.NewNotValid(err, "geometry input")
	}
	if probe.Type != "Feature" {
		raw = []byte(`{"type":"Feature","geometry":` + string(raw) + `}`)
	}

	var feat geo.Feature
	if err := json.Unmarshal(raw, &feat); err != nil {
		return nil, errors.NewNotValid(err, "geometry input")
	}
	if feat.Geometry == nil {
		return nil, errors.NotValidf("feature without geometry")
	}
	return &feat, nil
}

func toWKT(ctx context.Context, inputs map[string]interface{}, mon Monitor) (map[string]interface{}, error) {
	feat, err := decodeFeature(inputs["geometry"])
	if err != nil {
		return nil, err
	}
	mon.Progress(100, "")
	return map[string]interface{}{"wkt": feat.Geometry.MarshalWKT()}, nil
}

func geometryType(ctx context.Context, inputs map[string]interface{}, mon Monitor) (map[string]interface{}, error) {
	feat, err := decodeFeature(inputs["geometry"])
	if err != nil {
		return nil, err
	}
	var kind string
	switch feat.Geometry.(type) {
	case *geo.Point:
		kind = "Point"
	case *geo.Polygon:
		kind = "Polygon"
	case *geo.MultiPolygon:
		kind = "MultiPolygon"
	default:
		kind = "Other"
	}
	mon.Progress(100, "")
	return map[string]interface{}{"type": kind}, nil
}

var geometryInput = []Parameter{{Name: "geometry", Type: "geojson", Description: "GeoJSON feature or geometry"}}

// NewGeometryFactory provides towkt and type.
func NewGeometryFactory(authority string) *StaticFactory {
	return NewStaticFactory(authority,
		NewProcess(Descriptor{
			Code:        "towkt",
			Title:       "GeoJSON to WKT",
			Description: "Converts a GeoJSON geometry to well known text.",
			Inputs:      geometryInput,
			Outputs:     []Parameter{{Name: "wkt", Type: "string"}},
		}, toWKT),
		NewProcess(Descriptor{
			Code:        "type",
			Title:       "Geometry type",
			Description: "Reports whether a geometry is a Point, Polygon or MultiPolygon.",
			Inputs:      geometryInput,
			Outputs:     []Parameter{{Name: "type", Type: "string"}},
		}, geometryType),
	)
}
