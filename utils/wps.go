package utils

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

type Data struct {
	ComplexData string
	LiteralData string
}

type Input struct {
	Identifier string
	Data       Data
}

type DataInputs struct {
	Input []Input
}

// Execute is the subset of a WPS 1.0.0 Execute document needed to run a
// process: its identifier and data inputs.
type Execute struct {
	Version    string `xml:"version,attr"`
	Service    string `xml:"service,attr"`
	Identifier string
	DataInputs DataInputs
}

// ExecuteRequest names a process as "authority:code" and carries its
// inputs.
type ExecuteRequest struct {
	Identifier string                 `json:"identifier" yaml:"identifier"`
	Inputs     map[string]interface{} `json:"inputs" yaml:"inputs"`
}

var processIDRE = regexp.MustCompile(`^([A-Za-z0-9_.-]+):([A-Za-z0-9_.-]+)$`)

// SplitProcessIdentifier splits "authority:code".
func SplitProcessIdentifier(id string) (authority, code string, err error) {
	m := processIDRE.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return "", "", errors.NotValidf("process identifier %q", id)
	}
	return m[1], m[2], nil
}

// ParseExecuteXML decodes a WPS Execute document.
func ParseExecuteXML(r io.Reader) (*ExecuteRequest, error) {
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.Trace(err)
	}
	var exec Execute
	if err := xml.Unmarshal(buf.Bytes(), &exec); err != nil {
		return nil, errors.NewNotValid(err, "malformed Execute document")
	}
	if exec.Service != "" && !strings.EqualFold(exec.Service, "WPS") {
		return nil, errors.NotValidf("service %q", exec.Service)
	}

	req := &ExecuteRequest{
		Identifier: strings.TrimSpace(exec.Identifier),
		Inputs:     make(map[string]interface{}),
	}
	for _, input := range exec.DataInputs.Input {
		inputID := strings.TrimSpace(input.Identifier)
		if inputID == "" {
			continue
		}
		if complexData := strings.TrimSpace(input.Data.ComplexData); complexData != "" {
			var v interface{}
			if json.Unmarshal([]byte(complexData), &v) == nil {
				req.Inputs[inputID] = v
			} else {
				req.Inputs[inputID] = complexData
			}
			continue
		}
		req.Inputs[inputID] = LiteralValue(input.Data.LiteralData)
	}
	if _, _, err := SplitProcessIdentifier(req.Identifier); err != nil {
		return nil, err
	}
	return req, nil
}

// ParseExecuteJSON decodes {"identifier": ..., "inputs": {...}}.
func ParseExecuteJSON(r io.Reader) (*ExecuteRequest, error) {
	var req ExecuteRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.NewNotValid(err, "malformed execute request")
	}
	if _, _, err := SplitProcessIdentifier(req.Identifier); err != nil {
		return nil, err
	}
	if req.Inputs == nil {
		req.Inputs = make(map[string]interface{})
	}
	return &req, nil
}

// LiteralValue converts WPS literal data to a number or boolean when it
// looks like one.
func LiteralValue(s string) interface{} {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
