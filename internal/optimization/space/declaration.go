package space

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/warpbench/internal/optimization"
)

// Declaration is the external description of one parameter:
//
//	lr:     {type: real, warp: log, range: [1e-5, 1e-1]}
//	layers: {type: int, values: [1, 2, 4]}
//	act:    {type: cat, values: [relu, tanh]}
//	bn:     {type: bool}
type Declaration struct {
	Type   string        `yaml:"type" json:"type"`
	Warp   string        `yaml:"warp,omitempty" json:"warp,omitempty"`
	Range  []interface{} `yaml:"range,omitempty" json:"range,omitempty"`
	Values []interface{} `yaml:"values,omitempty" json:"values,omitempty"`
}

// Declarations maps parameter names to their declaration.
type Declarations map[string]Declaration

// ParseYAML decodes declarations from YAML.
func ParseYAML(data []byte) (Declarations, error) {
	var d Declarations
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, validation("ParseYAML", "failed to parse space yaml: %v", err)
	}
	return d, nil
}

// ParseJSON decodes declarations from JSON.
func ParseJSON(data []byte) (Declarations, error) {
	var d Declarations
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, validation("ParseJSON", "failed to parse space json: %v", err)
	}
	return d, nil
}

// LoadFile reads a declaration file and builds its Space. Files ending in
// .json are read as JSON, anything else as YAML.
func LoadFile(path string) (*Space, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read space file %s: %w", path, err)
	}

	var d Declarations
	if strings.EqualFold(filepath.Ext(path), ".json") {
		d, err = ParseJSON(data)
	} else {
		d, err = ParseYAML(data)
	}
	if err != nil {
		return nil, err
	}
	return d.Space()
}

// Space builds the joint space of all declarations.
func (d Declarations) Space() (*Space, error) {
	params := make(map[string]Param, len(d))
	for name, decl := range d {
		p, err := decl.Param()
		if err != nil {
			return nil, optimization.WrapErrorf(err, "parameter %q", name)
		}
		params[name] = p
	}
	return New(params)
}

// Param builds the parameter described by d.
func (d Declaration) Param() (Param, error) {
	const op = "Declaration.Param"

	switch strings.ToLower(d.Type) {
	case "real", "float":
		if err := d.exactlyOneDomain(op); err != nil {
			return Param{}, err
		}
		if d.Range != nil {
			lo, hi, err := d.floatRange(op)
			if err != nil {
				return Param{}, err
			}
			return NewReal(d.Warp, lo, hi)
		}
		vs, err := floatValues(op, d.Values)
		if err != nil {
			return Param{}, err
		}
		return NewRealValues(d.Warp, vs)

	case "int", "integer":
		if err := d.exactlyOneDomain(op); err != nil {
			return Param{}, err
		}
		if d.Range != nil {
			lo, hi, err := d.floatRange(op)
			if err != nil {
				return Param{}, err
			}
			ilo, err := toInt(op, lo)
			if err != nil {
				return Param{}, err
			}
			ihi, err := toInt(op, hi)
			if err != nil {
				return Param{}, err
			}
			return NewInteger(d.Warp, ilo, ihi)
		}
		fs, err := floatValues(op, d.Values)
		if err != nil {
			return Param{}, err
		}
		is := make([]int64, len(fs))
		for i, f := range fs {
			if is[i], err = toInt(op, f); err != nil {
				return Param{}, err
			}
		}
		return NewIntegerValues(d.Warp, is)

	case "bool", "boolean":
		if d.Warp != "" || d.Range != nil || d.Values != nil {
			return Param{}, validation(op, "bool parameters take no warp, range or values")
		}
		return NewBoolean(), nil

	case "cat", "categorical":
		if d.Warp != "" || d.Range != nil {
			return Param{}, validation(op, "categorical parameters take no warp or range")
		}
		if d.Values == nil {
			return Param{}, validation(op, "categorical parameters need values")
		}
		cats := make([]string, len(d.Values))
		for i, v := range d.Values {
			s, ok := v.(string)
			if !ok {
				return Param{}, validation(op, "categorical value %v is not a string", v)
			}
			cats[i] = s
		}
		return NewCategorical(cats)
	}
	return Param{}, validation(op, "unknown parameter type %q", d.Type)
}

func (d Declaration) exactlyOneDomain(op string) error {
	if (d.Range == nil) == (d.Values == nil) {
		return validation(op, "exactly one of range or values must be given")
	}
	return nil
}

func (d Declaration) floatRange(op string) (float64, float64, error) {
	if len(d.Range) != 2 {
		return 0, 0, validation(op, "range must have 2 entries, got %d", len(d.Range))
	}
	vs, err := floatValues(op, d.Range)
	if err != nil {
		return 0, 0, err
	}
	return vs[0], vs[1], nil
}

func floatValues(op string, raw []interface{}) ([]float64, error) {
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := toFloat(v)
		if !ok {
			return nil, validation(op, "%v is not a number", v)
		}
		out[i] = f
	}
	return out, nil
}

func toInt(op string, f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, validation(op, "%v is not an integer", f)
	}
	if math.Abs(f) > MaxInteger {
		return 0, validation(op, "integer %v exceeds ±2^53", f)
	}
	return int64(f), nil
}
