// Package scorm interprets SCORM runtime (CMI) data from third-party
// content packages. Two incompatible schema generations are in the wild:
// SCORM 1.2 ("cmi.core.*") and SCORM 2004 ("cmi.*"); the interpreter
// consults both, field by field.
package scorm

import (
	"encoding/json"
	"math"
)

// Scalar is one CMI leaf value. Runtimes deliver strings; some wrappers
// deliver native numbers.
type Scalar struct {
	Str   string
	Num   float64
	IsNum bool
}

// StringScalar creates a string-valued Scalar.
func StringScalar(s string) Scalar {
	return Scalar{Str: s}
}

// NumberScalar creates a number-valued Scalar.
func NumberScalar(f float64) Scalar {
	return Scalar{Num: f, IsNum: true}
}

// RuntimeState is an open tree of CMI values addressed by dot-separated
// paths (e.g. "cmi.core.score.raw"). There is no fixed schema: unknown
// keys are ignored and missing keys yield absent values, never errors.
// It is consumed read-only.
type RuntimeState map[string]Scalar

// Get returns the value at path, if present.
func (s RuntimeState) Get(path string) (Scalar, bool) {
	v, ok := s[path]
	return v, ok
}

// StateFromMap flattens an arbitrary nested string-keyed tree, such as a
// decoded JSON commit body, into a RuntimeState. Already-dotted keys pass
// through unchanged. Leaves that are neither strings nor numbers are
// dropped; the remaining fields stay usable.
func StateFromMap(m map[string]any) RuntimeState {
	state := make(RuntimeState)
	flattenInto(state, "", m)
	return state
}

func flattenInto(state RuntimeState, prefix string, m map[string]any) {
	for key, raw := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch v := raw.(type) {
		case string:
			state[path] = StringScalar(v)
		case float64:
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				state[path] = NumberScalar(v)
			}
		case int:
			state[path] = NumberScalar(float64(v))
		case json.Number:
			if f, err := v.Float64(); err == nil {
				state[path] = NumberScalar(f)
			}
		case map[string]any:
			flattenInto(state, path, v)
		}
	}
}
