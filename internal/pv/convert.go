package pv

import (
	"fmt"
	"math"
	"strconv"
)

// AsInt64 converts a scalar transport value to an integer.
// Single element arrays are accepted, since waveform PVs of length one are
// common on the target side.
func AsInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil //nolint:gosec // PV scalars fit in int64
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil //nolint:gosec // PV scalars fit in int64
	case float32:
		return int64(math.Round(float64(x))), nil
	case float64:
		return int64(math.Round(x)), nil
	case string:
		n, err := strconv.ParseInt(x, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", x, err)
		}
		return n, nil
	case []any:
		if len(x) == 1 {
			return AsInt64(x[0])
		}
	case []int32:
		if len(x) == 1 {
			return int64(x[0]), nil
		}
	case []uint32:
		if len(x) == 1 {
			return int64(x[0]), nil
		}
	case []float64:
		if len(x) == 1 {
			return int64(math.Round(x[0])), nil
		}
	}
	return 0, fmt.Errorf("unsupported scalar value %T", v)
}

// AsFloat64 converts a scalar transport value to a float.
func AsFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case []float64:
		if len(x) == 1 {
			return x[0], nil
		}
	case []any:
		if len(x) == 1 {
			return AsFloat64(x[0])
		}
	}
	n, err := AsInt64(v)
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}

// AsUint32s converts an array transport value to 32-bit words.
func AsUint32s(v any) ([]uint32, error) {
	switch x := v.(type) {
	case []uint32:
		return x, nil
	case []int32:
		out := make([]uint32, len(x))
		for i, n := range x {
			out[i] = uint32(n) //nolint:gosec // reinterpretation of the raw word
		}
		return out, nil
	case []int:
		out := make([]uint32, len(x))
		for i, n := range x {
			out[i] = uint32(n) //nolint:gosec // reinterpretation of the raw word
		}
		return out, nil
	case []int64:
		out := make([]uint32, len(x))
		for i, n := range x {
			out[i] = uint32(n) //nolint:gosec // reinterpretation of the raw word
		}
		return out, nil
	case []float64:
		out := make([]uint32, len(x))
		for i, f := range x {
			out[i] = uint32(int64(f)) //nolint:gosec // reinterpretation of the raw word
		}
		return out, nil
	case []any:
		out := make([]uint32, len(x))
		for i, e := range x {
			n, err := AsInt64(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = uint32(n) //nolint:gosec // reinterpretation of the raw word
		}
		return out, nil
	case nil:
		return nil, nil
	}
	n, err := AsInt64(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported array value %T", v)
	}
	return []uint32{uint32(n)}, nil //nolint:gosec // reinterpretation of the raw word
}

// AsStrings converts an array transport value to strings.
func AsStrings(v any) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case string:
		return []string{x}, nil
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: unsupported string value %T", i, e)
			}
			out[i] = s
		}
		return out, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported string array value %T", v)
}
