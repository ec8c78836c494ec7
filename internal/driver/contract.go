package driver

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// Coercer converts a raw configuration value into the type a constructor
// expects, or reports why it cannot.
type Coercer func(v any) (any, error)

// Contract describes the configuration a driver constructor accepts.
// Required must be a subset of Accepted. Validation is declarative: a
// constructor is only invoked once every required key is present, every
// supplied key is accepted, and every coercer has succeeded.
type Contract struct {
	Required []string
	Accepted []string
	Coerce   map[string]Coercer
}

// Validate checks params against the contract and returns a coerced copy.
// All problems are reported, not just the first.
func (c Contract) Validate(params map[string]any) (map[string]any, error) {
	accepted := make(map[string]bool, len(c.Accepted))
	for _, k := range c.Accepted {
		accepted[k] = true
	}
	for _, k := range c.Required {
		if !accepted[k] {
			return nil, fmt.Errorf("contract defect: required key %q not in accepted set", k)
		}
	}

	var errs error
	out := make(map[string]any, len(params))
	badCoerce := make(map[string]bool)

	for _, k := range sortedKeys(params) {
		if !accepted[k] {
			errs = multierr.Append(errs, fmt.Errorf("unknown parameter %q", k))
			continue
		}
		v := params[k]
		if cast, ok := c.Coerce[k]; ok {
			cv, err := cast(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("parameter %q: %w", k, err))
				badCoerce[k] = true
				continue
			}
			v = cv
		}
		out[k] = v
	}

	for _, k := range c.Required {
		// A key that was supplied but failed coercion is already
		// reported; "missing" would double-count it.
		if badCoerce[k] {
			continue
		}
		if missing(out[k]) {
			errs = multierr.Append(errs, fmt.Errorf("missing required parameter %q", k))
		}
	}

	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func missing(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Constructors read validated parameters through these helpers; the coercers
// guarantee the stored type, so a missing key is the only fallback case.

func intParam(p map[string]any, k string, def int) int {
	if v, ok := p[k].(int); ok {
		return v
	}
	return def
}

func floatParam(p map[string]any, k string, def float64) float64 {
	if v, ok := p[k].(float64); ok {
		return v
	}
	return def
}

func stringParam(p map[string]any, k, def string) string {
	if v, ok := p[k].(string); ok && v != "" {
		return v
	}
	return def
}

// AsInt coerces YAML scalars to int.
func AsInt(v any) (any, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) {
			return nil, fmt.Errorf("expected integer, got %v", t)
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", t)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
}

// AsFloat coerces YAML scalars to float64.
func AsFloat(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", t)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("expected number, got %T", v)
	}
}

// AsString coerces scalars to string.
func AsString(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int:
		return strconv.Itoa(t), nil
	default:
		return nil, fmt.Errorf("expected string, got %T", v)
	}
}

// AsBool coerces YAML scalars to bool.
func AsBool(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("expected boolean, got %q", t)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("expected boolean, got %T", v)
	}
}
