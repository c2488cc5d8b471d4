package config

import (
	"fmt"
	"math"
	"time"
)

// Args are the options of one stage entry, as decoded from YAML.
type Args map[string]any

// String returns the string at key, or def if unset.
func (a Args) String(key, def string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("arg %q: expected string, got %T", key, v)
	}
	return s, nil
}

// RequiredString returns the non-empty string at key.
func (a Args) RequiredString(key string) (string, error) {
	s, err := a.String(key, "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("arg %q is required", key)
	}
	return s, nil
}

// Int returns the integer at key, or def if unset.
func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("arg %q: %v is not an integer", key, n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("arg %q: expected integer, got %T", key, v)
}

// Bool returns the bool at key, or def if unset.
func (a Args) Bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("arg %q: expected bool, got %T", key, v)
	}
	return b, nil
}

// Duration returns the duration string at key parsed, or def if unset.
func (a Args) Duration(key string, def time.Duration) (time.Duration, error) {
	s, err := a.String(key, "")
	if err != nil || s == "" {
		return def, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("arg %q: %w", key, err)
	}
	return d, nil
}

// List returns the list at key, or nil if unset.
func (a Args) List(key string) ([]any, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("arg %q: expected list, got %T", key, v)
	}
	return l, nil
}
