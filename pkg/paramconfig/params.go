// Package paramconfig holds named, range-constrained parameters that can be
// edited at runtime. Values are persisted as a flat YAML map and every change
// is announced to OnParamChanged callbacks.
package paramconfig

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"
)

// Kind is the value type of a Param.
type Kind int

const (
	Bool Kind = iota
	Int
	Float
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Param describes one parameter. Min and Max are ignored for Bool params.
type Param struct {
	Name    string
	Kind    Kind
	Min     float64
	Max     float64
	Default any
}

// ParamError reports an invalid parameter name, kind or value.
type ParamError struct {
	Name   string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("param %q: %s", e.Name, e.Reason)
}

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	params    map[string]Param
	order     []string
	values    map[string]any
	listeners []func(name string, value any)
}

// New validates the definitions and seeds every param with its default.
func New(params ...Param) (*Store, error) {
	s := &Store{
		params: make(map[string]Param, len(params)),
		values: make(map[string]any, len(params)),
	}

	for _, p := range params {
		if p.Name == "" {
			return nil, errors.New("param name cannot be empty")
		}
		if _, dup := s.params[p.Name]; dup {
			return nil, &ParamError{Name: p.Name, Reason: "defined twice"}
		}
		if p.Kind != Bool && p.Min > p.Max {
			return nil, &ParamError{Name: p.Name, Reason: fmt.Sprintf("min %v is greater than max %v", p.Min, p.Max)}
		}
		v, err := p.coerce(p.Default)
		if err != nil {
			return nil, err
		}
		if !p.inRange(v) {
			return nil, &ParamError{Name: p.Name, Reason: fmt.Sprintf("default %v outside [%v, %v]", v, p.Min, p.Max)}
		}
		s.params[p.Name] = p
		s.order = append(s.order, p.Name)
		s.values[p.Name] = v
	}

	return s, nil
}

// coerce converts raw into the Go type of the param's kind. YAML decoding
// hands back uint64/int64/float64 depending on the literal, so numeric kinds
// accept any number.
func (p Param) coerce(raw any) (any, error) {
	switch p.Kind {
	case Bool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case Int:
		if f, ok := toFloat(raw); ok {
			if f != math.Trunc(f) {
				return nil, &ParamError{Name: p.Name, Reason: fmt.Sprintf("%v is not an integer", raw)}
			}
			return int(f), nil
		}
	case Float:
		if f, ok := toFloat(raw); ok {
			if math.IsNaN(f) {
				return nil, &ParamError{Name: p.Name, Reason: "NaN is not a number"}
			}
			return f, nil
		}
	}
	return nil, &ParamError{Name: p.Name, Reason: fmt.Sprintf("expected %s, got %T", p.Kind, raw)}
}

func (p Param) inRange(v any) bool {
	switch n := v.(type) {
	case int:
		return float64(n) >= p.Min && float64(n) <= p.Max
	case float64:
		return n >= p.Min && n <= p.Max
	default:
		return true
	}
}

func (p Param) clamp(v any) any {
	switch n := v.(type) {
	case int:
		return int(math.Max(p.Min, math.Min(p.Max, float64(n))))
	case float64:
		return math.Max(p.Min, math.Min(p.Max, n))
	default:
		return v
	}
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// OnParamChanged registers fn to be called after each value change.
func (s *Store) OnParamChanged(fn func(name string, value any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Names returns the param names in definition order.
func (s *Store) Names() []string {
	return slices.Clone(s.order)
}

// Definition returns the param named name.
func (s *Store) Definition(name string) (Param, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.params[name]
	return p, ok
}

func (s *Store) Value(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Bool returns false for unknown or non-bool params.
func (s *Store) Bool(name string) bool {
	v, _ := s.Value(name)
	b, _ := v.(bool)
	return b
}

// Int returns 0 for unknown or non-int params.
func (s *Store) Int(name string) int {
	v, _ := s.Value(name)
	n, _ := v.(int)
	return n
}

// Float returns 0 for unknown or non-float params.
func (s *Store) Float(name string) float64 {
	v, _ := s.Value(name)
	f, _ := v.(float64)
	return f
}

// Snapshot copies the current values.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Set stores value after checking its name, kind and range. Out-of-range
// values are rejected rather than clamped.
func (s *Store) Set(name string, value any) error {
	s.mu.Lock()
	p, ok := s.params[name]
	if !ok {
		s.mu.Unlock()
		return &ParamError{Name: name, Reason: "unknown param"}
	}
	v, err := p.coerce(value)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !p.inRange(v) {
		s.mu.Unlock()
		return &ParamError{Name: name, Reason: fmt.Sprintf("%v outside [%v, %v]", v, p.Min, p.Max)}
	}

	changed := s.values[name] != v
	s.values[name] = v
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(name, v)
		}
	}
	return nil
}

// Reset restores every param to its default, notifying for each change.
func (s *Store) Reset() {
	s.mu.RLock()
	defaults := make(map[string]any, len(s.params))
	for name, p := range s.params {
		defaults[name] = p.Default
	}
	s.mu.RUnlock()

	s.apply(defaults)
}

// Load reads a YAML map from path. A missing file keeps the current values.
// Unknown keys and values of the wrong kind are skipped with a warning, and
// out-of-range numbers are clamped so a hand-edited file never stops the
// program.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read params file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse params file: %w", err)
	}

	s.apply(raw)
	return nil
}

// apply merges raw into the store and notifies once per changed param.
func (s *Store) apply(raw map[string]any) {
	type change struct {
		name  string
		value any
	}
	var changes []change

	s.mu.Lock()
	for _, name := range s.order {
		rv, present := raw[name]
		if !present {
			continue
		}
		p := s.params[name]
		v, err := p.coerce(rv)
		if err != nil {
			slog.Warn("Ignoring param", "name", name, "error", err)
			continue
		}
		if !p.inRange(v) {
			clamped := p.clamp(v)
			slog.Warn("Clamping out-of-range param", "name", name, "value", v, "clamped", clamped)
			v = clamped
		}
		if s.values[name] != v {
			s.values[name] = v
			changes = append(changes, change{name: name, value: v})
		}
	}
	for name := range raw {
		if _, known := s.params[name]; !known {
			slog.Warn("Ignoring unknown param", "name", name)
		}
	}
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, c := range changes {
		for _, fn := range listeners {
			fn(c.name, c.value)
		}
	}
}

// Save writes the current values to path atomically.
func (s *Store) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create params directory: %w", err)
	}

	ordered := yaml.MapSlice{}
	s.mu.RLock()
	for _, name := range s.order {
		ordered = append(ordered, yaml.MapItem{Key: name, Value: s.values[name]})
	}
	s.mu.RUnlock()

	data, err := yaml.Marshal(ordered)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}

// SetString parses raw according to the param's kind and sets it, as Set
// does. It is meant for command line input.
func (s *Store) SetString(name, raw string) error {
	p, ok := s.Definition(name)
	if !ok {
		return &ParamError{Name: name, Reason: "unknown param"}
	}

	var (
		v   any
		err error
	)
	switch p.Kind {
	case Bool:
		v, err = strconv.ParseBool(raw)
	case Int:
		v, err = strconv.Atoi(raw)
	default:
		v, err = strconv.ParseFloat(raw, 64)
	}
	if err != nil {
		return &ParamError{Name: name, Reason: fmt.Sprintf("%q is not a valid %s", raw, p.Kind)}
	}

	return s.Set(name, v)
}
