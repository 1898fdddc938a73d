package smartnotify

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"os"
	"reflect"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultModelsYAML []byte

// FactorKind names a factor variant.
type FactorKind string

const (
	FactorNumeric     FactorKind = "numeric"
	FactorCategorical FactorKind = "categorical"
)

// Factor is one weighted input of a PriorityModel. The set of variants is
// closed: NumericFactor and CategoricalFactor.
type Factor interface {
	Kind() FactorKind
	// Contribution returns weight * normalized value for a context value.
	Contribution(value any) float64
	validate() error
}

// NumericFactor contributes Weight * min(v, Max) / Max.
type NumericFactor struct {
	Weight float64
	Max    float64
}

func (NumericFactor) Kind() FactorKind { return FactorNumeric }

func (f NumericFactor) Contribution(value any) float64 {
	v, ok := toFloat(value)
	if !ok || !finite(v) {
		return 0
	}
	return f.Weight * math.Min(v, f.Max) / f.Max
}

func (f NumericFactor) validate() error {
	if !finite(f.Weight) {
		return errors.New("weight must be finite")
	}
	if !finite(f.Max) || f.Max <= 0 {
		return fmt.Errorf("max must be positive, got %v", f.Max)
	}
	return nil
}

// CategoricalFactor contributes Weight * Mapping[v]. Unmapped values contribute 0.
type CategoricalFactor struct {
	Weight  float64
	Mapping map[string]float64
}

func (CategoricalFactor) Kind() FactorKind { return FactorCategorical }

func (f CategoricalFactor) Contribution(value any) float64 {
	key, ok := categoryKey(value)
	if !ok {
		return 0
	}
	return f.Weight * f.Mapping[key]
}

func (f CategoricalFactor) validate() error {
	if !finite(f.Weight) {
		return errors.New("weight must be finite")
	}
	if len(f.Mapping) == 0 {
		return errors.New("mapping must not be empty")
	}
	for k, v := range f.Mapping {
		if !finite(v) {
			return fmt.Errorf("mapping %q must be finite", k)
		}
	}
	return nil
}

// PriorityModel scores one notification type.
type PriorityModel struct {
	BaseScore float64
	Factors   map[string]Factor
}

// Validate checks every factor of the model.
func (m PriorityModel) Validate() error {
	if !finite(m.BaseScore) || m.BaseScore < 0 || m.BaseScore > 100 {
		return fmt.Errorf("base score must be within 0-100, got %v", m.BaseScore)
	}
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(m.Factors)) {
		f := m.Factors[name]
		if name == "" {
			errs = append(errs, errors.New("factor name must not be empty"))
			continue
		}
		if f == nil {
			errs = append(errs, fmt.Errorf("factor %q: missing definition", name))
			continue
		}
		if err := f.validate(); err != nil {
			errs = append(errs, fmt.Errorf("factor %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ModelRegistry is an immutable set of priority models keyed by type.
type ModelRegistry struct {
	models map[string]PriorityModel
}

// NewModelRegistry validates every model and returns a registry.
func NewModelRegistry(models map[string]PriorityModel) (*ModelRegistry, error) {
	var errs []error
	for _, typ := range slices.Sorted(maps.Keys(models)) {
		if typ == "" {
			errs = append(errs, errors.New("model type must not be empty"))
			continue
		}
		if err := models[typ].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("model %q: %w", typ, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(ErrInvalidModel, errors.Join(errs...))
	}
	return &ModelRegistry{models: maps.Clone(models)}, nil
}

// Lookup returns the model for typ.
func (r *ModelRegistry) Lookup(typ string) (PriorityModel, bool) {
	if r == nil {
		return PriorityModel{}, false
	}
	m, ok := r.models[typ]
	return m, ok
}

// Types lists the registered notification types in sorted order.
func (r *ModelRegistry) Types() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.models))
}

type yamlFactor struct {
	Kind    FactorKind         `yaml:"kind"`
	Weight  *float64           `yaml:"weight"`
	Max     *float64           `yaml:"max"`
	Mapping map[string]float64 `yaml:"mapping"`
}

type yamlModel struct {
	BaseScore *float64              `yaml:"base_score"`
	Factors   map[string]yamlFactor `yaml:"factors"`
}

// ParseModels decodes YAML model definitions. Unknown keys, unknown factor
// kinds and invalid values are rejected.
func ParseModels(data []byte) (*ModelRegistry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw map[string]yamlModel
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Join(ErrInvalidModel, err)
	}

	models := make(map[string]PriorityModel, len(raw))
	var errs []error
	for typ, rm := range raw {
		if rm.BaseScore == nil {
			errs = append(errs, fmt.Errorf("model %q: base_score is required", typ))
			continue
		}
		m := PriorityModel{BaseScore: *rm.BaseScore, Factors: make(map[string]Factor, len(rm.Factors))}
		for name, rf := range rm.Factors {
			f, err := rf.toFactor()
			if err != nil {
				errs = append(errs, fmt.Errorf("model %q factor %q: %w", typ, name, err))
				continue
			}
			m.Factors[name] = f
		}
		models[typ] = m
	}
	if len(errs) > 0 {
		return nil, errors.Join(ErrInvalidModel, errors.Join(errs...))
	}
	return NewModelRegistry(models)
}

func (f yamlFactor) toFactor() (Factor, error) {
	if f.Weight == nil {
		return nil, errors.New("weight is required")
	}
	switch f.Kind {
	case FactorNumeric:
		if f.Max == nil {
			return nil, errors.New("numeric factor requires max")
		}
		if f.Mapping != nil {
			return nil, errors.New("numeric factor must not declare a mapping")
		}
		return NumericFactor{Weight: *f.Weight, Max: *f.Max}, nil
	case FactorCategorical:
		if f.Max != nil {
			return nil, errors.New("categorical factor must not declare max")
		}
		return CategoricalFactor{Weight: *f.Weight, Mapping: f.Mapping}, nil
	default:
		return nil, fmt.Errorf("unknown factor kind %q", f.Kind)
	}
}

// DefaultModels returns the embedded GRC models.
func DefaultModels() (*ModelRegistry, error) {
	return ParseModels(defaultModelsYAML)
}

// LoadModels reads models from path, or the embedded defaults when path is empty.
func LoadModels(path string) (*ModelRegistry, error) {
	if path == "" {
		return DefaultModels()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidModel, err)
	}
	return ParseModels(data)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func categoryKey(v any) (string, bool) {
	switch c := v.(type) {
	case string:
		return c, true
	case bool:
		return strconv.FormatBool(c), true
	case fmt.Stringer:
		return c.String(), true
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
