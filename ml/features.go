package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Canonical feature keys, in the order the model expects them.
const (
	FeaturePH              = "ph"
	FeatureTDS             = "totaldissolvedsolids"
	FeatureTurbidity       = "turbidity"
	FeatureTemperature     = "temperature"
	FeatureDissolvedOxygen = "dissolvedoxygen"
)

var featureAliases = map[string]string{
	"tds":  FeatureTDS,
	"temp": FeatureTemperature,
	"do":   FeatureDissolvedOxygen,
}

// FeatureNames returns the canonical keys in model input order.
func FeatureNames() []string {
	return []string{
		FeaturePH,
		FeatureTDS,
		FeatureTurbidity,
		FeatureTemperature,
		FeatureDissolvedOxygen,
	}
}

// DisplayNames returns the column names the model was trained with, in
// model input order. They are also the keys of a stored log record.
func DisplayNames() []string {
	return []string{"pH", "TDS", "Turbidity", "Temperature", "Dissolved Oxygen"}
}

// Reading is a validated set of water-quality measurements.
type Reading struct {
	PH              float64
	TDS             float64
	Turbidity       float64
	Temperature     float64
	DissolvedOxygen float64
}

// Vector returns the reading in model input order.
func (r Reading) Vector() []float64 {
	return []float64{
		r.PH,
		r.TDS,
		r.Turbidity,
		r.Temperature,
		r.DissolvedOxygen,
	}
}

// Inputs returns the reading keyed by display name.
func (r Reading) Inputs() map[string]float64 {
	names := DisplayNames()
	vector := r.Vector()
	inputs := make(map[string]float64, len(names))
	for i, name := range names {
		inputs[name] = vector[i]
	}
	return inputs
}

// CanonicalKey folds case and drops spacing characters, then resolves
// aliases. The second result is false for keys that are not features.
func CanonicalKey(key string) (string, bool) {
	folded := cases.Fold().String(strings.TrimSpace(key))
	folded = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '_', '-', '.':
			return -1
		}
		return r
	}, folded)

	if alias, ok := featureAliases[folded]; ok {
		return alias, true
	}
	for _, name := range FeatureNames() {
		if name == folded {
			return name, true
		}
	}
	return "", false
}

// NormalizeFeatures maps arbitrary client input onto a Reading. Features
// are checked in model input order, and for each one a missing value is
// reported before an invalid one.
func NormalizeFeatures(raw map[string]any) (Reading, error) {
	resolved := make(map[string]any, len(FeatureNames()))
	duplicated := make(map[string]bool)
	for key, value := range raw {
		name, ok := CanonicalKey(key)
		if !ok {
			continue
		}
		if _, seen := resolved[name]; seen {
			duplicated[name] = true
		}
		resolved[name] = value
	}

	values := make(map[string]float64, len(FeatureNames()))
	for _, name := range FeatureNames() {
		if duplicated[name] {
			return Reading{}, &ValidationError{Field: name, Reason: fmt.Sprintf("Duplicate field: %s", name)}
		}
		value, ok := resolved[name]
		if !ok || value == nil {
			return Reading{}, &ValidationError{Field: name, Reason: fmt.Sprintf("Missing required field: %s", name)}
		}
		parsed, err := toFloat(value)
		if err != nil {
			return Reading{}, &ValidationError{
				Field:  name,
				Value:  formatValue(value),
				Reason: fmt.Sprintf("Invalid value for %s: %s", name, formatValue(value)),
			}
		}
		values[name] = parsed
	}

	return Reading{
		PH:              values[FeaturePH],
		TDS:             values[FeatureTDS],
		Turbidity:       values[FeatureTurbidity],
		Temperature:     values[FeatureTemperature],
		DissolvedOxygen: values[FeatureDissolvedOxygen],
	}, nil
}

func toFloat(value any) (float64, error) {
	var f float64
	switch v := value.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(payload)
}
