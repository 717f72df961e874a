package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	ScalerTypeStandard = "standard"
	ScalerTypeMinMax   = "minmax"
)

// StandardScaler centres each feature on Mean and divides by Scale.
// A zero scale leaves the centred value untouched.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Mean) || len(features) != len(s.Scale) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(features))
	}
	result := make([]float64, len(features))
	for i, value := range features {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		result[i] = (value - s.Mean[i]) / scale
	}
	return result, nil
}

// MinMaxScaler maps each feature onto [0, 1] using the training range.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

func (s *MinMaxScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Min) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Min), len(features))
	}
	return NormalizeVector(features, s.Min, s.Max)
}

func NormalizeFeature(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	return (value - min) / (max - min)
}

func NormalizeVector(values []float64, mins []float64, maxs []float64) ([]float64, error) {
	if len(values) != len(mins) || len(values) != len(maxs) {
		return nil, errors.New("values/mins/maxs length mismatch")
	}
	result := make([]float64, len(values))
	for i := range values {
		result[i] = NormalizeFeature(values[i], mins[i], maxs[i])
	}
	return result, nil
}

type scalerFile struct {
	Type  string    `json:"type"`
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
	Min   []float64 `json:"min"`
	Max   []float64 `json:"max"`
}

// LoadScaler reads a JSON scaler artifact. The type field selects the
// transform and defaults to standard.
func LoadScaler(path string) (Scaler, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file scalerFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("parse scaler %s: %w", path, err)
	}

	switch file.Type {
	case ScalerTypeStandard, "":
		if len(file.Mean) == 0 || len(file.Mean) != len(file.Scale) {
			return nil, fmt.Errorf("scaler %s: mean/scale length mismatch", path)
		}
		return &StandardScaler{Mean: file.Mean, Scale: file.Scale}, nil
	case ScalerTypeMinMax:
		if len(file.Min) == 0 || len(file.Min) != len(file.Max) {
			return nil, fmt.Errorf("scaler %s: min/max length mismatch", path)
		}
		return &MinMaxScaler{Min: file.Min, Max: file.Max}, nil
	default:
		return nil, fmt.Errorf("scaler %s: unsupported type %q", path, file.Type)
	}
}
