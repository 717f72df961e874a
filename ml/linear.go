package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// LinearModel is a logistic regression classifier. Scores at or above
// Threshold are class 1, the rest class 0.
type LinearModel struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Threshold float64   `json:"threshold"`
}

func (m *LinearModel) Predict(features []float64) (int, float64, error) {
	if len(m.Weights) == 0 {
		return 0, 0, errors.New("model not loaded")
	}
	if len(features) != len(m.Weights) {
		return 0, 0, fmt.Errorf("expected %d features, got %d", len(m.Weights), len(features))
	}
	z := m.Intercept
	for i, w := range m.Weights {
		z += w * features[i]
	}
	p := 1 / (1 + math.Exp(-z))
	if p >= m.Threshold {
		return 1, p, nil
	}
	return 0, 1 - p, nil
}

func (m *LinearModel) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded LinearModel
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return fmt.Errorf("parse linear model %s: %w", path, err)
	}
	if len(loaded.Weights) == 0 {
		return fmt.Errorf("linear model %s has no weights", path)
	}
	if loaded.Threshold <= 0 || loaded.Threshold >= 1 {
		loaded.Threshold = 0.5
	}
	*m = loaded
	return nil
}
