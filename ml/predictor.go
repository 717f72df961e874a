package ml

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Label is the potability verdict.
type Label string

const (
	Potable    Label = "Potable"
	NotPotable Label = "Not Potable"
)

// LabelFor maps a model class onto a verdict. Class 1 is potable.
func LabelFor(class int) Label {
	if class == 1 {
		return Potable
	}
	return NotPotable
}

// Predictor runs feature vectors through the scaler and model.
type Predictor struct {
	source ArtifactSource
	logger *zap.Logger
}

func NewPredictor(source ArtifactSource, logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{
		source: source,
		logger: logger.With(zap.String("component", "predictor")),
	}
}

func (p *Predictor) Predict(ctx context.Context, features []float64) (Label, error) {
	if err := ctx.Err(); err != nil {
		return "", &InferenceError{Op: "predict", Err: err}
	}
	if len(features) != len(FeatureNames()) {
		return "", &InferenceError{
			Op:  "predict",
			Err: fmt.Errorf("expected %d features, got %d", len(FeatureNames()), len(features)),
		}
	}
	if p.source == nil {
		return "", &InferenceError{Op: "load artifacts", Err: fmt.Errorf("no artifact source")}
	}

	artifacts, err := p.source.Artifacts()
	if err != nil {
		return "", &InferenceError{Op: "load artifacts", Err: err}
	}

	input := features
	if artifacts.Scaler != nil {
		input, err = artifacts.Scaler.Transform(features)
		if err != nil {
			return "", &InferenceError{Op: "scale features", Err: err}
		}
	}

	class, confidence, err := artifacts.Model.Predict(input)
	if err != nil {
		return "", &InferenceError{Op: "score features", Err: err}
	}

	label := LabelFor(class)
	p.logger.Debug("prediction",
		zap.Float64s("features", features),
		zap.Int("class", class),
		zap.Float64("confidence", confidence),
		zap.String("label", string(label)),
	)
	return label, nil
}
