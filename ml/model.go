package ml

// Classifier scores an ordered feature vector. The int result is the class
// label, the float64 result the model's confidence in it.
type Classifier interface {
	Predict(features []float64) (int, float64, error)
}

// Scaler is a deterministic transform applied to a feature vector before it
// is scored.
type Scaler interface {
	Transform(features []float64) ([]float64, error)
}
