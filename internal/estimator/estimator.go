// Package estimator provides the pay-prediction model behind the predictor.
// The concrete algorithm is hidden behind the Estimator interface so it can
// be swapped without touching the retrain scheduling logic.
package estimator

import "errors"

var (
	// ErrNoTrainingData is returned by Fit when no usable samples remain
	// after preprocessing (empty input, or no sample with a positive pay).
	ErrNoTrainingData = errors.New("no usable training data")

	// ErrNotTrained is returned by Predict when the model has never been
	// fitted or loaded.
	ErrNotTrained = errors.New("model not trained")
)

// Sample is one labeled training row: the job's categorical type, the hours
// worked, and the recorded pay.
type Sample struct {
	JobType string
	Hours   float64
	Pay     float64
}

// Features is the unlabeled input Predict scores.
type Features struct {
	JobType string
	Hours   float64
}

// Estimator abstracts a regression model over (job type, hours) -> pay.
// Fit replaces any previous model state; a failed Fit leaves the previous
// state intact. MarshalBinary/UnmarshalBinary serialize the trained model
// for persistence.
type Estimator interface {
	Fit(samples []Sample) error
	Predict(features []Features) ([]float64, error)
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}
