// Package storage provides labeled text samples for training and records
// training runs and predictions.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested data does not exist.
var ErrNotFound = errors.New("not found")

// Sample is one labeled text submitted for training.
type Sample struct {
	Text     string `json:"text" db:"text_sample"`
	Language string `json:"language" db:"language"`
	// Source identifies where the text came from (a URL or submitter address);
	// it groups samples during cross-validation.
	Source     string    `json:"source,omitempty" db:"source"`
	Approved   bool      `json:"approved" db:"is_approved"`
	Confidence float64   `json:"confidence,omitempty" db:"confidence"`
	CreatedAt  time.Time `json:"created_at,omitzero" db:"created_at"`
}

// TrainingRun records the outcome of one training attempt.
type TrainingRun struct {
	ID              string    `json:"id" db:"run_id"`
	Status          string    `json:"status" db:"status"`
	SamplesCount    int       `json:"samples_count" db:"samples_count"`
	Accuracy        float64   `json:"accuracy" db:"accuracy"`
	ErrorRate       float64   `json:"error_rate" db:"error_rate"`
	Loss            float64   `json:"loss" db:"loss"`
	Epochs          int       `json:"epochs" db:"epochs"`
	LearningRate    float64   `json:"learning_rate" db:"learning_rate"`
	FeatureCount    int       `json:"feature_count" db:"feature_count"`
	TrainingSeconds float64   `json:"training_time" db:"training_time"`
	Notes           string    `json:"notes,omitempty" db:"notes"`
	TrainedAt       time.Time `json:"training_date" db:"training_date"`
}

// Prediction records one served prediction. Scores are aligned to Languages.
type Prediction struct {
	Text              string    `json:"input_text" db:"input_text"`
	Language          string    `json:"predicted_language" db:"predicted_language"`
	Languages         []string  `json:"languages" db:"-"`
	Scores            []float64 `json:"confidence_scores" db:"-"`
	ProcessingSeconds float64   `json:"processing_time" db:"processing_time"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// SampleSource supplies approved training samples.
type SampleSource interface {
	ApprovedSamples(ctx context.Context) ([]Sample, error)
}

// TrainingRunSink persists training outcomes.
type TrainingRunSink interface {
	SaveTrainingRun(ctx context.Context, run TrainingRun) error
}

// PredictionSink persists served predictions.
type PredictionSink interface {
	SavePrediction(ctx context.Context, p Prediction) error
}
