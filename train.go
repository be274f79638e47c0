package dil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/happyhackingspace/dil/classifier"
	"github.com/happyhackingspace/dil/internal/storage"
)

// DefaultMinSamples is the smallest batch the driver trains on.
const DefaultMinSamples = 10

// TrainStatus is the outcome of a training attempt.
type TrainStatus string

const (
	StatusTrained TrainStatus = "trained"
	// StatusSkipped means there was not enough data; nothing changed.
	StatusSkipped TrainStatus = "skipped"
	StatusFailed  TrainStatus = "failed"
)

// TrainObserver receives the outcome of every training attempt.
type TrainObserver interface {
	ObserveTraining(status string, d time.Duration, accuracy float64, samples int)
}

// TrainConfig holds configuration for training.
type TrainConfig struct {
	// Languages is the closed label set. Empty selects the default languages.
	Languages  []string
	Classifier classifier.Config
	// MinSamples is the minimum number of approved samples. Zero selects DefaultMinSamples.
	MinSamples int
	// WarmStart continues from the current model in Handle.Retrain instead of starting fresh.
	WarmStart bool
	Verbose   bool
	Observer  TrainObserver
}

// DefaultTrainConfig returns the default training configuration.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Languages:  classifier.DefaultLanguages(),
		Classifier: classifier.DefaultConfig(),
		MinSamples: DefaultMinSamples,
	}
}

func (c TrainConfig) withDefaults() TrainConfig {
	if len(c.Languages) == 0 {
		c.Languages = classifier.DefaultLanguages()
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	return c
}

// TrainResult describes a training attempt. Metrics is nil unless Status is StatusTrained.
type TrainResult struct {
	RunID        string              `json:"run_id"`
	Status       TrainStatus         `json:"status"`
	Metrics      *classifier.Metrics `json:"metrics,omitempty"`
	SamplesCount int                 `json:"samples_count"`
	// Missing lists configured languages without any sample.
	Missing []string `json:"missing,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Train trains a new detector on the approved samples of source.
//
// When there are fewer than MinSamples samples or a configured language has no
// sample, Train returns a nil detector with StatusSkipped and no error.
// Successful runs are recorded in sink when it is not nil; recording failures are
// logged and do not fail the run.
func Train(ctx context.Context, source SampleSource, sink TrainingRunSink, config *TrainConfig) (*Detector, TrainResult, error) {
	cfg := DefaultTrainConfig()
	if config != nil {
		cfg = config.withDefaults()
	}
	return train(ctx, source, sink, cfg, nil)
}

// TrainSamples trains a new detector on samples with no minimum-size or coverage policy.
func TrainSamples(samples []Sample, config *TrainConfig) (*Detector, classifier.Metrics, error) {
	cfg := DefaultTrainConfig()
	if config != nil {
		cfg = config.withDefaults()
	}
	d, err := NewDetector(cfg.Languages, cfg.Classifier)
	if err != nil {
		return nil, classifier.Metrics{}, err
	}
	texts, labels := splitSamples(samples)
	m, err := d.c.Train(texts, labels)
	if err != nil {
		return nil, classifier.Metrics{}, fmt.Errorf("dil: %w", err)
	}
	return d, m, nil
}

func train(ctx context.Context, source SampleSource, sink TrainingRunSink, cfg TrainConfig, base *Detector) (*Detector, TrainResult, error) {
	res := TrainResult{RunID: uuid.NewString()}
	fail := func(err error) (*Detector, TrainResult, error) {
		res.Status = StatusFailed
		res.Reason = err.Error()
		observe(cfg.Observer, res)
		return nil, res, fmt.Errorf("dil: %w", err)
	}

	samples, err := source.ApprovedSamples(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fail(fmt.Errorf("load samples: %w", err))
	}
	res.SamplesCount = len(samples)

	if len(samples) < cfg.MinSamples {
		res.Status = StatusSkipped
		res.Reason = fmt.Sprintf("need at least %d samples, have %d", cfg.MinSamples, len(samples))
		slog.Warn("Not enough samples for training", "samples", len(samples), "min", cfg.MinSamples)
		observe(cfg.Observer, res)
		return nil, res, nil
	}

	texts, labels := splitSamples(samples)
	if missing := lo.Without(cfg.Languages, lo.Uniq(labels)...); len(missing) > 0 {
		res.Status = StatusSkipped
		res.Missing = missing
		res.Reason = fmt.Sprintf("no samples for %v", missing)
		slog.Warn("Missing languages in training data", "missing", missing)
		observe(cfg.Observer, res)
		return nil, res, nil
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	d := base
	if d == nil {
		if d, err = NewDetector(cfg.Languages, cfg.Classifier); err != nil {
			return fail(err)
		}
	}
	if cfg.Verbose {
		slog.Info("Training detector", "samples", len(samples), "languages", cfg.Languages, "warm_start", base != nil)
	}
	m, err := d.c.Train(texts, labels)
	if err != nil {
		return fail(err)
	}
	res.Status = StatusTrained
	res.Metrics = &m
	observe(cfg.Observer, res)

	if sink != nil {
		run := TrainingRun{
			ID:              res.RunID,
			Status:          string(res.Status),
			SamplesCount:    m.SamplesCount,
			Accuracy:        m.Accuracy,
			ErrorRate:       m.ErrorRate,
			Loss:            m.Loss,
			Epochs:          m.EpochsCompleted,
			LearningRate:    m.LearningRate,
			FeatureCount:    m.FeatureCount,
			TrainingSeconds: m.TrainingTime.Seconds(),
			Notes:           fmt.Sprintf("Automatic training with %d samples", len(samples)),
		}
		if err := sink.SaveTrainingRun(ctx, run); err != nil {
			slog.Error("Cannot record training run", "run", res.RunID, "error", err)
		}
	}
	return d, res, nil
}

func splitSamples(samples []Sample) ([]string, []string) {
	texts := lo.Map(samples, func(s Sample, _ int) string { return s.Text })
	labels := lo.Map(samples, func(s Sample, _ int) string { return s.Language })
	return texts, labels
}

func observe(o TrainObserver, res TrainResult) {
	if o == nil {
		return
	}
	var (
		d   time.Duration
		acc float64
	)
	if res.Metrics != nil {
		d = res.Metrics.TrainingTime
		acc = res.Metrics.Accuracy
	}
	o.ObserveTraining(string(res.Status), d, acc, res.SamplesCount)
}
