package dil

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/happyhackingspace/dil/classifier"
)

// Handle owns the detector shared by a long-lived process.
//
// Readers always see a complete model: Retrain trains into a separate
// instance and swaps it in only after training succeeds. Retrains are
// serialized.
type Handle struct {
	mu  sync.Mutex
	cur atomic.Pointer[Detector]
}

// NewHandle returns a handle serving d, which may be nil.
func NewHandle(d *Detector) *Handle {
	h := &Handle{}
	if d != nil {
		h.cur.Store(d)
	}
	return h
}

// Current returns the served detector, or nil.
func (h *Handle) Current() *Detector {
	return h.cur.Load()
}

// Swap replaces the served detector and returns the previous one.
func (h *Handle) Swap(d *Detector) *Detector {
	return h.cur.Swap(d)
}

// Ready reports whether the served detector is trained.
func (h *Handle) Ready() bool {
	d := h.Current()
	return d != nil && d.IsTrained()
}

func (h *Handle) detector() (*Detector, error) {
	d := h.Current()
	if d == nil || !d.IsTrained() {
		return nil, fmt.Errorf("dil: %w", classifier.ErrNotTrained)
	}
	return d, nil
}

// Predict predicts with the served detector.
func (h *Handle) Predict(text string) (string, error) {
	d, err := h.detector()
	if err != nil {
		return "", err
	}
	return d.Predict(text)
}

// Detect detects with the served detector.
func (h *Handle) Detect(text string) (Result, error) {
	d, err := h.detector()
	if err != nil {
		return Result{}, err
	}
	return d.Detect(text)
}

// Retrain trains a replacement detector from source and swaps it in on success.
// With config.WarmStart the replacement starts from a copy of the served model
// trained with the requested hyperparameters, unless the language set changed.
// Skipped and failed attempts leave the served detector unchanged.
func (h *Handle) Retrain(ctx context.Context, source SampleSource, sink TrainingRunSink, config *TrainConfig) (TrainResult, error) {
	cfg := DefaultTrainConfig()
	if config != nil {
		cfg = config.withDefaults()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var base *Detector
	if cur := h.Current(); cfg.WarmStart && cur != nil && cur.IsTrained() {
		if slices.Equal(cur.Languages(), cfg.Languages) {
			base = &Detector{c: cur.c.CloneWithConfig(cfg.Classifier)}
		} else {
			slog.Warn("Language set changed, training a fresh model",
				"served", cur.Languages(), "requested", cfg.Languages)
		}
	}
	d, res, err := train(ctx, source, sink, cfg, base)
	if err != nil || res.Status != StatusTrained {
		return res, err
	}
	h.cur.Store(d)
	return res, nil
}
