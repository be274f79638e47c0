// Package dil identifies the language of short texts.
//
// A Detector wraps a one-vs-all classifier over a closed set of languages
// (English, Spanish, French, Bulgarian and German by default) trained on
// labeled samples rather than a pretrained external model.
//
//	d, _ := dil.New()
//	lang, _ := d.Predict("Добро утро")          // "bg"
//	dist, _ := d.PredictProba("Merci beaucoup")
//	for _, s := range dist.Scores() {
//	    fmt.Println(s.Language, s.Score)
//	}
package dil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/happyhackingspace/dil/classifier"
	"github.com/happyhackingspace/dil/internal/storage"
	"github.com/happyhackingspace/dil/internal/textutil"
)

// ModelFile is the default model file name.
const ModelFile = "model.json"

// Text length bounds accepted by ValidateText, in runes.
const (
	MinTextLength = 5
	MaxTextLength = 5000
)

// ErrInvalidText is returned by ValidateText.
var ErrInvalidText = errors.New("invalid text")

type (
	// Sample is one labeled training text.
	Sample = storage.Sample
	// TrainingRun records the outcome of one training attempt.
	TrainingRun = storage.TrainingRun
	// Prediction records one served prediction.
	Prediction = storage.Prediction
	// SampleSource supplies approved training samples.
	SampleSource = storage.SampleSource
	// TrainingRunSink persists training outcomes.
	TrainingRunSink = storage.TrainingRunSink
	// PredictionSink persists served predictions.
	PredictionSink = storage.PredictionSink
)

// Detector wraps a language classifier.
type Detector struct {
	c *classifier.Classifier
}

// Result holds the outcome of a single detection.
type Result struct {
	Language       string                     `json:"language"`
	Name           string                     `json:"name,omitempty"`
	Confidence     float64                    `json:"confidence"`
	Scores         []classifier.LanguageScore `json:"scores"`
	ProcessingTime time.Duration              `json:"processing_time"`
}

// NewDetector creates an untrained detector for the given languages.
// Empty languages select the default set.
func NewDetector(languages []string, cfg classifier.Config) (*Detector, error) {
	if len(languages) == 0 {
		languages = classifier.DefaultLanguages()
	}
	c, err := classifier.New(languages, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("dil: %w", err)
	}
	return &Detector{c: c}, nil
}

// New loads the detector from "model.json", searching the current directory
// and parent directories up to the module root (where go.mod lives), then ModelDir.
func New() (*Detector, error) {
	path, err := findModel(ModelFile)
	if err != nil {
		return nil, fmt.Errorf("dil: %w", err)
	}
	return Load(path)
}

func findModel(name string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		// Stop at module root
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if path := filepath.Join(ModelDir(), name); fileExists(path) {
		return path, nil
	}
	return "", fmt.Errorf("%s not found", name)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ModelDir returns the per-user directory where downloaded models are kept.
func ModelDir() string {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "dil")
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "dil")
}

// Load loads a trained detector from a model file (.json, .msgpack or .mpk).
func Load(path string) (*Detector, error) {
	c, err := classifier.LoadModel(path)
	if err != nil {
		return nil, fmt.Errorf("dil: %w", err)
	}
	return &Detector{c: c}, nil
}

// Save writes the detector to a model file, creating parent directories.
func (d *Detector) Save(path string) error {
	if d == nil || d.c == nil {
		return fmt.Errorf("dil: detector not initialized")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("dil: %w", err)
		}
	}
	if err := classifier.SaveModel(d.c, path); err != nil {
		return fmt.Errorf("dil: %w", err)
	}
	return nil
}

// Classifier returns the underlying classifier.
func (d *Detector) Classifier() *classifier.Classifier {
	return d.c
}

// Languages returns the configured language codes.
func (d *Detector) Languages() []string {
	return d.c.Languages()
}

// FeatureNames returns the feature names in vector order.
func (d *Detector) FeatureNames() []string {
	return d.c.FeatureNames()
}

// IsTrained reports whether the detector can predict.
func (d *Detector) IsTrained() bool {
	return d.c.IsTrained()
}

// Predict returns the most probable language code of text.
func (d *Detector) Predict(text string) (string, error) {
	lang, err := d.c.Predict(text)
	if err != nil {
		return "", fmt.Errorf("dil: %w", err)
	}
	return lang, nil
}

// PredictProba returns the probability of each language for text.
func (d *Detector) PredictProba(text string) (classifier.Distribution, error) {
	dist, err := d.c.PredictProba(text)
	if err != nil {
		return classifier.Distribution{}, fmt.Errorf("dil: %w", err)
	}
	return dist, nil
}

// Detect returns the predicted language with its scores and timing.
func (d *Detector) Detect(text string) (Result, error) {
	start := time.Now()
	dist, err := d.PredictProba(text)
	if err != nil {
		return Result{}, err
	}
	lang, p := dist.Best()
	return Result{
		Language:       lang,
		Name:           classifier.LanguageNames()[lang],
		Confidence:     p,
		Scores:         dist.Scores(),
		ProcessingTime: time.Since(start),
	}, nil
}

// FeatureImportance returns |weight| per feature for every language, sorted descending.
func (d *Detector) FeatureImportance() (map[string][]classifier.FeatureWeight, error) {
	fi, err := d.c.FeatureImportance()
	if err != nil {
		return nil, fmt.Errorf("dil: %w", err)
	}
	return fi, nil
}

// Summary reports the model state.
func (d *Detector) Summary() classifier.Summary {
	return d.c.Summary()
}

// ValidateText checks that text is usable for prediction: not blank and
// between MinTextLength and MaxTextLength runes once trimmed.
func ValidateText(text string) error {
	text = strings.TrimSpace(text)
	if textutil.IsBlank(text) {
		return fmt.Errorf("%w: text is empty", ErrInvalidText)
	}
	n := textutil.Len(text)
	if n < MinTextLength {
		return fmt.Errorf("%w: text must be at least %d characters", ErrInvalidText, MinTextLength)
	}
	if n > MaxTextLength {
		return fmt.Errorf("%w: text must be at most %d characters", ErrInvalidText, MaxTextLength)
	}
	return nil
}
