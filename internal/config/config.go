// Package config loads dil settings from TOML files and DIL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/happyhackingspace/dil/classifier"
)

// Config is the top-level configuration.
type Config struct {
	Languages     []string          `toml:"languages"`
	LanguageNames map[string]string `toml:"language_names"`
	Training      Training          `toml:"training"`
	Storage       Storage           `toml:"storage"`
	Log           Log               `toml:"log"`
	Server        Server            `toml:"server"`
}

// Training holds classifier hyperparameters and the driver's sample policy.
type Training struct {
	LearningRate    float64 `toml:"learning_rate"`
	MaxEpochs       int     `toml:"max_epochs"`
	Tolerance       float64 `toml:"tolerance"`
	CheckpointEvery int     `toml:"checkpoint_every"`
	InitScale       float64 `toml:"init_scale"`
	Seed            uint64  `toml:"seed"`
	MinSamples      int     `toml:"min_samples"`
	WarmStart       bool    `toml:"warm_start"`
}

// Storage selects the sample source and sinks.
type Storage struct {
	Driver string `toml:"driver"` // file or postgres
	Folder string `toml:"folder"`
	DSN    string `toml:"dsn"`
}

type Log struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `toml:"addr"`
	// RetrainSchedule is a cron spec; empty disables scheduled retraining.
	RetrainSchedule string `toml:"retrain_schedule"`
	SavePredictions bool   `toml:"save_predictions"`
}

// Default returns the built-in configuration.
func Default() Config {
	cc := classifier.DefaultConfig()
	return Config{
		Languages:     classifier.DefaultLanguages(),
		LanguageNames: classifier.LanguageNames(),
		Training: Training{
			LearningRate:    cc.LearningRate,
			MaxEpochs:       cc.MaxEpochs,
			Tolerance:       cc.Tolerance,
			CheckpointEvery: cc.CheckpointEvery,
			InitScale:       cc.InitScale,
			MinSamples:      10,
		},
		Storage: Storage{Driver: "file", Folder: "data"},
		Log:     Log{Level: "info"},
		Server:  Server{Addr: ":8080"},
	}
}

// Load overlays the TOML file at path on Default. An empty path returns Default.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := toml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// FromENV overlays DIL_* environment variables that are set.
func (c *Config) FromENV() {
	if v := os.Getenv("DIL_LANGUAGES"); v != "" {
		var langs []string
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				langs = append(langs, l)
			}
		}
		c.Languages = langs
	}
	c.Training.FromENV()
	c.Storage.FromENV()
	c.Log.FromENV()
	c.Server.FromENV()
}

func (t *Training) FromENV() {
	envFloat("DIL_LEARNING_RATE", &t.LearningRate)
	envInt("DIL_MAX_EPOCHS", &t.MaxEpochs)
	envFloat("DIL_TOLERANCE", &t.Tolerance)
	envInt("DIL_MIN_SAMPLES", &t.MinSamples)
	if v := os.Getenv("DIL_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			t.Seed = n
		}
	}
}

func (s *Storage) FromENV() {
	envString("DIL_STORAGE_DRIVER", &s.Driver)
	envString("DIL_DATA_DIR", &s.Folder)
	envString("DIL_POSTGRESQL_DSN", &s.DSN)
}

func (l *Log) FromENV() {
	envString("DIL_LOG_LEVEL", &l.Level)
	envString("DIL_LOG_PATH", &l.Path)
}

func (s *Server) FromENV() {
	envString("DIL_ADDR", &s.Addr)
	envString("DIL_RETRAIN_SCHEDULE", &s.RetrainSchedule)
	if v := os.Getenv("DIL_SAVE_PREDICTIONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.SavePredictions = b
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if len(c.Languages) == 0 {
		errs = append(errs, errors.New("at least one language is required"))
	}
	seen := make(map[string]bool)
	for _, l := range c.Languages {
		if seen[l] {
			errs = append(errs, fmt.Errorf("duplicate language %q", l))
		}
		seen[l] = true
	}
	if c.Training.LearningRate <= 0 {
		errs = append(errs, errors.New("learning_rate must be positive"))
	}
	if c.Training.MaxEpochs <= 0 {
		errs = append(errs, errors.New("max_epochs must be positive"))
	}
	if c.Training.MinSamples < 0 {
		errs = append(errs, errors.New("min_samples must not be negative"))
	}
	switch c.Storage.Driver {
	case "file":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	return errors.Join(errs...)
}

// Classifier returns the classifier hyperparameters.
func (t Training) Classifier() classifier.Config {
	return classifier.Config{
		LearningRate:    t.LearningRate,
		MaxEpochs:       t.MaxEpochs,
		Tolerance:       t.Tolerance,
		CheckpointEvery: t.CheckpointEvery,
		InitScale:       t.InitScale,
		Seed:            t.Seed,
	}
}

func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
