package storage

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/happyhackingspace/dil/internal/textutil"
)

const (
	samplesFile     = "samples.jsonl"
	runsFile        = "training_runs.jsonl"
	predictionsFile = "predictions.jsonl"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1 << 20

// Storage wraps a data folder holding JSON Lines files.
type Storage struct {
	Folder string

	mu sync.Mutex
}

// NewStorage creates a Storage for the given data folder.
func NewStorage(folder string) *Storage {
	return &Storage{Folder: folder}
}

// IterOptions controls sample iteration behavior.
type IterOptions struct {
	DropDuplicates      bool
	DropUnapproved      bool
	NormalizeWhitespace bool
	// Languages keeps only samples labeled with one of these codes when non-empty.
	Languages []string
	Verbose   bool
}

// DefaultIterOptions returns the default options for iterating samples.
func DefaultIterOptions() IterOptions {
	return IterOptions{
		DropDuplicates:      true,
		DropUnapproved:      true,
		NormalizeWhitespace: true,
	}
}

// IterSamples reads samples.jsonl and applies opts.
func (s *Storage) IterSamples(opts IterOptions) ([]Sample, error) {
	f, err := os.Open(filepath.Join(s.Folder, samplesFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", samplesFile, ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	var samples []Sample
	dropped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var sample Sample
		if err := json.Unmarshal([]byte(raw), &sample); err != nil {
			slog.Warn("Cannot parse sample", "line", line, "error", err)
			dropped++
			continue
		}
		if opts.NormalizeWhitespace {
			sample.Text = strings.TrimSpace(textutil.NormalizeWhitespaces(sample.Text))
		}
		if textutil.IsBlank(sample.Text) || sample.Language == "" {
			dropped++
			continue
		}
		if opts.DropUnapproved && !sample.Approved {
			dropped++
			continue
		}
		if len(opts.Languages) > 0 && !slices.Contains(opts.Languages, sample.Language) {
			dropped++
			continue
		}
		// Deduplication by label and content hash
		if opts.DropDuplicates {
			hash := fmt.Sprintf("%x", md5.Sum([]byte(sample.Language+"\x00"+sample.Text)))
			if seen[hash] {
				dropped++
				continue
			}
			seen[hash] = true
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", samplesFile, err)
	}

	if opts.Verbose {
		slog.Info("Loaded samples", "kept", len(samples), "dropped", dropped)
	}
	return samples, nil
}

// ApprovedSamples returns deduplicated approved samples.
func (s *Storage) ApprovedSamples(ctx context.Context) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.IterSamples(DefaultIterOptions())
}

// AppendSample adds a sample to samples.jsonl.
func (s *Storage) AppendSample(sample Sample) error {
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now().UTC()
	}
	return s.appendJSON(samplesFile, sample)
}

// SaveTrainingRun appends run to training_runs.jsonl.
func (s *Storage) SaveTrainingRun(ctx context.Context, run TrainingRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run.TrainedAt.IsZero() {
		run.TrainedAt = time.Now().UTC()
	}
	return s.appendJSON(runsFile, run)
}

// TrainingRuns returns every recorded training run, oldest first.
func (s *Storage) TrainingRuns() ([]TrainingRun, error) {
	return readAll[TrainingRun](filepath.Join(s.Folder, runsFile))
}

// LatestTrainingRun returns the most recent training run.
func (s *Storage) LatestTrainingRun() (TrainingRun, error) {
	runs, err := s.TrainingRuns()
	if err != nil {
		return TrainingRun{}, err
	}
	if len(runs) == 0 {
		return TrainingRun{}, fmt.Errorf("training run: %w", ErrNotFound)
	}
	return runs[len(runs)-1], nil
}

// SavePrediction appends p to predictions.jsonl.
func (s *Storage) SavePrediction(ctx context.Context, p Prediction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return s.appendJSON(predictionsFile, p)
}

// Predictions returns every saved prediction, oldest first.
func (s *Storage) Predictions() ([]Prediction, error) {
	return readAll[Prediction](filepath.Join(s.Folder, predictionsFile))
}

func (s *Storage) appendJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.Folder, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.Folder, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readAll[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, v)
	}
	return out, scanner.Err()
}

// GetDomain extracts the domain name from a URL or e-mail address (for grouped cross-validation).
func GetDomain(rawURL string) string {
	// Extract host from URL
	host := rawURL
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, "/"); idx >= 0 {
		host = host[:idx]
	}
	if idx := strings.LastIndex(host, "@"); idx >= 0 {
		host = host[idx+1:]
	}
	if idx := strings.Index(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	host = strings.ToLower(host)

	// Use publicsuffix to find the eTLD+1, then extract just the domain
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	// domain is like "example.co.uk", we want just "example"
	if idx := strings.Index(domain, "."); idx >= 0 {
		return domain[:idx]
	}
	return domain
}
