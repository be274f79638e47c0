package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestGetDomain(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://example.org/page", "example"},
		{"https://foo.example.co.uk/path", "example"},
		{"http://www.google.com", "google"},
		{"example.org", "example"},
		{"http://localhost:8080/path", "localhost"},
		{"maria@correo.example.es", "example"},
		{"HTTPS://News.Example.FR/a", "example"},
	}
	for _, tt := range tests {
		got := GetDomain(tt.url)
		if got != tt.want {
			t.Errorf("GetDomain(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func writeSamples(t *testing.T, dir string, lines ...string) {
	t.Helper()
	data := ""
	for _, l := range lines {
		data += l + "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, samplesFile), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIterSamples(t *testing.T) {
	dir := t.TempDir()
	writeSamples(t, dir,
		`{"text":"Hello   world","language":"en","approved":true}`,
		`{"text":"Hello world","language":"en","approved":true}`,
		`{"text":"Hello world","language":"de","approved":true}`,
		`{"text":"Hola mundo","language":"es","approved":false}`,
		`not json`,
		``,
		`{"text":"   ","language":"fr","approved":true}`,
		`{"text":"Bonjour","language":"fr","approved":true,"source":"http://example.fr"}`,
	)
	s := NewStorage(dir)

	samples, err := s.IterSamples(DefaultIterOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3: %+v", len(samples), samples)
	}
	if samples[0].Text != "Hello world" {
		t.Errorf("text = %q, want whitespace normalized", samples[0].Text)
	}
	if samples[2].Source != "http://example.fr" {
		t.Errorf("source = %q", samples[2].Source)
	}

	opts := IterOptions{}
	all, err := s.IterSamples(opts)
	if err != nil {
		t.Fatal(err)
	}
	// blank and malformed lines are always dropped
	if len(all) != 5 {
		t.Errorf("got %d samples without filters, want 5", len(all))
	}

	opts = DefaultIterOptions()
	opts.Languages = []string{"fr"}
	fr, err := s.IterSamples(opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(fr) != 1 || fr[0].Language != "fr" {
		t.Errorf("language filter = %+v", fr)
	}
}

func TestIterSamplesMissing(t *testing.T) {
	s := NewStorage(t.TempDir())
	_, err := s.IterSamples(DefaultIterOptions())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	_, err = s.ApprovedSamples(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendSample(t *testing.T) {
	s := NewStorage(filepath.Join(t.TempDir(), "nested"))
	for _, sample := range []Sample{
		{Text: "Guten Morgen", Language: "de", Approved: true},
		{Text: "Добро утро", Language: "bg", Approved: true},
	} {
		if err := s.AppendSample(sample); err != nil {
			t.Fatal(err)
		}
	}
	samples, err := s.ApprovedSamples(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 || samples[1].Text != "Добро утро" {
		t.Errorf("samples = %+v", samples)
	}
	if samples[0].CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestTrainingRuns(t *testing.T) {
	s := NewStorage(t.TempDir())
	ctx := context.Background()

	if _, err := s.LatestTrainingRun(); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	for i, acc := range []float64{0.5, 0.9} {
		run := TrainingRun{ID: string(rune('a' + i)), Status: "trained", Accuracy: acc, SamplesCount: 10}
		if err := s.SaveTrainingRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := s.TrainingRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	latest, err := s.LatestTrainingRun()
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != "b" || latest.Accuracy != 0.9 || latest.TrainedAt.IsZero() {
		t.Errorf("latest = %+v", latest)
	}
}

func TestSavePrediction(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(dir)
	p := Prediction{Text: "Hola", Language: "es", Languages: []string{"en", "es"}, Scores: []float64{0.2, 0.8}}
	if err := s.SavePrediction(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	got, err := s.Predictions()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Scores[1] != 0.8 {
		t.Errorf("predictions = %+v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SavePrediction(ctx, p); err == nil {
		t.Error("expected error on canceled context")
	}
}
