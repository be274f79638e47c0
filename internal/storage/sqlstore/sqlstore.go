// Package sqlstore implements the sample source and the training and prediction
// sinks on PostgreSQL.
package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/happyhackingspace/dil/internal/storage"
	"github.com/happyhackingspace/dil/internal/textutil"
)

const (
	TableSurveys     = "surveys"
	TableTraining    = "model_training"
	TablePredictions = "predictions"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const schema = `
CREATE TABLE IF NOT EXISTS surveys (
	id          BIGSERIAL PRIMARY KEY,
	text_sample TEXT NOT NULL,
	language    VARCHAR(5) NOT NULL,
	source      TEXT,
	confidence  DOUBLE PRECISION DEFAULT 1.0,
	is_approved BOOLEAN DEFAULT TRUE,
	created_at  TIMESTAMPTZ DEFAULT now()
);
CREATE TABLE IF NOT EXISTS model_training (
	id            BIGSERIAL PRIMARY KEY,
	run_id        UUID NOT NULL,
	status        VARCHAR(16) NOT NULL,
	training_date TIMESTAMPTZ DEFAULT now(),
	samples_count INTEGER,
	accuracy      DOUBLE PRECISION,
	error_rate    DOUBLE PRECISION,
	loss          DOUBLE PRECISION,
	epochs        INTEGER,
	learning_rate DOUBLE PRECISION,
	feature_count INTEGER,
	training_time DOUBLE PRECISION,
	notes         TEXT
);
CREATE TABLE IF NOT EXISTS predictions (
	id                 BIGSERIAL PRIMARY KEY,
	input_text         TEXT NOT NULL,
	predicted_language VARCHAR(5) NOT NULL,
	languages          TEXT[],
	confidence_scores  DOUBLE PRECISION[],
	processing_time    DOUBLE PRECISION,
	created_at         TIMESTAMPTZ DEFAULT now()
);`

func ErrorSqlBuild(err error) error {
	return fmt.Errorf("failed to build sql query, %w", err)
}

// Store reads samples from and writes runs and predictions to PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL using dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db), nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func approvedSamplesQuery() sq.SelectBuilder {
	return psql.Select("text_sample", "language", "COALESCE(source, '') AS source", "is_approved",
		"COALESCE(confidence, 1.0) AS confidence", "created_at").
		From(TableSurveys).
		Where(sq.Eq{"is_approved": true}).
		OrderBy("id")
}

// ApprovedSamples returns every approved survey sample, normalized and
// deduplicated the same way the file store loads them.
func (s *Store) ApprovedSamples(ctx context.Context) ([]storage.Sample, error) {
	queryString, args, err := approvedSamplesQuery().ToSql()
	if err != nil {
		return nil, ErrorSqlBuild(err)
	}
	var samples []storage.Sample
	if err := s.db.SelectContext(ctx, &samples, queryString, args...); err != nil {
		return nil, err
	}
	return cleanSamples(samples), nil
}

// cleanSamples collapses whitespace, drops blank rows and keeps the first
// occurrence of each language and text pair.
func cleanSamples(samples []storage.Sample) []storage.Sample {
	kept := lo.FilterMap(samples, func(sample storage.Sample, _ int) (storage.Sample, bool) {
		sample.Text = strings.TrimSpace(textutil.NormalizeWhitespaces(sample.Text))
		return sample, !textutil.IsBlank(sample.Text) && sample.Language != ""
	})
	return lo.UniqBy(kept, func(sample storage.Sample) string {
		return sample.Language + "\x00" + sample.Text
	})
}

func insertSampleQuery(sample storage.Sample) sq.InsertBuilder {
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now().UTC()
	}
	return psql.Insert(TableSurveys).
		Columns("text_sample", "language", "source", "confidence", "is_approved", "created_at").
		Values(sample.Text, sample.Language, sample.Source, sample.Confidence, sample.Approved, sample.CreatedAt)
}

// AddSample inserts a survey sample.
func (s *Store) AddSample(ctx context.Context, sample storage.Sample) error {
	queryString, args, err := insertSampleQuery(sample).ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}
	_, err = s.db.ExecContext(ctx, queryString, args...)
	return err
}

func insertTrainingRunQuery(run storage.TrainingRun) sq.InsertBuilder {
	if run.TrainedAt.IsZero() {
		run.TrainedAt = time.Now().UTC()
	}
	return psql.Insert(TableTraining).
		Columns("run_id", "status", "training_date", "samples_count", "accuracy", "error_rate", "loss",
			"epochs", "learning_rate", "feature_count", "training_time", "notes").
		Values(run.ID, run.Status, run.TrainedAt, run.SamplesCount, run.Accuracy, run.ErrorRate, run.Loss,
			run.Epochs, run.LearningRate, run.FeatureCount, run.TrainingSeconds, run.Notes)
}

// SaveTrainingRun inserts a model_training row.
func (s *Store) SaveTrainingRun(ctx context.Context, run storage.TrainingRun) error {
	queryString, args, err := insertTrainingRunQuery(run).ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}
	_, err = s.db.ExecContext(ctx, queryString, args...)
	return err
}

func latestTrainingRunQuery() sq.SelectBuilder {
	return psql.Select("run_id", "status", "training_date", "samples_count", "accuracy", "error_rate", "loss",
		"epochs", "learning_rate", "feature_count", "training_time", "COALESCE(notes, '') AS notes").
		From(TableTraining).
		OrderBy("training_date DESC").
		Limit(1)
}

// LatestTrainingRun returns the most recent model_training row.
func (s *Store) LatestTrainingRun(ctx context.Context) (storage.TrainingRun, error) {
	queryString, args, err := latestTrainingRunQuery().ToSql()
	if err != nil {
		return storage.TrainingRun{}, ErrorSqlBuild(err)
	}
	var runs []storage.TrainingRun
	if err := s.db.SelectContext(ctx, &runs, queryString, args...); err != nil {
		return storage.TrainingRun{}, err
	}
	if len(runs) == 0 {
		return storage.TrainingRun{}, fmt.Errorf("training run: %w", storage.ErrNotFound)
	}
	return runs[0], nil
}

func insertPredictionQuery(p storage.Prediction) sq.InsertBuilder {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return psql.Insert(TablePredictions).
		Columns("input_text", "predicted_language", "languages", "confidence_scores", "processing_time", "created_at").
		Values(p.Text, p.Language, pq.StringArray(p.Languages), pq.Float64Array(p.Scores), p.ProcessingSeconds, p.CreatedAt)
}

// SavePrediction inserts a predictions row with scores aligned to the language order.
func (s *Store) SavePrediction(ctx context.Context, p storage.Prediction) error {
	queryString, args, err := insertPredictionQuery(p).ToSql()
	if err != nil {
		return ErrorSqlBuild(err)
	}
	_, err = s.db.ExecContext(ctx, queryString, args...)
	return err
}
