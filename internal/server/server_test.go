package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/dil"
	"github.com/happyhackingspace/dil/internal/metrics"
	"github.com/happyhackingspace/dil/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testLanguages = []string{"en", "es", "fr"}

func seedSamples(t *testing.T, st *storage.Storage) {
	t.Helper()
	data := map[string][]string{
		"en": {"Hello world", "Good morning", "Thank you", "The weather is nice today"},
		"es": {"Hola mundo", "Buenos días", "Gracias", "El tiempo es bueno hoy"},
		"fr": {"Bonjour monde", "Bonjour", "Merci", "Le temps est beau aujourd'hui"},
	}
	for _, lang := range testLanguages {
		for _, text := range data[lang] {
			require.NoError(t, st.AppendSample(storage.Sample{Text: text, Language: lang, Approved: true}))
		}
	}
}

func trainConfig() dil.TrainConfig {
	cfg := dil.DefaultTrainConfig()
	cfg.Languages = testLanguages
	cfg.Classifier.Seed = 42
	return cfg
}

type env struct {
	srv   *Server
	store *storage.Storage
	reg   *prometheus.Registry
	m     *metrics.Metrics
	model string
}

func newEnv(t *testing.T, seed bool) env {
	t.Helper()
	dir := t.TempDir()
	st := storage.NewStorage(dir)
	if seed {
		seedSamples(t, st)
	}
	reg := prometheus.NewRegistry()
	m := metrics.New("dil", reg)
	model := filepath.Join(dir, "model.json")
	srv := New(dil.NewHandle(nil), Options{
		Source:      st,
		Runs:        st,
		Predictions: st,
		Train:       trainConfig(),
		ModelPath:   model,
		Metrics:     m,
		Gatherer:    reg,
	})
	return env{srv: srv, store: st, reg: reg, m: m, model: model}
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var res Response
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w, res
}

func TestPredictBeforeTraining(t *testing.T) {
	e := newEnv(t, false)
	w, res := do(t, e.srv.Handler(), http.MethodPost, "/api/predict", PredictRequest{Text: "Hello world"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, http.StatusServiceUnavailable, res.Meta.Code)
	assert.NotEmpty(t, res.Meta.RequestID)
}

func TestPredictRejectsInvalidText(t *testing.T) {
	e := newEnv(t, false)
	for _, text := range []string{"", "abc", "    "} {
		w, res := do(t, e.srv.Handler(), http.MethodPost, "/api/predict", PredictRequest{Text: text})
		assert.Equal(t, http.StatusBadRequest, w.Code, "%q", text)
		assert.Contains(t, res.Meta.Message, "invalid text")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/predict", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrainSkipped(t *testing.T) {
	e := newEnv(t, false)
	w, res := do(t, e.srv.Handler(), http.MethodPost, "/api/model/train", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := res.Data.(map[string]any)
	assert.Equal(t, "skipped", data["status"])
	assert.False(t, e.srv.handle.Ready())
	assert.Contains(t, scrape(t, e), `dil_training_runs_total{status="skipped"} 1`)
}

func scrape(t *testing.T, e env) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestTrainThenPredict(t *testing.T) {
	e := newEnv(t, true)
	h := e.srv.Handler()

	w, res := do(t, h, http.MethodPost, "/api/model/train", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := res.Data.(map[string]any)
	assert.Equal(t, "trained", data["status"])
	assert.EqualValues(t, 12, data["samples_count"])
	require.True(t, e.srv.handle.Ready())
	assert.FileExists(t, e.model)

	runs, err := e.store.TrainingRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "Automatic training with 12 samples", runs[0].Notes)

	w, res = do(t, h, http.MethodPost, "/api/predict", PredictRequest{Text: "Hola mundo"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pred := res.Data.(map[string]any)
	lang := pred["predicted_language"].(string)
	assert.Contains(t, testLanguages, lang)
	scores := pred["confidence_scores"].(map[string]any)
	assert.Len(t, scores, 3)
	var sum float64
	for _, v := range scores {
		sum += v.(float64)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	preds, err := e.store.Predictions()
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, "Hola mundo", preds[0].Text)
	assert.Equal(t, lang, preds[0].Language)

	body := scrape(t, e)
	assert.Contains(t, body, `dil_predictions_total{language="`+lang+`"} 1`)
	assert.Contains(t, body, `dil_training_runs_total{status="trained"} 1`)

	w, res = do(t, h, http.MethodGet, "/api/model/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := res.Data.(map[string]any)
	assert.Equal(t, true, info["ready"])
	assert.Equal(t, "trained", info["status"])
	assert.EqualValues(t, 110, info["feature_dimension"])
}

func TestConcurrentRetrainSavesServedModel(t *testing.T) {
	e := newEnv(t, true)
	e.srv.opts.Train.WarmStart = true
	e.srv.opts.Train.Classifier.MaxEpochs = 20

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.srv.Retrain(context.Background())
			if assert.NoError(t, err) {
				assert.Equal(t, dil.StatusTrained, res.Status)
			}
		}()
	}
	wg.Wait()

	saved, err := dil.Load(e.model)
	require.NoError(t, err)
	served := e.srv.handle.Current().Classifier().History()
	assert.Equal(t, served, saved.Classifier().History())

	entries, err := os.ReadDir(filepath.Dir(e.model))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestLanguages(t *testing.T) {
	e := newEnv(t, false)
	w, res := do(t, e.srv.Handler(), http.MethodGet, "/api/languages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := res.Data.([]any)
	require.Len(t, list, 3)
	first := list[0].(map[string]any)
	assert.Equal(t, "en", first["code"])
	assert.Equal(t, "English", first["name"])
}

func TestModelInfoUntrained(t *testing.T) {
	e := newEnv(t, false)
	w, _ := do(t, e.srv.Handler(), http.MethodGet, "/api/model/info", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, false)
	e.m.ObserveTraining("skipped", 0, 0, 0)

	assert.Contains(t, scrape(t, e), `dil_training_runs_total{status="skipped"} 1`)
}

func TestScheduleRetrain(t *testing.T) {
	e := newEnv(t, false)
	assert.NoError(t, e.srv.ScheduleRetrain("@every 1h"))
	assert.Error(t, e.srv.ScheduleRetrain("not a schedule"))
}

func TestRunShutsDown(t *testing.T) {
	e := newEnv(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.srv.Run(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
