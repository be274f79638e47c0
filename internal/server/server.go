// Package server exposes a Handle over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/happyhackingspace/dil"
	"github.com/happyhackingspace/dil/classifier"
	"github.com/happyhackingspace/dil/internal/metrics"
	"github.com/happyhackingspace/dil/internal/storage"
)

// Options configures a Server.
type Options struct {
	Source      storage.SampleSource
	Runs        storage.TrainingRunSink
	Predictions storage.PredictionSink
	Train       dil.TrainConfig
	// ModelPath, when set, receives every successfully retrained model.
	ModelPath string
	Metrics   *metrics.Metrics
	// Gatherer serves /metrics. Nil selects the default registry.
	Gatherer prometheus.Gatherer
}

// Server serves predictions and retrains the shared detector.
type Server struct {
	// retrainMu serializes Retrain so each run saves the model it produced.
	retrainMu sync.Mutex
	handle    *dil.Handle
	opts      Options
	engine    *gin.Engine
	cron      *cron.Cron
}

// New creates a server around h.
func New(h *dil.Handle, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Metrics != nil {
		opts.Train.Observer = opts.Metrics
	}
	s := &Server{
		handle: h,
		opts:   opts,
		engine: gin.New(),
		cron:   cron.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery())
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api", newResponse())
	api.POST("/predict", s.predict)
	api.GET("/languages", s.languages)
	api.GET("/model/info", s.modelInfo)
	api.POST("/model/train", s.train)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ScheduleRetrain retrains on the given cron spec (for example "@every 6h").
func (s *Server) ScheduleRetrain(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if _, err := s.Retrain(ctx); err != nil {
			slog.Error("Scheduled retrain failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("retrain schedule %q: %w", spec, err)
	}
	slog.Info("Scheduled retraining", "spec", spec)
	return nil
}

// Retrain retrains the shared detector and saves it to ModelPath on success.
func (s *Server) Retrain(ctx context.Context) (dil.TrainResult, error) {
	if s.opts.Source == nil {
		return dil.TrainResult{}, errors.New("no sample source configured")
	}
	s.retrainMu.Lock()
	defer s.retrainMu.Unlock()

	cfg := s.opts.Train
	res, err := s.handle.Retrain(ctx, s.opts.Source, s.opts.Runs, &cfg)
	if err != nil {
		return res, err
	}
	if res.Status == dil.StatusTrained {
		d := s.handle.Current()
		slog.Info("Model retrained", "run", res.RunID, "accuracy", res.Metrics.Accuracy, "samples", res.SamplesCount)
		if s.opts.ModelPath != "" {
			if err := d.Save(s.opts.ModelPath); err != nil {
				slog.Error("Cannot save retrained model", "path", s.opts.ModelPath, "error", err)
			}
		}
	}
	return res, nil
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.cron.Start()
	defer s.cron.Stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// PredictRequest is the body of POST /api/predict.
type PredictRequest struct {
	Text string `json:"text"`
}

// PredictResponse is the data of POST /api/predict.
type PredictResponse struct {
	Language       string             `json:"predicted_language"`
	LanguageName   string             `json:"language_name"`
	Confidence     float64            `json:"confidence"`
	Scores         map[string]float64 `json:"confidence_scores"`
	ProcessingTime float64            `json:"processing_time"`
}

func (s *Server) predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, err)
		return
	}
	if err := dil.ValidateText(req.Text); err != nil {
		apiError(c, http.StatusBadRequest, err)
		return
	}

	r, err := s.handle.Detect(req.Text)
	if err != nil {
		if errors.Is(err, classifier.ErrNotTrained) {
			apiError(c, http.StatusServiceUnavailable, err)
			return
		}
		apiError(c, http.StatusInternalServerError, err)
		return
	}
	s.opts.Metrics.ObservePrediction(r.Language, r.ProcessingTime)

	scores := make(map[string]float64, len(r.Scores))
	langs := make([]string, len(r.Scores))
	values := make([]float64, len(r.Scores))
	for i, sc := range r.Scores {
		scores[sc.Language] = sc.Score
		langs[i] = sc.Language
		values[i] = sc.Score
	}
	if s.opts.Predictions != nil {
		p := storage.Prediction{
			Text:              req.Text,
			Language:          r.Language,
			Languages:         langs,
			Scores:            values,
			ProcessingSeconds: r.ProcessingTime.Seconds(),
		}
		if err := s.opts.Predictions.SavePrediction(c.Request.Context(), p); err != nil {
			slog.Error("Cannot save prediction", "error", err)
		}
	}

	apiSuccess(c, PredictResponse{
		Language:       r.Language,
		LanguageName:   r.Name,
		Confidence:     r.Confidence,
		Scores:         scores,
		ProcessingTime: r.ProcessingTime.Seconds(),
	})
}

// LanguageInfo describes one supported language.
type LanguageInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *Server) languages(c *gin.Context) {
	codes := s.opts.Train.Languages
	if d := s.handle.Current(); d != nil {
		codes = d.Languages()
	}
	if len(codes) == 0 {
		codes = classifier.DefaultLanguages()
	}
	names := classifier.LanguageNames()
	out := make([]LanguageInfo, len(codes))
	for i, code := range codes {
		out[i] = LanguageInfo{Code: code, Name: names[code]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	apiSuccess(c, out)
}

// ModelInfo is the data of GET /api/model/info.
type ModelInfo struct {
	Ready bool `json:"ready"`
	classifier.Summary
}

func (s *Server) modelInfo(c *gin.Context) {
	d := s.handle.Current()
	if d == nil {
		apiError(c, http.StatusServiceUnavailable, classifier.ErrNotTrained)
		return
	}
	apiSuccess(c, ModelInfo{Ready: d.IsTrained(), Summary: d.Summary()})
}

func (s *Server) train(c *gin.Context) {
	res, err := s.Retrain(c.Request.Context())
	if err != nil {
		if errors.Is(err, classifier.ErrInvalidInput) {
			apiError(c, http.StatusUnprocessableEntity, err)
			return
		}
		apiError(c, http.StatusInternalServerError, err)
		return
	}
	apiSuccess(c, res)
}
