package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/happyhackingspace/dil"
	"github.com/happyhackingspace/dil/internal/metrics"
	"github.com/happyhackingspace/dil/internal/server"
)

func (c *CLI) newServeCommand() *cobra.Command {
	var modelPath string
	var addr string
	var dataFolder string
	var trainOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the detection HTTP API",
		Example: `  dil serve --addr :8080
  dil serve --model model.json --train
  DIL_RETRAIN_SCHEDULE="@every 6h" dil serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = c.cfg.Server.Addr
			}
			if !c.verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			st, err := c.openStores(ctx, dataFolder)
			if err != nil {
				return err
			}
			defer func() { _ = st.close() }()

			handle := dil.NewHandle(loadServedModel(modelPath))

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			opts := server.Options{
				Source:    st.source,
				Runs:      st.runs,
				Train:     c.trainConfig(),
				ModelPath: modelPath,
				Metrics:   metrics.New("dil", reg),
				Gatherer:  reg,
			}
			if c.cfg.Server.SavePredictions {
				opts.Predictions = st.predictions
			}
			srv := server.New(handle, opts)

			if trainOnStart || !handle.Ready() {
				retrainOnce(ctx, srv)
			}
			if spec := c.cfg.Server.RetrainSchedule; spec != "" {
				if err := srv.ScheduleRetrain(spec); err != nil {
					return err
				}
			}
			return srv.Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Model file to serve and to overwrite after retraining")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&dataFolder, "data-folder", "", "Path to sample data folder (file driver; default from config)")
	cmd.Flags().BoolVar(&trainOnStart, "train", false, "Retrain from storage before serving")
	return cmd
}

// loadServedModel returns the model to serve at startup, or nil.
func loadServedModel(path string) *dil.Detector {
	var (
		d   *dil.Detector
		err error
	)
	if path != "" {
		d, err = dil.Load(path)
	} else {
		d, err = dil.New()
	}
	if err != nil {
		slog.Warn("No model loaded, serving untrained until the first successful training", "error", err)
		return nil
	}
	return d
}

func retrainOnce(ctx context.Context, srv *server.Server) {
	res, err := srv.Retrain(ctx)
	if err != nil {
		slog.Error("Initial training failed", "error", err)
		return
	}
	if res.Status != dil.StatusTrained {
		slog.Warn("Initial training skipped", "reason", res.Reason)
	}
}
