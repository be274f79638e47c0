package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/dil"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var dataFolder string

	cmd := &cobra.Command{
		Use:   "train <modelfile>",
		Short: "Train a model on approved language samples",
		Args:  cobra.ExactArgs(1),
		Example: `  dil train model.json --data-folder data
  dil train model.msgpack -c dil.toml -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath := args[0]
			ctx := cmd.Context()

			st, err := c.openStores(ctx, dataFolder)
			if err != nil {
				return err
			}
			defer func() { _ = st.close() }()

			slog.Info("Training detector", "driver", c.cfg.Storage.Driver, "output", modelPath)
			start := time.Now()
			cfg := c.trainConfig()
			d, res, err := dil.Train(ctx, st.source, st.runs, &cfg)
			if err != nil {
				return err
			}
			if res.Status != dil.StatusTrained {
				return fmt.Errorf("training %s: %s", res.Status, res.Reason)
			}
			slog.Debug("Training completed", "duration", time.Since(start))

			if err := d.Save(modelPath); err != nil {
				return err
			}
			m := res.Metrics
			slog.Info("Model saved", "path", modelPath, "run", res.RunID)
			fmt.Printf("Samples:   %d\n", m.SamplesCount)
			fmt.Printf("Accuracy:  %.1f%%\n", m.Accuracy*100)
			fmt.Printf("Loss:      %.4f\n", m.Loss)
			fmt.Printf("Epochs:    %d (converged: %v)\n", m.EpochsCompleted, m.Converged)
			fmt.Printf("Time:      %s\n", m.TrainingTime.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFolder, "data-folder", "", "Path to sample data folder (file driver; default from config)")
	return cmd
}
