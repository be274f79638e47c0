package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/happyhackingspace/dil"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var dataFolder string
	var cvFolds int
	var baseline bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate model accuracy via grouped cross-validation",
		Example: `  dil evaluate --data-folder data --cv 10
  dil evaluate --baseline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := c.openStores(ctx, dataFolder)
			if err != nil {
				return err
			}
			defer func() { _ = st.close() }()

			slog.Info("Evaluating", "folds", cvFolds, "driver", c.cfg.Storage.Driver)
			start := time.Now()
			result, err := dil.Evaluate(ctx, st.source, &dil.EvalConfig{
				Folds:      cvFolds,
				Languages:  c.cfg.Languages,
				Classifier: c.cfg.Training.Classifier(),
				Baseline:   baseline,
				Verbose:    c.verbose,
			})
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))

			fmt.Printf("Accuracy: %s (%d/%d, %d folds)\n",
				colorPct(result.Accuracy), result.Correct, result.Total, result.Folds)
			fmt.Printf("Macro F1: %s\n", colorPct(result.MacroF1))
			if result.HasBaseline {
				fmt.Printf("Baseline (whatlanggo): %s\n", colorPct(result.BaselineAccuracy))
			}
			printConfusionMatrix(result)
			printClassReport(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFolder, "data-folder", "", "Path to sample data folder (file driver; default from config)")
	cmd.Flags().IntVar(&cvFolds, "cv", 10, "Number of cross-validation folds")
	cmd.Flags().BoolVar(&baseline, "baseline", false, "Also score whatlanggo on the same samples")
	return cmd
}

func colorPct(v float64) string {
	s := fmt.Sprintf("%.1f%%", v*100)
	switch {
	case v >= 0.9:
		return color.GreenString(s)
	case v >= 0.7:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

func printClassReport(r *dil.EvalResult) {
	fmt.Printf("\nPer-language metrics:\n")
	fmt.Printf("%8s  %6s  %6s  %6s  %7s\n", "lang", "prec", "recall", "f1", "support")
	for _, cr := range r.Classes {
		fmt.Printf("%8s  %5.1f%%  %5.1f%%  %5.1f%%  %7d\n",
			cr.Language, cr.Precision*100, cr.Recall*100, cr.F1*100, cr.Support)
	}
}

func printConfusionMatrix(r *dil.EvalResult) {
	if r.Total == 0 {
		return
	}
	bold := color.New(color.Bold)

	fmt.Printf("\nConfusion matrix (rows=true, cols=predicted):\n")
	fmt.Printf("%8s", "")
	for _, l := range r.Languages {
		fmt.Printf(" %5s", bold.Sprint(l))
	}
	fmt.Printf("  total  acc%%\n")

	for i, trueLang := range r.Languages {
		fmt.Printf("%8s", bold.Sprint(trueLang))
		total, correct := 0, 0
		for j := range r.Languages {
			count := r.Confusion[i][j]
			total += count
			if i == j {
				correct = count
			}
			switch {
			case count == 0:
				fmt.Printf(" %5s", ".")
			case i == j:
				fmt.Printf(" %5s", color.GreenString("%d", count))
			default:
				fmt.Printf(" %5s", color.RedString("%d", count))
			}
		}
		acc := 0.0
		if total > 0 {
			acc = float64(correct) / float64(total) * 100
		}
		fmt.Printf("  %5d %5.1f\n", total, acc)
	}
}
