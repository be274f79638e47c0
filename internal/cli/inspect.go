package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (c *CLI) newInspectCommand() *cobra.Command {
	var modelPath string
	var top int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show model summary and most important features per language",
		Example: `  dil inspect
  dil inspect --model model.json --top 5
  dil inspect --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadOrDownloadModel(cmd.Context(), modelPath)
			if err != nil {
				return err
			}
			sum := d.Summary()
			if asJSON {
				out, _ := json.MarshalIndent(sum, "", "  ")
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Status:     %s\n", sum.Status)
			fmt.Printf("Languages:  %s\n", strings.Join(sum.Languages, ", "))
			fmt.Printf("Features:   %d (n-grams %v)\n", sum.FeatureDimension, sum.Extractor.NgramSizes)
			fmt.Printf("Learning rate %.4g, max epochs %d, tolerance %.0e\n",
				sum.Config.LearningRate, sum.Config.MaxEpochs, sum.Config.Tolerance)
			if n := len(sum.TrainingHistory); n > 0 {
				last := sum.TrainingHistory[n-1]
				fmt.Printf("Last checkpoint: epoch %d, loss %.4f, accuracy %.1f%%\n",
					last.Epoch, last.Loss, last.Accuracy*100)
			}
			if !sum.Trained {
				return nil
			}

			imp, err := d.FeatureImportance()
			if err != nil {
				return err
			}
			for _, lang := range sum.Languages {
				fmt.Printf("\n%s\n", color.New(color.Bold).Sprint(lang))
				ws := imp[lang]
				if top > 0 && len(ws) > top {
					ws = ws[:top]
				}
				for _, w := range ws {
					fmt.Printf("  %-28s %.4f\n", w.Feature, w.Weight)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to model file (default: auto-detect or download)")
	cmd.Flags().IntVar(&top, "top", 10, "Features to show per language")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}
