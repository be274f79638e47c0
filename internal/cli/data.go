package cli

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/happyhackingspace/dil"
	"github.com/happyhackingspace/dil/internal/storage"
	"github.com/happyhackingspace/dil/internal/storage/sqlstore"
)

const hfDataURL = "https://huggingface.co/datasets/happyhackingspace/dil/resolve/main/data.tar.gz"

func (c *CLI) newDataCommand() *cobra.Command {
	var dataFolder string

	dataCmd := &cobra.Command{
		Use:   "data",
		Short: "Manage labeled training samples",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	dataCmd.PersistentFlags().StringVar(&dataFolder, "data-folder", "", "Path to sample data folder (file driver; default from config)")

	var source string
	var pending bool
	addCmd := &cobra.Command{
		Use:   "add <language> <text>",
		Short: "Add a labeled sample",
		Args:  cobra.ExactArgs(2),
		Example: `  dil data add bg "Добро утро"
  dil data add fr "Merci beaucoup" --source https://example.fr/blog --pending`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, text := args[0], strings.TrimSpace(args[1])
			if !slices.Contains(c.cfg.Languages, lang) {
				return fmt.Errorf("unknown language %q (configured: %s)", lang, strings.Join(c.cfg.Languages, ", "))
			}
			if err := dil.ValidateText(text); err != nil {
				return err
			}
			st, err := c.openStores(cmd.Context(), dataFolder)
			if err != nil {
				return err
			}
			defer func() { _ = st.close() }()

			sample := storage.Sample{Text: text, Language: lang, Source: source, Approved: !pending}
			if err := addSample(cmd.Context(), st, sample); err != nil {
				return err
			}
			slog.Info("Sample added", "language", lang, "approved", sample.Approved)
			return nil
		},
	}
	addCmd.Flags().StringVar(&source, "source", "", "URL or e-mail the sample came from (used to group CV folds)")
	addCmd.Flags().BoolVar(&pending, "pending", false, "Store the sample unapproved")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Count approved samples per language",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStores(cmd.Context(), dataFolder)
			if err != nil {
				return err
			}
			defer func() { _ = st.close() }()

			samples, err := st.source.ApprovedSamples(cmd.Context())
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			counts := lo.CountValuesBy(samples, func(s storage.Sample) string { return s.Language })
			names := c.cfg.LanguageNames
			for _, lang := range c.cfg.Languages {
				fmt.Printf("%-4s %-10s %6d\n", lang, names[lang], counts[lang])
			}
			fmt.Printf("%-15s %6d\n", "total", len(samples))
			if len(samples) < c.cfg.Training.MinSamples {
				fmt.Printf("need at least %d samples to train\n", c.cfg.Training.MinSamples)
			}
			return nil
		},
	}

	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download sample data and model from Hugging Face",
		Example: `  dil data download
  dil data download --data-folder data`,
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := dataFolder
			if folder == "" {
				folder = c.cfg.Storage.Folder
			}
			return dataDownload(cmd.Context(), folder)
		},
	}

	dataCmd.AddCommand(addCmd, statsCmd, downloadCmd)
	return dataCmd
}

func addSample(ctx context.Context, st stores, sample storage.Sample) error {
	switch s := st.source.(type) {
	case *storage.Storage:
		return s.AppendSample(sample)
	case *sqlstore.Store:
		return s.AddSample(ctx, sample)
	default:
		return fmt.Errorf("storage %T cannot add samples", st.source)
	}
}

func dataDownload(ctx context.Context, dataFolder string) error {
	slog.Info("Downloading sample data", "url", hfDataURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hfDataURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download data: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download data: HTTP %d", resp.StatusCode)
	}

	count, err := extractTarGz(resp.Body, dataFolder)
	if err != nil {
		return err
	}
	slog.Info("Sample data extracted", "files", count, "folder", dataFolder)

	slog.Info("Downloading model", "url", modelURL)
	return downloadFile(ctx, modelURL, dil.ModelFile)
}

// extractTarGz unpacks r into folder, mapping a leading "data/" to folder.
func extractTarGz(r io.Reader, folder string) (int, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("gzip reader: %w", err)
	}
	defer func() { _ = gr.Close() }()

	root := filepath.Clean(folder)
	tr := tar.NewReader(gr)
	count := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read tar: %w", err)
		}

		name := strings.TrimPrefix(filepath.ToSlash(hdr.Name), "data/")
		target := filepath.Join(root, filepath.FromSlash(name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return count, fmt.Errorf("archive entry %q escapes %s", hdr.Name, folder)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return count, fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return count, fmt.Errorf("create parent dir: %w", err)
			}
			f, err := os.Create(target)
			if err != nil {
				return count, fmt.Errorf("create file %s: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()
				return count, fmt.Errorf("write file %s: %w", target, err)
			}
			_ = f.Close()
			count++
		}
	}
	return count, nil
}
