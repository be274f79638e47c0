package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/dil"
	"github.com/happyhackingspace/dil/classifier"
	"github.com/happyhackingspace/dil/internal/htmlutil"
)

const modelURL = "https://huggingface.co/datasets/happyhackingspace/dil/resolve/main/model.json"

// runOutput is the JSON printed by run.
type runOutput struct {
	Source string `json:"source"`
	// Declared is the lang attribute of an HTML input, if any.
	Declared   string                     `json:"declared_language,omitempty"`
	Language   string                     `json:"language"`
	Name       string                     `json:"name,omitempty"`
	Confidence float64                    `json:"confidence"`
	Scores     []classifier.LanguageScore `json:"scores,omitempty"`
	Chars      int                        `json:"chars"`
}

func (c *CLI) newRunCommand() *cobra.Command {
	var modelPath string
	var threshold float64
	var proba bool
	var render bool

	cmd := &cobra.Command{
		Use:   "run [text-url-or-file]",
		Short: "Identify the language of a text, URL, file, or stdin",
		Args:  cobra.MaximumNArgs(1),
		Example: `  # Identify a literal text
  dil run "Добро утро, как си?"

  # Identify the visible text of a web page
  dil run https://example.com

  # Render JavaScript before extracting text
  dil run https://example.com --render

  # Identify a local text or HTML file
  dil run article.html

  # Pipe text from stdin
  echo "Bonjour tout le monde" | dil run

  # Show probability scores above a threshold
  dil run "Gracias por todo" --proba --threshold 0.1

  # Use custom model file
  dil run "Guten Morgen" --model custom.msgpack`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var content, source string
			var err error

			if len(args) == 0 {
				if isStdinTerminal() {
					return cmd.Help()
				}
				content, source, err = readFromStdin(ctx, render)
			} else {
				content, source, err = resolveInput(ctx, args[0], render)
			}
			if err != nil {
				return err
			}
			slog.Debug("Input read", "source", source, "bytes", len(content))

			text, declared := extractText(content)
			if err := dil.ValidateText(text); err != nil {
				return err
			}

			start := time.Now()
			d, err := loadOrDownloadModel(ctx, modelPath)
			if err != nil {
				return err
			}
			slog.Debug("Model loaded", "duration", time.Since(start))

			r, err := d.Detect(text)
			if err != nil {
				return err
			}
			slog.Debug("Detection completed", "duration", r.ProcessingTime)

			out := runOutput{
				Source:     source,
				Declared:   declared,
				Language:   r.Language,
				Name:       r.Name,
				Confidence: r.Confidence,
				Chars:      len([]rune(text)),
			}
			if proba {
				out.Scores = classifier.Distribution{
					Languages:     languagesOf(r.Scores),
					Probabilities: scoresOf(r.Scores),
				}.Above(threshold)
			}
			output, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(output))
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to model file (default: auto-detect or download)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.05, "Minimum probability threshold")
	cmd.Flags().BoolVar(&proba, "proba", false, "Show probabilities")
	cmd.Flags().BoolVar(&render, "render", false, "Render URLs in headless Chrome before extracting text")
	return cmd
}

func languagesOf(scores []classifier.LanguageScore) []string {
	out := make([]string, len(scores))
	for i, s := range scores {
		out[i] = s.Language
	}
	return out
}

func scoresOf(scores []classifier.LanguageScore) []float64 {
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = s.Score
	}
	return out
}

// extractText returns the text to classify, reduced to visible text for HTML
// input and cut to dil.MaxTextLength runes.
func extractText(content string) (text, declared string) {
	text = strings.TrimSpace(content)
	if htmlutil.LooksLikeHTML(text) {
		if doc, err := htmlutil.LoadHTMLString(text); err == nil {
			text = htmlutil.VisibleText(doc)
			declared = htmlutil.DeclaredLanguage(doc)
		}
	}
	return truncateRunes(text, dil.MaxTextLength), declared
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return strings.TrimSpace(s[:pos])
		}
		i++
	}
	return s
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isStdinTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// resolveInput treats arg as a URL, then an existing file, then literal text.
func resolveInput(ctx context.Context, arg string, render bool) (content, source string, err error) {
	if isURL(arg) {
		content, err = fetchURL(ctx, arg, render)
		return content, arg, err
	}
	if info, statErr := os.Stat(arg); statErr == nil && !info.IsDir() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", "", fmt.Errorf("read file: %w", err)
		}
		return string(data), arg, nil
	}
	return arg, "argument", nil
}

func fetchURL(ctx context.Context, target string, render bool) (string, error) {
	if render {
		slog.Debug("Rendering page", "url", target)
		return htmlutil.RenderHTML(ctx, target, htmlutil.DefaultRenderOptions())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch URL: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}

func readFromStdin(ctx context.Context, render bool) (string, string, error) {
	slog.Debug("Reading from stdin")
	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", "", fmt.Errorf("read stdin: %w", err)
	}
	content := strings.TrimSpace(string(body))
	if content == "" {
		return "", "", errors.New("stdin is empty")
	}
	if isURL(content) && !strings.ContainsAny(content, " \n") {
		slog.Debug("Stdin contains URL", "url", content)
		page, err := fetchURL(ctx, content, render)
		if err != nil {
			return "", "", err
		}
		return page, content, nil
	}
	return content, "stdin", nil
}

func loadOrDownloadModel(ctx context.Context, modelPath string) (*dil.Detector, error) {
	if modelPath != "" {
		slog.Debug("Loading custom model", "path", modelPath)
		return dil.Load(modelPath)
	}

	d, err := dil.New()
	if err == nil {
		return d, nil
	}

	dest := filepath.Join(dil.ModelDir(), dil.ModelFile)
	slog.Info("Model not found, downloading", "url", modelURL, "dest", dest)
	if err := downloadFile(ctx, modelURL, dest); err != nil {
		return nil, fmt.Errorf("download model: %w", err)
	}
	return dil.Load(dest)
}

// downloadFile writes url to dest, leaving no partial file on failure.
func downloadFile(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	written, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	slog.Info("Downloaded", "dest", dest, "size", fmt.Sprintf("%.1fKB", float64(written)/1024))
	return os.Rename(tmp, dest)
}
