package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/happyhackingspace/dil"
	"github.com/happyhackingspace/dil/internal/banner"
	"github.com/happyhackingspace/dil/internal/config"
	"github.com/happyhackingspace/dil/internal/storage"
	"github.com/happyhackingspace/dil/internal/storage/sqlstore"
)

// CLI encapsulates the command-line interface with its dependencies.
type CLI struct {
	version     string
	verbose     bool
	silent      bool
	configPath  string
	logFile     string
	initialized bool
	cfg         config.Config
	rootCmd     *cobra.Command
}

// New creates a new CLI instance with the given version string.
func New(version string) *CLI {
	c := &CLI{version: version, cfg: config.Default()}
	c.setupCommands()
	return c
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:          "dil",
		Short:        "Natural language identification for short texts",
		Version:      c.version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initApp()
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	flags := c.rootCmd.PersistentFlags()
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose/debug output")
	flags.BoolVarP(&c.silent, "silent", "s", false, "Suppress all logging and banner")
	flags.StringVarP(&c.configPath, "config", "c", "", "Path to TOML config file")
	flags.StringVar(&c.logFile, "log-file", "", "Write JSON logs to a rotating file")

	defaultHelp := c.rootCmd.HelpFunc()
	c.rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		_ = c.initApp()
		defaultHelp(cmd, args)
	})

	c.rootCmd.AddCommand(
		c.newTrainCommand(),
		c.newRunCommand(),
		c.newEvaluateCommand(),
		c.newInspectCommand(),
		c.newServeCommand(),
		c.newDataCommand(),
		c.newUpCommand(),
	)
}

// Run executes the CLI and returns any error.
func (c *CLI) Run() error {
	return c.rootCmd.Execute()
}

// initApp loads configuration, sets up logging and prints the banner.
func (c *CLI) initApp() error {
	if c.initialized {
		return nil
	}
	c.initialized = true

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	cfg.FromENV()
	if c.logFile != "" {
		cfg.Log.Path = c.logFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	c.cfg = cfg

	level := cfg.Log.SlogLevel()
	if c.verbose {
		level = slog.LevelDebug
	}
	if c.silent {
		level = slog.Level(100)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Path != "" {
		var w io.Writer = &lumberjack.Logger{
			Filename:   cfg.Log.Path,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}
	if !c.silent {
		fmt.Fprint(os.Stderr, banner.Banner(c.version))
	}
	return nil
}

// trainConfig builds the driver configuration from the loaded config.
func (c *CLI) trainConfig() dil.TrainConfig {
	return dil.TrainConfig{
		Languages:  c.cfg.Languages,
		Classifier: c.cfg.Training.Classifier(),
		MinSamples: c.cfg.Training.MinSamples,
		WarmStart:  c.cfg.Training.WarmStart,
		Verbose:    c.verbose,
	}
}

// stores bundles the configured sample source and sinks.
type stores struct {
	source      dil.SampleSource
	runs        dil.TrainingRunSink
	predictions dil.PredictionSink
	close       func() error
}

func (c *CLI) openStores(ctx context.Context, folder string) (stores, error) {
	switch c.cfg.Storage.Driver {
	case "postgres":
		st, err := sqlstore.Open(ctx, c.cfg.Storage.DSN)
		if err != nil {
			return stores{}, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return stores{}, err
		}
		slog.Debug("Using PostgreSQL storage")
		return stores{source: st, runs: st, predictions: st, close: st.Close}, nil
	default:
		if folder == "" {
			folder = c.cfg.Storage.Folder
		}
		st := storage.NewStorage(folder)
		slog.Debug("Using file storage", "folder", folder)
		return stores{source: st, runs: st, predictions: st, close: func() error { return nil }}, nil
	}
}
