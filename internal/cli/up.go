package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/happyhackingspace/dil"
)

func (c *CLI) newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Self-update to the latest version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.selfUpdate(cmd.Context())
		},
	}
}

func (c *CLI) selfUpdate(ctx context.Context) error {
	v := c.version
	if v == "dev" {
		v = "0.0.0"
	}

	updater, err := selfupdate.NewUpdater(selfupdate.Config{})
	if err != nil {
		return err
	}
	latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug("happyhackingspace/dil"))
	if err != nil {
		return fmt.Errorf("detect latest version: %w", err)
	}
	if !found {
		return errors.New("no release found")
	}
	if latest.LessOrEqual(v) {
		fmt.Printf("Already up to date (%s)\n", c.version)
		return nil
	}

	slog.Info("Updating", "from", c.version, "to", latest.Version())
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	if err := updater.UpdateTo(ctx, latest, exe); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	fmt.Printf("Updated to %s\n", latest.Version())

	// Refresh the cached model only if one was downloaded before.
	cached := filepath.Join(dil.ModelDir(), dil.ModelFile)
	if _, err := os.Stat(cached); err == nil {
		slog.Info("Updating cached model")
		if err := downloadFile(ctx, modelURL, cached); err != nil {
			slog.Warn("Cannot update cached model", "error", err)
		}
	}
	return nil
}
