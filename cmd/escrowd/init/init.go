// Package initcmder provides the init command for initializing a local
// .escrowd directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/escrowd/pkg/cliui"
	"github.com/papercomputeco/escrowd/pkg/config"
	"github.com/papercomputeco/escrowd/pkg/dotdir"
)

const (
	dirName = ".escrowd"

	remoteFetchTimeout = 15 * time.Second
)

const initLongDesc string = `Initialize a new .escrowd/ directory in the current working directory.

Creates a local .escrowd/ directory that takes precedence over the default
~/.escrowd/ directory for configuration, merchant fact logs, the search
index, and the pending settlement ledger.

A config.toml is written from the chosen preset. Presets are either one of
the built-in names (local, ethereum, kafka) or an http(s) URL serving a
config.toml. An existing config.toml is only replaced when --preset is given.

Examples:
  escrowd init
  escrowd init --preset ethereum
  escrowd init --preset https://example.com/escrowd/config.toml`

const initShortDesc string = "Initialize a local .escrowd/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "",
		fmt.Sprintf("Config preset (%s) or URL to a config.toml", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func runInit(w io.Writer, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	dir := filepath.Join(cwd, dirName)

	// Resolve the preset before touching disk so a bad name leaves nothing
	// half-initialized.
	var cfg *config.Config
	if preset != "" {
		cfg, err = resolvePreset(preset)
		if err != nil {
			return err
		}
	}

	info, statErr := os.Stat(dir)
	existed := statErr == nil && info.IsDir()

	ddm := dotdir.NewManager()
	if _, err := ddm.FactsDir(dir); err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg == nil {
		_, err := os.Stat(cfger.GetTarget())
		switch {
		case errors.Is(err, os.ErrNotExist):
			cfg = config.NewDefaultConfig()
		case err != nil:
			return fmt.Errorf("reading config: %w", err)
		}
	}

	if cfg != nil {
		if err := cfger.SaveConfig(cfg); err != nil {
			return err
		}
	}

	if existed {
		fmt.Fprintf(w, "  %s Already initialized: %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	} else {
		fmt.Fprintf(w, "  %s Initialized .escrowd directory: %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	}
	if cfg != nil {
		fmt.Fprintf(w, "  %s Wrote %s\n", cliui.SuccessMark, cliui.DimStyle.Render(cfger.GetTarget()))
	}
	return nil
}

func resolvePreset(preset string) (*config.Config, error) {
	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		return fetchPreset(preset)
	}
	return config.PresetConfig(preset)
}

func fetchPreset(url string) (*config.Config, error) {
	status, body, errs := fiber.Get(url).Timeout(remoteFetchTimeout).Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("fetching preset %s: %w", url, errors.Join(errs...))
	}
	if status != fiber.StatusOK {
		return nil, fmt.Errorf("fetching preset %s: unexpected status %d", url, status)
	}

	cfg, err := config.ParseConfigTOML(body)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", url, err)
	}
	return cfg, nil
}
