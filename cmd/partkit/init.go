package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/partkit-dev/partkit/internal/config"
	"github.com/partkit-dev/partkit/internal/errors"
	"github.com/partkit-dev/partkit/pkg/kipath"
)

func initCmd() *cobra.Command {
	var (
		mode   string
		prefix string
		folder string
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Set up a project for partkit",
		Long: `Create partkit.json in the given directory (default: the current
directory) and, in project mode, the library folder layout next to it.

Examples:
  partkit init
  partkit init boards/amplifier
  partkit init --mode=system`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(dir, mode, prefix, folder)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Storage mode: project or system")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Library name prefix")
	cmd.Flags().StringVar(&folder, "folder", "", "Library folder inside the project")

	return cmd
}

func runInit(dir, mode, prefix, folder string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if config.Exists(absDir) {
		return errors.New("PK101").
			WithDetail("Found " + filepath.Join(absDir, config.ConfigFileName)).
			WithSuggestion("Edit the existing partkit.json instead")
	}

	cfg := config.New()
	cfg.Name = filepath.Base(absDir)
	if mode != "" {
		cfg.Mode = mode
	}
	if prefix != "" {
		cfg.Library.Prefix = prefix
	}
	if folder != "" {
		cfg.Library.Folder = folder
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	printBanner()
	fmt.Println()

	if err := os.MkdirAll(absDir, 0755); err != nil {
		return err
	}
	if err := cfg.SaveTo(filepath.Join(absDir, config.ConfigFileName)); err != nil {
		return err
	}
	success("Created %s", config.ConfigFileName)

	storage, _ := cfg.StorageMode()
	if storage == kipath.ModeProject {
		for _, sub := range []string{kipath.SymbolsDir, kipath.FootprintsDir, kipath.Models3DDir} {
			if err := os.MkdirAll(filepath.Join(absDir, cfg.Library.Folder, sub), 0755); err != nil {
				return err
			}
		}
		success("Created %s/{%s,%s,%s}", cfg.Library.Folder,
			kipath.SymbolsDir, kipath.FootprintsDir, kipath.Models3DDir)
	} else {
		info("System mode: artifacts go to the KiCad third-party directory")
	}

	fmt.Println()
	info("Import your first part:")
	info("  partkit import C2040")
	fmt.Println()

	return nil
}
