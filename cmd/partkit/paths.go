package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/partkit-dev/partkit"
	"github.com/partkit-dev/partkit/internal/config"
	"github.com/partkit-dev/partkit/internal/errors"
	"github.com/partkit-dev/partkit/pkg/kipath"
)

func pathsCmd() *cobra.Command {
	var (
		mode        string
		project     string
		toolVersion string
	)

	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Print resolved library target locations",
		Long: `Print the directories and table URIs imports resolve to.

Without a project, paths falls back to defaults so the system-mode
layout can be inspected anywhere.

Examples:
  partkit paths
  partkit paths --mode=system
  partkit paths --mode=system --tool-version=8.0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPaths(mode, project, toolVersion)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Storage mode: project or system (default from partkit.json)")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project directory (default: walk up from the working directory)")
	cmd.Flags().StringVar(&toolVersion, "tool-version", "", "KiCad version for path resolution (default from partkit.json)")

	return cmd
}

func runPaths(mode, project, toolVersion string) error {
	cfg, err := loadProject(project)
	if err != nil {
		// Inspection works without a project as long as no --project was
		// named explicitly.
		pe, ok := err.(*errors.PartkitError)
		if project != "" || !ok || pe.Code != "PK100" {
			return err
		}
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg = config.New()
		warn("No partkit.json found, showing defaults for %s", wd)
	}

	if mode != "" {
		cfg.Mode = mode
	}
	if toolVersion != "" {
		cfg.Library.ToolVersion = toolVersion
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	storage, err := cfg.StorageMode()
	if err != nil {
		return err
	}
	targets, err := partkit.Targets(storage, kipath.Current(), cfg.Library.ToolVersion, kipath.Options{
		ProjectDir: cfg.Dir(),
		LibFolder:  cfg.Library.Folder,
		Namespace:  cfg.Library.Namespace,
	})
	if err != nil {
		return err
	}

	info("Storage mode: %s", storage)
	info("Tool version: %s", cfg.Library.ToolVersion)
	fmt.Println()
	printLocation("symbols", targets.Symbols)
	printLocation("footprints", targets.Footprints)
	printLocation("3d models", targets.Models3D)
	return nil
}

func printLocation(label string, loc kipath.Location) {
	fmt.Printf("  %-11s %s\n", label, loc.Dir)
	fmt.Printf("  %-11s %s\n", "", loc.URI)
}
