package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/partkit-dev/partkit"
	"github.com/partkit-dev/partkit/internal/config"
	"github.com/partkit-dev/partkit/pkg/generate"
)

// loadProject loads partkit.json from the --project directory, or by
// walking up from the working directory when the flag is empty.
func loadProject(projectFlag string) (*config.Config, error) {
	if projectFlag != "" {
		return config.Load(projectFlag)
	}
	return config.LoadFromWorkingDir()
}

// newGenerator constructs the backend the configuration selects.
func newGenerator(ctx context.Context, cfg *config.Config) (partkit.Generator, error) {
	switch cfg.Generator.Backend {
	case "s3":
		return generate.NewS3(ctx, cfg.Generator.Bucket, cfg.Generator.Prefix)
	default:
		return &generate.Exec{
			Command: cfg.Generator.Command,
			Timeout: cfg.GeneratorTimeout(),
		}, nil
	}
}

// newImporter builds the importer a validated configuration describes.
func newImporter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*partkit.Importer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	mode, err := cfg.StorageMode()
	if err != nil {
		return nil, err
	}
	return partkit.New(partkit.Options{
		ProjectDir:  cfg.Dir(),
		Mode:        mode,
		Prefix:      cfg.Library.Prefix,
		LibFolder:   cfg.Library.Folder,
		Namespace:   cfg.Library.Namespace,
		ToolVersion: cfg.Library.ToolVersion,
		Generator:   gen,
		Logger:      logger,
	})
}

// cliLogger returns the pipeline logger for one-shot commands. Imports
// report through the success/info helpers, so the importer's own logs
// only show up with --verbose.
func cliLogger(verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
