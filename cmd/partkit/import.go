package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/partkit-dev/partkit"
	"github.com/partkit-dev/partkit/internal/config"
	"github.com/partkit-dev/partkit/internal/errors"
	"github.com/partkit-dev/partkit/pkg/kipath"
)

var partNumberRe = regexp.MustCompile(`^C[0-9]+$`)

func importCmd() *cobra.Command {
	var (
		mode        string
		jobs        int
		prefix      string
		project     string
		toolVersion string
		dryRun      bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "import <part> [part...]",
		Short: "Import parts from the LCSC catalog",
		Long: `Import one or more LCSC parts into the project's libraries.

Each part becomes its own library: the symbol, footprint and 3D model
are generated, installed under the storage policy, and registered in
sym-lib-table and fp-lib-table. Re-importing a part replaces its
artifacts and refreshes its table entries in place.

Examples:
  partkit import C2040
  partkit import C2040 C7593 C25804 --jobs=4
  partkit import C2040 --mode=system
  partkit import C2040 --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args, importOptions{
				mode:        mode,
				jobs:        jobs,
				prefix:      prefix,
				project:     project,
				toolVersion: toolVersion,
				dryRun:      dryRun,
				verbose:     verbose,
			})
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Storage mode: project or system (default from partkit.json)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 1, "Parts imported in parallel")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Library name prefix (default from partkit.json)")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project directory (default: walk up from the working directory)")
	cmd.Flags().StringVar(&toolVersion, "tool-version", "", "KiCad version for path resolution (default from partkit.json)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve targets without generating or writing anything")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Stream converter output and pipeline logs")

	return cmd
}

type importOptions struct {
	mode        string
	jobs        int
	prefix      string
	project     string
	toolVersion string
	dryRun      bool
	verbose     bool
}

func runImport(args []string, opts importOptions) error {
	parts, err := normalizeParts(args)
	if err != nil {
		return err
	}

	cfg, err := loadProject(opts.project)
	if err != nil {
		return err
	}

	// Apply command-line overrides
	if opts.mode != "" {
		cfg.Mode = opts.mode
	}
	if opts.prefix != "" {
		cfg.Library.Prefix = opts.prefix
	}
	if opts.toolVersion != "" {
		cfg.Library.ToolVersion = opts.toolVersion
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if opts.dryRun {
		return printDryRun(cfg, parts)
	}

	// Handle signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		fmt.Println("\n  Cancelling...")
		cancel()
	}()

	im, err := newImporter(ctx, cfg, cliLogger(opts.verbose))
	if err != nil {
		return err
	}

	jobs := opts.jobs
	if jobs < 1 {
		jobs = 1
	}

	var (
		mu     sync.Mutex
		failed int
	)
	var g errgroup.Group
	g.SetLimit(jobs)
	for _, part := range parts {
		part := part
		g.Go(func() error {
			req := partkit.ImportRequest{Part: part}
			if opts.verbose {
				req.OnProgress = func(line string) {
					info("%s: %s", part, line)
				}
			}
			sum, err := im.Import(ctx, req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				errorMsg("%s: %v", part, err)
				return nil
			}
			verb := "Imported"
			if sum.Replaced {
				verb = "Reimported"
			}
			success("%s %s as %s in %s", verb, part, sum.Lib, sum.Elapsed.Round(time.Millisecond))
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		return errors.New("PK103").
			WithDetail(fmt.Sprintf("%d of %d parts failed", failed, len(parts)))
	}
	return nil
}

// normalizeParts validates catalog part numbers, accepting a lowercase c.
func normalizeParts(args []string) ([]string, error) {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		part := strings.ToUpper(strings.TrimSpace(arg))
		if !partNumberRe.MatchString(part) {
			return nil, errors.New("PK102").
				WithDetail(fmt.Sprintf("%q is not an LCSC part number", arg)).
				WithSuggestion("LCSC part numbers are a 'C' followed by digits, like C2040")
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func printDryRun(cfg *config.Config, parts []string) error {
	mode, err := cfg.StorageMode()
	if err != nil {
		return err
	}
	targets, err := partkit.Targets(mode, kipath.Current(), cfg.Library.ToolVersion, kipath.Options{
		ProjectDir: cfg.Dir(),
		LibFolder:  cfg.Library.Folder,
		Namespace:  cfg.Library.Namespace,
	})
	if err != nil {
		return err
	}

	info("Storage mode: %s", mode)
	info("Dry run: nothing will be generated or written")
	fmt.Println()
	for _, part := range parts {
		lib := cfg.Library.Prefix + kipath.SafeName(part)
		locs := targets.Lib(lib)
		fmt.Printf("  %s\n", lib)
		fmt.Printf("    symbol:     %s\n", locs.SymbolFile.Dir)
		fmt.Printf("    footprints: %s\n", locs.FootprintDir.Dir)
		fmt.Printf("    3d models:  %s\n", locs.ModelsDir.Dir)
	}
	return nil
}
