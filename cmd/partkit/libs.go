package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/partkit-dev/partkit/pkg/libtable"
)

func libsCmd() *cobra.Command {
	var (
		project string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "libs",
		Short: "List the libraries registered in the project tables",
		Long: `List sym-lib-table and fp-lib-table entries carrying the configured
prefix. Pass --all to include entries partkit does not manage.

Examples:
  partkit libs
  partkit libs --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLibs(project, all)
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Project directory (default: walk up from the working directory)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include entries without the configured prefix")

	return cmd
}

func runLibs(project string, all bool) error {
	cfg, err := loadProject(project)
	if err != nil {
		return err
	}

	store := libtable.NewStore(cfg.Dir())
	sym, fp, err := store.Load()
	if err != nil {
		return err
	}

	prefix := cfg.Library.Prefix
	shown := 0
	shown += printTable("Symbol libraries", sym, prefix, all)
	shown += printTable("Footprint libraries", fp, prefix, all)

	if shown == 0 {
		if all {
			info("No libraries registered")
		} else {
			info("No libraries with prefix %q registered", prefix)
			info("Import one with 'partkit import C2040'")
		}
	}
	return nil
}

func printTable(title string, t *libtable.Table, prefix string, all bool) int {
	var matched []libtable.Entry
	width := 0
	for _, e := range t.Entries() {
		if !all && !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		matched = append(matched, e)
		if len(e.Name) > width {
			width = len(e.Name)
		}
	}
	if len(matched) == 0 {
		return 0
	}

	fmt.Printf("%s:\n", title)
	for _, e := range matched {
		fmt.Printf("  %-*s  %s\n", width, e.Name, e.URI)
		if e.Descr != "" {
			fmt.Printf("  %-*s  %s\n", width, "", e.Descr)
		}
	}
	fmt.Println()
	return len(matched)
}
