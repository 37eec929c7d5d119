package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/partkit-dev/partkit/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┌─┐┬─┐┌┬┐┬┌─┬┌┬┐
  ├─┘├─┤├┬┘ │ ├┴┐│ │
  ┴  ┴ ┴┴└─ ┴ ┴ ┴┴ ┴
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "partkit",
		Short: "Provision KiCad libraries from the LCSC catalog",
		Long: `partkit provisions KiCad libraries from the LCSC parts catalog.

Import a part number and partkit generates the symbol, footprint and
3D model, installs them under your storage policy, and registers the
library in sym-lib-table and fp-lib-table without disturbing entries
you maintain by hand. Features include:

  • Project-local or shared third-party storage
  • Table rewrites that preserve foreign entries byte for byte
  • 3D model references rewritten to portable path variables
  • Converter and S3 artifact-cache backends
  • Local import service with live progress streaming`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add commands
	rootCmd.AddCommand(
		initCmd(),
		importCmd(),
		pathsCmd(),
		libsCmd(),
		serveCmd(),
		versionCmd(),
	)

	// Execute
	if err := rootCmd.Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

// printBanner prints the partkit ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
