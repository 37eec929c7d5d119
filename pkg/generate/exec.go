package generate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/partkit-dev/partkit/pkg/artifact"
)

// DefaultCommand is the converter executable the Exec backend runs.
const DefaultCommand = "easyeda2kicad"

// DefaultTimeout bounds a single converter pass.
const DefaultTimeout = 3 * time.Minute

// tailLines is how much converter output is kept for error reporting.
const tailLines = 4

// The converter is invoked once per artifact kind; each pass writes
// next to the same output base.
var passes = []struct{ flag, name string }{
	{"--symbol", "symbol"},
	{"--3d", "3d"},
	{"--footprint", "footprint"},
}

// Exec generates artifacts by running the easyeda2kicad converter.
// The zero value runs DefaultCommand from PATH with DefaultTimeout.
type Exec struct {
	// Command is the converter executable, DefaultCommand when empty.
	Command string

	// Timeout bounds each converter pass, DefaultTimeout when zero.
	Timeout time.Duration
}

// Name identifies the backend in logs and metric labels.
func (e *Exec) Name() string { return BackendExec }

// Generate runs the three converter passes (symbol, 3D, footprint)
// against req.StagingDir and collects whatever recognized artifacts
// they produced. Converter output is streamed to req.OnProgress line
// by line. Any failure comes back as a *GenerationError.
func (e *Exec) Generate(ctx context.Context, req Request) (artifact.Set, error) {
	if req.StagingDir == "" {
		return artifact.Set{}, genErr(BackendExec, req.Part, errors.New("staging directory required"))
	}
	command := e.Command
	if command == "" {
		command = DefaultCommand
	}
	bin, err := exec.LookPath(command)
	if err != nil {
		return artifact.Set{}, genErr(BackendExec, req.Part, err)
	}

	base := filepath.Join(req.StagingDir, req.Lib)
	for _, pass := range passes {
		args := []string{pass.flag, "--overwrite", "--output", base, "--lcsc_id", req.Part}
		if err := e.run(ctx, bin, args, pass.name, req.OnProgress); err != nil {
			return artifact.Set{}, genErr(BackendExec, req.Part, err)
		}
	}

	set, err := collect(req.StagingDir, req.Lib)
	if err != nil {
		return artifact.Set{}, genErr(BackendExec, req.Part, err)
	}
	if set.Empty() {
		return artifact.Set{}, genErr(BackendExec, req.Part, ErrNoArtifacts)
	}
	return set, nil
}

func (e *Exec) run(ctx context.Context, bin string, args []string, pass string, onProgress func(string)) error {
	timeout := e.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Env = os.Environ()

	// stdout and stderr share one pipe so the stream keeps the
	// converter's own interleaving.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var tail []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(pr)
		for sc.Scan() {
			line := sc.Text()
			tail = append(tail, line)
			if len(tail) > tailLines {
				tail = tail[1:]
			}
			if onProgress != nil {
				onProgress(line)
			}
		}
	}()

	err := cmd.Run()
	pw.Close()
	<-done

	if err == nil {
		return nil
	}
	if ctxErr := runCtx.Err(); ctxErr != nil {
		return fmt.Errorf("%s pass: %w", pass, ctxErr)
	}
	if len(tail) > 0 {
		return fmt.Errorf("%s pass: %w; last output: %s", pass, err, strings.Join(tail, "; "))
	}
	return fmt.Errorf("%s pass: %w", pass, err)
}
