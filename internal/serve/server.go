package serve

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/partkit-dev/partkit"
	pkerrors "github.com/partkit-dev/partkit/internal/errors"
	"github.com/partkit-dev/partkit/internal/metrics"
	"github.com/partkit-dev/partkit/pkg/generate"
	"github.com/partkit-dev/partkit/pkg/kipath"
	"github.com/partkit-dev/partkit/pkg/libtable"
)

// DefaultAddr is where the service listens when no address is configured.
const DefaultAddr = "localhost:8075"

const defaultShutdownTimeout = 5 * time.Second

// Options configures the import service.
type Options struct {
	// Addr is the listen address as host:port. Defaults to DefaultAddr.
	Addr string

	// Importer runs the imports. Required.
	Importer *partkit.Importer

	// Logger receives service lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ShutdownTimeout bounds the request drain when the service stops.
	ShutdownTimeout time.Duration
}

// Server is the local import service.
type Server struct {
	opts   Options
	hub    *EventHub
	logger *slog.Logger
	http   *http.Server
}

// New creates the service and registers its metrics instruments.
func New(opts Options) (*Server, error) {
	if opts.Importer == nil {
		return nil, pkerrors.Newf(pkerrors.CategoryServe, "importer is required")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics.Init()

	s := &Server{
		opts:   opts,
		hub:    NewEventHub(),
		logger: logger,
	}
	s.http = &http.Server{Addr: opts.Addr, Handler: s.routes()}
	return s, nil
}

// Handler returns the service's HTTP handler, mainly for tests and for
// mounting the API under another router.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serve started", "addr", s.opts.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		s.hub.Close()
		if err != nil {
			return pkerrors.FromError(err, "PK120")
		}
		return nil
	}
}

// Stop drains in-flight requests and closes event subscribers.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(ctx)
	s.hub.Close()
	s.logger.Info("serve stopped")
	return err
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/imports", s.handleImport)
	r.Get("/api/imports/events", s.hub.HandleWebSocket)
	r.Get("/api/tables", s.handleTables)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// importRequest is the POST /api/imports payload.
type importRequest struct {
	Part     string           `json:"part"`
	Mode     string           `json:"mode,omitempty"`
	Metadata partkit.Metadata `json:"metadata,omitempty"`
}

// importResponse pairs the job identifier with the import summary so a
// caller can match the response against streamed events.
type importResponse struct {
	Job     string                 `json:"job"`
	Summary *partkit.ImportSummary `json:"summary"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, pkerrors.New("PK121").WithDetail(err.Error()))
		return
	}
	if strings.TrimSpace(req.Part) == "" {
		s.writeError(w, pkerrors.New("PK121").WithDetail("the part field is required"))
		return
	}
	mode, err := kipath.ParseStorageMode(req.Mode)
	if err != nil {
		s.writeError(w, pkerrors.New("PK082").WithDetail(err.Error()))
		return
	}

	job := uuid.New().String()
	s.hub.Started(job, req.Part)

	summary, err := s.opts.Importer.Import(r.Context(), partkit.ImportRequest{
		Part:     req.Part,
		Mode:     mode,
		Metadata: req.Metadata,
		OnProgress: func(line string) {
			s.hub.Log(job, req.Part, line)
		},
	})
	if err != nil {
		s.hub.Error(job, req.Part, err.Error())
		s.writeError(w, apiError(err))
		return
	}

	s.hub.Done(job, req.Part, summary.Lib)
	writeJSON(w, http.StatusOK, importResponse{Job: job, Summary: summary})
}

// tableEntry is the wire form of one library table row.
type tableEntry struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	URI     string `json:"uri"`
	Options string `json:"options,omitempty"`
	Descr   string `json:"descr,omitempty"`
}

type tablesResponse struct {
	Symbols    []tableEntry `json:"symbols"`
	Footprints []tableEntry `json:"footprints"`
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	sym, fp, err := s.opts.Importer.Store().Load()
	if err != nil {
		s.writeError(w, apiTableError(err))
		return
	}
	writeJSON(w, http.StatusOK, tablesResponse{
		Symbols:    apiEntries(sym),
		Footprints: apiEntries(fp),
	})
}

func apiEntries(t *libtable.Table) []tableEntry {
	entries := t.Entries()
	out := make([]tableEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, tableEntry{
			Name:    e.Name,
			Type:    e.Type,
			URI:     e.URI,
			Options: e.Options,
			Descr:   e.Descr,
		})
	}
	return out
}

// apiError maps a pipeline failure onto a registered error code so the
// response carries {code, category, message, detail}.
func apiError(err error) *pkerrors.PartkitError {
	var ie *partkit.ImportError
	if !errors.As(err, &ie) {
		return pkerrors.Newf(pkerrors.CategoryServe, "import failed").WithDetail(err.Error())
	}
	return pkerrors.New(stepCode(ie)).WithDetail(err.Error())
}

func stepCode(ie *partkit.ImportError) string {
	switch ie.Step {
	case partkit.StepGenerate:
		switch {
		case errors.Is(ie.Err, context.Canceled) || errors.Is(ie.Err, context.DeadlineExceeded):
			return "PK024"
		case errors.Is(ie.Err, exec.ErrNotFound):
			return "PK020"
		case errors.Is(ie.Err, generate.ErrNotCached):
			return "PK022"
		case errors.Is(ie.Err, generate.ErrNoArtifacts):
			return "PK023"
		default:
			return "PK021"
		}
	case partkit.StepWrite, partkit.StepRewrite:
		return "PK040"
	case partkit.StepTables:
		var pe *libtable.ParseError
		if errors.As(ie.Err, &pe) {
			return "PK060"
		}
		return "PK061"
	default:
		var upe *kipath.UnsupportedPlatformError
		switch {
		case errors.As(ie.Err, &upe):
			return "PK001"
		case errors.Is(ie.Err, kipath.ErrInvalidToolVersion):
			return "PK003"
		}
		// Anything else the resolve step rejects came from the request.
		return "PK121"
	}
}

func apiTableError(err error) *pkerrors.PartkitError {
	var pe *libtable.ParseError
	if errors.As(err, &pe) {
		return pkerrors.New("PK060").WithDetail(err.Error())
	}
	return pkerrors.New("PK061").WithDetail(err.Error())
}

// httpStatus picks the response status for a coded error. Validation
// problems are the caller's fault; everything else is a pipeline failure.
func httpStatus(pe *pkerrors.PartkitError) int {
	switch pe.Code {
	case "PK082", "PK102", "PK121":
		return http.StatusBadRequest
	case "PK022":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, pe *pkerrors.PartkitError) {
	status := httpStatus(pe)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", pe.Code, "error", pe.Message, "detail", pe.Detail)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, pe.FormatJSON())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
