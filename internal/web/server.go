package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fmueller/voxbatch/internal/batch"
	"github.com/fmueller/voxbatch/internal/metrics"
)

// Runner is the part of batch.Pipeline the web layer drives.
type Runner interface {
	Run(ctx context.Context, items []batch.Item, model, language string) (batch.Report, error)
	RunFolder(ctx context.Context, dir, model, language string) (batch.Report, error)
}

type Options struct {
	Addr        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration

	Runner  Runner
	Reports *ReportStore

	DefaultModel    string
	DefaultLanguage string
	MaxUploadBytes  int64
	TempDir         string
	CORSOrigins     []string

	Version string
	Logger  *zap.Logger
}

type Server struct {
	opts   Options
	router chi.Router
	http   *http.Server
	log    *zap.Logger
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 2 << 30
	}

	s := &Server{opts: opts, log: opts.Logger.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(s.log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/", s.handleIndex)
	r.Post("/transcribe/files", s.handleTranscribeFiles)
	r.Post("/transcribe/folder", s.handleTranscribeFolder)
	r.Get("/reports/{id}", s.handleDownloadReport)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if len(opts.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: opts.CORSOrigins,
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
				MaxAge:         300,
			}))
		}
		r.Get("/options", s.handleOptions)
		r.Post("/transcriptions", s.handleAPITranscribe)
	})

	s.router = r
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server starting", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}
