package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/replier"
)

// Server is the status and control API server
type Server struct {
	cfg  ServerCfg
	ctl  Controller
	log  *zap.Logger
	http *http.Server

	// ctx parents the scheduler when it is started over HTTP
	ctx context.Context
}

// ServerCfg is the configuration for the API server
type ServerCfg struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Controller is the part of the service the API drives
type Controller interface {
	Start(ctx context.Context)
	Stop(reason error)
	SchedulerRunning() bool
	Cursor(ctx context.Context) (model.Cursor, error)
	PostCount() int
	ReplyOnce(ctx context.Context) ([]replier.Summary, bool)
}

// NewServer creates a new API server
// and registers the routes
func NewServer(cfg ServerCfg, ctl Controller, metrics prometheus.Gatherer, log *zap.Logger) *Server {
	r := mux.NewRouter()
	s := &Server{
		cfg: cfg,
		ctl: ctl,
		log: log,
		ctx: context.Background(),
	}

	// health check
	r.HandleFunc("/healthz", s.healthz).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{})).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/cursor", s.getCursor).Methods("GET")
	api.HandleFunc("/scheduler/start", s.startScheduler).Methods("POST")
	api.HandleFunc("/scheduler/stop", s.stopScheduler).Methods("POST")
	api.HandleFunc("/replies/run", s.runReplies).Methods("POST")

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until Shutdown. ctx parents a scheduler started over HTTP.
func (s *Server) Start(ctx context.Context) error {
	s.ctx = ctx
	s.log.Info("http server listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown shuts down the API server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
