package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voting-ledger/config"
	"voting-ledger/event"
	"voting-ledger/service"
	"voting-ledger/storage"
)

// Deps are the collaborators the HTTP layer needs. Only Ledger is required;
// /metrics is served when both Registerer and Gatherer are set.
type Deps struct {
	Ledger     *service.VotingService
	Store      *storage.JSONStore
	EventBus   *event.EventBus
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

type Server struct {
	server   *http.Server
	handler  http.Handler
	cfg      config.ServerConfig
	ledger   *service.VotingService
	counter  *service.VoteCountingService
	verifier *service.VoteVerificationService
	store    *storage.JSONStore
	live     *LiveHub
	metrics  *httpMetrics
	logger   *slog.Logger
}

func NewServer(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	s := &Server{
		cfg:      cfg,
		ledger:   deps.Ledger,
		counter:  service.NewVoteCountingService(deps.Ledger),
		verifier: service.NewVoteVerificationService(deps.Ledger),
		store:    deps.Store,
		logger:   logger,
	}
	s.live = NewLiveHub(s.counter, deps.Ledger, deps.EventBus, logger)

	var gatherer prometheus.Gatherer
	if deps.Registerer != nil && deps.Gatherer != nil && cfg.MetricsEnabled {
		s.metrics = newHTTPMetrics(deps.Registerer)
		gatherer = deps.Gatherer
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux, gatherer)
	s.handler = s.middleware(mux)

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.HandleFunc("GET /api/ping", s.handlePing)
	mux.HandleFunc("GET /api/placeholder/{candidateId}", s.handlePlaceholder)

	mux.HandleFunc("GET /api/voting/candidates", s.handleGetCandidates)
	mux.HandleFunc("POST /api/voting/vote", s.handleCastVote)
	mux.HandleFunc("GET /api/voting/results", s.handleGetResults)
	mux.HandleFunc("GET /api/voting/voter/{address}", s.handleGetVoterHistory)
	mux.HandleFunc("GET /api/voting/status", s.handleGetStatus)
	mux.HandleFunc("POST /api/voting/verify/{voteId}", s.handleVerifyVote)
	mux.HandleFunc("GET /api/voting/verify/{voteId}", s.handleVerifyVote)
	mux.HandleFunc("GET /api/voting/ledger", s.handleGetLedger)
	mux.HandleFunc("POST /api/voting/session/end", s.handleEndSession)
	mux.HandleFunc("POST /api/voting/wallet/connect", s.handleConnectWallet)
	mux.Handle("GET /api/voting/live", s.live)

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/api/", s.handleAPINotFound)
	mux.HandleFunc("/", s.handleStatic)
}

// Handler returns the fully wrapped handler, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed after
// a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("server starting", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown closes live connections and then drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	s.live.Close()
	return s.server.Shutdown(ctx)
}

// ExportChain writes the current audit chain to the store. It returns "" when
// no store is configured.
func (s *Server) ExportChain() (string, error) {
	if s.store == nil {
		return "", nil
	}
	return s.store.SaveChain(s.ledger.GetSession().ID, s.ledger.Chain())
}
