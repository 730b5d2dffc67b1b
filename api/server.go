package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/spooky-finn/orderbook-sync/domain"
	promclient "github.com/spooky-finn/orderbook-sync/infrastructure/prometheus"
	"github.com/spooky-finn/orderbook-sync/usecase"
	"go.uber.org/zap"
)

// Dashboard is what the HTTP layer needs from the sync controller.
type Dashboard interface {
	Track(ctx context.Context, symbol string) error
	Untrack(ctx context.Context, symbol string) error
	Symbols(ctx context.Context) ([]string, error)
	View(ctx context.Context, symbol string) (*usecase.SymbolView, error)
	Refresh(ctx context.Context, symbols ...string) error
	Connectivity(ctx context.Context) (map[domain.Source]domain.ConnectionState, error)

	SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.LedgerEntry, error)
	CancelOrder(ctx context.Context, orderID string) (domain.LedgerEntry, error)
	Orders(ctx context.Context, symbol string) (*usecase.OrdersSummary, error)
	EvictOrder(ctx context.Context, orderID string) error
}

type Server struct {
	dashboard         Dashboard
	validationService *ValidationService
	router            *mux.Router
	registry          *prometheus.Registry
	logger            *zap.Logger
}

func NewServer(dashboard Dashboard, conf *ValidationServiceConfig, registry *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		dashboard:         dashboard,
		validationService: NewValidationService(conf),
		router:            mux.NewRouter(),
		registry:          registry,
		logger:            logger.With(zap.String("component", "api")),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/symbols", s.handleGetSymbols).Methods(http.MethodGet)
	api.HandleFunc("/symbols", s.handleTrackSymbol).Methods(http.MethodPost)
	api.HandleFunc("/symbols/{symbol}", s.handleGetSymbolView).Methods(http.MethodGet)
	api.HandleFunc("/symbols/{symbol}", s.handleUntrackSymbol).Methods(http.MethodDelete)
	api.HandleFunc("/symbols/{symbol}/refresh", s.handleRefreshSymbol).Methods(http.MethodPost)

	api.HandleFunc("/orders", s.handleGetOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", s.handleCancelOrder).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}/evict", s.handleEvictOrder).Methods(http.MethodPost)

	api.HandleFunc("/status", s.handleGetStatus).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.registry != nil {
		s.router.Handle("/metrics", promclient.Handler(s.registry)).Methods(http.MethodGet)
	}
}

// Handler is the router wrapped with the CORS policy for the browser dashboard.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start serves until ctx is done, then shuts the listener down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("api server stopped")
	return nil
}
