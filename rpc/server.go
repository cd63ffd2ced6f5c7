// Package rpc exposes the engine over a JSON HTTP API.
package rpc

import (
	"context"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/models"
	"github.com/prism-fi/prism-router/quota"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "rpc").Logger()
}

// Quoter is the engine surface the server needs.
type Quoter interface {
	SwapQuote(ctx context.Context, req *models.SwapRequest, p quota.Params) (*models.Quota, error)
	CrossChainQuote(ctx context.Context, req *models.SwapRequest, p quota.Params) (*models.Quota, error)
	Prices(network string) map[common.Address]*big.Int
	Ready() bool
}

// Server wraps the HTTP server and provides lifecycle management.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
}

// NewServer builds the chi router and the underlying HTTP server with h2c
// support.
func NewServer(cfg *config.Config, engine Quoter) *Server {
	mux := chi.NewMux()

	mux.Use(zerologMiddleware)
	mux.Use(zerologRecoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Compress(5))
	mux.Use(middleware.Timeout(60 * time.Second))

	if cfg.Server.RatePerMinute > 0 {
		mux.Use(httprate.LimitByIP(cfg.Server.RatePerMinute, 1*time.Minute))
	}

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"prism-router"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !engine.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"waiting_for_prices"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	h := &handlers{cfg: cfg, engine: engine}
	mux.Post("/v1/quote", h.swapQuote)
	mux.Post("/v1/crosschain/quote", h.crossChainQuote)
	mux.Get("/v1/prices/{network}", h.prices)

	corsHandler := newCORSHandler(cfg.Server.AllowedOrigins, mux)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           h2c.NewHandler(corsHandler, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{cfg: cfg, httpServer: httpServer}
}

// Start begins serving requests without TLS.
func (s *Server) Start() error {
	log.Info().Str("address", s.cfg.Server.Address).Msg("API server starting")
	log.Info().Msg("Available endpoints:")
	log.Info().Msg("\tQuote: POST /v1/quote")
	log.Info().Msg("\tCross-chain quote: POST /v1/crosschain/quote")
	log.Info().Msg("\tPrices: GET /v1/prices/{network}")
	log.Info().Msg("\tHealth: /health, Ready: /ready, Metrics: /metrics")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// zerologMiddleware logs HTTP requests.
func zerologMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

// zerologRecoverer recovers from handler panics.
func zerologRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				log.Error().
					Interface("panic", rvr).
					Str("path", r.URL.Path).
					Msg("Recovered from panic")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func newCORSHandler(allowedOrigins []string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// CORS spec forbids wildcard origins with credentials.
	allowCredentials := !(len(allowedOrigins) == 1 && allowedOrigins[0] == "*")

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
		},
		AllowedHeaders: []string{
			"Accept",
			"Accept-Encoding",
			"Content-Type",
		},
		AllowCredentials: allowCredentials,
		MaxAge:           int(2 * time.Hour / time.Second),
	}).Handler(next)
}
