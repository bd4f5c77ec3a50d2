// Package server assembles the HTTP API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"onlinelibrary/internal/catalog"
	"onlinelibrary/internal/journal"
	"onlinelibrary/internal/lending"
	"onlinelibrary/internal/membership"
	"onlinelibrary/internal/platform/config"
	"onlinelibrary/internal/platform/httpjson"
	"onlinelibrary/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the router exposes.
type Deps struct {
	Catalog    catalog.Service
	Membership membership.Service
	Lending    lending.Service
	Journal    *journal.Reader
	Tokens     *session.TokenManager
	AdminUser  string
	Store      Pinger
	Registry   *prometheus.Registry
	Logger     *slog.Logger
}

// NewRouter wires every route under /api/v1 plus /healthz and /metrics.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger, newHTTPMetrics(d.Registry)))
	r.Use(middleware.Recoverer)

	books := catalog.NewHandler(d.Catalog)
	members := membership.NewHandler(d.Membership, d.Tokens)
	ledger := lending.NewHandler(d.Lending)
	events := journal.NewHandler(d.Journal)
	auth := session.RequireAuth(d.Tokens, d.AdminUser, d.Logger)

	r.Get("/healthz", health(d.Store))
	r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{Registry: d.Registry}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/members", members.HandleRegister)
		r.Post("/login", members.HandleLogin)
		r.Get("/books", books.HandleListBooks)
		r.Get("/books/{id}", books.HandleGetBook)
		r.Get("/books/{id}/reviews", books.HandleReviews)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/books/{id}/reviews", books.HandleAddReview)
			r.Post("/books/{id}/borrow", ledger.HandleBorrow)
			r.Post("/books/{id}/return", ledger.HandleReturn)
			r.Get("/me/borrowings", ledger.HandleActiveBorrowings)
			r.Get("/me/history", ledger.HandleHistory)
			r.Get("/me/invoices", ledger.HandleInvoices)
			r.Post("/fees/{id}/pay", ledger.HandlePay)
			r.Get("/borrowings/{id}/invoice", ledger.HandleInvoiceMessage)
			r.Post("/invoices/parse", ledger.HandleParseMessage)

			r.Group(func(r chi.Router) {
				r.Use(session.RequireAdmin)
				r.Post("/books", books.HandleAddBook)
				r.Get("/admin/journal", events.HandleStream)
				r.Get("/admin/journal/{type}/{id}", events.HandleAggregate)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpjson.Error(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpjson.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func health(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			httpjson.Error(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// New builds the HTTP server for cfg.
func New(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
