package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/wingscash/books-gateway/internal/assets"
	"github.com/wingscash/books-gateway/internal/auth"
	"github.com/wingscash/books-gateway/internal/cash"
	"github.com/wingscash/books-gateway/internal/coa"
	"github.com/wingscash/books-gateway/internal/pending"
	"github.com/wingscash/books-gateway/internal/transport/middleware"
	"github.com/wingscash/books-gateway/internal/transport/swagger"
	"github.com/wingscash/books-gateway/internal/zoho"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth    *auth.Handler
	Pending *pending.Handler
	COA     *coa.Handler
	Cash    *cash.Handler
	Zoho    *zoho.Handler
	Assets  *assets.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, handlers Handlers, uploadsDir, allowedOrigins string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(allowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// OpenAPI spec and swagger UI at root, outside the API prefix.
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	// Stored receipts, served as static files.
	if uploadsDir != "" {
		fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadsDir)))
		router.Handle("/uploads/*", fileServer)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", handlers.Auth.Login)
			sr.Post("/refresh", handlers.Auth.RefreshToken)
		})

		// Everything below requires a valid token.
		r.Group(func(pr chi.Router) {
			pr.Use(handlers.Auth.AuthMiddleware)

			pr.Get("/users/me", handlers.Auth.Me)

			pr.Route("/expenses", func(er chi.Router) {
				er.Post("/", handlers.Pending.CreateExpense)
				er.Get("/approved", handlers.Pending.ListApproved)
				er.Get("/{id}", handlers.Pending.GetExpense)
				er.Patch("/{id}", handlers.Pending.UpdateExpense)
				er.Delete("/{id}", handlers.Pending.DeleteExpense)
			})

			// Approval queue is admin only.
			pr.Group(func(ar chi.Router) {
				ar.Use(handlers.Auth.RequireAdmin)
				ar.Get("/pending/expenses", handlers.Pending.ListPending)
				ar.Post("/pending/expenses/{id}/approve", handlers.Pending.ApproveExpense)
				ar.Post("/pending/expenses/{id}/reject", handlers.Pending.RejectExpense)
			})

			pr.Route("/accrued", func(ar chi.Router) {
				ar.Get("/expenses", handlers.Pending.ListAccrued)
				ar.Post("/{id}/clear", handlers.Pending.ClearAccrued)
				ar.Get("/payments", handlers.Pending.ListPaymentsMade)
			})

			pr.Post("/receipts/upload/{id}", handlers.Pending.UploadReceipt)

			pr.Route("/assets", func(ar chi.Router) {
				ar.Post("/create", handlers.Assets.CreateAsset)
				ar.Get("/all", handlers.Assets.ListAssets)
				ar.Get("/by-id/{asset_id}", handlers.Assets.GetAsset)
			})

			pr.Get("/cash", handlers.Cash.GetDashboard)
			pr.Get("/cash/accounts/{account_id}", handlers.Cash.GetAccount)

			pr.Get("/coa/expense-accounts", handlers.COA.GetExpenseAccounts)
			pr.Get("/coa/paid-through-accounts", handlers.COA.GetPaidThroughAccounts)

			pr.Get("/vendors", handlers.Zoho.GetVendors)
		})
	})
}
