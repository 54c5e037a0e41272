package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/portfoliodesk/backend/src/config"
	"github.com/username/portfoliodesk/backend/src/database"
	"github.com/username/portfoliodesk/backend/src/handlers"
	"github.com/username/portfoliodesk/backend/src/logger"
	"github.com/username/portfoliodesk/backend/src/security"
	"github.com/username/portfoliodesk/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000":    true,
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag, X-Request-ID")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Portfoliodesk backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}
	if len(config.Cfg.CSRFAuthKey) < 32 {
		logger.L.Error("CSRF_AUTH_KEY must be at least 32 bytes long.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	dashboardCache := cache.New(config.Cfg.DashboardCacheTTL, 2*config.Cfg.DashboardCacheTTL)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	emailService := services.NewEmailService()
	transactionService := services.NewTransactionService(database.DB)
	dashboardService := services.NewDashboardService(database.DB, dashboardCache)

	userHandler := handlers.NewUserHandler(authService, emailService)
	clientHandler := handlers.NewClientHandler(dashboardService)
	investmentHandler := handlers.NewInvestmentHandler(dashboardService)
	transactionHandler := handlers.NewTransactionHandler(transactionService, dashboardService)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)

	if config.Cfg.GoogleClientID != "" {
		handlers.InitializeGoogleOAuthConfig()
	} else {
		logger.L.Warn("Google OAuth not configured; /api/auth/google routes will fail")
	}

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	// Public GET routes (no CSRF needed for these GETs)
	apiRouter.HandleFunc("GET /api/auth/csrf", handlers.GetCSRFToken)
	apiRouter.HandleFunc("GET /api/auth/verify-email", userHandler.VerifyEmailHandler) // Token in query param
	apiRouter.HandleFunc("GET /api/auth/google/login", userHandler.HandleGoogleLogin)
	apiRouter.HandleFunc("GET /api/auth/google/callback", userHandler.HandleGoogleCallback)

	// Auth actions router - POST routes generally need CSRF
	authActionRouter := http.NewServeMux()
	authActionRouter.HandleFunc("POST /login", userHandler.LoginUserHandler)
	authActionRouter.HandleFunc("POST /register", userHandler.RegisterUserHandler)
	authActionRouter.HandleFunc("POST /refresh", userHandler.RefreshTokenHandler)
	authActionRouter.HandleFunc("POST /logout", userHandler.AuthMiddleware(userHandler.LogoutUserHandler))
	authActionRouter.HandleFunc("POST /request-password-reset", userHandler.RequestPasswordResetHandler)
	authActionRouter.HandleFunc("POST /reset-password", userHandler.ResetPasswordHandler)

	// Apply CSRF to the entire authActionRouter group
	apiRouter.Handle("/api/auth/", http.StripPrefix("/api/auth", handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey)(authActionRouter)))

	// CSRF and Auth middleware for protected API routes
	csrfProtection := handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey)
	applyCsrfAndAuth := func(handler http.HandlerFunc) http.Handler {
		return csrfProtection(http.HandlerFunc(userHandler.AuthMiddleware(handler)))
	}

	apiRouter.Handle("GET /api/clients", applyCsrfAndAuth(clientHandler.ListClientsHandler))
	apiRouter.Handle("POST /api/clients", applyCsrfAndAuth(clientHandler.CreateClientHandler))
	apiRouter.Handle("GET /api/clients/{id}", applyCsrfAndAuth(clientHandler.GetClientHandler))
	apiRouter.Handle("PATCH /api/clients/{id}", applyCsrfAndAuth(clientHandler.UpdateClientHandler))
	apiRouter.Handle("DELETE /api/clients/{id}", applyCsrfAndAuth(clientHandler.DeleteClientHandler))
	apiRouter.Handle("GET /api/clients/{id}/investments", applyCsrfAndAuth(investmentHandler.ListClientInvestmentsHandler))
	apiRouter.Handle("GET /api/clients/{id}/transactions", applyCsrfAndAuth(transactionHandler.ListClientTransactionsHandler))

	apiRouter.Handle("GET /api/investments", applyCsrfAndAuth(investmentHandler.ListInvestmentsHandler))
	apiRouter.Handle("POST /api/investments", applyCsrfAndAuth(investmentHandler.CreateInvestmentHandler))
	apiRouter.Handle("GET /api/investments/{id}", applyCsrfAndAuth(investmentHandler.GetInvestmentHandler))
	apiRouter.Handle("PATCH /api/investments/{id}", applyCsrfAndAuth(investmentHandler.UpdateInvestmentHandler))
	apiRouter.Handle("DELETE /api/investments/{id}", applyCsrfAndAuth(investmentHandler.DeleteInvestmentHandler))

	apiRouter.Handle("GET /api/transactions", applyCsrfAndAuth(transactionHandler.ListTransactionsHandler))
	apiRouter.Handle("POST /api/transactions", applyCsrfAndAuth(transactionHandler.CreateTransactionHandler))
	apiRouter.Handle("GET /api/transactions/{id}", applyCsrfAndAuth(transactionHandler.GetTransactionHandler))
	apiRouter.Handle("PUT /api/transactions/{id}", applyCsrfAndAuth(transactionHandler.UpdateTransactionHandler))
	apiRouter.Handle("PATCH /api/transactions/{id}", applyCsrfAndAuth(transactionHandler.UpdateTransactionHandler))
	apiRouter.Handle("DELETE /api/transactions/{id}", applyCsrfAndAuth(transactionHandler.DeleteTransactionHandler))

	apiRouter.Handle("GET /api/dashboard", applyCsrfAndAuth(dashboardHandler.GetDashboardHandler))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Portfoliodesk backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := handlers.RequestIDMiddleware(enableCORS(rateLimitMiddleware(rootMux)))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
