package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/username/cointax/backend/src/config"
	"github.com/username/cointax/backend/src/database"
	"github.com/username/cointax/backend/src/handlers"
	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/security"
	"github.com/username/cointax/backend/src/services"
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
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
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
	logger.L.Info("Cointax backend server starting...")

	var authService *security.AuthService
	if config.Cfg.JWTSecret != "" {
		if len(config.Cfg.JWTSecret) < 32 {
			logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
			os.Exit(1)
		}
		authService = security.NewAuthService(config.Cfg.JWTSecret)
		if token, err := authService.GenerateToken("local"); err == nil {
			logger.L.Info("Bootstrap API token issued for client 'local'", "token", token)
		}
	} else {
		logger.L.Warn("JWT_SECRET not set; API runs unauthenticated. Do not expose this instance beyond localhost.")
	}

	logger.L.Info("Loading tax policy...", "path", config.Cfg.PolicyPath)
	policy, err := config.LoadPolicy(config.Cfg.PolicyPath)
	if err != nil {
		logger.L.Error("Failed to load tax policy", "error", err)
		os.Exit(1)
	}
	logger.L.Info("Tax policy loaded",
		"method", policy.AccountingMethod,
		"strictBrokerMode", policy.StrictBrokerMode,
		"stakingTaxableOnReceipt", policy.StakingTaxableOnReceipt)

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing report cache...")
	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	logger.L.Info("Report cache initialized.")

	logger.L.Info("Initializing services and handlers...")
	priceService := services.NewPriceService(config.Cfg.PriceAPIBaseURL, config.Cfg.PriceCacheTTL)
	taxService := services.NewTaxReportService(policy, priceService, reportCache)
	uploadService := services.NewUploadService(taxService)

	uploadHandler := handlers.NewUploadHandler(uploadService)
	reportHandler := handlers.NewTaxReportHandler(taxService)
	txHandler := handlers.NewTransactionHandler(uploadService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	protect := handlers.AuthMiddleware(authService)
	applyAuth := func(handler http.HandlerFunc) http.Handler {
		return protect(handler)
	}

	apiRouter.Handle("POST /api/upload", applyAuth(uploadHandler.HandleUpload))
	apiRouter.Handle("GET /api/taxyear/{year}", applyAuth(reportHandler.HandleGetTaxYear))
	apiRouter.Handle("POST /api/taxyear/{year}/compute", applyAuth(reportHandler.HandleComputeTaxYear))
	apiRouter.Handle("GET /api/holdings/{year}", applyAuth(reportHandler.HandleGetHoldings))
	apiRouter.Handle("GET /api/transactions", applyAuth(txHandler.HandleGetTransactions))
	apiRouter.Handle("DELETE /api/transactions/all", applyAuth(txHandler.HandleDeleteAllTransactions))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			count, err := database.CountTransactions()
			if err != nil {
				logger.L.Error("Failed to count stored transactions", "error", err)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"message":      "COINTAX Backend is running",
				"transactions": count,
			})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
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
