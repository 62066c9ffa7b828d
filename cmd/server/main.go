package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/medix/medix-server/config"
	"github.com/medix/medix-server/internal/api"
	"github.com/medix/medix-server/internal/appointment"
	"github.com/medix/medix-server/internal/auth"
	"github.com/medix/medix-server/internal/chat"
	"github.com/medix/medix-server/internal/detect"
	"github.com/medix/medix-server/internal/gemini"
	"github.com/medix/medix-server/internal/repository"
	"github.com/medix/medix-server/internal/ws"

	_ "github.com/medix/medix-server/docs" // Swagger docs
)

// @title MediX Medical Assistant API
// @version 1.0
// @description Disease detection from medical images, AI symptom analysis, medical chat and appointment booking.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@medix.health

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg := config.LoadConfig()

	repo, err := repository.NewSQLiteRepository(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("[FATAL] Failed to open database: %v", err)
	}
	defer repo.Close()
	log.Printf("[INIT] SQLite database ready at %s", cfg.DatabasePath)

	var cache repository.ChatCache
	if cfg.RedisEnabled {
		redisCache, err := repository.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			log.Printf("[WARN] Redis unavailable, falling back to in-memory cache: %v", err)
			cache = repository.NewMemoryCache(cfg.RedisTTL)
		} else {
			log.Printf("[INIT] Connected to Redis at %s", cfg.RedisAddr)
			cache = redisCache
		}
	} else {
		cache = repository.NewMemoryCache(cfg.RedisTTL)
		log.Println("[INIT] Redis disabled, using in-memory chat cache")
	}
	defer cache.Close()

	registry, err := detect.NewRegistry(cfg.ModelsDir)
	if err != nil {
		log.Fatalf("[FATAL] Failed to load classification models: %v", err)
	}
	log.Printf("[INIT] Loaded classification models: %v", registry.Available())

	var refiner detect.Refiner
	var responder chat.Responder
	if cfg.GeminiAPIKey != "" {
		client := gemini.NewClient(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTimeout)
		refiner = client
		responder = client
		log.Printf("[INIT] Gemini client ready, model %s", cfg.GeminiModel)
	} else {
		log.Println("[WARN] GEMINI_API_KEY not set, symptom refinement and chat are degraded")
	}

	hub := ws.NewHub()
	go hub.Run()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	preprocessor := detect.NewPreprocessor(cfg.MaxImageBytes)
	detectService := detect.NewService(registry, preprocessor, refiner, repo, hub, cfg.AdvisoryThreshold)
	chatService := chat.NewService(responder, repo, cache)
	apptService := appointment.NewService(repo)

	authHandler := auth.NewHTTPHandler(repo, tokens)
	detectHandler := detect.NewHTTPHandler(detectService)
	chatHandler := chat.NewHTTPHandler(chatService)
	apptHandler := appointment.NewHTTPHandler(apptService)

	router := mux.NewRouter()
	authMiddleware := auth.Middleware(tokens, repo)

	authPublic := router.PathPrefix("/api/auth").Subrouter()
	authPrivate := router.PathPrefix("/api/auth").Subrouter()
	authPrivate.Use(authMiddleware)
	authHandler.RegisterRoutes(authPublic, authPrivate)

	diseaseRouter := router.PathPrefix("/api/disease").Subrouter()
	diseaseRouter.Use(authMiddleware)
	detectHandler.RegisterRoutes(diseaseRouter)

	chatRouter := router.PathPrefix("/api/chat").Subrouter()
	chatRouter.Use(authMiddleware)
	chatHandler.RegisterRoutes(chatRouter)

	apptRouter := router.PathPrefix("/api/appointments").Subrouter()
	apptRouter.Use(authMiddleware)
	apptHandler.RegisterRoutes(apptRouter)

	wsRouter := router.PathPrefix("/ws").Subrouter()
	wsRouter.Use(authMiddleware)
	wsRouter.HandleFunc("/results", hub.HandleWebSocket)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		api.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"models": registry.Available(),
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      enableCORS(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[INIT] MediX server starting on port %s", cfg.HTTPPort)
		log.Printf("[INIT] Swagger UI at http://localhost:%s/swagger/", cfg.HTTPPort)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[FATAL] Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[SHUTDOWN] Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("[FATAL] Server forced to shutdown: %v", err)
	}

	log.Println("[SHUTDOWN] Server exited gracefully")
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}
