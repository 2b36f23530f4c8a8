package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/cardhub/card-service/internal/cardcrypt"
	"github.com/cardhub/card-service/internal/config"
	"github.com/cardhub/card-service/internal/handler"
	"github.com/cardhub/card-service/internal/middleware"
	"github.com/cardhub/card-service/internal/repository"
	"github.com/cardhub/card-service/internal/service"
	"github.com/cardhub/card-service/internal/utils/email"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	codec, err := cardcrypt.NewCodec(cfg.EncryptionKey, cfg.HMACSecret)
	if err != nil {
		logger.Fatalf("Failed to build card codec: %v", err)
	}
	var notifier service.ExpiryNotifier
	if cfg.SMTPHost != "" {
		notifier = email.NewSender(cfg, logger)
	}
	repo := repository.NewRepository(db)
	svc := service.NewService(repo, codec, logger, cfg, notifier)
	h := handler.NewHandler(svc)

	// Schedule the nightly expiry sweep
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.SweepSchedule, func() {
		if _, err := svc.SweepExpired(time.Now()); err != nil {
			logger.Errorf("Expiry sweep failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule expiry sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/cards", h.CreateCard).Methods("POST")
	authRouter.HandleFunc("/cards", h.ListCards).Methods("GET")
	authRouter.HandleFunc("/cards/my", h.MyCards).Methods("GET")
	authRouter.HandleFunc("/cards/fill", h.FillCard).Methods("POST")
	authRouter.HandleFunc("/cards/transfer", h.Transfer).Methods("POST")
	authRouter.HandleFunc("/cards/{id:[0-9]+}", h.GetCard).Methods("GET")
	authRouter.HandleFunc("/cards/{id:[0-9]+}", h.UpdateCard).Methods("PATCH")
	authRouter.HandleFunc("/cards/{id:[0-9]+}", h.DeleteCard).Methods("DELETE")
	authRouter.HandleFunc("/cards/{id:[0-9]+}/details", h.GetCardDetails).Methods("GET")
	authRouter.HandleFunc("/cards/{id:[0-9]+}/balance", h.GetBalance).Methods("GET")
	authRouter.HandleFunc("/cards/{id:[0-9]+}/status", h.ChangeStatus).Methods("POST")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
