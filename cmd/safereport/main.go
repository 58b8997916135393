package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/safereport/safereport/internal/config"
	"github.com/safereport/safereport/internal/database"
	"github.com/safereport/safereport/internal/handlers"
	"github.com/safereport/safereport/internal/mailer"
	"github.com/safereport/safereport/internal/notify"
	"github.com/safereport/safereport/internal/services"
	"github.com/safereport/safereport/internal/slack"
	"github.com/safereport/safereport/internal/sms"
	"gorm.io/gorm/logger"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting SafeReport occurrence service...")

	db, err := database.Connect(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Printf("Database connection established")

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	if err := database.InitializeDefaults(db); err != nil {
		log.Fatalf("Failed to initialize database defaults: %v", err)
	}

	// Notification transports are optional; a missing transport means the
	// dispatcher records notifications and skips that delivery channel.
	var mailSender notify.Mailer
	if cfg.SendGridAPIKey != "" {
		client, err := mailer.New(mailer.Config{
			APIKey:    cfg.SendGridAPIKey,
			BaseURL:   cfg.SendGridBaseURL,
			FromEmail: cfg.MailFromEmail,
			FromName:  cfg.MailFromName,
		})
		if err != nil {
			log.Fatalf("Failed to configure email transport: %v", err)
		}
		mailSender = client
		log.Printf("Email transport configured (from: %s)", cfg.MailFromEmail)
	} else {
		log.Printf("SENDGRID_API_KEY not set, email delivery disabled")
	}

	var textSender notify.Texter
	if cfg.TwilioAccountSID != "" {
		client, err := sms.New(sms.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
			BaseURL:    cfg.TwilioBaseURL,
		})
		if err != nil {
			log.Fatalf("Failed to configure SMS transport: %v", err)
		}
		textSender = client
		log.Printf("SMS transport configured")
	} else {
		log.Printf("TWILIO_ACCOUNT_SID not set, SMS delivery disabled")
	}

	var mirror notify.Mirror
	if cfg.SlackBotToken != "" {
		mirror = slack.New(cfg.SlackBotToken, cfg.SlackChannel)
		log.Printf("Slack mirror configured for channel %s", cfg.SlackChannel)
	}

	dispatcher := notify.NewStoreDispatcher(db, mailSender, textSender)
	engine := notify.NewEngine(db, dispatcher, mirror)
	occurrenceService := services.NewOccurrenceService(db, engine)

	occurrenceHandler := handlers.NewOccurrenceHandler(db, occurrenceService)
	httpHandler := handlers.NewHTTPHandler(occurrenceHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      httpHandler.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on port %d", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Shutdown complete")
}
