package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"studypal/internal/auth"
	"studypal/internal/config"
	"studypal/internal/crypto"
	"studypal/internal/db"
	"studypal/internal/genai"
	"studypal/internal/handlers"
	"studypal/internal/logging"
	"studypal/internal/mailer"
	mw "studypal/internal/middleware"
	"studypal/internal/ratelimit"
	"studypal/internal/repository"
	"studypal/internal/services"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.AppEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func newMailer(cfg *config.Config, logger *zap.Logger) mailer.Mailer {
	switch cfg.MailDriver {
	case "sendgrid":
		return mailer.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFrom, logger)
	case "log":
		return mailer.NewLogMailer(logger)
	default:
		return mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpen, cfg.DBMaxIdle)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.RunMigrations(conn); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.RedisAddr != "" {
		rdb, err := ratelimit.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedis(rdb, "otp", cfg.OTPPerHour, time.Hour)
	} else {
		logger.Warn("REDIS_ADDR not set; OTP requests are not rate limited")
	}

	sealer, err := crypto.NewSealer(cfg.EncryptionKey, cfg.BlindIndexKey)
	if err != nil {
		return err
	}
	model, err := genai.New(genai.Options{
		BaseURL:    cfg.GenAIBaseURL,
		APIKey:     cfg.GenAIAPIKey,
		Model:      cfg.GenAIModel,
		EmbedModel: cfg.GenAIEmbedModel,
		Timeout:    cfg.GenAITimeout,
		MaxRetries: cfg.GenAIRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("genai: %w", err)
	}

	repo := repository.New(conn)
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.SessionTTL)

	otpSvc := services.NewOTPService(repo, sealer, newMailer(cfg, logger), limiter, cfg.OTPTTL, cfg.OTPAttempts, logger)
	authSvc := services.NewAuthService(repo, tokens, logger)

	var google handlers.OAuthProvider
	if cfg.GoogleEnabled() {
		redirect := cfg.GoogleRedirectURL
		if redirect == "" {
			redirect = cfg.BaseURL + "/api/auth/google/callback"
		}
		google = auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, redirect)
	}

	rs := handlers.NewResponder(logger, !cfg.IsProduction())
	router := handlers.NewRouter(handlers.RouterDeps{
		Logger:        logger,
		CORSOrigins:   cfg.CORSOrigins,
		Authenticator: mw.NewAuthenticator(tokens, logger),
		DB:            conn,
		Auth: handlers.NewAuthHandler(otpSvc, authSvc, google,
			handlers.SessionCookies{Secure: cfg.IsProduction(), TTL: cfg.SessionTTL}, rs),
		Goals:     handlers.NewGoalHandler(services.NewGoalService(repo, logger), rs),
		Diary:     handlers.NewDiaryHandler(services.NewDiaryService(repo, sealer, logger), rs),
		StudyPath: handlers.NewStudyPathHandler(services.NewStudyPathService(repo, logger), rs),
		Profiles:  handlers.NewProfileHandler(services.NewProfileService(repo), rs),
		Chat:      handlers.NewChatHandler(services.NewChatService(repo, model, logger), rs),
		Dashboard: handlers.NewDashboardHandler(services.NewDashboardService(repo, logger), rs),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
