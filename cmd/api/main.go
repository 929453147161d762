package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"consult_gateway_go_backend/cmd/api/config"
	"consult_gateway_go_backend/internal/api"
	"consult_gateway_go_backend/internal/auth"
	"consult_gateway_go_backend/internal/database"
	"consult_gateway_go_backend/internal/services"
	"consult_gateway_go_backend/internal/utils/broker"
	"consult_gateway_go_backend/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const (
	summaryQueueSize = 256
	shutdownTimeout  = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	conversationDB := services.NewConversationServiceDB(db)
	partyDB := services.NewPartyServiceDB(db, cfg.DefaultMaxConversations)
	billingDB := services.NewBillingServiceDB(db)

	verifier := auth.NewTokenVerifier(cfg.JWTSecret)
	authenticator := auth.NewAuthenticator(verifier, services.NewIdentityDirectory(partyDB))

	b := broker.NewBroker(64)
	defer b.Close()
	registry := wsocket.NewRegistry()
	hub := wsocket.NewHub(registry, b, log.Logger)
	hub.Start(ctx)

	opts := []services.Option{services.WithNotifier(hub)}

	// Summaries, signed media URLs and checkout are optional integrations.
	if cfg.GenAIAPIKey != "" {
		genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GenAIAPIKey))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GenAI client")
		}
		defer genaiClient.Close()

		summarizer := services.NewGeminiSummarizer(genaiClient, cfg.SummaryModel)
		worker := services.NewSummaryWorker(conversationDB, billingDB, summarizer,
			cfg.SummaryWorkers, summaryQueueSize, cfg.SummaryTimeout, log.Logger)
		worker.Start(ctx)
		defer worker.Stop()
		opts = append(opts, services.WithSummaryQueue(worker))
	} else {
		log.Warn().Msg("GOOGLE_AI_STUDIO_API_KEY not set, session summaries disabled")
	}

	if cfg.GCSBucketName != "" {
		signer, err := services.NewGCSMediaSigner(ctx, cfg.GCSBucketName, cfg.SignedURLTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		defer signer.Close()
		opts = append(opts, services.WithMediaSigner(signer))
	} else {
		log.Warn().Msg("GCS_BUCKET_NAME not set, media URLs will not be signed")
	}

	var credits *services.CreditService
	if cfg.StripeSecretKey != "" {
		credits = services.NewCreditService(billingDB, services.StripeConfig{
			SecretKey:      cfg.StripeSecretKey,
			WebhookSecret:  cfg.StripeWebhookSecret,
			UnitPriceCents: cfg.CreditUnitPriceCents,
			SuccessURL:     cfg.CheckoutSuccessURL,
			CancelURL:      cfg.CheckoutCancelURL,
		}, log.Logger)
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, credit checkout disabled")
	}

	rates := services.Rates{UserPerMinute: cfg.UserRate(), PartnerPerMinute: cfg.PartnerRate()}
	billing := services.NewBillingService(billingDB, rates, log.Logger)
	conversations := services.NewConversationService(conversationDB, partyDB, billing, log.Logger, opts...)
	messages := services.NewMessageService(conversationDB, log.Logger, opts...)
	presence := services.NewPresenceService(partyDB, b, log.Logger, opts...)
	if err := presence.Reset(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to reset partner presence")
	}

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	auth.SetupRoutes(r, authenticator)
	api.SetupRoutes(r, authenticator, api.Services{
		Conversations: conversations,
		Messages:      messages,
		Billing:       billing,
		Presence:      presence,
		Statements:    services.NewStatementService(billing),
		Credits:       credits,
	})

	wsHandler := wsocket.NewHandler(authenticator, hub, conversations, messages, presence, wsocket.Config{
		PingInterval: cfg.WSPingInterval,
		SendBuffer:   cfg.WSSendBuffer,
		CheckOrigin:  originChecker(cfg.Origins()),
	}, log.Logger)
	r.GET("/ws", wsHandler.HandleWebSocket)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// requestLogger puts a request-scoped logger on the context for zerolog.Ctx.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger := log.With().Str("method", c.Request.Method).Str("path", c.FullPath()).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
		logger.Debug().Int("status", c.Writer.Status()).Dur("elapsed", time.Since(start)).Msg("Request served")
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin] || allowed["*"]
	}
}
