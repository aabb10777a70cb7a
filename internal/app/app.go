package app

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"talkdrove/internal/config"
	"talkdrove/internal/database"
	"talkdrove/internal/handlers"
	"talkdrove/internal/middleware"
	"talkdrove/internal/repositories"
	"talkdrove/internal/routes"
	"talkdrove/internal/services"
	"talkdrove/internal/utils"
)

func Run() {
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === DB ===
	db, err := database.OpenPostgres(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatal("Postgres connection failed: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Postgres close: %v", err)
		}
	}()
	if err := database.Migrate(ctx, db, database.PostgresSchema); err != nil {
		log.Fatal("Migration failed: ", err)
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = database.OpenRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal("Redis connection failed: ", err)
		}
		defer rdb.Close()
	}

	// === Repos ===
	userRepo := repositories.NewUserRepository(db)
	ipTrackingRepo := repositories.NewIPTrackingRepository(db)
	walletRepo := repositories.NewWalletRepository(db)
	deviceRepo := repositories.NewDeviceRepository(db)
	deploymentRepo := repositories.NewDeploymentRepository(db)
	senderRepo := repositories.NewEmailSenderRepository(db)
	keyRepo := repositories.NewHerokuKeyRepository(db)

	// === Outbound ===
	notifier := services.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID)
	mailer := services.NewSMTPMailer(cfg.Email.FromName)
	heroku := utils.NewHerokuClient(cfg.Heroku.BaseURL, cfg.Heroku.Timeout)

	poolOpts := services.PoolOptions{
		FlapWindow:   cfg.Credentials.FlapWindow,
		ProbeTimeout: cfg.Credentials.CallTimeout,
	}
	emailPool := services.NewEmailSenderPool(senderRepo, mailer, notifier, poolOpts)
	keyPool := services.NewHerokuKeyPool(keyRepo, heroku, notifier, poolOpts)
	emailService := services.NewEmailService(emailPool, mailer, cfg.Credentials.CallTimeout)

	// === Verification & sessions ===
	signupStore, loginStore := verificationStores(cfg, rdb)
	go services.RunSweeper(ctx, "signup", signupStore, cfg.Verification.SweepInterval)
	go services.RunSweeper(ctx, "login", loginStore, cfg.Verification.SweepInterval)

	var sessionStore services.SessionStore = services.NewMemorySessionStore(nil)
	if rdb != nil {
		sessionStore = services.NewRedisSessionStore(rdb)
	}
	sessionService := services.NewSessionService(sessionStore, cfg.Session.Secret, cfg.Session.TTL, nil)

	// === Services ===
	registration := services.NewRegistrationService(db, userRepo, ipTrackingRepo, walletRepo, services.RegistrationOptions{
		MaxAccountsPerIP: cfg.Signup.MaxAccountsPerIP,
		TrackingWindow:   cfg.TrackingWindow(),
		ReferralBonus:    cfg.Signup.ReferralBonus,
	})
	signupService := services.NewSignupService(userRepo, signupStore, emailService, registration, cfg.Signup.AllowedDomains)
	loginService := services.NewLoginService(userRepo, deviceRepo, loginStore, emailService, nil)
	deploymentService := services.NewDeploymentService(keyPool, heroku, deploymentRepo, cfg.Credentials.CallTimeout, nil)
	adminService := services.NewCredentialAdminService(keyRepo, senderRepo, heroku, emailService, cfg.Credentials.CallTimeout, nil)

	// === Handlers ===
	authHandler := handlers.NewAuthHandler(signupService, loginService, sessionService, handlers.CookieOptions{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.Secure,
	})
	deploymentHandler := handlers.NewDeploymentHandler(deploymentService)
	adminHandler := handlers.NewAdminHandler(adminService)
	deviceHandler := handlers.NewDeviceHandler(loginService)

	// === Gin ===
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	routes.SetupRoutes(router,
		routes.Handlers{Auth: authHandler, Deployment: deploymentHandler, Admin: adminHandler, Devices: deviceHandler},
		routes.SessionConfig{CookieName: cfg.Session.CookieName, Sessions: sessionService, Users: loginService},
	)

	// === Run ===
	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Server listening on %s (verification backend: %s)", listenAddr, cfg.Verification.Backend)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("Server failed: ", err)
	}
}

// verificationStores builds one store per flow; the flows differ only in
// their attempt limits.
func verificationStores(cfg *config.Config, rdb *redis.Client) (signup, login services.VerificationStore) {
	signupOpts := services.VerificationOptions{TTL: cfg.Verification.TTL, MaxAttempts: cfg.Verification.SignupMaxAttempts}
	loginOpts := services.VerificationOptions{TTL: cfg.Verification.TTL, MaxAttempts: cfg.Verification.LoginMaxAttempts}

	if cfg.Verification.Backend == "redis" {
		return services.NewRedisVerificationStore(rdb, "signup", signupOpts),
			services.NewRedisVerificationStore(rdb, "login", loginOpts)
	}
	return services.NewMemoryVerificationStore(signupOpts), services.NewMemoryVerificationStore(loginOpts)
}
