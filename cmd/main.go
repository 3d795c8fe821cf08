package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	cron "github.com/robfig/cron/v3"
	"github.com/rs/cors"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/app"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/config"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/constants"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/controllers"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/guard"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/middleware"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/repositories"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/routes"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/services"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

const cleanupTimeout = 5 * time.Minute

func main() {
	utils.InitLogger(config.AppName)
	cfg := config.LoadConfig()
	defer cfg.Close()

	application, err := app.NewApp(cfg)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize application:", err)
	}
	defer application.Close()

	//----------------------------------------------------------------------
	// Repositories
	//----------------------------------------------------------------------
	verificationRepo := repositories.NewVerificationRequestRepository(application.DB)

	//----------------------------------------------------------------------
	// Services
	//----------------------------------------------------------------------
	verificationGuard := guard.New(guard.DefaultRules())
	verificationService := services.NewVerificationService(verificationRepo, verificationGuard)
	verificationCleanupService := services.NewVerificationCleanupService(verificationRepo, constants.TerminalRetention)

	//----------------------------------------------------------------------
	// Controllers
	//----------------------------------------------------------------------
	verificationController := controllers.NewVerificationController(verificationService)
	adminController := controllers.NewAdminVerificationController(verificationService, verificationCleanupService)
	healthController := controllers.NewHealthController(application.DB)

	//----------------------------------------------------------------------
	// Router & Endpoints
	//----------------------------------------------------------------------
	router := mux.NewRouter()

	// Health
	router.HandleFunc(routes.Health, healthController.HealthCheckHandler).Methods(http.MethodGet)

	// Bot-facing
	router.HandleFunc(routes.VerifyRequests, verificationController.SubmitHandler).Methods(http.MethodPost)
	router.HandleFunc(routes.VerifyRequestByID, verificationController.GetHandler).Methods(http.MethodGet)
	router.HandleFunc(routes.VerifyUserRequests, verificationController.ListForUserHandler).Methods(http.MethodGet)
	router.HandleFunc(routes.VerifyUserQuota, verificationController.QuotaHandler).Methods(http.MethodGet)

	// Admin
	adminRouter := router.NewRoute().Subrouter()
	adminRouter.Use(middleware.AdminAuthMiddleware(cfg.RSAPublicKey))
	adminRouter.HandleFunc(routes.AdminApproveRequest, adminController.ApproveHandler).Methods(http.MethodPost)
	adminRouter.HandleFunc(routes.AdminDenyRequest, adminController.DenyHandler).Methods(http.MethodPost)
	adminRouter.HandleFunc(routes.AdminCleanup, adminController.CleanupHandler).Methods(http.MethodPost)

	//----------------------------------------------------------------------
	// Setup daily cleanup via cron
	//----------------------------------------------------------------------
	c := cron.New()

	if cfg.LDFlag_ScheduledCleanupEnabled {
		_, schErr := c.AddFunc(cfg.CleanupCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			defer cancel()
			if e := verificationCleanupService.CleanupDaily(ctx); e != nil {
				utils.Logger.WithError(e).Error("Scheduled verify_requests cleanup failed")
			}
		})
		if schErr != nil {
			utils.Logger.WithError(schErr).Fatal("Failed to schedule verify_requests cleanup job")
		}
		utils.Logger.Infof("Scheduled verify_requests cleanup at %q", cfg.CleanupCron)
	} else {
		utils.Logger.Warn("Scheduled cleanup disabled by flag; use the admin endpoint instead")
	}

	c.Start()
	defer c.Stop()

	allowedOrigins := []string{cfg.AppUrl}
	if !cfg.LDFlag_CORSHighSecurity {
		allowedOrigins = append(allowedOrigins, constants.CORSLowSecurityAllowedOriginLocalhost)
	}

	co := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	})

	utils.Logger.Infof("Starting %s on port: %s", cfg.AppName, cfg.AppPort)
	if err := http.ListenAndServe(":"+cfg.AppPort, co.Handler(router)); err != nil {
		utils.Logger.Fatal("Failed to start server:", err)
	}
}
