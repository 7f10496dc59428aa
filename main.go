package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"volunteer-portal/handlers"
	"volunteer-portal/middleware"
	"volunteer-portal/models"
	"volunteer-portal/services"
	"volunteer-portal/utils"
	"volunteer-portal/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024, // 50MB, proof photos and scans
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — certificate verification is
	// the single exemption (handled inside the middleware)
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitArtifactStore(); err != nil {
		log.Fatal("failed to initialize artifact store:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.VolunteerUser{},
		&models.Event{},
		&models.Registration{},
		&models.Proof{},
		&models.Certificate{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	eventService := services.NewEventService(db)
	certificateService := services.NewCertificateService(db)
	proofService := services.NewProofService(db, certificateService)
	leaderboardService := services.NewLeaderboardService(db)
	dashboardService := services.NewDashboardService(db)

	authServiceURL := os.Getenv("AUTH_SERVICE_URL")
	if authServiceURL == "" {
		log.Fatal("AUTH_SERVICE_URL environment variable not set")
	}
	portalServiceToken := os.Getenv("PORTAL_SERVICE_TOKEN")
	if portalServiceToken == "" {
		log.Fatal("PORTAL_SERVICE_TOKEN environment variable not set")
	}

	syncWorker := workers.NewUserSyncWorker(db, authServiceURL, "/api/v1/internal/users", portalServiceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker.Start(ctx)
	leaderboardService.StartReconciliationScheduler()

	// Certificate routes first: the public verify route must sit ahead of any
	// secured group in the routing stack.
	handlers.SetupCertificateRoutes(app, certificateService)
	handlers.SetupEventRoutes(app, eventService)
	handlers.SetupProofRoutes(app, proofService)
	handlers.SetupLeaderboardRoutes(app, leaderboardService, dashboardService)

	// Proof artifacts and rendered certificates are served from disk when R2
	// is not configured.
	if dir := utils.LocalStorageDir(); dir != "" {
		app.Static("/uploads", "./"+dir)
	}

	go func() {
		if err := app.Listen(":5100"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5100")
	log.Println("✅ User Sync Worker running")
	log.Println("✅ Leaderboard reconciliation scheduler running (every 15m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
