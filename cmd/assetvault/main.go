package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/AssetVault/app/controllers"
	"github.com/ManuelReschke/AssetVault/app/repository"
	"github.com/ManuelReschke/AssetVault/internal/pkg/billing"
	"github.com/ManuelReschke/AssetVault/internal/pkg/cache"
	"github.com/ManuelReschke/AssetVault/internal/pkg/database"
	"github.com/ManuelReschke/AssetVault/internal/pkg/delivery"
	"github.com/ManuelReschke/AssetVault/internal/pkg/entitlements"
	"github.com/ManuelReschke/AssetVault/internal/pkg/env"
	"github.com/ManuelReschke/AssetVault/internal/pkg/jobqueue"
	"github.com/ManuelReschke/AssetVault/internal/pkg/keylock"
	"github.com/ManuelReschke/AssetVault/internal/pkg/mail"
	"github.com/ManuelReschke/AssetVault/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/AssetVault/internal/pkg/router"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Server] Listen failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("[Server] Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("[Server] Shutdown: %v", err)
	}
	shutdown()
}

// NewApplication wires the services and returns the app plus a function that
// stops background work.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	rdb := cache.GetClient()
	repository.InitializeFactory(db)
	factory := repository.GetGlobalFactory()
	locks := keylock.NewManager(rdb, "assetvault")

	// Notification sink
	billingRepo := billing.NewRepository(db)
	outbox := billing.NewOutbox(billingRepo, mail.NewPaymentNotifier(mail.NewSMTPMailer(mail.LoadConfig())),
		billing.WithOutboxWorkers(env.GetInt("NOTIFY_WORKERS", 2)),
		billing.WithOutboxMaxAttempts(env.GetInt("NOTIFY_MAX_ATTEMPTS", 5)),
	)

	payments := billing.NewService(billingRepo,
		billing.WithGateway(billing.NewMercadoPagoClientFromEnv()),
		billing.WithLocker(locks),
		billing.WithOutbox(outbox),
	)
	grants := entitlements.NewServiceFromDB(db,
		entitlements.WithLocker(locks),
		entitlements.WithLocation(env.GetLocation("APP_TIMEZONE")),
		entitlements.WithRepeatDownloads(env.GetBool("DOWNLOAD_REPEAT_FREE", true)),
	)

	deliveryCfg, err := delivery.LoadConfig()
	if err != nil {
		log.Fatalf("[Delivery] %v", err)
	}
	signer, err := delivery.NewSigner(deliveryCfg)
	if err != nil {
		log.Fatalf("[Delivery] %v", err)
	}
	downloads := counter.New(rdb, db, "assetvault")

	webhookCfg := controllers.LoadWebhookConfig()
	if webhookCfg.Verify && webhookCfg.Secret == "" {
		log.Warn("[Billing] MP_WEBHOOK_VERIFY is on but MP_WEBHOOK_SECRET is empty; every webhook will be rejected")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	if specPath := findOpenAPISpec(); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Accounts:       factory.GetAccountRepository(),
		Downloads:      controllers.NewDownloadController(grants, signer, downloads),
		Billing:        controllers.NewBillingController(payments, factory.GetPlanRepository(), webhookCfg),
		LimiterStorage: router.NewLimiterStorage(rdb),
		RateLimitMax:   env.GetInt("API_RATE_LIMIT", 60),
		RateLimitTTL:   env.GetDuration("API_RATE_WINDOW", time.Minute),
	})

	// Background work
	outbox.Start()
	jobs := jobqueue.NewManager(
		jobqueue.Task{
			Name:     "notification-sweep",
			Interval: env.GetDuration("NOTIFY_SWEEP_INTERVAL", time.Minute),
			Run: func(ctx context.Context) error {
				_, err := outbox.DispatchPending(ctx, 100)
				return err
			},
		},
		jobqueue.Task{
			Name:     "subscription-expiry",
			Interval: env.GetDuration("SUBSCRIPTION_EXPIRY_INTERVAL", 10*time.Minute),
			Run: func(ctx context.Context) error {
				_, err := payments.ExpireLapsedSubscriptions(ctx)
				return err
			},
		},
		jobqueue.Task{
			Name:     "download-counter-flush",
			Interval: env.GetDuration("COUNTER_FLUSH_INTERVAL", 30*time.Second),
			Run:      downloads.Flush,
		},
	)
	jobs.Start()

	return app, func() {
		jobs.Stop()
		outbox.Stop()
		if err := downloads.Flush(context.Background()); err != nil {
			log.Warnf("[Counter] Final flush failed: %v", err)
		}
	}
}

func findOpenAPISpec() string {
	for _, base := range []string{"./", "../../"} {
		p := base + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
