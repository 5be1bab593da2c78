package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/tradorr/tradorr-api/app/controllers"
	"github.com/tradorr/tradorr-api/app/repository"
	"github.com/tradorr/tradorr-api/internal/pkg/archive"
	"github.com/tradorr/tradorr-api/internal/pkg/billing"
	"github.com/tradorr/tradorr-api/internal/pkg/cache"
	"github.com/tradorr/tradorr-api/internal/pkg/database"
	"github.com/tradorr/tradorr-api/internal/pkg/env"
	"github.com/tradorr/tradorr-api/internal/pkg/firebase"
	"github.com/tradorr/tradorr-api/internal/pkg/jobqueue"
	"github.com/tradorr/tradorr-api/internal/pkg/metrics/counter"
	"github.com/tradorr/tradorr-api/internal/pkg/router"
)

func main() {
	app := NewApplication()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		jobqueue.GetManager().Stop()
		if err := firebase.Close(); err != nil {
			log.Printf("Failed to close firestore client: %v", err)
		}
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "5000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	repository.InitializeFactory(setupStore())
	cache.SetupCache()

	repos := repository.GetGlobalRepositories()
	svc := billing.NewServiceFromEnv(repos)
	usage := counter.NewAnalyzerUsageFromEnv(repos.User)

	// background reconcile retries, payload archive and usage flushing
	archiver := setupArchive()
	manager := jobqueue.GetManager()
	// a nil *archive.Client must not become a non-nil Archiver
	if archiver != nil {
		manager.GetQueue().SetProcessors(svc, archiver)
	} else {
		manager.GetQueue().SetProcessors(svc, nil)
	}
	svc.SetScheduler(manager.GetQueue(), archiver != nil)
	manager.SetCounterFlusher(usage)
	manager.Start()

	controllers.InitializeControllers(svc, usage)

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "tradorr-api",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}

// setupStore picks the persistence backend from STORE_DRIVER.
func setupStore() *repository.Repositories {
	switch driver := env.GetEnv("STORE_DRIVER", "firestore"); driver {
	case "mysql":
		database.SetupDatabase()
		return repository.NewGormRepositories(database.GetDB())
	case "firestore":
		client, err := firebase.Firestore(context.Background())
		if err != nil {
			log.Fatalf("Failed to initialize firestore: %v", err)
		}
		return repository.NewFirestoreRepositories(client)
	default:
		log.Fatalf("Unknown STORE_DRIVER %q, expected firestore or mysql", driver)
		return nil
	}
}

// setupArchive returns nil when webhook archiving is disabled.
func setupArchive() *archive.Client {
	cfg, err := archive.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid webhook archive configuration: %v", err)
	}
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := archive.NewClient(context.Background(), cfg)
	if err != nil {
		log.Printf("Webhook archive unavailable, continuing without it: %v", err)
		return nil
	}
	return client
}
