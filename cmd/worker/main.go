package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"storyadmin/internal/audience"
	"storyadmin/internal/config"
	"storyadmin/internal/queue"
	"storyadmin/internal/repository"
	"storyadmin/internal/service"
)

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	adminDB := mustOpen("admin", cfg.AdminDB)
	defer adminDB.Close()
	coreDB := mustOpen("core", cfg.CoreDB)
	defer coreDB.Close()
	workflowDB := mustOpen("workflow", cfg.WorkflowDB)
	defer workflowDB.Close()

	campaignRepo := repository.NewCampaignRepository(adminDB)
	assetRepo := repository.NewAssetRepository(adminDB)
	batchRepo := repository.NewBatchRepository(adminDB)
	recipientRepo := repository.NewRecipientRepository(adminDB)

	estimator := audience.NewEstimator(coreDB, workflowDB, recipientRepo)
	dispatcher := service.NewSimulatedDispatcher(cfg.Dispatch.SuccessRate)

	batchSvc := service.NewBatchService(
		adminDB, campaignRepo, assetRepo, batchRepo, recipientRepo,
		estimator, dispatcher,
		cfg.Batch.Size, cfg.Dispatch.Timeout, cfg.Batch.SampleAddresses,
	)
	log.Println("✅ Services initialized")

	// Connect to RabbitMQ
	conn, err := queue.NewConnection(cfg.GetRabbitMQURL())
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()

	consumer, err := queue.NewConsumer(conn, queue.BatchQueueName, func(job *queue.BatchJob) error {
		log.Printf("📨 Processing batch %s (campaign %s)", job.BatchID, job.CampaignID)
		return batchSvc.Run(context.Background(), job.BatchID)
	})
	if err != nil {
		log.Fatalf("Failed to create consumer: %v", err)
	}

	if err := consumer.Start(); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}
	log.Printf("✅ Worker started, consuming from queue: %s", queue.BatchQueueName)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Shutting down gracefully...")

	if err := consumer.Stop(); err != nil {
		log.Printf("Error stopping consumer: %v", err)
	}

	log.Println("✅ Worker stopped")
}

func mustOpen(name string, dbCfg config.DatabaseConfig) *sql.DB {
	db, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		log.Fatalf("Failed to open %s database: %v", name, err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping %s database: %v", name, err)
	}
	log.Printf("✅ Connected to %s database", name)
	return db
}
