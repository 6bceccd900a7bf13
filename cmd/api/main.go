package main

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"storyadmin/internal/assetgen"
	"storyadmin/internal/audience"
	"storyadmin/internal/config"
	"storyadmin/internal/handler"
	"storyadmin/internal/middleware"
	"storyadmin/internal/queue"
	"storyadmin/internal/repository"
	"storyadmin/internal/service"
)

const version = "1.0.0"

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

	// Connect to RabbitMQ
	conn, err := queue.NewConnection(cfg.GetRabbitMQURL())
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()

	publisher, err := queue.NewPublisher(conn, queue.BatchQueueName)
	if err != nil {
		log.Fatalf("Failed to create publisher: %v", err)
	}

	// Repositories (campaign state lives in the admin DB)
	campaignRepo := repository.NewCampaignRepository(adminDB)
	assetRepo := repository.NewAssetRepository(adminDB)
	batchRepo := repository.NewBatchRepository(adminDB)
	recipientRepo := repository.NewRecipientRepository(adminDB)

	// Services
	estimator := audience.NewEstimator(coreDB, workflowDB, recipientRepo)
	assetGenClient := assetgen.NewClient(cfg.AssetGen.BaseURL, cfg.AssetGen.RequestTimeout, cfg.AssetGen.PollInterval)
	campaignSvc := service.NewCampaignService(
		adminDB, campaignRepo, assetRepo, batchRepo, recipientRepo,
		estimator, publisher, assetGenClient,
	)
	healthSvc := service.NewHealthService(adminDB, coreDB, workflowDB, cfg.GetRabbitMQURL(), version)
	log.Println("✅ Services initialized")

	// Handlers
	campaignHandler := handler.NewCampaignHandler(campaignSvc)
	healthHandler := handler.NewHealthHandler(healthSvc)

	// Router
	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)

	router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")

	router.HandleFunc("/campaigns", campaignHandler.Create).Methods("POST")
	router.HandleFunc("/campaigns", campaignHandler.List).Methods("GET")
	router.HandleFunc("/campaigns/{id}", campaignHandler.GetByID).Methods("GET")
	router.HandleFunc("/campaigns/{id}", campaignHandler.Update).Methods("PATCH")
	router.HandleFunc("/campaigns/{id}", campaignHandler.Delete).Methods("DELETE")
	router.HandleFunc("/campaigns/{id}/activate", campaignHandler.Activate).Methods("POST")
	router.HandleFunc("/campaigns/{id}/pause", campaignHandler.Pause).Methods("POST")
	router.HandleFunc("/campaigns/{id}/cancel", campaignHandler.Cancel).Methods("POST")
	router.HandleFunc("/campaigns/{id}/duplicate", campaignHandler.Duplicate).Methods("POST")
	router.HandleFunc("/campaigns/{id}/send-batch", campaignHandler.SendBatch).Methods("POST")
	router.HandleFunc("/campaigns/{id}/audience-count", campaignHandler.AudienceCount).Methods("GET")
	router.HandleFunc("/campaigns/{id}/assets", campaignHandler.UpsertAsset).Methods("PUT")
	router.HandleFunc("/campaigns/{id}/assets/{language}", campaignHandler.DeleteAsset).Methods("DELETE")
	router.HandleFunc("/campaigns/{id}/generate-assets", campaignHandler.GenerateAssets).Methods("POST")
	router.HandleFunc("/campaigns/{id}/generate-assets/{jobID}", campaignHandler.GetAssetJob).Methods("GET")

	port := ":" + cfg.Server.Port
	log.Printf("🚀 API Server starting on port %s", port)
	log.Printf("🌍 Environment: %s", cfg.Env)

	if err := http.ListenAndServe(port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
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
