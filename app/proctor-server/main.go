package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/talentis/proctor/config"
	"github.com/talentis/proctor/internal/api/handlers"
	"github.com/talentis/proctor/internal/api/middleware"
	"github.com/talentis/proctor/internal/api/routes"
	"github.com/talentis/proctor/internal/cache"
	"github.com/talentis/proctor/internal/logger"
	"github.com/talentis/proctor/internal/models"
	"github.com/talentis/proctor/internal/providers/llm"
	"github.com/talentis/proctor/internal/providers/stt"
	mongorepo "github.com/talentis/proctor/internal/repositories/mongo"
	"github.com/talentis/proctor/internal/repositories/postgres"
	"github.com/talentis/proctor/internal/services"
	"github.com/talentis/proctor/internal/storage"
	"github.com/talentis/proctor/internal/workers"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	ctx := context.Background()

	// Init MongoDB
	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	log.Info("MongoDB connected")

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	log.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("Mongo index setup failed")
	}

	if err := config.PostgresDB.AutoMigrate(&models.Simulation{}, &models.SimulationAttempt{}); err != nil {
		log.WithError(err).Fatal("Postgres migration failed")
	}

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "talentis"
	}
	mongoDB := config.MongoClient.Database(dbName)

	// Repositories
	attemptRepo := postgres.NewAttemptRepo(config.PostgresDB)
	simulationRepo := postgres.NewSimulationRepo(config.PostgresDB)
	chunkRepo := mongorepo.NewChunkRepo(mongoDB, 0)
	eventRepo := mongorepo.NewEventRepo(mongoDB)

	spool, err := storage.NewDiskSpool(os.Getenv("MEDIA_SPOOL_DIR"))
	if err != nil {
		log.WithError(err).Fatal("media spool init failed")
	}

	var store storage.Uploader
	var signer storage.Signer
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		gcs, err := storage.NewGCSUploader(ctx, bucket)
		if err != nil {
			log.WithError(err).Fatal("GCS init failed")
		}
		store = gcs
		signer = gcs
		log.WithField("bucket", bucket).Info("GCS storage enabled")
	} else {
		local, err := storage.NewLocalStore(os.Getenv("MEDIA_STORE_DIR"))
		if err != nil {
			log.WithError(err).Fatal("local store init failed")
		}
		store = local
		log.Warn("GCS_BUCKET not set, storing assembled media on local disk")
	}

	// Optional providers
	var llmProvider llm.Provider
	if project := os.Getenv("VERTEX_PROJECT_ID"); project != "" {
		location := os.Getenv("VERTEX_LOCATION")
		model := os.Getenv("VERTEX_MODEL")
		p, err := llm.NewVertexGemini(ctx, project, location, model)
		if err != nil {
			log.WithError(err).Warn("Vertex init failed, behavior analysis disabled")
		} else {
			llmProvider = p
			defer p.Close()
		}
	}

	var sttProvider stt.Provider
	if os.Getenv("ENABLE_STT") == "true" {
		p, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			log.WithError(err).Warn("Speech init failed, transcription disabled")
		} else {
			sttProvider = p
			defer p.Close()
		}
	}

	// Services
	bus := services.NewRedisBus(config.RedisClient)
	redisCache := cache.NewRedisCache(config.RedisClient)

	attemptSvc := services.NewAttemptService(attemptRepo, simulationRepo, chunkRepo, eventRepo, spool, bus, signer)
	proctorSvc := services.NewProctorService(attemptRepo, eventRepo, bus, log)
	simulationSvc := services.NewSimulationService(simulationRepo, llmProvider, redisCache, log)

	// Background assembly pipeline
	pool := &workers.AssemblerPool{
		Redis:    config.RedisClient,
		Attempts: attemptRepo,
		Chunks:   chunkRepo,
		Spool:    spool,
		Store:    store,
		STT:      sttProvider,
		LLM:      llmProvider,
		Logger:   log,
	}
	if err := pool.Start(ctx); err != nil {
		log.WithError(err).Fatal("assembler pool failed to start")
	}

	// HTTP server
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Interview:  handlers.NewInterviewHandler(attemptSvc, proctorSvc),
		Simulation: handlers.NewSimulationHandler(simulationSvc),
		Live:       handlers.NewLiveHandler(attemptSvc, config.RedisClient),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
