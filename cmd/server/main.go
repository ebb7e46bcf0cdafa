package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"screenflow/internal/cache"
	"screenflow/internal/config"
	"screenflow/internal/logger"
	"screenflow/internal/repository"
	"screenflow/internal/service"
	"screenflow/internal/transport/rest"
	"screenflow/internal/transport/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	policy, err := repository.ParseStorePolicy(cfg.StorePolicy)
	if err != nil {
		log.Fatal("invalid store policy", "error", err)
	}
	log.Info("starting", "store_policy", policy, "port", cfg.Port)

	ctx := context.Background()

	var (
		catalog      repository.QuestionCatalog
		primary      repository.AnswerStore
		responseSets repository.ResponseSetRepo
		replays      cache.ReplayCache
	)

	if policy == repository.PolicyVolatile {
		if cfg.QuestionnaireFile == "" {
			log.Fatal("QUESTIONNAIRE_FILE is required with the volatile store policy")
		}
		catalog = loadQuestionnaire(log, cfg.QuestionnaireFile)
		responseSets = repository.NewMemoryResponseSetRepo()
		replays = cache.NewMemoryReplayCache(cfg.ReplayTTL)
	} else {
		// MongoDB connection
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("failed to connect to MongoDB", "error", err)
		}
		defer mongoClient.Disconnect(context.Background())

		// Ping MongoDB
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = mongoClient.Ping(pingCtx, nil)
		cancel()
		switch {
		case err == nil:
			log.Info("connected to MongoDB", "database", cfg.MongoDatabase)
		case policy == repository.PolicyPrimary:
			log.Fatal("failed to ping MongoDB", "error", err)
		default:
			log.Warn("MongoDB unreachable, answers degrade to the volatile store", "error", err)
		}

		db := mongoClient.Database(cfg.MongoDatabase)
		catalog = repository.NewQuestionRepo(db, log)
		primary = repository.NewAnswerRepo(db, log)
		responseSets = repository.NewResponseSetRepo(db)

		// Redis connection
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr(),
		})
		defer rdb.Close()

		// Ping Redis
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			if policy == repository.PolicyPrimary {
				log.Fatal("failed to ping Redis", "error", err)
			}
			log.Warn("Redis unreachable, replay cache kept in memory", "error", err)
			replays = cache.NewMemoryReplayCache(cfg.ReplayTTL)
		} else {
			log.Info("connected to Redis", "addr", cfg.RedisAddr())
			replays = cache.NewReplayCache(rdb, cfg.ReplayTTL)
		}
	}

	store := repository.NewAnswerStore(policy, primary, repository.NewMemoryAnswerRepo(), log)

	// Initialize WebSocket hub
	wsHub := ws.NewHub(log)

	// Initialize services
	etags := service.NewETagCalculator(catalog, store, log)
	screens := service.NewScreenAssembler(catalog, store, etags, log, cfg.HydrationAttempts)
	responseSetSvc := service.NewResponseSetService(responseSets, log)
	autosaveSvc := service.NewAutosaveService(catalog, store, screens, replays, responseSetSvc, log)

	// Inject broadcaster (wsHub implements service.Broadcaster)
	autosaveSvc.SetBroadcaster(wsHub)
	responseSetSvc.SetBroadcaster(wsHub)

	router := rest.NewRouter(&rest.Container{
		ResponseSetService: responseSetSvc,
		AutosaveService:    autosaveSvc,
		WSHub:              wsHub,
		CORS:               cfg.CORS,
		Log:                log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen failed", "error", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}

func loadQuestionnaire(log *logger.Logger, path string) *repository.MemoryQuestionRepo {
	q, err := config.LoadQuestionnaire(path)
	if err != nil {
		log.Fatal("failed to load questionnaire", "path", path, "error", err)
	}
	questions, err := q.Questions()
	if err != nil {
		log.Fatal("failed to load questionnaire", "path", path, "error", err)
	}
	log.Info("questionnaire loaded", "path", path, "screens", len(q.Screens), "questions", len(questions))
	return repository.NewMemoryQuestionRepo(questions)
}
