package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"

	"drill-evaluator/internal/config"
	v1 "drill-evaluator/internal/controller/http/v1"
	"drill-evaluator/internal/domain/entity"
	"drill-evaluator/internal/domain/usecase"
	psqlRepo "drill-evaluator/internal/repository/psql"
	"drill-evaluator/internal/repository/rabbitmq"
	redisRepo "drill-evaluator/internal/repository/redis"
	s3Repo "drill-evaluator/internal/repository/s3"
	"drill-evaluator/pkg/client/psql"
	redisGo "drill-evaluator/pkg/client/redis"
	s3ClientGo "drill-evaluator/pkg/client/s3"
	"drill-evaluator/pkg/middleware"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	redisClient, err := redisGo.NewRedisClient(ctx, redisGo.Config{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	db, err := psql.NewPostgresDB(psql.Config{
		Host:     cfg.PSQLHost,
		User:     cfg.PSQLUser,
		Password: cfg.PSQLPassword,
		DBName:   cfg.PSQLDBName,
		Port:     cfg.PSQLPort,
		SslMode:  cfg.PSQLSSLMode,
	})
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}

	if err := db.AutoMigrate(&entity.EvaluationResult{}); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	resultRepo := psqlRepo.NewGormResultRepo(db)
	jobRepo := redisRepo.NewJobRepo(redisClient)

	storage, err := s3ClientGo.NewS3Client(cfg.S3Host, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket)
	if err != nil {
		log.Fatalf("failed to init s3 client: %v", err)
	}
	audioRepo := s3Repo.NewAudioRepo(storage)

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	publisher, err := rabbitmq.NewPublisher(conn, "evaluations.exchange", "evaluations.submitted")
	if err != nil {
		log.Fatalf("failed to init publisher: %v", err)
	}

	submitUC := usecase.NewSubmitUseCase(resultRepo, jobRepo, publisher, audioRepo, cfg.SyncWaitTimeout)
	submitUC.AudioURLTTL = cfg.AudioURLTTL
	statusUC := usecase.NewStatusUseCase(resultRepo, jobRepo)

	handler := v1.NewEvaluationHandler(submitUC, statusUC)

	r := gin.Default()
	r.Use(middleware.BearerAuth(cfg.APITokens))

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RedisClient: redisClient,
		Limit:       cfg.RateLimitRPM,
		Window:      time.Minute,
		KeyPrefix:   "rl:",
	})
	r.Use(rl)

	v1Group := r.Group("/api/v1")
	handler.Register(v1Group)

	log.Println("evaluation API listening on :8080")
	if err := r.Run(":8080"); err != nil {
		log.Fatal(err)
	}
}
