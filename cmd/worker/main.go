package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"drill-evaluator/internal/config"
	"drill-evaluator/internal/domain/entity"
	"drill-evaluator/internal/domain/usecase"
	openaiRepo "drill-evaluator/internal/repository/openai"
	psqlRepo "drill-evaluator/internal/repository/psql"
	"drill-evaluator/internal/repository/rabbitmq"
	redisRepo "drill-evaluator/internal/repository/redis"
	"drill-evaluator/pkg/analytics"
	"drill-evaluator/pkg/client/psql"
	redisGo "drill-evaluator/pkg/client/redis"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	redisClient, err := redisGo.NewRedisClient(ctx, redisGo.Config{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	jobRepo := redisRepo.NewJobRepo(redisClient)

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

	transcriber := openaiRepo.NewTranscriber(cfg.OpenAIAPIKey, cfg.TranscriptionModel)
	scorer := openaiRepo.NewScorer(cfg.OpenAIAPIKey, cfg.ScoringModel)

	workerUC := usecase.NewWorkerUseCase(resultRepo, jobRepo, transcriber, scorer, analytics.NewLogEmitter())
	workerUC.MaxAttempts = cfg.JobMaxAttempts
	workerUC.BackoffBase = cfg.JobBackoffBase

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbitmq.NewConsumer(conn, "evaluations.exchange", "evaluations.submitted", "evaluations.submitted.q", workerUC)
	if err != nil {
		log.Fatalf("failed to init consumer: %v", err)
	}

	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Fatalf("consumer stopped with error: %v", err)
		}
	}()

	log.Println("evaluation worker started")
	<-sigCh
	log.Println("shutting down evaluation worker...")
	cancel()
	time.Sleep(time.Second)
}
