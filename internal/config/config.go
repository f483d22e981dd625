package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	RedisAddr string
	RedisDB   int

	PSQLHost     string
	PSQLPort     int
	PSQLUser     string
	PSQLPassword string
	PSQLDBName   string
	PSQLSSLMode  string

	S3Host      string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	RabbitMQURL string

	OpenAIAPIKey       string
	ScoringModel       string
	TranscriptionModel string

	SyncWaitTimeout time.Duration
	JobMaxAttempts  int
	JobBackoffBase  time.Duration
	RateLimitRPM    int
	AudioURLTTL     time.Duration

	// APITokens maps bearer tokens to user IDs.
	APITokens map[string]string
}

func Load() Config {
	if err := godotenv.Load("./.env.local"); err != nil {
		log.Println("No .env file found. Falling back to OS environment variables.")
	}
	mustGetEnv := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			log.Fatalf("Environment variable %s is not set", key)
		}
		return val
	}

	// REDIS
	redisHost := mustGetEnv("REDIS_HOST")
	redisPort := mustGetEnv("REDIS_PORT")
	redisDB, err := strconv.Atoi(getenv("REDIS_DB", "0"))
	if err != nil {
		log.Fatalf("Invalid REDIS_DB value: %v", err)
	}

	// PSQL
	psqlPort, err := strconv.Atoi(mustGetEnv("PSQL_PORT"))
	if err != nil {
		log.Fatalf("Invalid PSQL_PORT value: %v", err)
	}

	// RABBITMQ
	rmqUser := mustGetEnv("RABBITMQ_USER")
	rmqPassword := mustGetEnv("RABBITMQ_PASSWORD")
	rmqHost := mustGetEnv("RABBITMQ_HOST")
	rmqPort := mustGetEnv("RABBITMQ_PORT")
	rabbitMQURL := "amqp://" + rmqUser + ":" + rmqPassword + "@" + rmqHost + ":" + rmqPort + "/"

	return Config{
		RedisAddr: redisHost + ":" + redisPort,
		RedisDB:   redisDB,

		PSQLHost:     mustGetEnv("PSQL_HOST"),
		PSQLPort:     psqlPort,
		PSQLUser:     mustGetEnv("PSQL_USER"),
		PSQLPassword: mustGetEnv("PSQL_PASSWORD"),
		PSQLDBName:   mustGetEnv("PSQL_DB"),
		PSQLSSLMode:  mustGetEnv("PSQL_SSLMODE"),

		S3Host:      mustGetEnv("S3_HOST") + ":" + mustGetEnv("S3_PORT"),
		S3Bucket:    mustGetEnv("S3_BUCKET"),
		S3AccessKey: mustGetEnv("S3_ACCESS_KEY"),
		S3SecretKey: mustGetEnv("S3_SECRET_KEY"),

		RabbitMQURL: rabbitMQURL,

		OpenAIAPIKey:       mustGetEnv("OPENAI_API_KEY"),
		ScoringModel:       getenv("SCORING_MODEL", "gpt-4o-mini"),
		TranscriptionModel: getenv("TRANSCRIPTION_MODEL", "whisper-1"),

		SyncWaitTimeout: durationMs("SYNC_WAIT_TIMEOUT_MS", 25000),
		JobMaxAttempts:  intEnv("JOB_MAX_ATTEMPTS", 3),
		JobBackoffBase:  durationMs("JOB_BACKOFF_BASE_MS", 1000),
		RateLimitRPM:    intEnv("RATE_LIMIT_RPM", 60),
		AudioURLTTL:     time.Duration(intEnv("AUDIO_URL_TTL_HOURS", 24)) * time.Hour,

		APITokens: parseTokens(os.Getenv("API_TOKENS")),
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("Invalid %s value: %v", key, err)
	}
	return n
}

func durationMs(key string, fallbackMs int) time.Duration {
	return time.Duration(intEnv(key, fallbackMs)) * time.Millisecond
}

// parseTokens reads "token:userID" pairs separated by commas.
func parseTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		tokens[parts[0]] = parts[1]
	}
	return tokens
}
