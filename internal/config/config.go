package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/yukikurage/family-task-sync/internal/constants"
)

type Config struct {
	LocalDBDriver        string
	LocalDBDSN           string
	RemoteStore          string
	FirestoreProjectID   string
	CredentialsFile      string
	SessionStore         string
	RedisHost            string
	RedisPort            string
	SessionSecret        string
	GinMode              string
	Port                 string
	SyncMaxRetries       int
	HistoryRetentionDays int
	StartOnline          bool
}

func Load() *Config {
	// A missing .env is normal outside development
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env file: %v", err)
	}

	return &Config{
		LocalDBDriver:        getEnv("LOCAL_DB_DRIVER", "sqlite"),
		LocalDBDSN:           getEnv("LOCAL_DB_DSN", "family_tasks.db"),
		RemoteStore:          getEnv("REMOTE_STORE", "memory"),
		FirestoreProjectID:   getEnv("FIRESTORE_PROJECT_ID", ""),
		CredentialsFile:      getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		SessionStore:         getEnv("SESSION_STORE", "cookie"),
		RedisHost:            getEnv("REDIS_HOST", "localhost"),
		RedisPort:            getEnv("REDIS_PORT", "6379"),
		SessionSecret:        getEnv("SESSION_SECRET", "default-secret-key-change-me"),
		GinMode:              getEnv("GIN_MODE", "debug"),
		Port:                 getEnv("PORT", "8080"),
		SyncMaxRetries:       getEnvInt("SYNC_MAX_RETRIES", constants.DefaultMaxSyncRetries),
		HistoryRetentionDays: getEnvInt("HISTORY_RETENTION_DAYS", constants.DefaultRetentionDays),
		StartOnline:          getEnvBool("START_ONLINE", true),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
