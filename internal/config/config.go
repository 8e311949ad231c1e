package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"catalog-import-service/internal/models"
	"github.com/Tesseract-Nexus/go-shared/secrets"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisURL     string
	QueueEnabled bool

	// Server
	Port           string
	Environment    string
	AllowedOrigins []string

	// Events
	NATSURL  string
	TenantID string

	// Services
	StaffServiceURL string

	// Upload storage
	MaxUploadBytes int64
	StorageDir     string
	S3Bucket       string
	S3Prefix       string
	AWSRegion      string

	// Importer
	HeaderMarkers       []string
	ClassifierRulesFile string

	// Pagination
	DefaultPageSize int
	MaxPageSize     int
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	defaultPageSize, _ := strconv.Atoi(getEnv("DEFAULT_PAGE_SIZE", "20"))
	maxPageSize, _ := strconv.Atoi(getEnv("MAX_PAGE_SIZE", "100"))
	maxUploadBytes, err := strconv.ParseInt(getEnv("IMPORT_MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	if err != nil || maxUploadBytes <= 0 {
		maxUploadBytes = 10 * 1024 * 1024
	}
	queueEnabled, _ := strconv.ParseBool(getEnv("IMPORT_QUEUE_ENABLED", "true"))

	return &Config{
		// Database - fetch password from GCP Secret Manager if enabled
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: secrets.GetDBPassword(),
		DBName:     getEnv("DB_NAME", "catalog_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Redis
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueEnabled: queueEnabled,

		// Server
		Port:           getEnv("PORT", "8090"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		// Events - publishing is skipped when NATS_URL is empty
		NATSURL:  os.Getenv("NATS_URL"),
		TenantID: getEnv("TENANT_ID", "default"),

		StaffServiceURL: getEnv("STAFF_SERVICE_URL", "http://staff-service:8080"),

		// Upload storage - S3 is used when a bucket is configured
		MaxUploadBytes: maxUploadBytes,
		StorageDir:     getEnv("IMPORT_STORAGE_DIR", "./data/imports"),
		S3Bucket:       os.Getenv("IMPORT_S3_BUCKET"),
		S3Prefix:       getEnv("IMPORT_S3_PREFIX", "imports/"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),

		HeaderMarkers:       splitList(getEnv("IMPORT_HEADER_MARKERS", "کد کالا")),
		ClassifierRulesFile: os.Getenv("CLASSIFIER_RULES_FILE"),

		// Pagination
		DefaultPageSize: defaultPageSize,
		MaxPageSize:     maxPageSize,
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Running auto-migrations...")
	if err := Migrate(db); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "does not exist") && strings.Contains(errStr, "constraint") {
			log.Printf("Note: Migration constraint warning (safe to ignore): %v", err)
		} else {
			return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
		}
	}
	log.Println("Auto-migrations completed successfully")

	return db, nil
}

// Migrate creates or updates the tables owned by the service. Parents are
// migrated before the tables that reference them.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Category{},
		&models.Product{},
		&models.ImportRun{},
		&models.RowError{},
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
