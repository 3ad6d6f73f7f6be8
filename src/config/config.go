package config

import (
	"log"
	"os"
	"strconv"
)

type AppConfig struct {
	Port               string
	DatabasePath       string
	LogLevel           string
	MaxUploadSizeBytes int64

	// ImportTempDir is where uploads land and where zip archives are
	// extracted. Extraction directories are created fresh per import and
	// deleted afterwards; uploads stay so sessions can be resumed.
	ImportTempDir string

	// ChunkMovementCeiling is the hard per-chunk movement cap the planner
	// enforces; roughly 2000 records keeps peak chunk memory near 2 MB on
	// constrained devices.
	ChunkMovementCeiling int
	// ChunkBaseWindowDays is the window the planner proposes first.
	ChunkBaseWindowDays int
	// ChunkMaxWindowDays is the cap when extending through quiet periods.
	ChunkMaxWindowDays int
}

var Cfg *AppConfig

func LoadConfig() {
	loadDotEnv()

	log.Println("Loading application configuration...")

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./folioimport.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MaxUploadSizeBytes: maxUploadSizeBytes,

		ImportTempDir: getEnv("IMPORT_TEMP_DIR", os.TempDir()),

		ChunkMovementCeiling: getEnvAsInt("CHUNK_MOVEMENT_CEILING", 2000),
		ChunkBaseWindowDays:  getEnvAsInt("CHUNK_BASE_WINDOW_DAYS", 7),
		ChunkMaxWindowDays:   getEnvAsInt("CHUNK_MAX_WINDOW_DAYS", 14),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, ChunkCeiling=%d",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.ChunkMovementCeiling)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}
