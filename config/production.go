// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default canonical index names for labor, electricity, and remaining
// manufacturing cost contributions. Labor and electricity match the series
// names produced by the index loaders; the other-cost series is an internal
// bookkeeping row that has to be seeded before the category is persisted.
const (
	DefaultLaborIndexName       = "Arbeitskosten Deutschland [€/h] (Eurostat)"
	DefaultElectricityIndexName = "Strom [€/MWh] (Finanzen.net)"
	DefaultOtherCostIndexName   = "Sonstige Fertigungskosten [€] (intern)"
)

// defaultCanonicalIndexNames is the allow-list embedded in the extraction
// schema when PROCESSING_CANONICAL_INDEX_NAMES is not set. The strings are
// the series names as they appear in the loaded index data, typos included.
var defaultCanonicalIndexNames = []string{
	"Stahl HRB [€/t] (SteelBenchmarker)",
	"Aluminium [€/t] (Finanzen.net)",
	"Nickel [€/t] (Finanzen.net)",
	"Kupfer [€/t]",
	"Zink [€/t] (Finanzen,net)",
	"Blei [€/t] (Finanzen.net)",
	"Eisenerz [€/t] (Finanzen.net)",
	"ABS Granulat [€/kg] (Plasticker)",
	"PC Granulat [€/kg] (Plasticker)",
	"PBT Granulat [€/kg] (Plasticker)",
	"PA 6 Granulat [€/kg] (Plasticker)",
	"PA 6.6 Granulat [€/kg] (Plasticker)",
	"POM Granulat [€/kg] (Plasticker)",
	"PE-HD Granulat [€/kg] (Plasticker)",
	"PE-LD [€/kg] (Plasticker)",
	"PP [€/kg] (Plasticker)",
	"PS [€/kg] (Plasticker)",
	"Holz [€/t] (finanzen.net)",
	"Messing MS 58 1. V. Stufe [€/kg] (Westmetall)",
	"Gold [€/g] (Heraeus)",
	"Silber [€/kg] (Heraeus)",
	"Platinum [€/g] (Heraeus)",
	"Palladium [€/g] (Heraeus)",
	"Rhodium [€/g] (Heraeus)",
	"Iridium [€/g] (Heraeus)",
	"Ruthenium [€/g] (Heraeus)",
}

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	OpenAI     OpenAIConfig     `json:"openai"`
	Weaviate   WeaviateConfig   `json:"weaviate"`
	Processing ProcessingConfig `json:"processing"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	ProxyHeader       string        `json:"proxy_header"`
	EnableCompression bool          `json:"enable_compression"`
	CompressionLevel  int           `json:"compression_level"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per window
	RateLimitWindow time.Duration `json:"rate_limit_window"`

	// Content Security
	CSPPolicy           string `json:"csp_policy"`
	XFrameOptions       string `json:"x_frame_options"`
	XContentTypeOptions string `json:"x_content_type_options"`
	XSSProtection       string `json:"xss_protection"`
	ReferrerPolicy      string `json:"referrer_policy"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`

	// Access Logs
	EnableAccessLog bool `json:"enable_access_log"`

	// Watchdog Logs
	WatchdogLogPath string `json:"watchdog_log_path"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	Provider    string        `json:"provider"` // redis
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl"`
}

type OpenAIConfig struct {
	APIKey     string        `json:"api_key"`
	BaseURL    string        `json:"base_url"`
	Model      string        `json:"model"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
}

type WeaviateConfig struct {
	Enabled    bool          `json:"enabled"`
	URL        string        `json:"url"`
	APIKey     string        `json:"api_key"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout"`
}

type ProcessingConfig struct {
	Enabled              bool          `json:"enabled"`
	CanonicalIndexNames  []string      `json:"canonical_index_names"`
	LaborIndexName       string        `json:"labor_index_name"`
	ElectricityIndexName string        `json:"electricity_index_name"`
	OtherCostIndexName   string        `json:"other_cost_index_name"`
	SimilarTopK          int           `json:"similar_top_k"`
	SimilarThreshold     float64       `json:"similar_threshold"`
	StuckTimeout         time.Duration `json:"stuck_timeout"`
	WatchdogInterval     time.Duration `json:"watchdog_interval"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 32*1024*1024), // 32MB, fits uploaded specification documents
			TrustedProxies:    getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:       getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
			CompressionLevel:  getEnvInt("SERVER_COMPRESSION_LEVEL", 6),
		},
		Security: SecurityConfig{
			AllowedOrigins:      getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:      getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:      getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}),
			AllowCredentials:    getEnvBool("CORS_ALLOW_CREDENTIALS", false),
			CORSMaxAge:          getEnvInt("CORS_MAX_AGE", 86400),
			GlobalRateLimit:     getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			CSPPolicy:           getEnvString("CSP_POLICY", "default-src 'self'"),
			XFrameOptions:       getEnvString("X_FRAME_OPTIONS", "DENY"),
			XContentTypeOptions: getEnvString("X_CONTENT_TYPE_OPTIONS", "nosniff"),
			XSSProtection:       getEnvString("XSS_PROTECTION", "1; mode=block"),
			ReferrerPolicy:      getEnvString("REFERRER_POLICY", "strict-origin-when-cross-origin"),
		},
		Logging: LoggingConfig{
			Level:           getEnvString("LOG_LEVEL", "info"),
			Output:          getEnvString("LOG_OUTPUT", "both"),
			FilePath:        getEnvString("LOG_FILE_PATH", "logs/app.log"),
			MaxSize:         getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:      getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:          getEnvInt("LOG_MAX_AGE", 30),
			Compress:        getEnvBool("LOG_COMPRESS", true),
			EnableAccessLog: getEnvBool("LOG_ENABLE_ACCESS", true),
			WatchdogLogPath: getEnvString("LOG_WATCHDOG_PATH", "logs/watchdog.log"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			Provider:    getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "costmodel:"),
			DefaultTTL:  getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		OpenAI: OpenAIConfig{
			APIKey:     getEnvString("OPENAI_API_KEY", ""),
			BaseURL:    getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:      getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout:    getEnvDuration("OPENAI_TIMEOUT", 120*time.Second),
			MaxRetries: getEnvInt("OPENAI_MAX_RETRIES", 3),
		},
		Weaviate: WeaviateConfig{
			Enabled:    getEnvBool("WEAVIATE_ENABLED", false),
			URL:        getEnvString("WEAVIATE_URL", "http://localhost:8080"),
			APIKey:     getEnvString("WEAVIATE_API_KEY", ""),
			Collection: getEnvString("WEAVIATE_COLLECTION", "ArticleDocument"),
			Timeout:    getEnvDuration("WEAVIATE_TIMEOUT", 15*time.Second),
		},
		Processing: ProcessingConfig{
			Enabled:              getEnvBool("PROCESSING_ENABLED", true),
			CanonicalIndexNames:  getEnvStringSliceSep("PROCESSING_CANONICAL_INDEX_NAMES", ";", defaultCanonicalIndexNames),
			LaborIndexName:       getEnvString("PROCESSING_LABOR_INDEX_NAME", DefaultLaborIndexName),
			ElectricityIndexName: getEnvString("PROCESSING_ELECTRICITY_INDEX_NAME", DefaultElectricityIndexName),
			OtherCostIndexName:   getEnvString("PROCESSING_OTHER_COST_INDEX_NAME", DefaultOtherCostIndexName),
			SimilarTopK:          getEnvInt("PROCESSING_SIMILAR_TOP_K", 2),
			SimilarThreshold:     getEnvFloat("PROCESSING_SIMILAR_THRESHOLD", 0.7),
			StuckTimeout:         getEnvDuration("PROCESSING_STUCK_TIMEOUT", 30*time.Minute),
			WatchdogInterval:     getEnvDuration("PROCESSING_WATCHDOG_INTERVAL", 5*time.Minute),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	return getEnvStringSliceSep(key, ",", defaultValue)
}

// getEnvStringSliceSep splits on the given separator. The canonical index
// name allow-list uses ";" because one canonical name contains a comma.
func getEnvStringSliceSep(key, sep string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, sep) {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}
	if cfg.Server.IdleTimeout <= 0 {
		errors = append(errors, "SERVER_IDLE_TIMEOUT must be positive")
	}
	if cfg.Server.BodyLimit <= 0 {
		errors = append(errors, "SERVER_BODY_LIMIT must be positive")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
		}
	}

	// Validate OpenAI configuration. The API key is deliberately not
	// required here: a keyless deployment still serves everything except
	// analysis, and the analyze endpoint reports the missing key itself.
	if cfg.OpenAI.BaseURL == "" {
		errors = append(errors, "OPENAI_BASE_URL is required")
	}
	if cfg.OpenAI.Model == "" {
		errors = append(errors, "OPENAI_MODEL is required")
	}
	if cfg.OpenAI.Timeout <= 0 {
		errors = append(errors, "OPENAI_TIMEOUT must be positive")
	}
	if cfg.OpenAI.MaxRetries < 0 {
		errors = append(errors, "OPENAI_MAX_RETRIES must not be negative")
	}

	// Validate Weaviate configuration if enabled
	if cfg.Weaviate.Enabled {
		if cfg.Weaviate.URL == "" {
			errors = append(errors, "WEAVIATE_URL is required when Weaviate is enabled")
		}
		if cfg.Weaviate.Collection == "" {
			errors = append(errors, "WEAVIATE_COLLECTION is required when Weaviate is enabled")
		}
	}

	// Validate processing configuration
	if cfg.Processing.Enabled {
		if len(cfg.Processing.CanonicalIndexNames) == 0 {
			errors = append(errors, "PROCESSING_CANONICAL_INDEX_NAMES must not be empty")
		}
		if cfg.Processing.LaborIndexName == "" {
			errors = append(errors, "PROCESSING_LABOR_INDEX_NAME is required")
		}
		if cfg.Processing.ElectricityIndexName == "" {
			errors = append(errors, "PROCESSING_ELECTRICITY_INDEX_NAME is required")
		}
		if cfg.Processing.SimilarTopK < 1 {
			errors = append(errors, "PROCESSING_SIMILAR_TOP_K must be at least 1")
		}
		if cfg.Processing.SimilarThreshold < 0 || cfg.Processing.SimilarThreshold > 1 {
			errors = append(errors, "PROCESSING_SIMILAR_THRESHOLD must be between 0 and 1")
		}
		if cfg.Processing.StuckTimeout <= 0 {
			errors = append(errors, "PROCESSING_STUCK_TIMEOUT must be positive")
		}
		if cfg.Processing.WatchdogInterval <= 0 {
			errors = append(errors, "PROCESSING_WATCHDOG_INTERVAL must be positive")
		}
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
