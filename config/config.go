package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Database: mysql | postgres | sqlite
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Redis for caching and realtime fan-out; empty host disables it
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Gamification
	Timezone             string
	CheckInRewardPoints  int
	DefaultMaterialXP    int
	DefaultQuizXP        int
	LeaderboardCacheSec  int
	ReconcileIntervalSec int
}

// fileConfig mirrors the grouped layout of config/config.yaml (or .json).
type fileConfig struct {
	App struct {
		AppPort            string   `yaml:"AppPort"`
		JWTSecret          string   `yaml:"JWTSecret"`
		RateLimitPerMinute int      `yaml:"RateLimitPerMinute"`
		AllowedOrigins     []string `yaml:"AllowedOrigins"`
	} `yaml:"app"`
	Database struct {
		Driver      string `yaml:"Driver"`
		DatabaseURI string `yaml:"DatabaseURI"`
		DBHost      string `yaml:"DBHost"`
		DBPort      string `yaml:"DBPort"`
		DBUser      string `yaml:"DBUser"`
		DBPassword  string `yaml:"DBPassword"`
		DBName      string `yaml:"DBName"`
	} `yaml:"database"`
	Redis struct {
		RedisHost     string `yaml:"RedisHost"`
		RedisPort     int    `yaml:"RedisPort"`
		RedisDB       int    `yaml:"RedisDB"`
		RedisPassword string `yaml:"RedisPassword"`
	} `yaml:"redis"`
	Log struct {
		Level      string `yaml:"Level"`
		Path       string `yaml:"Path"`
		GinMode    string `yaml:"GinMode"`
		GinPath    string `yaml:"GinPath"`
		MaxSizeMB  int    `yaml:"MaxSizeMB"`
		MaxBackups int    `yaml:"MaxBackups"`
		MaxAgeDays int    `yaml:"MaxAgeDays"`
		Compress   bool   `yaml:"Compress"`
	} `yaml:"log"`
	Gamification struct {
		Timezone             string `yaml:"Timezone"`
		CheckInRewardPoints  int    `yaml:"CheckInRewardPoints"`
		DefaultMaterialXP    int    `yaml:"DefaultMaterialXP"`
		DefaultQuizXP        int    `yaml:"DefaultQuizXP"`
		LeaderboardCacheSec  int    `yaml:"LeaderboardCacheSec"`
		ReconcileIntervalSec int    `yaml:"ReconcileIntervalSec"`
	} `yaml:"gamification"`
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config file -> defaults -> .env -> environment variable overrides
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		found, err := loadFileConfig(filepath.Join("config", name), &cfg)
		if err != nil {
			log.Fatalf("invalid config file %s: %v", name, err)
		}
		if found {
			break
		}
	}

	applyDefaults(&cfg)

	// .env is optional; real environment variables always win over it.
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Used by tests and tools that build config in code.
func Set(c AppConfig) {
	applyDefaults(&c)
	cfg = c
	loaded = true
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadFileConfig reads a YAML or JSON file into out. A missing file is not an error.
func loadFileConfig(path string, out *AppConfig) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}
	var fc fileConfig
	// YAML is a superset of JSON, so one decoder covers both formats.
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return true, err
	}

	out.AppPort = fc.App.AppPort
	out.JWTSecret = fc.App.JWTSecret
	out.RateLimitPerMinute = fc.App.RateLimitPerMinute
	out.AllowedOrigins = fc.App.AllowedOrigins

	out.DBDriver = fc.Database.Driver
	out.DatabaseURI = fc.Database.DatabaseURI
	out.DBHost = fc.Database.DBHost
	out.DBPort = fc.Database.DBPort
	out.DBUser = fc.Database.DBUser
	out.DBPassword = fc.Database.DBPassword
	out.DBName = fc.Database.DBName

	out.RedisHost = fc.Redis.RedisHost
	out.RedisPort = fc.Redis.RedisPort
	out.RedisDB = fc.Redis.RedisDB
	out.RedisPassword = fc.Redis.RedisPassword

	out.LogLevel = fc.Log.Level
	out.LogPath = fc.Log.Path
	out.GinMode = fc.Log.GinMode
	out.GinPath = fc.Log.GinPath
	out.LogMaxSizeMB = fc.Log.MaxSizeMB
	out.LogMaxBackups = fc.Log.MaxBackups
	out.LogMaxAgeDays = fc.Log.MaxAgeDays
	out.LogCompress = fc.Log.Compress

	out.Timezone = fc.Gamification.Timezone
	out.CheckInRewardPoints = fc.Gamification.CheckInRewardPoints
	out.DefaultMaterialXP = fc.Gamification.DefaultMaterialXP
	out.DefaultQuizXP = fc.Gamification.DefaultQuizXP
	out.LeaderboardCacheSec = fc.Gamification.LeaderboardCacheSec
	out.ReconcileIntervalSec = fc.Gamification.ReconcileIntervalSec
	return true, nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		switch c.DBDriver {
		case "postgres":
			c.DBPort = "5432"
		default:
			c.DBPort = "3306"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "eduxp"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Jakarta"
	}
	if c.CheckInRewardPoints == 0 {
		c.CheckInRewardPoints = 10
	}
	if c.DefaultMaterialXP == 0 {
		c.DefaultMaterialXP = 50
	}
	if c.DefaultQuizXP == 0 {
		c.DefaultQuizXP = 100
	}
	if c.LeaderboardCacheSec == 0 {
		c.LeaderboardCacheSec = 30
	}
	if c.ReconcileIntervalSec == 0 {
		c.ReconcileIntervalSec = 600
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	// Logging env overrides
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	// Gamification env overrides
	if v := getEnv("TIMEZONE", ""); v != "" {
		c.Timezone = v
	}
	if v := getEnv("CHECKIN_REWARD_POINTS", ""); v != "" {
		c.CheckInRewardPoints = mustParseInt(v)
	}
	if v := getEnv("DEFAULT_MATERIAL_XP", ""); v != "" {
		c.DefaultMaterialXP = mustParseInt(v)
	}
	if v := getEnv("DEFAULT_QUIZ_XP", ""); v != "" {
		c.DefaultQuizXP = mustParseInt(v)
	}
	if v := getEnv("LEADERBOARD_CACHE_SEC", ""); v != "" {
		c.LeaderboardCacheSec = mustParseInt(v)
	}
	if v := getEnv("RECONCILE_INTERVAL_SEC", ""); v != "" {
		c.ReconcileIntervalSec = mustParseInt(v)
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
