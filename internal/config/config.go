package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Survey  SurveyConfig  `yaml:"survey"`
	AI      AIConfig      `yaml:"ai"`
	RAG     RAGConfig     `yaml:"rag"`
	Auth    AuthConfig    `yaml:"auth"`
	Chat    ChatConfig    `yaml:"chat"`
	Log     LogConfig     `yaml:"log"`
	Build   BuildInfo     `yaml:"-"`
	Report  ReportConfig  `yaml:"report"`
	Session SessionConfig `yaml:"session"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	StaticDir       string        `yaml:"static_dir"`
	DevFrontendURL  string        `yaml:"dev_frontend_url"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type SurveyConfig struct {
	PackPath      string `yaml:"pack_path"`
	ResponseDir   string `yaml:"response_dir"`
	IndexDBPath   string `yaml:"index_db_path"`
	MigrationsDir string `yaml:"migrations_dir"`
}

type AIConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Enabled reports whether a model key is configured.
func (a AIConfig) Enabled() bool { return strings.TrimSpace(a.APIKey) != "" }

type RAGConfig struct {
	DocsDir      string `yaml:"docs_dir"`
	IndexDir     string `yaml:"index_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	ClinicianEmail    string        `yaml:"clinician_email"`
	ClinicianPassword string        `yaml:"clinician_password"`
}

type ChatConfig struct {
	RequestsPerSecond float64 `yaml:"rps"`
	Burst             int     `yaml:"burst"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output"`
}

type ReportConfig struct {
	FontPath string `yaml:"font_path"`
}

type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type BuildInfo struct {
	Commit    string
	BuildTime string
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 20 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Survey: SurveyConfig{
			PackPath:    "survey_pack.json",
			ResponseDir: "responses",
			IndexDBPath: "data/previsit.db",
		},
		AI: AIConfig{
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Timeout:        20 * time.Second,
		},
		RAG: RAGConfig{
			DocsDir:      "docs",
			IndexDir:     "index",
			ChunkSize:    1000,
			ChunkOverlap: 150,
		},
		Auth:    AuthConfig{TokenTTL: 12 * time.Hour},
		Chat:    ChatConfig{RequestsPerSecond: 1, Burst: 5},
		Log:     LogConfig{Level: "info", Format: "json", OutputPath: "stdout"},
		Session: SessionConfig{TTL: 2 * time.Hour},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// PREVISIT_CONFIG, and the environment, in that order. A .env file in the
// working directory is loaded first when present; it never overrides
// variables already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := defaults()
	if path := getEnv("PREVISIT_CONFIG", ""); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("PREVISIT_ADDR", cfg.Server.Addr)
	cfg.Server.StaticDir = getEnv("STATIC_DIR", cfg.Server.StaticDir)
	cfg.Server.DevFrontendURL = getEnv("DEV_FRONTEND_URL", cfg.Server.DevFrontendURL)
	cfg.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.CORSOrigins = getEnvSlice("CORS_ALLOWED_ORIGINS", cfg.Server.CORSOrigins)

	cfg.Survey.PackPath = getEnv("SURVEY_PATH", cfg.Survey.PackPath)
	cfg.Survey.ResponseDir = getEnv("RESPONSE_DIR", cfg.Survey.ResponseDir)
	cfg.Survey.IndexDBPath = getEnv("INDEX_DB_PATH", cfg.Survey.IndexDBPath)
	cfg.Survey.MigrationsDir = getEnv("MIGRATIONS_DIR", cfg.Survey.MigrationsDir)

	cfg.AI.APIKey = getEnv("OPENAI_API_KEY", cfg.AI.APIKey)
	cfg.AI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.AI.BaseURL)
	cfg.AI.Model = getEnv("OPENAI_MODEL", cfg.AI.Model)
	cfg.AI.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.AI.EmbeddingModel)
	cfg.AI.Timeout = getEnvDuration("AI_TIMEOUT", cfg.AI.Timeout)

	cfg.RAG.DocsDir = getEnv("DOCS_DIR", cfg.RAG.DocsDir)
	cfg.RAG.IndexDir = getEnv("INDEX_DIR", cfg.RAG.IndexDir)
	cfg.RAG.ChunkSize = getEnvInt("CHUNK_SIZE", cfg.RAG.ChunkSize)
	cfg.RAG.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", cfg.RAG.ChunkOverlap)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenTTL = getEnvDuration("JWT_TTL", cfg.Auth.TokenTTL)
	cfg.Auth.ClinicianEmail = getEnv("CLINICIAN_EMAIL", cfg.Auth.ClinicianEmail)
	cfg.Auth.ClinicianPassword = getEnv("CLINICIAN_PASSWORD", cfg.Auth.ClinicianPassword)

	cfg.Chat.RequestsPerSecond = getEnvFloat("CHAT_RPS", cfg.Chat.RequestsPerSecond)
	cfg.Chat.Burst = getEnvInt("CHAT_BURST", cfg.Chat.Burst)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.OutputPath = getEnv("LOG_OUTPUT", cfg.Log.OutputPath)

	cfg.Report.FontPath = getEnv("REPORT_FONT", cfg.Report.FontPath)
	cfg.Session.TTL = getEnvDuration("SESSION_TTL", cfg.Session.TTL)

	cfg.Build.Commit = getEnv("PREVISIT_COMMIT", "")
	cfg.Build.BuildTime = getEnv("PREVISIT_BUILD_TIME", "")
}

func validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Survey.PackPath) == "" {
		errs = append(errs, "SURVEY_PATH is required")
	}
	if strings.TrimSpace(cfg.Survey.ResponseDir) == "" {
		errs = append(errs, "RESPONSE_DIR is required")
	}
	if cfg.AI.Timeout <= 0 {
		errs = append(errs, "AI_TIMEOUT must be positive")
	}
	if cfg.Session.TTL <= 0 {
		errs = append(errs, "SESSION_TTL must be positive")
	}
	if cfg.Chat.RequestsPerSecond <= 0 || cfg.Chat.Burst <= 0 {
		errs = append(errs, "CHAT_RPS and CHAT_BURST must be positive")
	}
	if cfg.RAG.ChunkSize <= 0 || cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		errs = append(errs, "CHUNK_OVERLAP must be smaller than CHUNK_SIZE")
	}
	if cfg.Auth.ClinicianEmail != "" {
		if cfg.Auth.ClinicianPassword == "" {
			errs = append(errs, "CLINICIAN_PASSWORD is required when CLINICIAN_EMAIL is set")
		}
		if len(cfg.Auth.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters when clinician login is enabled")
		}
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT %q must be json or console", cfg.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
