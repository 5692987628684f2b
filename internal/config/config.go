package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	BackendSupabase = "supabase"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config aggregates runtime configuration for the store and its collaborators.
type Config struct {
	StoreBackend      string
	SupabaseURL       string
	SupabaseKey       string
	DatabaseDSN       string
	WelcomeCredits    int
	// RegisterCredits seeds accounts created through password registration.
	RegisterCredits   int
	RetryMaxAttempts  int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	RequestTimeout    time.Duration
	LogLevel          string
	ProdamusSecretKey string
	TelegramBotToken  string
	TelegramPolling   bool
	AdminChatID       int64
	AdminListenAddr   string
	AdminUsername     string
	AdminPassword     string
	S3Endpoint        string
	S3Region          string
	S3AccessKey       string
	S3SecretKey       string
	S3Bucket          string
	S3PublicBaseURL   string
	S3UsePathStyle    bool
	S3Prefix          string
	BackupSchedule    string
	ExpirySchedule    string
}

// BackupEnabled reports whether the S3 backup target is fully configured.
func (c Config) BackupEnabled() bool {
	return c.S3Bucket != "" && c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// NotificationsEnabled reports whether Telegram notifications can be sent.
func (c Config) NotificationsEnabled() bool {
	return c.TelegramBotToken != ""
}

// Load reads configuration from environment variables, an optional TOML
// secrets file and an env file, in that order of precedence. Neither file
// overrides a variable that is already set, so the secrets file is loaded
// first to win over the env file.
func Load(secretsPath string) (Config, error) {
	if err := loadSecretsFile(secretsPath); err != nil {
		return Config{}, err
	}
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", BackendSupabase)),
		SupabaseURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseKey:       strings.TrimSpace(os.Getenv("SUPABASE_KEY")),
		DatabaseDSN:       strings.TrimSpace(os.Getenv("DATABASE_DSN")),
		WelcomeCredits:    getInt("WELCOME_CREDITS", 3),
		RegisterCredits:   getInt("REGISTER_CREDITS", 5),
		RetryMaxAttempts:  getInt("STORE_RETRY_ATTEMPTS", 5),
		RetryBaseDelay:    time.Millisecond * time.Duration(getInt("STORE_RETRY_BASE_MS", 1000)),
		RetryMaxDelay:     time.Millisecond * time.Duration(getInt("STORE_RETRY_MAX_MS", 10000)),
		RequestTimeout:    time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 15)),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ProdamusSecretKey: os.Getenv("PRODAMUS_SECRET_KEY"),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramPolling:   getBool("TELEGRAM_BOT_POLLING", false),
		AdminChatID:       getInt64("ADMIN_CHAT_ID", 0),
		AdminListenAddr:   getEnv("ADMIN_LISTEN_ADDR", ":8502"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:          getEnv("S3_PREFIX", "backups"),
		BackupSchedule:    getEnv("BACKUP_SCHEDULE", "0 3 * * *"),
		ExpirySchedule:    getEnv("EXPIRY_SCHEDULE", "*/30 * * * *"),
	}

	var missing []string
	switch cfg.StoreBackend {
	case BackendSupabase:
		if cfg.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if cfg.SupabaseKey == "" {
			missing = append(missing, "SUPABASE_KEY")
		}
	case BackendMySQL, BackendPostgres, BackendSQLite:
		if cfg.DatabaseDSN == "" {
			missing = append(missing, "DATABASE_DSN")
		}
	default:
		return Config{}, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}
	if cfg.WelcomeCredits < 0 {
		return Config{}, fmt.Errorf("WELCOME_CREDITS must not be negative")
	}
	if cfg.RegisterCredits < 0 {
		return Config{}, fmt.Errorf("REGISTER_CREDITS must not be negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile loads the first env file found. Running without one is fine:
// systemd units pass everything through the environment.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}

// loadSecretsFile exports top-level keys of a TOML secrets file into the
// environment without overriding variables that are already set.
func loadSecretsFile(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = os.Getenv("VYUD_SECRETS_PATH")
		explicit = path != ""
	}
	if !explicit {
		path = filepath.Join(".streamlit", "secrets.toml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read secrets file %s: %w", path, err)
	}

	var secrets map[string]any
	if err := toml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets file %s: %w", path, err)
	}
	for key, value := range secrets {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		var str string
		switch v := value.(type) {
		case string:
			str = v
		case int64, float64, bool:
			str = fmt.Sprint(v)
		default:
			// Nested tables are not configuration keys.
			continue
		}
		if err := os.Setenv(key, str); err != nil {
			return fmt.Errorf("export secret %s: %w", key, err)
		}
	}
	return nil
}
