package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	DeliveryChat    = "chat"
	DeliveryStorage = "storage"

	EventsNone  = "none"
	EventsNATS  = "nats"
	EventsKafka = "kafka"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Roster    RosterConfig
	Sinks     SinksConfig
	Chat      ChatConfig
	Export    ExportConfig
	Events    EventsConfig
	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	Driver       string
	Path         string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RosterConfig tunes the attendance session engine.
type RosterConfig struct {
	PageSize               int
	CodeAttempts           int
	LowAttendanceThreshold int
	FormTTL                time.Duration
	SubmitLockTTL          time.Duration
	SheetFontPath          string
}

// SinksConfig lists the automation webhooks that receive roster batches.
type SinksConfig struct {
	AttendanceURL     string
	CorrectionURL     string
	NewStudentsURL    string
	VerifyURL         string
	FirstPassTimeout  time.Duration
	CorrectionTimeout time.Duration
	DefaultTimeout    time.Duration
}

// ChatConfig points at the Telegram Bot API used for out-of-band message edits and alerts.
type ChatConfig struct {
	APIURL       string
	Token        string
	Timeout      time.Duration
	AdminChatIDs []int64
}

// ExportConfig controls media export packing and delivery.
type ExportConfig struct {
	MaxPartBytes     int64
	FastPathItems    int
	BlobTimeout      time.Duration
	ThemeHooks       map[string]string
	ThemeHookTimeout time.Duration
	LinkCacheTTL     time.Duration
	LockTTL          time.Duration
	Delivery         string
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	// PublicURL prefixes download links posted into chats, e.g. https://roster.example.org.
	PublicURL string
	Workers   int
}

// EventsConfig selects the broker used for roster and export events.
type EventsConfig struct {
	Driver       string
	NATSURL      string
	NATSSubject  string
	KafkaBrokers []string
	KafkaTopic   string
}

// RateLimitConfig bounds callback bursts per client.
type RateLimitConfig struct {
	Capacity  int
	PerMinute int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Path:         v.GetString("DB_PATH"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
		Expiry: parseDuration(v.GetString("JWT_EXPIRY"), 12*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Roster = RosterConfig{
		PageSize:               v.GetInt("ROSTER_PAGE_SIZE"),
		CodeAttempts:           v.GetInt("ROSTER_CODE_ATTEMPTS"),
		LowAttendanceThreshold: v.GetInt("ROSTER_LOW_ATTENDANCE_THRESHOLD"),
		FormTTL:                parseDuration(v.GetString("ROSTER_FORM_TTL"), 15*time.Minute),
		SubmitLockTTL:          parseDuration(v.GetString("ROSTER_SUBMIT_LOCK_TTL"), 90*time.Second),
		SheetFontPath:          v.GetString("ROSTER_SHEET_FONT"),
	}

	cfg.Sinks = SinksConfig{
		AttendanceURL:     v.GetString("SINK_ATTENDANCE_URL"),
		CorrectionURL:     v.GetString("SINK_CORRECTION_URL"),
		NewStudentsURL:    v.GetString("SINK_NEW_STUDENTS_URL"),
		VerifyURL:         v.GetString("SINK_VERIFY_URL"),
		FirstPassTimeout:  parseDuration(v.GetString("SINK_FIRST_PASS_TIMEOUT"), 30*time.Second),
		CorrectionTimeout: parseDuration(v.GetString("SINK_CORRECTION_TIMEOUT"), 50*time.Second),
		DefaultTimeout:    parseDuration(v.GetString("SINK_DEFAULT_TIMEOUT"), 30*time.Second),
	}

	cfg.Chat = ChatConfig{
		APIURL:       v.GetString("TELEGRAM_API_URL"),
		Token:        v.GetString("TELEGRAM_TOKEN"),
		Timeout:      parseDuration(v.GetString("TELEGRAM_TIMEOUT"), 60*time.Second),
		AdminChatIDs: parseIDs(v.GetString("ADMIN_CHAT_IDS")),
	}

	maxPart := v.GetInt64("EXPORT_MAX_PART_BYTES")
	if maxPart <= 0 {
		maxPart = 45 * 1024 * 1024
	}
	cfg.Export = ExportConfig{
		MaxPartBytes:     maxPart,
		FastPathItems:    v.GetInt("EXPORT_FAST_PATH_ITEMS"),
		BlobTimeout:      parseDuration(v.GetString("EXPORT_BLOB_TIMEOUT"), 60*time.Second),
		ThemeHooks:       parsePairs(v.GetString("EXPORT_THEME_HOOKS")),
		ThemeHookTimeout: parseDuration(v.GetString("EXPORT_THEME_HOOK_TIMEOUT"), 30*time.Second),
		LinkCacheTTL:     parseDuration(v.GetString("EXPORT_LINK_CACHE_TTL"), 6*time.Hour),
		LockTTL:          parseDuration(v.GetString("EXPORT_LOCK_TTL"), 30*time.Minute),
		Delivery:         strings.ToLower(v.GetString("EXPORT_DELIVERY")),
		StorageDir:       v.GetString("EXPORT_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("EXPORT_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("EXPORT_SIGNED_URL_TTL"), 24*time.Hour),
		PublicURL:        strings.TrimRight(v.GetString("EXPORT_PUBLIC_URL"), "/"),
		Workers:          v.GetInt("EXPORT_WORKERS"),
	}

	cfg.Events = EventsConfig{
		Driver:       strings.ToLower(v.GetString("EVENTS_DRIVER")),
		NATSURL:      v.GetString("NATS_URL"),
		NATSSubject:  v.GetString("NATS_SUBJECT"),
		KafkaBrokers: splitAndTrim(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:   v.GetString("KAFKA_TOPIC"),
	}

	cfg.RateLimit = RateLimitConfig{
		Capacity:  v.GetInt("RATE_LIMIT_CAPACITY"),
		PerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", "./data/roster.db")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "roster_gateway")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_EXPIRY", "12h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ROSTER_PAGE_SIZE", 10)
	v.SetDefault("ROSTER_CODE_ATTEMPTS", 10)
	v.SetDefault("ROSTER_LOW_ATTENDANCE_THRESHOLD", 3)
	v.SetDefault("ROSTER_FORM_TTL", "15m")
	v.SetDefault("ROSTER_SUBMIT_LOCK_TTL", "90s")
	v.SetDefault("ROSTER_SHEET_FONT", "")

	v.SetDefault("SINK_ATTENDANCE_URL", "")
	v.SetDefault("SINK_CORRECTION_URL", "")
	v.SetDefault("SINK_NEW_STUDENTS_URL", "")
	v.SetDefault("SINK_VERIFY_URL", "")
	v.SetDefault("SINK_FIRST_PASS_TIMEOUT", "30s")
	v.SetDefault("SINK_CORRECTION_TIMEOUT", "50s")
	v.SetDefault("SINK_DEFAULT_TIMEOUT", "30s")

	v.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	v.SetDefault("TELEGRAM_TOKEN", "")
	v.SetDefault("TELEGRAM_TIMEOUT", "60s")
	v.SetDefault("ADMIN_CHAT_IDS", "")

	v.SetDefault("EXPORT_MAX_PART_BYTES", 45*1024*1024)
	v.SetDefault("EXPORT_FAST_PATH_ITEMS", 10)
	v.SetDefault("EXPORT_BLOB_TIMEOUT", "60s")
	v.SetDefault("EXPORT_THEME_HOOKS", "")
	v.SetDefault("EXPORT_THEME_HOOK_TIMEOUT", "30s")
	v.SetDefault("EXPORT_LINK_CACHE_TTL", "6h")
	v.SetDefault("EXPORT_LOCK_TTL", "30m")
	v.SetDefault("EXPORT_DELIVERY", DeliveryChat)
	v.SetDefault("EXPORT_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORT_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORT_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORT_PUBLIC_URL", "")
	v.SetDefault("EXPORT_WORKERS", 1)

	v.SetDefault("EVENTS_DRIVER", EventsNone)
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("NATS_SUBJECT", "roster.events")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "roster-events")

	v.SetDefault("RATE_LIMIT_CAPACITY", 30)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func parseIDs(raw string) []int64 {
	parts := splitAndTrim(raw)
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// parsePairs reads "key=value,key=value" lists such as module to webhook mappings.
func parsePairs(raw string) map[string]string {
	result := make(map[string]string)
	for _, part := range splitAndTrim(raw) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
