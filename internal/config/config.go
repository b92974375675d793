package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/rajivgeraev/barter-api/internal/matcher"
)

// Config структура конфигурации
type Config struct {
	Port             string        `env:"PORT" envDefault:"8080"`
	RealtimeAddr     string        `env:"REALTIME_ADDR" envDefault:":8081"`
	AppEnv           string        `env:"APP_ENV" envDefault:"production"`
	TelegramBotToken string        `env:"TELEGRAM_BOT_TOKEN,notEmpty"`
	JWTSecret        string        `env:"JWT_SECRET,notEmpty"`
	TokenTTL         time.Duration `env:"JWT_TTL" envDefault:"24h"`

	// DATABASE_URL имеет приоритет над PG* переменными
	DatabaseURL      string `env:"DATABASE_URL"`
	DatabaseConfig   DatabaseConfig
	CloudinaryConfig CloudinaryConfig
	SuggestionConfig SuggestionConfig
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host         string        `env:"PGHOST" envDefault:"localhost"`
	Port         string        `env:"PGPORT" envDefault:"5432"`
	User         string        `env:"PGUSER" envDefault:"barter_user"`
	Password     string        `env:"PGPASSWORD" envDefault:"barter_pass"`
	Name         string        `env:"PGDATABASE" envDefault:"barter"`
	SSLMode      string        `env:"PGSSLMODE" envDefault:"disable"`
	MaxConns     int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns     int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	QueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"5s"`
}

// CloudinaryConfig содержит конфигурацию для Cloudinary
type CloudinaryConfig struct {
	CloudName    string `env:"CLOUDINARY_CLOUD_NAME"`
	APIKey       string `env:"CLOUDINARY_API_KEY"`
	APISecret    string `env:"CLOUDINARY_API_SECRET"`
	UploadPreset string `env:"CLOUDINARY_UPLOAD_PRESET" envDefault:"barter_mvp"`
	UploadFolder string `env:"CLOUDINARY_UPLOAD_FOLDER" envDefault:"barter"`
}

// SuggestionConfig - лимиты подбора трёхсторонних обменов и кэш
type SuggestionConfig struct {
	MaxItemsPerUser  int           `env:"SUGGEST_MAX_ITEMS_PER_USER" envDefault:"100"`
	MaxLikersPerItem int           `env:"SUGGEST_MAX_LIKERS_PER_ITEM" envDefault:"50"`
	MaxLikedItems    int           `env:"SUGGEST_MAX_LIKED_ITEMS" envDefault:"500"`
	MaxResults       int           `env:"SUGGEST_MAX_RESULTS" envDefault:"200"`
	Parallelism      int           `env:"SUGGEST_PARALLELISM" envDefault:"8"`
	Timeout          time.Duration `env:"SUGGEST_TIMEOUT" envDefault:"3s"`
	CacheSize        int           `env:"SUGGEST_CACHE_SIZE" envDefault:"1024"`
	CacheTTL         time.Duration `env:"SUGGEST_CACHE_TTL" envDefault:"1m"`
}

// Limits переводит настройки в лимиты поиска
func (s SuggestionConfig) Limits() matcher.Limits {
	return matcher.Limits{
		MaxItemsPerUser:  s.MaxItemsPerUser,
		MaxLikersPerItem: s.MaxLikersPerItem,
		MaxLikedItems:    s.MaxLikedItems,
		MaxResults:       s.MaxResults,
		Parallelism:      s.Parallelism,
		Timeout:          s.Timeout,
	}
}

// LoadConfig загружает переменные из .env и окружения
func LoadConfig() (*Config, error) {
	// .env не обязателен, переменные могут прийти из окружения
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка чтения конфигурации: %w", err)
	}

	if cfg.DatabaseURL == "" {
		db := cfg.DatabaseConfig
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			db.User, db.Password, db.Host, db.Port, db.Name, db.SSLMode)
	}

	return cfg, nil
}

// IsDevelopment сообщает, запущено ли приложение в режиме разработки
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// CloudinaryEnabled сообщает, заданы ли ключи Cloudinary
func (c *Config) CloudinaryEnabled() bool {
	cc := c.CloudinaryConfig
	return cc.CloudName != "" && cc.APIKey != "" && cc.APISecret != ""
}
