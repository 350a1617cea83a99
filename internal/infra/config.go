package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации обозревателя и seed-утилиты.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Explorer    ExplorerConfig    `mapstructure:"explorer"`
	Reliability ReliabilityConfig `mapstructure:"reliability"`
	Seed        SeedConfig        `mapstructure:"seed"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	GRPCPort     int           `mapstructure:"grpc_port"` // health-check; 0 — выключен
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	RateLimit    int           `mapstructure:"rate_limit"` // запросов в минуту с одного IP
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub сигнала обновления).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig — проверка bearer-токенов консоли. Без публичного ключа API открыт.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	Issuer        string `mapstructure:"issuer"`
	PublicKey     []byte
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// ExplorerConfig — откуда брать коллекцию и сколько событий синтезировать.
type ExplorerConfig struct {
	MockMode     bool          `mapstructure:"mock_mode"`
	Source       string        `mapstructure:"source"` // api, postgres, mock
	LogsAPIURL   string        `mapstructure:"logs_api_url"`
	FallbackSize int           `mapstructure:"fallback_size"`
	MockSize     int           `mapstructure:"mock_size"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// ReliabilityConfig — обвязка HTTP-источника логов.
type ReliabilityConfig struct {
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"` // запросов в секунду
	RateBurst     int           `mapstructure:"rate_burst"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
}

// SeedConfig — параметры наполнения таблицы синтетическими событиями.
type SeedConfig struct {
	Count     int `mapstructure:"count"`
	BatchSize int `mapstructure:"batch_size"`
}

const (
	SourceAPI      = "api"
	SourcePostgres = "postgres"
	SourceMock     = "mock"
)

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// paths задает каталоги поиска config.yaml; по умолчанию корень и ./configs.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// 2. Переменные окружения: EXPLORER_SOURCE=postgres перекроет explorer.source
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("infra: error reading config file: %w", err)
		}
		// Если файла нет, работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("infra: unable to decode into struct: %w", err)
	}

	if cfg.Explorer.MockMode {
		cfg.Explorer.Source = SourceMock
	}
	switch cfg.Explorer.Source {
	case SourceAPI, SourcePostgres, SourceMock:
	default:
		return nil, fmt.Errorf("infra: unknown explorer.source %q", cfg.Explorer.Source)
	}

	// 6. Ключ из ENV (для Docker/K8s) или из файла
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.grpc_port", 0)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit", 300)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "")
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("explorer.mock_mode", false)
	v.SetDefault("explorer.source", SourceAPI)
	v.SetDefault("explorer.logs_api_url", "http://localhost:3000")
	v.SetDefault("explorer.fallback_size", 30)
	v.SetDefault("explorer.mock_size", 50)
	v.SetDefault("explorer.fetch_timeout", 10*time.Second)

	v.SetDefault("reliability.cb_max_requests", 1)
	v.SetDefault("reliability.cb_interval", time.Minute)
	v.SetDefault("reliability.cb_timeout", 30*time.Second)
	v.SetDefault("reliability.rate_limit", 5)
	v.SetDefault("reliability.rate_burst", 2)
	v.SetDefault("reliability.retry_attempts", 3)

	v.SetDefault("seed.count", 500)
	v.SetDefault("seed.batch_size", 100)
}

// loadKeyResource: PEM прямо в ENV или файл по пути из конфига
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
