// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Окружения. В prod refresh-cookie получает атрибут Secure.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Драйверы хранилищ.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	RefreshDriverDB    = "db"
	RefreshDriverRedis = "redis"
)

// MinBcryptCost - нижняя граница стоимости bcrypt для боевой конфигурации.
const MinBcryptCost = 10

// Config - корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env          string             `yaml:"env" env:"ENV" env-default:"local"`
	HTTP         HTTPConfig         `yaml:"http"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Auth         AuthConfig         `yaml:"auth"`
	Cookie       CookieConfig       `yaml:"cookie"`
	DB           DBConfig           `yaml:"db"`
	RefreshStore RefreshStoreConfig `yaml:"refresh_store"`
	Redis        RedisConfig        `yaml:"redis"`
	Timeouts     TimeoutConfig      `yaml:"timeouts"`
	Janitor      JanitorConfig      `yaml:"janitor"`
}

// TimeoutConfig - таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig - публичный REST-сервер.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// MetricsConfig - отдельный HTTP для Prometheus и health-проб.
type MetricsConfig struct {
	Host string `yaml:"host" env:"METRICS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"9090"`
}

// Addr возвращает адрес в формате host:port.
func (m MetricsConfig) Addr() string { return net.JoinHostPort(m.Host, m.Port) }

// AuthConfig содержит параметры выпуска и валидации токенов и хэширования.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	Issuer          string        `yaml:"issuer" env:"ISSUER" env-default:"chat-auth"`
	BcryptCost      int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

// CookieConfig - параметры refresh-cookie.
type CookieConfig struct {
	Name string `yaml:"name" env:"COOKIE_NAME" env-default:"refresh_token"`
	Path string `yaml:"path" env:"COOKIE_PATH" env-default:"/auth"`
}

// DBConfig - настройки хранилища пользователей (и refresh-токенов при refresh_store.driver=db).
type DBConfig struct {
	Driver      string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL"`
	SkipMigrate bool   `yaml:"skip_migrate" env:"DB_SKIP_MIGRATE"`
}

// RefreshStoreConfig выбирает backend для refresh-токенов.
type RefreshStoreConfig struct {
	Driver string `yaml:"driver" env:"REFRESH_STORE_DRIVER" env-default:"db"`
}

// RedisConfig - подключение к Redis для refresh-токенов.
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"chat:rt:"`
}

// JanitorConfig - фоновая очистка просроченных refresh-токенов; 0 выключает её.
type JanitorConfig struct {
	Period time.Duration `yaml:"period" env:"JANITOR_PERIOD" env-default:"0s"`
}

// SecureCookies сообщает, нужно ли ставить атрибут Secure на cookie.
func (c *Config) SecureCookies() bool { return c.Env == EnvProd }

// Validate проверяет согласованность значений после загрузки.
func (c *Config) Validate() error {
	const op = "config.Validate"

	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}

	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	} else if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("refresh_token_ttl must exceed access_token_ttl"))
	}

	if c.Auth.BcryptCost < MinBcryptCost {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be >= %d", MinBcryptCost))
	}

	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.DatabaseURL == "" {
			errs = append(errs, errors.New("db.db_url is required for postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown db.driver %q", c.DB.Driver))
	}

	switch c.RefreshStore.Driver {
	case RefreshDriverDB:
	case RefreshDriverRedis:
		if c.Redis.RedisURL == "" {
			errs = append(errs, errors.New("redis.redis_url is required for redis refresh store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown refresh_store.driver %q", c.RefreshStore.Driver))
	}

	if c.Cookie.Name == "" {
		errs = append(errs, errors.New("cookie.name is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}

	return nil
}

// MustLoad - обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
