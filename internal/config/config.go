package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
		PollTimeout int   `mapstructure:"poll_timeout"`
	} `mapstructure:"telegram"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Redis struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	} `mapstructure:"redis"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	ERP struct {
		BaseURL        string        `mapstructure:"base_url"`
		APIKey         string        `mapstructure:"api_key"`
		APIKeyHeader   string        `mapstructure:"api_key_header"`
		Timeout        time.Duration `mapstructure:"timeout"`
		CatalogPath    string        `mapstructure:"catalog_path"`
		WarehousesPath string        `mapstructure:"warehouses_path"`
	} `mapstructure:"erp"`

	Search struct {
		MinQueryLen int           `mapstructure:"min_query_len"`
		Debounce    time.Duration `mapstructure:"debounce"`
	} `mapstructure:"search"`

	Preferences struct {
		Backend string
		Section string
	} `mapstructure:"preferences"`

	Reorder struct {
		CheckInterval time.Duration `mapstructure:"check_interval"`
	} `mapstructure:"reorder"`
}

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "Europe/Moscow")
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("redis.prefix", "prefs")
	v.SetDefault("erp.api_key_header", "Authorization")
	v.SetDefault("erp.timeout", 30*time.Second)
	v.SetDefault("erp.catalog_path", "/catalog")
	v.SetDefault("erp.warehouses_path", "/warehouses")
	v.SetDefault("search.min_query_len", 3)
	v.SetDefault("search.debounce", 500*time.Millisecond)
	v.SetDefault("preferences.backend", BackendPostgres)
	v.SetDefault("preferences.section", "stock")
	v.SetDefault("reorder.check_interval", 15*time.Minute)
}

// Load .env (если есть) -> YAML -> переменные APP_* (APP_POSTGRES_DSN и т.п.).
func Load(path string) (Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}
	if c.ERP.BaseURL == "" {
		errs = append(errs, errors.New("erp.base_url is required"))
	}
	switch c.Preferences.Backend {
	case BackendPostgres:
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for preferences.backend=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("preferences.backend: unknown %q", c.Preferences.Backend))
	}
	if c.Search.MinQueryLen < 0 {
		errs = append(errs, errors.New("search.min_query_len must be >= 0"))
	}
	return errors.Join(errs...)
}
