package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig              `mapstructure:"server"`
	Database    DatabaseConfig            `mapstructure:"database"`
	Connections map[string]DatabaseConfig `mapstructure:"connections"`
	Schema      SchemaConfig              `mapstructure:"schema"`
	Auth        AuthConfig                `mapstructure:"auth"`
	Log         LogConfig                 `mapstructure:"log"`
	Metrics     MetricsConfig             `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

type SchemaConfig struct {
	Path            string                `mapstructure:"path"`
	Namespace       string                `mapstructure:"namespace"`
	PersistentCache PersistentCacheConfig `mapstructure:"persistent_cache"`
}

// PersistentCacheConfig enables the on-disk schema cache when Path is set.
type PersistentCacheConfig struct {
	Path       string `mapstructure:"path"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	AdminRole string `mapstructure:"admin_role"`
	// Roles maps a role name to the capabilities it grants. "*" grants all.
	Roles map[string][]string `mapstructure:"roles"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "sqlite":
		if d.Name == ":memory:" {
			return ":memory:"
		}
		return filepath.Join(d.Path, d.Name+".db")
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name)
	default:
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			url.QueryEscape(d.User), url.QueryEscape(d.Password), d.Host, d.Port, d.Name)
	}
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("schema.path", "./schemas")
	v.SetDefault("schema.namespace", "crud6")
	v.SetDefault("schema.persistent_cache.ttl_seconds", 3600)
	v.SetDefault("auth.jwt_secret", "changeme-secret")
	v.SetDefault("auth.admin_role", "admin")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("metrics.enabled", true)
}

// Load reads app.yaml from the working directory (or the repo root), then
// applies CRUD6_ prefixed environment overrides such as CRUD6_DATABASE_HOST.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path searches the
// default locations and tolerates a missing file.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	setDefaults(v)

	v.SetEnvPrefix("CRUD6")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); path != "" || !missing {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	for name, conn := range cfg.Connections {
		if conn.Driver == "" {
			conn.Driver = cfg.Database.Driver
		}
		cfg.Connections[name] = conn
	}

	return &cfg, nil
}
