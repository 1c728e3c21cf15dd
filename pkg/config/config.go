package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X .../pkg/config.Version=...".
var Version = "dev"

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds application-wide configuration
type Config struct {
	REST        RESTConfig          `mapstructure:"rest"`
	Collections []entity.Definition `mapstructure:"collections"`
	Events      EventsConfig        `mapstructure:"events"`
	Metrics     MetricsConfig       `mapstructure:"metrics"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type RESTConfig struct {
	ListenAddr string    `mapstructure:"listenAddr"`
	BaseURL    string    `mapstructure:"baseURL"`
	Store      string    `mapstructure:"store"`
	PG         PGConfig  `mapstructure:"pg"`
	Introspect bool      `mapstructure:"introspect"`
	TLS        TLSConfig `mapstructure:"tls"`
	CORS       bool      `mapstructure:"cors"`
}

type PGConfig struct {
	ConnString string `mapstructure:"connString"`
	// Schemas limits introspection; empty means every non-system schema.
	Schemas        []string      `mapstructure:"schemas"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

type EventsConfig struct {
	Connector string         `mapstructure:"connector"`
	Config    map[string]any `mapstructure:"config"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rest.listenAddr", ":8080")
	v.SetDefault("rest.baseURL", "")
	v.SetDefault("rest.store", StorePostgres)
	v.SetDefault("rest.pg.connString", "")
	v.SetDefault("rest.pg.connectTimeout", 30*time.Second)
	v.SetDefault("rest.introspect", true)
	v.SetDefault("rest.tls.enabled", false)
	v.SetDefault("rest.tls.certFile", "")
	v.SetDefault("rest.tls.keyFile", "")
	v.SetDefault("rest.cors", true)
	v.SetDefault("events.connector", "none")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads config from file, environment (PGCRUD_REST_LISTENADDR for
// rest.listenAddr) and changed flags, in increasing precedence. flags may
// be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pgcrud")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PGCRUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	return &cfg, nil
}

// Validate checks the settings serve cannot run without.
func (c *Config) Validate() error {
	switch c.REST.Store {
	case StorePostgres:
		if c.REST.PG.ConnString == "" {
			return errors.New("rest.pg.connString is required with the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("rest.store: unknown store %q (want %s or %s)", c.REST.Store, StorePostgres, StoreMemory)
	}
	if len(c.Collections) == 0 {
		return errors.New("no collections configured")
	}
	return nil
}
