package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	// Store
	DBDriver   string `mapstructure:"db_driver"` // "postgres" or "sqlite"
	DBHost     string `mapstructure:"db_host"`
	DBPort     string `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_name"`
	DBSSLMode  string `mapstructure:"db_sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`

	// Optional integrations, disabled when the address is empty
	RedisHost          string `mapstructure:"redis_host"`
	RedisPassword      string `mapstructure:"redis_password"`
	KafkaBroker        string `mapstructure:"kafka_broker"`
	KafkaTopic         string `mapstructure:"kafka_topic"`
	KafkaGroupID       string `mapstructure:"kafka_group_id"`
	ElasticsearchURL   string `mapstructure:"elasticsearch_url"`
	ElasticsearchIndex string `mapstructure:"elasticsearch_index"`
	SentryDSN          string `mapstructure:"sentry_dsn"`

	AppEnv     string `mapstructure:"app_env"`
	AppVersion string `mapstructure:"app_version"`
	Port       string `mapstructure:"port"`
}

const (
	DefaultDBDriver           = "postgres"
	DefaultDBHost             = "localhost"
	DefaultDBPort             = "5432"
	DefaultDBUser             = "postgres"
	DefaultDBPassword         = "password"
	DefaultDBName             = "hw_clients_db"
	DefaultDBSSLMode          = "disable"
	DefaultSQLitePath         = "clients.db"
	DefaultKafkaTopic         = "client_events"
	DefaultKafkaGroupID       = "client-directory"
	DefaultElasticsearchIndex = "clients"
	DefaultAppEnv             = "development"
	DefaultAppVersion         = "dev"
	DefaultPort               = "8080"
)

var defaults = map[string]string{
	"db_driver":           DefaultDBDriver,
	"db_host":             DefaultDBHost,
	"db_port":             DefaultDBPort,
	"db_user":             DefaultDBUser,
	"db_password":         DefaultDBPassword,
	"db_name":             DefaultDBName,
	"db_sslmode":          DefaultDBSSLMode,
	"sqlite_path":         DefaultSQLitePath,
	"redis_host":          "",
	"redis_password":      "",
	"kafka_broker":        "",
	"kafka_topic":         DefaultKafkaTopic,
	"kafka_group_id":      DefaultKafkaGroupID,
	"elasticsearch_url":   "",
	"elasticsearch_index": DefaultElasticsearchIndex,
	"sentry_dsn":          "",
	"app_env":             DefaultAppEnv,
	"app_version":         DefaultAppVersion,
	"port":                DefaultPort,
}

// Load reads the configuration from the environment. Every key maps to the
// upper-cased variable of the same name, e.g. db_host is read from DB_HOST.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres":
		if c.DBName == "" {
			return fmt.Errorf("db_name is required")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required")
		}
	default:
		return fmt.Errorf("db_driver must be 'postgres' or 'sqlite', got %q", c.DBDriver)
	}
	return nil
}

// PostgresDSN builds the key/value connection string understood by pgx.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBPort,
		c.DBSSLMode,
	)
}
