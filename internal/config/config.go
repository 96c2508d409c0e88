package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Webhook struct {
		Secret string `mapstructure:"secret"` // shared secret, empty disables the check
	} `mapstructure:"webhook"`
	CRM CRMConfig `mapstructure:"crm"`
	Stream struct {
		KeepAliveInterval time.Duration `mapstructure:"keepAliveInterval"` // interval between SSE keep-alive comments
		SubscriberBuffer  int           `mapstructure:"subscriberBuffer"`  // per-subscriber channel capacity
	} `mapstructure:"stream"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

// CRMConfig holds the connection settings for the external CRM collaborator
type CRMConfig struct {
	BaseURL        string        `mapstructure:"baseURL"`
	TokenURL       string        `mapstructure:"tokenURL"`
	ClientID       string        `mapstructure:"clientID"`
	ClientSecret   string        `mapstructure:"clientSecret"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"` // upper bound on one contact lookup
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.postgresAutoMigrate", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("crm.requestTimeout", 5*time.Second)
	v.SetDefault("stream.keepAliveInterval", 30*time.Second)
	v.SetDefault("stream.subscriberBuffer", 16)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("/etc/call-events-service")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		v.Set("webhook.secret", secret)
	}
	if crmURL := os.Getenv("CRM_BASE_URL"); crmURL != "" {
		v.Set("crm.baseURL", crmURL)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(parts, tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
