package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Sync      SyncConfig      `mapstructure:"sync"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Profiles  ProfilesConfig  `mapstructure:"profiles"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv      string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL    time.Duration `mapstructure:"access_token_ttl"`
	AdminUser         string        `mapstructure:"admin_user"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
}

type DiscoveryConfig struct {
	Port           int           `mapstructure:"port"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ReceiveBuffer  int           `mapstructure:"receive_buffer"`
	Broadcasts     []string      `mapstructure:"broadcasts"`
	LegacyFallback bool          `mapstructure:"legacy_fallback"`
	// 0 disables background scans
	RescanInterval time.Duration `mapstructure:"rescan_interval"`
}

type SyncConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	Pacing          time.Duration `mapstructure:"pacing"`
	IOBatchMaxBytes int           `mapstructure:"io_batch_max_bytes"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
}

type ProfilesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads the YAML file at path. An empty path uses defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "unitsync")
	v.SetDefault("database.max_connections", 10)

	// Auth defaults
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")
	v.SetDefault("auth.admin_user", "admin")

	v.SetDefault("discovery.port", 5000)
	v.SetDefault("discovery.timeout", "2s")
	v.SetDefault("discovery.receive_buffer", 256*1024)
	v.SetDefault("discovery.legacy_fallback", true)
	v.SetDefault("discovery.rescan_interval", "0s")

	v.SetDefault("sync.request_timeout", "1s")
	v.SetDefault("sync.pacing", "200ms")
	v.SetDefault("sync.io_batch_max_bytes", 512)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "openunitsync")
	v.SetDefault("mqtt.topic_prefix", "unitsync")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("profiles.search_paths", []string{"./profiles"})
	v.SetDefault("logging.development", false)

	// Environment variables with prefix OUS_ (OUS_SYNC_PACING, ...)
	v.SetEnvPrefix("OUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Discovery.Port <= 0 || c.Discovery.Port > 65535 {
		return fmt.Errorf("invalid discovery.port %d", c.Discovery.Port)
	}
	if c.Discovery.RescanInterval < 0 {
		return fmt.Errorf("invalid discovery.rescan_interval %s", c.Discovery.RescanInterval)
	}
	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery.timeout must be positive")
	}
	if c.Sync.RequestTimeout <= 0 {
		return fmt.Errorf("sync.request_timeout must be positive")
	}
	if c.Sync.IOBatchMaxBytes < 64 {
		return fmt.Errorf("sync.io_batch_max_bytes must be at least 64, got %d", c.Sync.IOBatchMaxBytes)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt.qos %d", c.MQTT.QoS)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const devJWTSecret = "dev-secret-change-in-production-min-32-chars"

// GetJWTSecret reads the JWT secret from the environment.
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// development fallback
		return devJWTSecret
	}
	return secret
}

// IsProductionReady reports whether the config is safe for production.
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devJWTSecret && len(secret) >= 32 && a.AdminPasswordHash != ""
}
