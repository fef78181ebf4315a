package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minSessionSecretLength is the shortest HS256 key accepted at startup.
const minSessionSecretLength = 32

// Config is the root configuration for the gatehouse service.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// SiteConfig identifies the deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains broker settings for the notification transport.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains broker credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains reconnect backoff settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains certificate paths.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeouts, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// InfluxDBConfig contains settings for the auth event time series.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	Measurement   string `yaml:"measurement"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// RecordSubjects writes the username of each event as a field. Turn it
	// off when the time series must not hold account names.
	RecordSubjects bool `yaml:"record_subjects"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig groups everything the access-control core needs.
type SecurityConfig struct {
	Session        SessionConfig   `yaml:"session"`
	Reset          ResetConfig     `yaml:"reset"`
	Password       PasswordConfig  `yaml:"password"`
	Superuser      SuperuserConfig `yaml:"superuser"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	StoreTimeoutMS int             `yaml:"store_timeout_ms"`
}

// SessionConfig controls signed session tokens.
type SessionConfig struct {
	Secret     string `yaml:"secret"`
	TTLMinutes int    `yaml:"ttl_minutes"`
	Issuer     string `yaml:"issuer"`
}

// ResetConfig controls password-reset credentials.
type ResetConfig struct {
	WindowMinutes int    `yaml:"window_minutes"`
	LinkBaseURL   string `yaml:"link_base_url"`
	PurgeInterval int    `yaml:"purge_interval"`
}

// PasswordConfig contains password policy.
type PasswordConfig struct {
	MinLength int `yaml:"min_length"`
}

// SuperuserConfig describes the account bootstrapped on first start.
type SuperuserConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

// RateLimitConfig throttles the unauthenticated login and reset endpoints per client.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "gatehouse-01",
			Name: "Gatehouse",
		},
		Database: DatabaseConfig{
			Path:        "./data/gatehouse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gatehouse",
			},
			QoS:         1,
			TopicPrefix: "gatehouse",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Org:            "gatehouse",
			Bucket:         "auth",
			Measurement:    "auth_events",
			BatchSize:      100,
			FlushInterval:  10,
			RecordSubjects: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			Session: SessionConfig{
				TTLMinutes: 60,
				Issuer:     "gatehouse",
			},
			Reset: ResetConfig{
				WindowMinutes: 30,
				PurgeInterval: 3600,
			},
			Password: PasswordConfig{MinLength: 8},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 20,
				Burst:             5,
			},
			StoreTimeoutMS: 2000,
		},
	}
}

// applyEnvOverrides applies GATEHOUSE_SECTION_KEY variables.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("GATEHOUSE_DATABASE_PATH", &cfg.Database.Path)

	setString("GATEHOUSE_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setString("GATEHOUSE_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("GATEHOUSE_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	setString("GATEHOUSE_API_HOST", &cfg.API.Host)
	setInt("GATEHOUSE_API_PORT", &cfg.API.Port)

	setString("GATEHOUSE_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	setString("GATEHOUSE_SESSION_SECRET", &cfg.Security.Session.Secret)
	setInt("GATEHOUSE_SESSION_TTL_MINUTES", &cfg.Security.Session.TTLMinutes)
	setInt("GATEHOUSE_RESET_WINDOW_MINUTES", &cfg.Security.Reset.WindowMinutes)
	setString("GATEHOUSE_RESET_LINK_BASE_URL", &cfg.Security.Reset.LinkBaseURL)

	setString("GATEHOUSE_SUPERUSER_USERNAME", &cfg.Security.Superuser.Username)
	setString("GATEHOUSE_SUPERUSER_PASSWORD", &cfg.Security.Superuser.Password)
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.Measurement == "" {
		errs = append(errs, "influxdb.measurement is required when influxdb is enabled")
	}

	// A forged session token grants every permission its subject holds.
	s := c.Security
	switch {
	case s.Session.Secret == "":
		errs = append(errs, "security.session.secret is required (set GATEHOUSE_SESSION_SECRET)")
	case len(s.Session.Secret) < minSessionSecretLength:
		errs = append(errs, fmt.Sprintf("security.session.secret must be at least %d characters", minSessionSecretLength))
	}
	if s.Session.TTLMinutes <= 0 {
		errs = append(errs, "security.session.ttl_minutes must be positive")
	}
	if s.Reset.WindowMinutes <= 0 {
		errs = append(errs, "security.reset.window_minutes must be positive")
	}
	if s.Password.MinLength < 1 {
		errs = append(errs, "security.password.min_length must be at least 1")
	}
	if s.StoreTimeoutMS < 0 {
		errs = append(errs, "security.store_timeout_ms must not be negative")
	}
	if s.RateLimit.Enabled && s.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// GetReadTimeout returns the API read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// SessionTTL returns the lifetime of issued session tokens.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Security.Session.TTLMinutes) * time.Minute
}

// ResetWindow returns how long a reset credential stays valid.
func (c *Config) ResetWindow() time.Duration {
	return time.Duration(c.Security.Reset.WindowMinutes) * time.Minute
}

// ResetPurgeInterval returns how often expired reset credentials are removed.
// Zero disables the purge loop.
func (c *Config) ResetPurgeInterval() time.Duration {
	return time.Duration(c.Security.Reset.PurgeInterval) * time.Second
}

// StoreTimeout returns the bound applied to each store call made by the core.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Security.StoreTimeoutMS) * time.Millisecond
}
