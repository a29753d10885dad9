package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	LogLevel      string `mapstructure:"log_level"`
	Server        struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Inference struct {
		URL               string        `mapstructure:"url"`
		Model             string        `mapstructure:"model"`
		ReasoningTimeout  time.Duration `mapstructure:"reasoning_timeout"`
		ComplianceTimeout time.Duration `mapstructure:"compliance_timeout"`
	} `mapstructure:"inference"`
	Policy struct {
		URL      string        `mapstructure:"url"`
		Timeout  time.Duration `mapstructure:"timeout"`
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"policy"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Storage struct {
		Backend  string `mapstructure:"backend"`
		LocalDir string `mapstructure:"local_dir"`
		Minio    struct {
			Endpoint  string `mapstructure:"endpoint"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
			Bucket    string `mapstructure:"bucket"`
			Region    string `mapstructure:"region"`
			UseSSL    bool   `mapstructure:"use_ssl"`
		} `mapstructure:"minio"`
	} `mapstructure:"storage"`
	Auth struct {
		OktaDomain   string        `mapstructure:"okta_domain"`
		ClientID     string        `mapstructure:"client_id"`
		ClientSecret string        `mapstructure:"client_secret"`
		RedirectURL  string        `mapstructure:"redirect_url"`
		JWTSecret    string        `mapstructure:"jwt_secret"`
		TokenTTL     time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// IsDev reports whether the deployment is flagged as a development environment.
// Only development deployments may fall back to the static permission matrix.
func (c *Config) IsDev() bool {
	return strings.ToUpper(c.Environment) == "DEV"
}

// DSN returns the libpq connection string for the configured database.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

// LoadConfig loads the configuration from a file and the environment. An empty
// path searches for config.yaml in the working directory and ./config; a missing
// file is not an error, defaults and VERITAS_* variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("VERITAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// normalize OKTA issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeOktaIssuer(config.Auth.OktaDomain)
	config.Policy.URL = strings.TrimRight(strings.TrimSpace(config.Policy.URL), "/")
	config.Inference.URL = strings.TrimRight(strings.TrimSpace(config.Inference.URL), "/")

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "PROD")
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "veritas")
	v.SetDefault("db.name", "veritas")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("inference.url", "http://localhost:11434")
	v.SetDefault("inference.model", "mistral")
	v.SetDefault("inference.reasoning_timeout", 30*time.Second)
	v.SetDefault("inference.compliance_timeout", 120*time.Second)
	v.SetDefault("policy.url", "http://localhost:8181")
	v.SetDefault("policy.timeout", 2*time.Second)
	v.SetDefault("policy.cache_ttl", 30*time.Second)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "uploads")
	v.SetDefault("storage.minio.bucket", "veritas-documents")
	v.SetDefault("auth.token_ttl", 30*time.Minute)
}

// normalizeOktaIssuer removes any trailing slash so the issuer can be pasted
// straight from the admin console.
func normalizeOktaIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
