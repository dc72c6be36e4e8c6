// Package config loads application settings from a .env file, an
// optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	auth "github.com/felapi/fel-auth"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type App struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	URL  string `mapstructure:"url"`
	Addr string `mapstructure:"addr"`

	// CommandTimeout bounds each account command run by the API
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type JWT struct {
	Secret    string `mapstructure:"secret"`
	Algorithm string `mapstructure:"algorithm"`
	// Expiry in seconds
	Expiry int `mapstructure:"expiry"`
}

type DB struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Debug    bool   `mapstructure:"debug"`
}

type Mail struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	// Driver is smtp or log
	Driver string `mapstructure:"driver"`
}

type Log struct {
	Driver string `mapstructure:"driver"`
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	MaxAge int    `mapstructure:"max_age_days"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type RateLimit struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

type Auth struct {
	ContextKey        string `mapstructure:"context_key"`
	AuthScheme        string `mapstructure:"auth_scheme"`
	VerificationTTL   int    `mapstructure:"verification_ttl"`
	DeterministicUUID bool   `mapstructure:"deterministic_uuid"`
	RolesFile         string `mapstructure:"roles_file"`
}

// Config is the full application configuration. It implements
// auth.Config.
type Config struct {
	App       App       `mapstructure:"app"`
	JWT       JWT       `mapstructure:"jwt"`
	DB        DB        `mapstructure:"db"`
	Mail      Mail      `mapstructure:"mail"`
	Log       Log       `mapstructure:"log"`
	Redis     Redis     `mapstructure:"redis"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
	Auth      Auth      `mapstructure:"auth"`
}

var _ auth.Config = (*Config)(nil)

var ErrMissingSecret = errors.New("config: JWT_SECRET is required")

type Options struct {
	// EnvFiles are loaded with godotenv, missing files are ignored
	EnvFiles []string
	// File is an optional YAML config file
	File string
}

// Load resolves the configuration. Precedence, highest first:
// environment, YAML file, defaults.
func Load(opts Options) (*Config, error) {
	files := opts.EnvFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// existing variables are never overridden
		_ = godotenv.Load(f)
	}

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return ErrMissingSecret
	}
	switch c.DB.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DB.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "FEL API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.url", "http://localhost:8080")
	v.SetDefault("app.addr", ":8080")
	v.SetDefault("app.command_timeout", 15*time.Second)

	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.expiry", 3600)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:fel.db?cache=shared")
	v.SetDefault("db.port", 3306)

	v.SetDefault("mail.driver", "log")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from_name", "FEL")

	v.SetDefault("log.driver", "glog")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("rate_limit.max", 20)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("auth.context_key", "user_id")
	v.SetDefault("auth.auth_scheme", "Bearer")
	v.SetDefault("auth.verification_ttl", 86400)
}

// env names follow the deployment's .env layout
var envBindings = map[string]string{
	"app.name":                "APP_NAME",
	"app.env":                 "APP_ENV",
	"app.url":                 "APP_URL",
	"app.addr":                "APP_ADDR",
	"app.command_timeout":     "APP_COMMAND_TIMEOUT",
	"jwt.secret":              "JWT_SECRET",
	"jwt.algorithm":           "JWT_ALGORITHM",
	"jwt.expiry":              "JWT_EXPIRY",
	"db.driver":               "DB_DRIVER",
	"db.dsn":                  "DB_DSN",
	"db.host":                 "DB_HOST",
	"db.port":                 "DB_PORT",
	"db.database":             "DB_DATABASE",
	"db.username":             "DB_USERNAME",
	"db.password":             "DB_PASSWORD",
	"db.debug":                "DB_DEBUG",
	"mail.driver":             "MAIL_DRIVER",
	"mail.host":               "MAIL_HOST",
	"mail.port":               "MAIL_PORT",
	"mail.username":           "MAIL_USERNAME",
	"mail.password":           "MAIL_PASSWORD",
	"mail.from_address":       "MAIL_FROM_ADDRESS",
	"mail.from_name":          "MAIL_FROM_NAME",
	"log.driver":              "LOG_DRIVER",
	"log.level":               "LOG_LEVEL",
	"log.file":                "LOG_FILE",
	"log.max_age_days":        "LOG_MAX_AGE_DAYS",
	"redis.addr":              "REDIS_ADDR",
	"redis.password":          "REDIS_PASSWORD",
	"rate_limit.max":          "RATE_LIMIT_MAX",
	"rate_limit.window":       "RATE_LIMIT_WINDOW",
	"auth.verification_ttl":   "AUTH_VERIFICATION_TTL",
	"auth.deterministic_uuid": "AUTH_DETERMINISTIC_UUID",
	"auth.roles_file":         "AUTH_ROLES_FILE",
}

func bindEnv(v *viper.Viper) {
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

func (c *Config) GetSigningKey() string      { return c.JWT.Secret }
func (c *Config) GetSigningMethod() string   { return c.JWT.Algorithm }
func (c *Config) GetTokenExpiration() int    { return c.JWT.Expiry }
func (c *Config) GetContextKey() string      { return c.Auth.ContextKey }
func (c *Config) GetAuthScheme() string      { return c.Auth.AuthScheme }
func (c *Config) GetVerificationTTL() int    { return c.Auth.VerificationTTL }
func (c *Config) GetDeterministicUUID() bool { return c.Auth.DeterministicUUID }

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}
