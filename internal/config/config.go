package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBDriver   string `yaml:"db_driver"`
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBSSLMode  string `yaml:"db_sslmode"`
	// SQLite database file, used when DBDriver is "sqlite".
	DBPath     string `yaml:"db_path"`

	Addr         string   `yaml:"addr"`
	LogLevel     string   `yaml:"log_level"`
	LogFormat    string   `yaml:"log_format"`
	CORSOrigins  []string `yaml:"cors_origins"`
	EnsureSchema bool     `yaml:"ensure_schema"`
}

func Default() *Config {
	return &Config{
		DBDriver:    "postgres",
		DBHost:      "localhost",
		DBPort:      5432,
		DBSSLMode:   "disable",
		DBPath:      "tasks.db",
		Addr:        ":8080",
		LogLevel:    "info",
		LogFormat:   "text",
		CORSOrigins: []string{"*"},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// --config or TASKS_CONFIG, then the environment, then explicit flags.
// It returns pflag.ErrHelp when --help was given.
func Load(args []string, getenv func(string) string) (*Config, error) {
	flags := pflag.NewFlagSet("tasks-api", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	addr := flags.String("addr", "", "listen address (default :8080)")
	driver := flags.String("db-driver", "", "database driver: postgres or sqlite")
	logLevel := flags.String("log-level", "", "log level: debug, info, warn, error")
	ensureSchema := flags.Bool("ensure-schema", false, "create the tasks table if it is missing")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if rest := flags.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg := Default()

	path := *configPath
	if path == "" {
		path = getenv("TASKS_CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	if flags.Changed("addr") {
		cfg.Addr = *addr
	}
	if flags.Changed("db-driver") {
		cfg.DBDriver = *driver
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("ensure-schema") {
		cfg.EnsureSchema = *ensureSchema
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the values set in a YAML file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	str("DB_DRIVER", &c.DBDriver)
	str("DB_HOST", &c.DBHost)
	str("DB_USER", &c.DBUser)
	str("DB_PASSWORD", &c.DBPassword)
	str("DB_NAME", &c.DBName)
	str("DB_SSLMODE", &c.DBSSLMode)
	str("DB_PATH", &c.DBPath)
	str("TASKS_ADDR", &c.Addr)
	str("TASKS_LOG_LEVEL", &c.LogLevel)
	str("TASKS_LOG_FORMAT", &c.LogFormat)

	// An unparsable DB_PORT keeps the current port.
	if v := getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.DBPort = port
		}
	}

	if v := getenv("TASKS_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	}

	if v := getenv("TASKS_ENSURE_SCHEMA"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TASKS_ENSURE_SCHEMA: %w", err)
		}
		c.EnsureSchema = b
	}

	return nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("db_driver must be postgres or sqlite, got %q", c.DBDriver))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}

	return errors.Join(errs...)
}

func (c *Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// DataSource returns the driver name and the data source string to open it
// with.
func (c *Config) DataSource() (driver, dsn string) {
	if c.DBDriver == "sqlite" {
		return c.DBDriver, c.DBPath
	}
	return c.DBDriver, c.ConnString()
}
