package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// this is a pointer so that if someone attempts to use it before loading it will
// panic and force them to load it first.
// it is also private so that it cannot be modified after loading.
var _loaded *Config

// Config is the main configuration structure
type Config struct {
	Common Common `yaml:"common"`
}

// Load loads the configuration following proper precedence: defaults → config file → environment variables
func Load() {
	// Start with defaults
	_loaded = &defaultConfig

	// Try to load from config file and merge over defaults
	configFile := os.Getenv("LUREBOX_CONFIG_FILE")
	if configFile == "" {
		configFile = "lurebox.yaml"
	}

	if err := LoadFromFile(configFile); err != nil {
		log.Printf("Failed to load config file %s: %v, using defaults", configFile, err)
	}

	// Apply environment variable overrides (highest priority)
	ApplyEnvOverrides()
}

func LoadDefault() {
	config := defaultConfig
	_loaded = &config
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults
	cfg := defaultConfig

	// Merge YAML values over defaults
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	_loaded = &cfg
	return nil
}

// set sane defaults for all of the config options. when loading the config from
// the file, any options that are not set will be set to these defaults.
var defaultConfig = Config{
	Common: Common{
		Log: logConfig{
			Level:  "info",
			Format: "json",
		},
		Http: httpConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			MaxRequestSize: 1048576,
		},
		Auth: authConfig{
			APIKey: "dev-secret-key", // Default key for development
		},
		Redis: redisConfig{
			Host:       "localhost",
			Port:       6379,
			Password:   "",
			Database:   0,
			KeyPrefix:  "session:",
			SessionTTL: 1800,
		},
		Postgres: postgresConfig{
			postgresConfigCommon: postgresConfigCommon{
				User:               "postgres",
				Password:           "postgres",
				Host:               "localhost",
				Port:               5432,
				Database:           "lurebox",
				SchemaName:         "public",
				ReadTimeout:        30,
				WriteTimeout:       30,
				MaxOpenConnections: 10,
			},
			Enabled: false,
		},
		Oracle: oracleConfig{
			BaseURL:         "https://api.openai.com/v1",
			APIKey:          "",
			Model:           "gpt-4o-mini",
			MaxOutputTokens: 120,
			TimeoutSeconds:  30,
			Retries:         3,
			BackoffBase:     1.5,
			BackoffMax:      10.0,
		},
		Gate: gateConfig{
			ModelPath: "",
			Threshold: 0.5,
		},
		Engage: engageConfig{
			MaxReplyChars: 280,
			TurnCeiling:   10,
			StopMinTurns:  8,
			HistoryTail:   2,
			HistoryCap:    50,
		},
		Callback: callbackConfig{
			URL:            "",
			TimeoutSeconds: 5,
			Attempts:       3,
			QueueSize:      64,
		},
	},
}

type Common struct {
	Log      logConfig      `yaml:"log"`
	Http     httpConfig     `yaml:"http"`
	Auth     authConfig     `yaml:"auth"`
	Redis    redisConfig    `yaml:"redis"`
	Postgres postgresConfig `yaml:"postgres"`
	Oracle   oracleConfig   `yaml:"oracle"`
	Gate     gateConfig     `yaml:"gate"`
	Engage   engageConfig   `yaml:"engage"`
	Callback callbackConfig `yaml:"callback"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type httpConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxRequestSize int64  `yaml:"max_request_size"`
}

type authConfig struct {
	APIKey string `yaml:"api_key"` // Key expected in the x-api-key header
}

type redisConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Password   string `yaml:"password"`
	Database   int    `yaml:"database"`
	KeyPrefix  string `yaml:"key_prefix"`
	SessionTTL int    `yaml:"session_ttl"` // Seconds of inactivity before a session expires
}

func (c redisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c redisConfig) TTL() time.Duration {
	return time.Duration(c.SessionTTL) * time.Second
}

type postgresConfigCommon struct {
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Database           string `yaml:"database"`
	SchemaName         string `yaml:"schema_name"`
	ReadTimeout        int    `yaml:"read_timeout"`
	WriteTimeout       int    `yaml:"write_timeout"`
	MaxOpenConnections int    `yaml:"max_open_connections"`
}

func (c postgresConfigCommon) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		url.QueryEscape(c.Database),
	)
}

type postgresConfig struct {
	postgresConfigCommon `yaml:",inline"`

	Enabled bool `yaml:"enabled"` // Report archive is optional; delivery works without it
}

type oracleConfig struct {
	BaseURL         string  `yaml:"base_url"`
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	Retries         int     `yaml:"retries"`
	BackoffBase     float64 `yaml:"backoff_base"` // Seconds
	BackoffMax      float64 `yaml:"backoff_max"`  // Seconds
}

func (c oracleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c oracleConfig) BackoffBaseDuration() time.Duration {
	return time.Duration(c.BackoffBase * float64(time.Second))
}

func (c oracleConfig) BackoffMaxDuration() time.Duration {
	return time.Duration(c.BackoffMax * float64(time.Second))
}

type gateConfig struct {
	ModelPath string  `yaml:"model_path"` // Path to the ONNX scam classifier; empty disables ML gating
	Threshold float64 `yaml:"threshold"`
}

type engageConfig struct {
	MaxReplyChars int `yaml:"max_reply_chars"`
	TurnCeiling   int `yaml:"turn_ceiling"`
	StopMinTurns  int `yaml:"stop_min_turns"`
	HistoryTail   int `yaml:"history_tail"`
	HistoryCap    int `yaml:"history_cap"`
}

type callbackConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Attempts       int    `yaml:"attempts"`
	QueueSize      int    `yaml:"queue_size"`
}

func (c callbackConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// there should be a getter for each top level field in the config struct.
// these getters will panic if the config has not been loaded.

func Logger() logConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Log
}

func Http() httpConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Http
}

func Auth() authConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Auth
}

func Redis() redisConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Redis
}

func Postgres() postgresConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Postgres
}

func Oracle() oracleConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Oracle
}

func Gate() gateConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Gate
}

func Engage() engageConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Engage
}

func Callback() callbackConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Callback
}

func Get() *Config {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded
}

func ApplyEnvOverrides() {
	if _loaded == nil {
		return
	}

	// Override with environment variables if present
	if redisHost := os.Getenv("LUREBOX_REDIS_HOST"); redisHost != "" {
		_loaded.Common.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("LUREBOX_REDIS_PORT"); redisPort != "" {
		if port, err := strconv.Atoi(redisPort); err == nil {
			_loaded.Common.Redis.Port = port
		}
	}
	if redisPassword := os.Getenv("LUREBOX_REDIS_PASSWORD"); redisPassword != "" {
		_loaded.Common.Redis.Password = redisPassword
	}
	if ttl := os.Getenv("LUREBOX_SESSION_TTL_SECONDS"); ttl != "" {
		if seconds, err := strconv.Atoi(ttl); err == nil {
			_loaded.Common.Redis.SessionTTL = seconds
		}
	}

	if dbHost := os.Getenv("LUREBOX_DB_HOST"); dbHost != "" {
		_loaded.Common.Postgres.Host = dbHost
		_loaded.Common.Postgres.Enabled = true
	}
	if dbPort := os.Getenv("LUREBOX_DB_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			_loaded.Common.Postgres.Port = port
		}
	}
	if dbUser := os.Getenv("LUREBOX_DB_USER"); dbUser != "" {
		_loaded.Common.Postgres.User = dbUser
	}
	if dbPassword := os.Getenv("LUREBOX_DB_PASSWORD"); dbPassword != "" {
		_loaded.Common.Postgres.Password = dbPassword
	}
	if dbName := os.Getenv("LUREBOX_DB_NAME"); dbName != "" {
		_loaded.Common.Postgres.Database = dbName
	}

	if httpHost := os.Getenv("LUREBOX_HTTP_HOST"); httpHost != "" {
		_loaded.Common.Http.Host = httpHost
	}
	if httpPort := os.Getenv("LUREBOX_HTTP_PORT"); httpPort != "" {
		if port, err := strconv.Atoi(httpPort); err == nil {
			_loaded.Common.Http.Port = port
		}
	}

	if apiKey := os.Getenv("LUREBOX_API_KEY"); apiKey != "" {
		_loaded.Common.Auth.APIKey = apiKey
	}

	if oracleKey := os.Getenv("LUREBOX_ORACLE_API_KEY"); oracleKey != "" {
		_loaded.Common.Oracle.APIKey = oracleKey
	}
	if oracleURL := os.Getenv("LUREBOX_ORACLE_BASE_URL"); oracleURL != "" {
		_loaded.Common.Oracle.BaseURL = oracleURL
	}
	if oracleModel := os.Getenv("LUREBOX_ORACLE_MODEL"); oracleModel != "" {
		_loaded.Common.Oracle.Model = oracleModel
	}
	if maxTokens := os.Getenv("LUREBOX_ORACLE_MAX_OUTPUT_TOKENS"); maxTokens != "" {
		if n, err := strconv.Atoi(maxTokens); err == nil {
			_loaded.Common.Oracle.MaxOutputTokens = n
		}
	}

	if modelPath := os.Getenv("LUREBOX_GATE_MODEL_PATH"); modelPath != "" {
		_loaded.Common.Gate.ModelPath = modelPath
	}

	if maxReply := os.Getenv("LUREBOX_MAX_REPLY_CHARS"); maxReply != "" {
		if n, err := strconv.Atoi(maxReply); err == nil {
			_loaded.Common.Engage.MaxReplyChars = n
		}
	}
	if ceiling := os.Getenv("LUREBOX_TURN_CEILING"); ceiling != "" {
		if n, err := strconv.Atoi(ceiling); err == nil {
			_loaded.Common.Engage.TurnCeiling = n
		}
	}

	if callbackURL := os.Getenv("LUREBOX_CALLBACK_URL"); callbackURL != "" {
		_loaded.Common.Callback.URL = callbackURL
	}
}
