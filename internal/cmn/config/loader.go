package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load builds a Config using a fresh viper instance.
func Load(opts ...ConfigLoaderOption) (*Config, error) {
	cfg, err := NewConfigLoader(viper.New(), opts...).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// ConfigLoader reads and merges configuration from the config file, a .env
// file and EXPORTSCHED_* environment variables.
type ConfigLoader struct {
	v          *viper.Viper
	configFile string
	configDir  string
	warnings   []string
}

// ConfigLoaderOption defines a functional option for configuring a ConfigLoader.
type ConfigLoaderOption func(*ConfigLoader)

// WithConfigFile sets an explicit configuration file path.
func WithConfigFile(configFile string) ConfigLoaderOption {
	return func(l *ConfigLoader) {
		l.configFile = configFile
	}
}

// WithConfigDir overrides the directory searched for config.yaml.
func WithConfigDir(dir string) ConfigLoaderOption {
	return func(l *ConfigLoader) {
		l.configDir = dir
	}
}

// NewConfigLoader creates a ConfigLoader with the given viper instance and options.
func NewConfigLoader(v *viper.Viper, options ...ConfigLoaderOption) *ConfigLoader {
	loader := &ConfigLoader{v: v}
	for _, opt := range options {
		opt(loader)
	}
	return loader
}

// DefaultConfigDir is $XDG_CONFIG_HOME/exportsched.
func DefaultConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppSlug)
}

// Load reads configuration sources and returns a validated Config.
func (l *ConfigLoader) Load() (*Config, error) {
	l.configureViper()
	l.bindEnvironmentVariables()
	l.setViperDefaultValues()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	var def Definition
	if err := l.v.Unmarshal(&def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg, err := l.buildConfig(def)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	cfg.ConfigFileUsed = l.v.ConfigFileUsed()
	cfg.Warnings = l.warnings
	return cfg, nil
}

// loadEnvFile overloads the process environment from the configured .env
// file. A missing default .env next to the config file is not an error.
func (l *ConfigLoader) loadEnvFile() error {
	path := l.v.GetString("envFile")
	explicit := path != ""
	if !explicit {
		path = filepath.Join(l.dir(), ".env")
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Overload(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (l *ConfigLoader) dir() string {
	switch {
	case l.configFile != "":
		return filepath.Dir(l.configFile)
	case l.configDir != "":
		return l.configDir
	default:
		return DefaultConfigDir()
	}
}

func (l *ConfigLoader) buildConfig(def Definition) (*Config, error) {
	cfg := &Config{
		Global: Global{
			Debug:     def.Debug,
			LogFormat: strings.ToLower(def.LogFormat),
			LogFile:   def.LogFile,
		},
		Platform: Platform{
			BaseURL:         strings.TrimSuffix(def.Platform.BaseURL, "/"),
			Project:         def.Platform.Project,
			AccessToken:     def.Platform.AccessToken,
			CredentialsFile: def.Platform.CredentialsFile,
			Timeout:         l.parseDuration("platform.timeout", def.Platform.Timeout),
			MaxRetries:      def.Platform.MaxRetries,
		},
		Scheduler: Scheduler{
			MaxConcurrency:  def.Scheduler.MaxConcurrency,
			PollInterval:    l.parseDuration("scheduler.pollInterval", def.Scheduler.PollInterval),
			MaxPollInterval: l.parseDuration("scheduler.maxPollInterval", def.Scheduler.MaxPollInterval),
			Timeout:         l.parseDuration("scheduler.timeout", def.Scheduler.Timeout),
			ErrorOnFail:     def.Scheduler.ErrorOnFail,
			Verbose:         def.Scheduler.Verbose,
		},
		Checkpoint: Checkpoint{
			Backend:     strings.ToLower(def.Checkpoint.Backend),
			Dir:         def.Checkpoint.Dir,
			RedisURL:    def.Checkpoint.RedisURL,
			PostgresDSN: def.Checkpoint.PostgresDSN,
			RunKey:      def.Checkpoint.RunKey,
		},
		Storage: Storage{
			Endpoint:  def.Storage.Endpoint,
			AccessKey: def.Storage.AccessKey,
			SecretKey: def.Storage.SecretKey,
			Secure:    def.Storage.Secure,
			Region:    def.Storage.Region,
		},
		Metrics: Metrics{Addr: def.Metrics.Addr},
	}

	if cfg.Scheduler.PollInterval <= 0 {
		cfg.Scheduler.PollInterval = defaultPollInterval
	}
	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = CheckpointNone
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) parseDuration(fieldName, value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		l.warnings = append(l.warnings, fmt.Sprintf("Invalid %s value: %s", fieldName, value))
		return 0
	}
	return d
}

const defaultPollInterval = 10 * time.Second

func (l *ConfigLoader) setViperDefaultValues() {
	l.v.SetDefault("debug", false)
	l.v.SetDefault("logFormat", "text")

	l.v.SetDefault("platform.baseURL", "https://earthengine.googleapis.com")
	l.v.SetDefault("platform.timeout", "60s")
	l.v.SetDefault("platform.maxRetries", 5)

	l.v.SetDefault("scheduler.maxConcurrency", 10)
	l.v.SetDefault("scheduler.pollInterval", defaultPollInterval.String())
	l.v.SetDefault("scheduler.maxPollInterval", "2m")
	l.v.SetDefault("scheduler.errorOnFail", false)
	l.v.SetDefault("scheduler.verbose", 1)

	l.v.SetDefault("checkpoint.backend", CheckpointNone)
	l.v.SetDefault("checkpoint.dir", filepath.Join(xdg.StateHome, AppSlug, "checkpoints"))

	l.v.SetDefault("storage.endpoint", "storage.googleapis.com")
	l.v.SetDefault("storage.secure", true)
}

type envBinding struct {
	key string
	env string
}

var envBindings = []envBinding{
	{key: "debug", env: "DEBUG"},
	{key: "logFormat", env: "LOG_FORMAT"},
	{key: "logFile", env: "LOG_FILE"},
	{key: "envFile", env: "ENV_FILE"},

	{key: "platform.baseURL", env: "PLATFORM_BASE_URL"},
	{key: "platform.project", env: "PLATFORM_PROJECT"},
	{key: "platform.accessToken", env: "PLATFORM_ACCESS_TOKEN"},
	{key: "platform.credentialsFile", env: "PLATFORM_CREDENTIALS_FILE"},
	{key: "platform.timeout", env: "PLATFORM_TIMEOUT"},
	{key: "platform.maxRetries", env: "PLATFORM_MAX_RETRIES"},

	{key: "scheduler.maxConcurrency", env: "MAX_CONCURRENCY"},
	{key: "scheduler.pollInterval", env: "POLL_INTERVAL"},
	{key: "scheduler.maxPollInterval", env: "MAX_POLL_INTERVAL"},
	{key: "scheduler.timeout", env: "RUN_TIMEOUT"},
	{key: "scheduler.errorOnFail", env: "ERROR_ON_FAIL"},
	{key: "scheduler.verbose", env: "VERBOSE"},

	{key: "checkpoint.backend", env: "CHECKPOINT_BACKEND"},
	{key: "checkpoint.dir", env: "CHECKPOINT_DIR"},
	{key: "checkpoint.redisURL", env: "CHECKPOINT_REDIS_URL"},
	{key: "checkpoint.postgresDSN", env: "CHECKPOINT_POSTGRES_DSN"},
	{key: "checkpoint.runKey", env: "RUN_KEY"},

	{key: "storage.endpoint", env: "STORAGE_ENDPOINT"},
	{key: "storage.accessKey", env: "STORAGE_ACCESS_KEY"},
	{key: "storage.secretKey", env: "STORAGE_SECRET_KEY"},
	{key: "storage.secure", env: "STORAGE_SECURE"},
	{key: "storage.region", env: "STORAGE_REGION"},

	{key: "metrics.addr", env: "METRICS_ADDR"},
}

func (l *ConfigLoader) bindEnvironmentVariables() {
	prefix := strings.ToUpper(AppSlug) + "_"
	for _, b := range envBindings {
		_ = l.v.BindEnv(b.key, prefix+b.env)
	}
}

func (l *ConfigLoader) configureViper() {
	if l.configFile == "" {
		l.v.AddConfigPath(l.dir())
		l.v.SetConfigName("config")
	} else {
		l.v.SetConfigFile(l.configFile)
	}
	l.v.SetConfigType("yaml")
	l.v.SetEnvPrefix(strings.ToUpper(AppSlug))
	l.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	l.v.AutomaticEnv()
}
