package config

// Definition is the raw configuration as read from the config file and
// environment. Durations are kept as strings and parsed in buildConfig.
type Definition struct {
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"logFormat"`
	LogFile   string `mapstructure:"logFile"`
	EnvFile   string `mapstructure:"envFile"`

	Platform   PlatformDef   `mapstructure:"platform"`
	Scheduler  SchedulerDef  `mapstructure:"scheduler"`
	Checkpoint CheckpointDef `mapstructure:"checkpoint"`
	Storage    StorageDef    `mapstructure:"storage"`
	Metrics    MetricsDef    `mapstructure:"metrics"`
}

// PlatformDef configures the remote operations API client.
type PlatformDef struct {
	BaseURL         string `mapstructure:"baseURL"`
	Project         string `mapstructure:"project"`
	AccessToken     string `mapstructure:"accessToken"`
	CredentialsFile string `mapstructure:"credentialsFile"`
	Timeout         string `mapstructure:"timeout"`
	MaxRetries      int    `mapstructure:"maxRetries"`
}

// SchedulerDef holds the run defaults; command-line flags override them.
type SchedulerDef struct {
	MaxConcurrency  int    `mapstructure:"maxConcurrency"`
	PollInterval    string `mapstructure:"pollInterval"`
	MaxPollInterval string `mapstructure:"maxPollInterval"`
	Timeout         string `mapstructure:"timeout"`
	ErrorOnFail     bool   `mapstructure:"errorOnFail"`
	Verbose         int    `mapstructure:"verbose"`
}

// CheckpointDef selects and configures the resume store.
type CheckpointDef struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	RedisURL    string `mapstructure:"redisURL"`
	PostgresDSN string `mapstructure:"postgresDSN"`
	RunKey      string `mapstructure:"runKey"`
}

// StorageDef configures the S3-compatible endpoint used to probe outputs.
type StorageDef struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	Secure    bool   `mapstructure:"secure"`
	Region    string `mapstructure:"region"`
}

type MetricsDef struct {
	Addr string `mapstructure:"addr"`
}
