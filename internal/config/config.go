package config

import (
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/autopress/autopress/pkg/logger"
)

type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Logger    logger.Config             `yaml:"logger"`
	Planner   PlannerConfig             `yaml:"planner"`
	Dedup     DedupConfig               `yaml:"dedup"`
	Retry     RetryConfig               `yaml:"retry"`
	Executor  ExecutorConfig            `yaml:"executor"`
	Stats     StatsConfig               `yaml:"stats"`
	Platforms map[string]PlatformConfig `yaml:"platforms"`
}

type ServerConfig struct {
	Port       int    `yaml:"port"`
	Host       string `yaml:"host"`
	Mode       string `yaml:"mode"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	TOTPSecret string `yaml:"totp_secret"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

// PlannerConfig drives the daily planning cycle.
type PlannerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Cron              string        `yaml:"cron"`
	DailyCount        int           `yaml:"daily_count"`
	Lang              string        `yaml:"lang"`
	CandidateAttempts int           `yaml:"candidate_attempts"`
	KeywordCooldown   time.Duration `yaml:"keyword_cooldown"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	RunBudget         time.Duration `yaml:"run_budget"`
	EnrichEnabled     bool          `yaml:"enrich_enabled"`
	EnrichGroupSize   int           `yaml:"enrich_group_size"`
}

type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TitleWindowDays     int     `yaml:"title_window_days"`
	HammingThreshold    int     `yaml:"hamming_threshold"`
	RecentLimit         int     `yaml:"recent_limit"`
}

type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
}

// ExecutorConfig controls the job handoff between planner and executor.
type ExecutorConfig struct {
	Mode          string        `yaml:"mode"`
	WorkDir       string        `yaml:"work_dir"`
	SigningKey    string        `yaml:"signing_key"`
	ResultTimeout time.Duration `yaml:"result_timeout"`
}

type StatsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// PlatformConfig describes one delivery target and its credentials.
type PlatformConfig struct {
	Enabled     bool              `yaml:"enabled"`
	OutputDir   string            `yaml:"output_dir"`
	Credentials map[string]string `yaml:"credentials"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset fields with sane defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5335
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Planner.Cron == "" {
		cfg.Planner.Cron = "0 9 * * *"
	}
	if cfg.Planner.DailyCount == 0 {
		cfg.Planner.DailyCount = 3
	}
	if cfg.Planner.Lang == "" {
		cfg.Planner.Lang = "zh"
	}
	if cfg.Planner.CandidateAttempts == 0 {
		cfg.Planner.CandidateAttempts = 3 * cfg.Planner.DailyCount
	}
	if cfg.Planner.KeywordCooldown == 0 {
		cfg.Planner.KeywordCooldown = 30 * 24 * time.Hour
	}
	if cfg.Planner.RunBudget == 0 {
		cfg.Planner.RunBudget = 2 * time.Hour
	}
	if cfg.Planner.LockTTL == 0 {
		// abandoned locks should outlive a healthy run, not much more
		cfg.Planner.LockTTL = cfg.Planner.RunBudget
	}
	if cfg.Planner.EnrichGroupSize == 0 {
		cfg.Planner.EnrichGroupSize = 3
	}
	if cfg.Dedup.SimilarityThreshold == 0 {
		cfg.Dedup.SimilarityThreshold = 0.85
	}
	if cfg.Dedup.TitleWindowDays == 0 {
		cfg.Dedup.TitleWindowDays = 14
	}
	if cfg.Dedup.HammingThreshold == 0 {
		cfg.Dedup.HammingThreshold = 3
	}
	if cfg.Dedup.RecentLimit == 0 {
		cfg.Dedup.RecentLimit = 200
	}
	if cfg.Retry.Interval == 0 {
		cfg.Retry.Interval = time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.BackoffBase == 0 {
		cfg.Retry.BackoffBase = time.Minute
	}
	if cfg.Retry.BackoffCap == 0 {
		cfg.Retry.BackoffCap = time.Hour
	}
	if cfg.Executor.Mode == "" {
		cfg.Executor.Mode = "local"
	}
	if cfg.Executor.WorkDir == "" {
		cfg.Executor.WorkDir = "jobs"
	}
	if cfg.Executor.ResultTimeout == 0 {
		cfg.Executor.ResultTimeout = 30 * time.Minute
	}
	if cfg.Stats.Interval == 0 {
		cfg.Stats.Interval = 15 * time.Minute
	}
}
