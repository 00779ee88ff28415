package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for varia-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (the database password) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Analysis thresholds. The defaults mirror the documented heuristics but
	// none of them are normative: every cutoff is tunable per deployment.
	Analysis AnalysisConfig `yaml:"analysis"`

	// Ingestion limits
	Ingest IngestConfig `yaml:"ingest"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"varia"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"varia_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`

	// Pool recycling. Lifetime bounds how long any connection survives;
	// idle time reclaims connections between bursts of uploads.
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"PGMAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"PGMAX_CONN_IDLE_TIME" env-default:"30m"`

	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// AnalysisConfig exposes every numeric threshold the pipeline uses.
type AnalysisConfig struct {
	// Entity detection
	JaccardThreshold float64 `yaml:"jaccard_threshold" env:"ANALYSIS_JACCARD_THRESHOLD" env-default:"0.3"`
	// CardinalityRatioLimit is the maximum allowed ratio between two merge
	// candidates' cardinalities (within an order of magnitude by default).
	CardinalityRatioLimit float64 `yaml:"cardinality_ratio_limit" env:"ANALYSIS_CARDINALITY_RATIO_LIMIT" env-default:"10"`
	SampleLimit           int     `yaml:"sample_limit" env:"ANALYSIS_SAMPLE_LIMIT" env-default:"50"`

	// Gap direction and severity (percent thresholds are whole percents)
	DirectionTolerancePct float64 `yaml:"direction_tolerance_pct" env:"ANALYSIS_DIRECTION_TOLERANCE_PCT" env-default:"5"`
	WarningThresholdPct   float64 `yaml:"warning_threshold_pct" env:"ANALYSIS_WARNING_THRESHOLD_PCT" env-default:"10"`
	CriticalThresholdPct  float64 `yaml:"critical_threshold_pct" env:"ANALYSIS_CRITICAL_THRESHOLD_PCT" env-default:"20"`
	// Materiality is the absolute-gap value that makes a gap critical
	// regardless of percentage, and the sole grading input when plan = 0.
	Materiality float64 `yaml:"materiality" env:"ANALYSIS_MATERIALITY" env-default:"1000"`

	// Decision scoring
	DeadlineUrgencyBonus float64 `yaml:"deadline_urgency_bonus" env:"ANALYSIS_DEADLINE_URGENCY_BONUS" env-default:"0.2"`
	RelatedEntityLimit   int     `yaml:"related_entity_limit" env:"ANALYSIS_RELATED_ENTITY_LIMIT" env-default:"5"`
	SystemicGapCount     int     `yaml:"systemic_gap_count" env:"ANALYSIS_SYSTEMIC_GAP_COUNT" env-default:"3"`
}

// IngestConfig bounds what the upload endpoint accepts.
type IngestConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"INGEST_MAX_UPLOAD_BYTES" env-default:"10485760"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Analysis.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects threshold combinations that would make grading ambiguous.
func (a *AnalysisConfig) Validate() error {
	if a.JaccardThreshold <= 0 || a.JaccardThreshold > 1 {
		return fmt.Errorf("jaccard_threshold must be in (0,1], got %v", a.JaccardThreshold)
	}
	if a.CardinalityRatioLimit < 1 {
		return fmt.Errorf("cardinality_ratio_limit must be >= 1, got %v", a.CardinalityRatioLimit)
	}
	if a.WarningThresholdPct >= a.CriticalThresholdPct {
		return fmt.Errorf("warning_threshold_pct (%v) must be below critical_threshold_pct (%v)",
			a.WarningThresholdPct, a.CriticalThresholdPct)
	}
	if a.DirectionTolerancePct < 0 {
		return fmt.Errorf("direction_tolerance_pct must be non-negative, got %v", a.DirectionTolerancePct)
	}
	if a.DeadlineUrgencyBonus < 0 || a.DeadlineUrgencyBonus > 1 {
		return fmt.Errorf("deadline_urgency_bonus must be in [0,1], got %v", a.DeadlineUrgencyBonus)
	}
	return nil
}

// Defaults returns the analysis configuration with all default thresholds.
// Used by tests and by callers that run the pipeline without a config file.
func Defaults() AnalysisConfig {
	return AnalysisConfig{
		JaccardThreshold:      0.3,
		CardinalityRatioLimit: 10,
		SampleLimit:           50,
		DirectionTolerancePct: 5,
		WarningThresholdPct:   10,
		CriticalThresholdPct:  20,
		Materiality:           1000,
		DeadlineUrgencyBonus:  0.2,
		RelatedEntityLimit:    5,
		SystemicGapCount:      3,
	}
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
