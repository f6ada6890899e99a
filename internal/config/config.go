// Package config loads the geoquery CLI configuration from YAML or JSON
// files and GEOQUERY_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hugr-lab/geoquery"
	"github.com/hugr-lab/geoquery/cursor"
	"github.com/hugr-lab/geoquery/geometry"
	"github.com/hugr-lab/geoquery/query"
)

// Backend names the engine a command talks to.
type Backend string

const (
	BackendBigQuery Backend = "bigquery"
	BackendDuckDB   Backend = "duckdb"
	BackendFlight   Backend = "flight"
)

// Config is the complete CLI configuration.
type Config struct {
	Backend Backend `json:"backend" yaml:"backend"`

	// Mode is expression or streaming (also STANDARD_QUERY_API/STORAGE_API).
	Mode string `json:"mode" yaml:"mode"`

	LogLevel string `json:"log_level" yaml:"log_level"`

	BigQuery BigQueryConfig `json:"bigquery" yaml:"bigquery"`

	DuckDB DuckDBConfig `json:"duckdb" yaml:"duckdb"`

	Flight FlightConfig `json:"flight" yaml:"flight"`

	Scan ScanConfig `json:"scan" yaml:"scan"`
}

type BigQueryConfig struct {
	Project string `json:"project" yaml:"project"`

	Dataset string `json:"dataset" yaml:"dataset"`

	Location string `json:"location" yaml:"location"`

	JobTimeout time.Duration `json:"job_timeout" yaml:"job_timeout"`

	UseQueryCache bool `json:"use_query_cache" yaml:"use_query_cache"`

	PageSize int `json:"page_size" yaml:"page_size"`

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

type DuckDBConfig struct {
	// Path is the database file. Empty opens an in-memory database.
	Path string `json:"path" yaml:"path"`

	LoadSpatial bool `json:"load_spatial" yaml:"load_spatial"`

	BatchSize int `json:"batch_size" yaml:"batch_size"`

	GeometryField string `json:"geometry_field" yaml:"geometry_field"`
}

type FlightConfig struct {
	// Address is the read-session server the flight backend dials.
	Address string `json:"address" yaml:"address"`

	// Listen is the address the serve command binds.
	Listen string `json:"listen" yaml:"listen"`

	// MetricsAddr serves /metrics when set.
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`

	MaxMessageSize int `json:"max_message_size" yaml:"max_message_size"`
}

type ScanConfig struct {
	Simplify bool `json:"simplify" yaml:"simplify"`

	ToleranceMode string `json:"tolerance_mode" yaml:"tolerance_mode"`

	PixelSpan int `json:"pixel_span" yaml:"pixel_span"`

	AutoPartitionFilter bool `json:"auto_partition_filter" yaml:"auto_partition_filter"`

	RowLimit int `json:"row_limit" yaml:"row_limit"`

	// GeometryErrors is abort or skip.
	GeometryErrors string `json:"geometry_errors" yaml:"geometry_errors"`

	EscapeStrings bool `json:"escape_strings" yaml:"escape_strings"`

	// Pregenerate is none, use_existing or all.
	Pregenerate string `json:"pregenerate" yaml:"pregenerate"`
}

var (
	projectPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	datasetPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Backend:  BackendBigQuery,
		Mode:     "expression",
		LogLevel: "info",
		BigQuery: BigQueryConfig{
			JobTimeout: 30 * time.Second,
			PageSize:   1000,
		},
		DuckDB: DuckDBConfig{
			LoadSpatial: true,
			BatchSize:   1024,
		},
		Flight: FlightConfig{
			Address:        "localhost:50051",
			Listen:         "localhost:50051",
			MaxMessageSize: 16 * 1024 * 1024,
		},
		Scan: ScanConfig{
			ToleranceMode:  "ladder",
			PixelSpan:      geometry.DefaultPixelSpan,
			GeometryErrors: "abort",
			Pregenerate:    "none",
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendBigQuery, BackendDuckDB, BackendFlight:
	default:
		return fmt.Errorf("invalid backend: %s (must be bigquery, duckdb, or flight)", c.Backend)
	}

	mode, err := query.ParseMode(c.Mode)
	if err != nil {
		return err
	}

	if c.Backend == BackendBigQuery {
		if !projectPattern.MatchString(c.BigQuery.Project) {
			return fmt.Errorf("bigquery.project %q must match %s", c.BigQuery.Project, projectPattern)
		}
		if c.BigQuery.Dataset != "" && !datasetPattern.MatchString(c.BigQuery.Dataset) {
			return fmt.Errorf("bigquery.dataset %q must match %s", c.BigQuery.Dataset, datasetPattern)
		}
		if c.BigQuery.JobTimeout <= 0 {
			return fmt.Errorf("bigquery.job_timeout must be positive, got %s", c.BigQuery.JobTimeout)
		}
	}

	if mode == query.ModeStreaming {
		if c.Scan.Simplify {
			return fmt.Errorf("scan.simplify is not available in streaming mode")
		}
		if c.BigQuery.UseQueryCache {
			return fmt.Errorf("bigquery.use_query_cache is not available in streaming mode")
		}
	}

	if c.Backend == BackendFlight && mode != query.ModeStreaming {
		return fmt.Errorf("flight backend requires streaming mode")
	}
	if c.Backend == BackendDuckDB && mode != query.ModeExpression {
		return fmt.Errorf("duckdb backend requires expression mode")
	}

	if c.Scan.RowLimit < 0 {
		return fmt.Errorf("scan.row_limit must not be negative, got %d", c.Scan.RowLimit)
	}
	if c.Scan.PixelSpan < 0 {
		return fmt.Errorf("scan.pixel_span must not be negative, got %d", c.Scan.PixelSpan)
	}
	if _, ok := geometry.ParseToleranceMode(c.Scan.ToleranceMode); !ok {
		return fmt.Errorf("invalid scan.tolerance_mode: %s (must be ladder or continuous)", c.Scan.ToleranceMode)
	}
	if _, err := cursor.ParsePolicy(c.Scan.GeometryErrors); err != nil {
		return err
	}
	if _, err := geoquery.ParsePregenerateMode(c.Scan.Pregenerate); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ScannerConfig converts the scan section into a geoquery.Config.
// Call Validate first.
func (c *Config) ScannerConfig(logger *slog.Logger) (geoquery.Config, error) {
	mode, err := query.ParseMode(c.Mode)
	if err != nil {
		return geoquery.Config{}, err
	}
	policy, err := cursor.ParsePolicy(c.Scan.GeometryErrors)
	if err != nil {
		return geoquery.Config{}, err
	}
	pregen, err := geoquery.ParsePregenerateMode(c.Scan.Pregenerate)
	if err != nil {
		return geoquery.Config{}, err
	}
	tolMode, _ := geometry.ParseToleranceMode(c.Scan.ToleranceMode)

	return geoquery.Config{
		Mode:                mode,
		Simplify:            c.Scan.Simplify,
		ToleranceMode:       tolMode,
		PixelSpan:           c.Scan.PixelSpan,
		AutoPartitionFilter: c.Scan.AutoPartitionFilter,
		RowLimit:            c.Scan.RowLimit,
		GeometryErrors:      policy,
		EscapeStrings:       c.Scan.EscapeStrings,
		Pregenerate:         pregen,
		Logger:              logger,
	}, nil
}

// Logger builds a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level: %s", s)
	}
	return level, nil
}

// LoadFromFile reads a YAML or JSON file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides cfg with GEOQUERY_* variables. Malformed numbers
// and durations are ignored.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("GEOQUERY_BACKEND"); v != "" {
		cfg.Backend = Backend(v)
	}
	if v := os.Getenv("GEOQUERY_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("GEOQUERY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("GEOQUERY_BIGQUERY_PROJECT"); v != "" {
		cfg.BigQuery.Project = v
	}
	if v := os.Getenv("GEOQUERY_BIGQUERY_DATASET"); v != "" {
		cfg.BigQuery.Dataset = v
	}
	if v := os.Getenv("GEOQUERY_BIGQUERY_LOCATION"); v != "" {
		cfg.BigQuery.Location = v
	}
	if v := os.Getenv("GEOQUERY_BIGQUERY_JOB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BigQuery.JobTimeout = d
		}
	}
	if v := os.Getenv("GEOQUERY_BIGQUERY_USE_QUERY_CACHE"); v != "" {
		cfg.BigQuery.UseQueryCache = envBool(v)
	}
	if v := os.Getenv("GEOQUERY_BIGQUERY_CREDENTIALS_FILE"); v != "" {
		cfg.BigQuery.CredentialsFile = v
	}

	if v := os.Getenv("GEOQUERY_DUCKDB_PATH"); v != "" {
		cfg.DuckDB.Path = v
	}
	if v := os.Getenv("GEOQUERY_DUCKDB_LOAD_SPATIAL"); v != "" {
		cfg.DuckDB.LoadSpatial = envBool(v)
	}

	if v := os.Getenv("GEOQUERY_FLIGHT_ADDRESS"); v != "" {
		cfg.Flight.Address = v
	}
	if v := os.Getenv("GEOQUERY_FLIGHT_LISTEN"); v != "" {
		cfg.Flight.Listen = v
	}
	if v := os.Getenv("GEOQUERY_FLIGHT_METRICS_ADDR"); v != "" {
		cfg.Flight.MetricsAddr = v
	}

	if v := os.Getenv("GEOQUERY_SCAN_SIMPLIFY"); v != "" {
		cfg.Scan.Simplify = envBool(v)
	}
	if v := os.Getenv("GEOQUERY_SCAN_AUTO_PARTITION_FILTER"); v != "" {
		cfg.Scan.AutoPartitionFilter = envBool(v)
	}
	if v := os.Getenv("GEOQUERY_SCAN_ROW_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scan.RowLimit = n
		}
	}
	if v := os.Getenv("GEOQUERY_SCAN_GEOMETRY_ERRORS"); v != "" {
		cfg.Scan.GeometryErrors = v
	}
	if v := os.Getenv("GEOQUERY_SCAN_PREGENERATE"); v != "" {
		cfg.Scan.Pregenerate = v
	}
}

func envBool(v string) bool {
	return v == "true" || v == "1"
}
