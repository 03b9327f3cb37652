package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config holds all pipeline configuration. Constructed once at startup and
// injected downward; deeper layers never read the environment themselves.
type Config struct {
	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Repository manager configuration
	Repo RepoConfig `yaml:"repo"`

	// Indexer configuration
	Index IndexConfig `yaml:"index"`

	// Branch analyzer configuration
	Analyzer AnalyzerConfig `yaml:"analyzer"`

	// Comparator configuration
	Compare CompareConfig `yaml:"compare"`

	// Debug enables verbose logging
	Debug bool `yaml:"debug"`
}

type CacheConfig struct {
	RedisHost     string `yaml:"redis_host"`
	RedisPort     int    `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`

	// Bound on the in-process tier
	MemoryMaxEntries int `yaml:"memory_max_entries"`

	// Payloads above this many bytes are compressed before storage
	CompressionThreshold int `yaml:"compression_threshold"`

	ReadTimeout time.Duration `yaml:"read_timeout"`

	// Per-kind TTL overrides; zero means the built-in default
	ToolResultTTL     time.Duration `yaml:"tool_result_ttl"`
	BranchAnalysisTTL time.Duration `yaml:"branch_analysis_ttl"`
	ComparisonTTL     time.Duration `yaml:"comparison_ttl"`
	FileContentTTL    time.Duration `yaml:"file_content_ttl"`
	RepoMetadataTTL   time.Duration `yaml:"repo_metadata_ttl"`
}

type RepoConfig struct {
	// Base directory for temporary working trees; empty means os.TempDir()
	TempBaseDir string `yaml:"temp_base_dir"`

	CloneTimeout time.Duration `yaml:"clone_timeout"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	ShallowDepth int           `yaml:"shallow_depth"`
}

type IndexConfig struct {
	// Files above this many bytes are skipped
	MaxFileSize int64 `yaml:"max_file_size"`

	// Inline file content is retained for files at or below this size
	InlineContentLimit int64 `yaml:"inline_content_limit"`

	// Build both branch indices sequentially instead of in parallel
	Sequential bool `yaml:"sequential"`
}

type AnalyzerConfig struct {
	// Worker-pool fan-out for tool execution; zero means NumCPU
	MaxConcurrentTools int `yaml:"max_concurrent_tools"`

	// Default per-tool invocation timeout
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// Cap on tool subprocess launches per second
	LaunchRate float64 `yaml:"launch_rate"`

	// Per-severity contribution to the criticality score; unset severities
	// keep their built-in weight
	SeverityWeights map[string]float64 `yaml:"severity_weights"`
}

type CompareConfig struct {
	// Minimum match confidence for a PR issue to count as unchanged
	MatchThreshold int `yaml:"match_threshold"`

	// Include unchanged issues in the comparison result
	IncludeUnchanged bool `yaml:"include_unchanged"`
}

// Load reads configuration from file (if present) and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("diffsight")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.diffsight")
		}
		// Missing config file is fine; defaults plus env apply
		_ = v.ReadInConfig()
	}

	v.SetEnvPrefix("DIFFSIGHT")
	v.AutomaticEnv()

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with no file or env applied
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			RedisHost:            "localhost",
			RedisPort:            6379,
			MemoryMaxEntries:     100,
			CompressionThreshold: 10 * 1024,
			ReadTimeout:          time.Second,
			ToolResultTTL:        7 * 24 * time.Hour,
			BranchAnalysisTTL:    time.Hour,
			ComparisonTTL:        5 * time.Minute,
			FileContentTTL:       24 * time.Hour,
			RepoMetadataTTL:      12 * time.Hour,
		},
		Repo: RepoConfig{
			CloneTimeout: 5 * time.Minute,
			FetchTimeout: time.Minute,
			ShallowDepth: 1,
		},
		Index: IndexConfig{
			MaxFileSize:        1024 * 1024,
			InlineContentLimit: 16 * 1024,
		},
		Analyzer: AnalyzerConfig{
			MaxConcurrentTools: runtime.NumCPU(),
			ToolTimeout:        60 * time.Second,
			LaunchRate:         20,
			SeverityWeights: map[string]float64{
				"critical": 10,
				"high":     5,
				"medium":   2,
				"low":      1,
				"info":     0.5,
			},
		},
		Compare: CompareConfig{
			MatchThreshold:   60,
			IncludeUnchanged: true,
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.redis_host", "localhost")
	v.SetDefault("cache.redis_port", 6379)
	v.SetDefault("cache.memory_max_entries", 100)
	v.SetDefault("cache.compression_threshold", 10*1024)
	v.SetDefault("analyzer.max_concurrent_tools", runtime.NumCPU())
	v.SetDefault("analyzer.tool_timeout", "60s")
	v.SetDefault("compare.match_threshold", 60)
	v.SetDefault("compare.include_unchanged", true)
}

// applyEnvOverrides maps the documented environment variables onto the config.
// These mirror the .env.example entries.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Cache.RedisHost = host
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Cache.RedisPassword = pw
	}
	if dir := os.Getenv("DIFFSIGHT_TEMP_DIR"); dir != "" {
		cfg.Repo.TempBaseDir = dir
	}
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Cache.MemoryMaxEntries <= 0 {
		return fmt.Errorf("cache.memory_max_entries must be positive, got %d", c.Cache.MemoryMaxEntries)
	}
	if c.Analyzer.MaxConcurrentTools <= 0 {
		return fmt.Errorf("analyzer.max_concurrent_tools must be positive, got %d", c.Analyzer.MaxConcurrentTools)
	}
	if c.Analyzer.ToolTimeout > 5*time.Minute {
		return fmt.Errorf("analyzer.tool_timeout must not exceed 5m, got %s", c.Analyzer.ToolTimeout)
	}
	for sev, w := range c.Analyzer.SeverityWeights {
		if w < 0 {
			return fmt.Errorf("analyzer.severity_weights.%s must not be negative, got %g", sev, w)
		}
	}
	if c.Compare.MatchThreshold < 0 || c.Compare.MatchThreshold > 100 {
		return fmt.Errorf("compare.match_threshold must be in [0,100], got %d", c.Compare.MatchThreshold)
	}
	if c.Index.MaxFileSize <= 0 {
		return fmt.Errorf("index.max_file_size must be positive, got %d", c.Index.MaxFileSize)
	}
	return nil
}
