package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNotFound marks a missing config file. Callers that can run without
// upload/tracking (the run coordinator) degrade instead of failing.
var ErrNotFound = errors.New("config file not found")

const (
	DefaultPath           = "config.yaml"
	DefaultBranchPrefix   = "experiment"
	DefaultExperimentName = "spec-bench-evaluation"
	DefaultResultsDir     = "data/spec_bench/model_answer"
	DefaultBenchName      = "spec_bench"
	DefaultLogDir         = "logs"
	DefaultLogLevel       = "info"
)

type Config struct {
	LakeFS     LakeFS     `yaml:"lakefs"`
	MLflow     MLflow     `yaml:"mlflow"`
	Benchmark  Benchmark  `yaml:"benchmark"`
	Logging    Logging    `yaml:"logging"`
	Experiment Experiment `yaml:"experiment"`
}

type LakeFS struct {
	Endpoint     string `yaml:"endpoint"`
	Repository   string `yaml:"repository"`
	BranchPrefix string `yaml:"branch_prefix"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
}

type MLflow struct {
	TrackingURI    string `yaml:"tracking_uri"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	ExperimentName string `yaml:"experiment_name"`
}

type Benchmark struct {
	ResultsDir  string  `yaml:"results_dir"`
	BenchName   string  `yaml:"bench_name"`
	Temperature float64 `yaml:"temperature"`
}

type Logging struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

type Experiment struct {
	DefaultTags map[string]string `yaml:"default_tags"`
}

// Default is the config used when no config file exists: defaults plus
// whatever credentials the environment carries.
func Default() *Config {
	c := &Config{}
	applyDefaults(c)
	applyEnvOverrides(c)
	return c
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	applyDefaults(&c)
	applyEnvOverrides(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.LakeFS.BranchPrefix == "" {
		c.LakeFS.BranchPrefix = DefaultBranchPrefix
	}
	if c.MLflow.ExperimentName == "" {
		c.MLflow.ExperimentName = DefaultExperimentName
	}
	if c.Benchmark.ResultsDir == "" {
		c.Benchmark.ResultsDir = DefaultResultsDir
	}
	if c.Benchmark.BenchName == "" {
		c.Benchmark.BenchName = DefaultBenchName
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = DefaultLogDir
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

// applyEnvOverrides lets credentials come from the environment (typically a
// .env file) instead of being committed inside config.yaml.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("LAKEFS_ACCESS_KEY"); v != "" {
		c.LakeFS.AccessKey = v
	}
	if v := os.Getenv("LAKEFS_SECRET_KEY"); v != "" {
		c.LakeFS.SecretKey = v
	}
	if v := os.Getenv("MLFLOW_TRACKING_USERNAME"); v != "" {
		c.MLflow.Username = v
	}
	if v := os.Getenv("MLFLOW_TRACKING_PASSWORD"); v != "" {
		c.MLflow.Password = v
	}
}

// ValidateLakeFS reports whether the config carries enough to talk to the
// object store. Upload is skipped, not failed, when it does not.
func (c *Config) ValidateLakeFS() error {
	if c.LakeFS.Endpoint == "" {
		return fmt.Errorf("lakefs endpoint is empty")
	}
	if c.LakeFS.Repository == "" {
		return fmt.Errorf("lakefs repository is empty")
	}
	if c.LakeFS.AccessKey == "" || c.LakeFS.SecretKey == "" {
		return fmt.Errorf("lakefs access_key and secret_key are required")
	}
	return nil
}

func (c *Config) ValidateMLflow() error {
	if c.MLflow.TrackingURI == "" {
		return fmt.Errorf("mlflow tracking_uri is empty")
	}
	return nil
}
