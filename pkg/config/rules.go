package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules is the optional tuning file. Zero fields keep built-in values, so a
// file can override a single threshold.
type Rules struct {
	Checks ChecksRules `yaml:"checks"`
	Rates  RatesRules  `yaml:"rates"`
}

// ChecksRules tunes detection windows and thresholds.
type ChecksRules struct {
	// FunctionIdleDays is the zero-invocation window for Lambda functions.
	FunctionIdleDays int `yaml:"function_idle_days"`
	// TableIdleDays is the zero-consumption window for DynamoDB tables.
	TableIdleDays int `yaml:"table_idle_days"`
	// CacheIdleDays is the low-CPU window for ElastiCache clusters.
	CacheIdleDays int `yaml:"cache_idle_days"`
	// CacheCPUPercent is the peak CPU below which a cluster counts as idle.
	CacheCPUPercent float64 `yaml:"cache_cpu_percent"`
	// MultipartAgeDays is the minimum age of a stale multipart upload.
	MultipartAgeDays int `yaml:"multipart_age_days"`
}

// RatesRules overrides entries of the static price tables.
type RatesRules struct {
	// EBS maps volume types to per GB-month cost.
	EBS map[string]float64 `yaml:"ebs"`
	// CacheNodes maps ElastiCache node types to hourly cost.
	CacheNodes map[string]float64 `yaml:"cache_nodes"`
}

// LoadRules parses a rules file. A missing path returns zero Rules without
// error so the default config file location is optional.
func LoadRules(path string) (Rules, error) {
	var rules Rules
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rules, nil
		}
		return rules, fmt.Errorf("failed to read rules file: %w", err)
	}

	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return rules, nil
}
