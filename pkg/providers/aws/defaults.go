package aws

import "github.com/vuhp/cloudthrift/pkg/checks"

// CheckConfig tunes the observation windows and thresholds of the default
// checks. Zero values are replaced by Normalize.
type CheckConfig struct {
	FunctionIdleDays int     `mapstructure:"function_idle_days"`
	TableIdleDays    int     `mapstructure:"table_idle_days"`
	CacheIdleDays    int     `mapstructure:"cache_idle_days"`
	CacheCPUPercent  float64 `mapstructure:"cache_cpu_percent"`
	MultipartAgeDays int     `mapstructure:"multipart_age_days"`
}

// DefaultCheckConfig returns the stock thresholds.
func DefaultCheckConfig() CheckConfig {
	return CheckConfig{
		FunctionIdleDays: 30,
		TableIdleDays:    14,
		CacheIdleDays:    7,
		CacheCPUPercent:  5.0,
		MultipartAgeDays: 7,
	}
}

// Normalize fills unset fields with stock values so a partial config file
// cannot produce a zero-length observation window.
func (c CheckConfig) Normalize() CheckConfig {
	def := DefaultCheckConfig()
	if c.FunctionIdleDays <= 0 {
		c.FunctionIdleDays = def.FunctionIdleDays
	}
	if c.TableIdleDays <= 0 {
		c.TableIdleDays = def.TableIdleDays
	}
	if c.CacheIdleDays <= 0 {
		c.CacheIdleDays = def.CacheIdleDays
	}
	if c.CacheCPUPercent <= 0 {
		c.CacheCPUPercent = def.CacheCPUPercent
	}
	if c.MultipartAgeDays <= 0 {
		c.MultipartAgeDays = def.MultipartAgeDays
	}
	return c
}

// DefaultChecks returns the stock check set. Order is meaningful: scan
// results keep this order regardless of which check finishes first.
func DefaultChecks(cfg CheckConfig) []checks.Check {
	cfg = cfg.Normalize()
	return []checks.Check{
		NewStoppedInstances(),
		NewUnattachedVolumes(),
		NewUnassociatedIPs(),
		NewStoppedDatabases(),
		NewStaleMultipartUploads(cfg.MultipartAgeDays),
		NewIdleFunctions(cfg.FunctionIdleDays),
		NewIdleCacheClusters(cfg.CacheIdleDays, cfg.CacheCPUPercent),
		NewIdleProvisionedTables(cfg.TableIdleDays),
	}
}
