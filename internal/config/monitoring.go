// Monitoring configuration - logging settings.
//
// DESIGN: Logging goes through zerolog. Extensions get child loggers tagged
// with their ID, so one level and one sink cover the host and every extension.
package config

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console (empty = pick by terminal)
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path
}
