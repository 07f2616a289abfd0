package config

import "path/filepath"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
	Dir    string `yaml:"dir"`    // run log and diff artifacts live here
}

// RunLogPath is the append-only JSON run log inside the log directory.
func (l LoggingConfig) RunLogPath() string {
	return filepath.Join(l.Dir, "runner.log")
}
