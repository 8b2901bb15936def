// Package config loads VM tuning knobs from an optional YAML file with an
// environment-variable overlay, the one ambient concern spec.md's teacher
// never needed (its CLI takes only flags).
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Config holds the knobs internal/maincmd's run command passes to vm.New.
type Config struct {
	IOWorkers int  `yaml:"io_workers" env:"ETHERC_IO_WORKERS"`
	MaxSteps  int  `yaml:"max_steps" env:"ETHERC_MAX_STEPS"`
	Stats     bool `yaml:"stats" env:"ETHERC_STATS"`
}

// Default returns the config used when no file is given and no environment
// variable overrides a field. MaxSteps 0 means unbounded.
func Default() Config {
	return Config{IOWorkers: 4, MaxSteps: 0, Stats: false}
}

// Load reads path (if non-empty) as YAML into Default()'s values, then
// applies any ETHERC_* environment overrides on top. Fields without an
// "env" tag, or whose variable isn't set, are left as the file (or default)
// left them — env.Parse only touches a field when its variable is present.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config: environment overlay: %w", err)
	}
	return cfg, nil
}
