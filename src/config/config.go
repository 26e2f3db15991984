package config

import "time"

// Config holds settings that can live in a file instead of on the command line.
// Flags given explicitly always win.
type Config struct {
	// Provider is a target URI such as "ec2:eu-west-1" or "incus".
	Provider string `yaml:"provider"`
	// Profile is the AWS shared-config profile.
	Profile string `yaml:"profile"`
	Region  string `yaml:"region"`
	// IncusProject is the Incus project used by the incus provider.
	IncusProject string `yaml:"incusProject"`

	WaitTimeout  time.Duration `yaml:"waitTimeout"`  // e.g. 10m
	PollInterval time.Duration `yaml:"pollInterval"` // e.g. 15s

	Snapshot    SnapshotConfig `yaml:"snapshot"`
	Logging     LoggingConfig  `yaml:"logging"`
	MetricsFile string         `yaml:"metricsFile"`
}

type SnapshotConfig struct {
	Description string            `yaml:"description"`
	Tags        map[string]string `yaml:"tags"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // "info", "debug", etc.
	Format string `yaml:"format"` // "json", "text"
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Provider:     "ec2",
		Profile:      "shotty",
		WaitTimeout:  10 * time.Minute,
		PollInterval: 15 * time.Second,
		Logging:      LoggingConfig{Level: "", Format: "text"},
	}
}
