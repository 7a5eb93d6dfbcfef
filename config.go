package curlfuzz

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all campaign configuration. It doesn't change once the worker pool is running.
type Config struct {
	ProcessCount      int           `mapstructure:"processes" validate:"min=1"`
	ThreadsPerProcess int           `mapstructure:"threads" validate:"min=1"`
	StrongFuzz        bool          `mapstructure:"strong"`
	Secure            bool          `mapstructure:"secure"`
	ProbeCount        int           `mapstructure:"probes" validate:"min=1"`
	PollInterval      time.Duration `mapstructure:"poll_interval" validate:"gt=0,lte=100ms"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RateLimit         float64       `mapstructure:"rate" validate:"gte=0"`
	ProgressEvery     int           `mapstructure:"progress_every" validate:"gte=0"`
	Wordlist          string        `mapstructure:"wordlist"`
	PayloadDir        string        `mapstructure:"payload_dir"`
	InProcess         bool          `mapstructure:"in_process"`
	ReportBuffer      int           `mapstructure:"report_buffer" validate:"min=1"`
	Debug             bool          `mapstructure:"debug"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		ProcessCount:      5,
		ThreadsPerProcess: 10,
		StrongFuzz:        true,
		ProbeCount:        DefaultProbeCount,
		PollInterval:      100 * time.Millisecond,
		Timeout:           10 * time.Second,
		ProgressEvery:     500,
		ReportBuffer:      DefaultReportBuffer,
	}
}

var validate = validator.New()

// Validate checks the configuration's bounds.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig layers an optional YAML file and CURLFUZZ_* environment variables over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	defaults := DefaultConfig()
	v := viper.New()
	v.SetDefault("processes", defaults.ProcessCount)
	v.SetDefault("threads", defaults.ThreadsPerProcess)
	v.SetDefault("strong", defaults.StrongFuzz)
	v.SetDefault("secure", defaults.Secure)
	v.SetDefault("probes", defaults.ProbeCount)
	v.SetDefault("poll_interval", defaults.PollInterval)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("rate", defaults.RateLimit)
	v.SetDefault("progress_every", defaults.ProgressEvery)
	v.SetDefault("wordlist", defaults.Wordlist)
	v.SetDefault("payload_dir", defaults.PayloadDir)
	v.SetDefault("in_process", defaults.InProcess)
	v.SetDefault("report_buffer", defaults.ReportBuffer)
	v.SetDefault("debug", defaults.Debug)

	v.SetEnvPrefix("curlfuzz")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return config, nil
}

// LoadPayloads returns the payload dictionary from the configured wordlist and payload directory.
// It returns nil when neither is set, which means the built in payloads.
func (c *Config) LoadPayloads() ([]string, error) {
	var payloads []string
	if c.Wordlist != "" {
		file, err := os.Open(c.Wordlist)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		words, err := (&Wordlist{File: file}).Payloads()
		if err != nil {
			return nil, fmt.Errorf("reading wordlist %s: %w", c.Wordlist, err)
		}
		payloads = append(payloads, words...)
	}

	if c.PayloadDir != "" {
		files, err := PayloadsFromDirectory(c.PayloadDir)
		if err != nil {
			return nil, fmt.Errorf("reading payload directory %s: %w", c.PayloadDir, err)
		}
		payloads = append(payloads, files...)
	}
	return payloads, nil
}
