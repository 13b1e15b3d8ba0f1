// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/spool/lib/intake"
	"github.com/bureau-foundation/spool/lib/storage"
	"github.com/bureau-foundation/spool/lib/upload"
)

// EnvVar names the environment variable Load reads the path from.
const EnvVar = "SPOOL_CONFIG"

// Config is the master configuration for the spool agent.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Upload     UploadConfig     `yaml:"upload"`
	Intake     IntakeConfig     `yaml:"intake"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Agent      AgentConfig      `yaml:"agent"`

	// Features lists the data streams. Each gets its own directory
	// under Storage.Directory and its own upload worker.
	Features []FeatureConfig `yaml:"features"`
}

// StorageConfig configures the on-disk batches.
type StorageConfig struct {
	// Directory is the root under which each feature keeps its
	// batch directory.
	Directory string `yaml:"directory"`

	// BatchSize picks the rotation preset: small, medium or large.
	BatchSize storage.BatchSize `yaml:"batch_size"`

	// Compress LZ4-compresses each record before encryption.
	Compress bool `yaml:"compress"`

	// Overrides replaces individual preset thresholds. Fields left
	// out keep the preset value; an explicit zero is applied as zero.
	Overrides *PerformanceOverrides `yaml:"overrides,omitempty"`
}

// PerformanceOverrides mirrors storage.Performance with every field
// optional.
type PerformanceOverrides struct {
	MaxFileSize        *int64         `yaml:"max_file_size"`
	MaxDirectorySize   *int64         `yaml:"max_directory_size"`
	MaxFileAgeForWrite *time.Duration `yaml:"max_file_age_for_write"`
	MinFileAgeForRead  *time.Duration `yaml:"min_file_age_for_read"`
	MaxFileAgeForRead  *time.Duration `yaml:"max_file_age_for_read"`
	MaxObjectsInFile   *int           `yaml:"max_objects_in_file"`
	MaxObjectSize      *int64         `yaml:"max_object_size"`

	// MinFreeDiskSpace set to 0 turns the free-space guard off.
	MinFreeDiskSpace *int64 `yaml:"min_free_disk_space"`
}

// DelayOverrides mirrors upload.DelayConfig with every field optional.
type DelayOverrides struct {
	Initial    *time.Duration `yaml:"initial"`
	Min        *time.Duration `yaml:"min"`
	Max        *time.Duration `yaml:"max"`
	ChangeRate *float64       `yaml:"change_rate"`
}

// UploadConfig configures the upload workers.
type UploadConfig struct {
	// Frequency picks the delay preset: frequent, average or rare.
	Frequency upload.Frequency `yaml:"frequency"`

	// MinBatteryLevel is the lowest charge at which a host on battery
	// still uploads.
	MinBatteryLevel float64 `yaml:"min_battery_level"`

	// RequestTimeout bounds one upload request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Overrides replaces individual bounds of the frequency preset.
	Overrides *DelayOverrides `yaml:"overrides,omitempty"`
}

// IntakeConfig configures where batches go.
type IntakeConfig struct {
	// Site selects a regional intake. Ignored when Endpoint is set.
	Site intake.Site `yaml:"site"`

	// Endpoint overrides the site, for proxies and local testing.
	Endpoint string `yaml:"endpoint"`

	// ClientTokenFile holds the client token. The file is read into
	// locked memory at startup.
	ClientTokenFile string `yaml:"client_token_file"`

	// Encoding compresses request bodies: identity, gzip, deflate
	// or zstd.
	Encoding intake.Encoding `yaml:"encoding"`

	// Source, Service, Env and Version identify the sender in every
	// request.
	Source  string `yaml:"source"`
	Service string `yaml:"service"`
	Env     string `yaml:"env"`
	Version string `yaml:"version"`
}

// EncryptionMode selects how records are sealed on disk.
type EncryptionMode string

const (
	EncryptionNone EncryptionMode = "none"
	EncryptionAEAD EncryptionMode = "aead"
	EncryptionAge  EncryptionMode = "age"
)

// EncryptionConfig configures at-rest encryption.
type EncryptionConfig struct {
	Mode EncryptionMode `yaml:"mode"`

	// KeyFile holds the hex-encoded 32-byte master key for aead mode.
	KeyFile string `yaml:"key_file"`

	// IdentityFile holds the AGE-SECRET-KEY-1 identity for age mode.
	IdentityFile string `yaml:"identity_file"`

	// Recipients are extra age1 public keys that can decrypt the
	// batches offline.
	Recipients []string `yaml:"recipients"`
}

// AgentConfig configures the agent process itself.
type AgentConfig struct {
	// StatusAddress serves /metrics, /healthz and /status. Empty
	// disables the listener.
	StatusAddress string `yaml:"status_address"`

	// QueueSize bounds each feature's write queue.
	QueueSize int `yaml:"queue_size"`
}

// FeatureConfig declares one data stream.
type FeatureConfig struct {
	// Name is the feature's directory name and its label in logs
	// and metrics.
	Name string `yaml:"name"`

	// Track is the intake path segment. Defaults to Name.
	Track string `yaml:"track"`

	// Format is ndjson or json_array.
	Format intake.Format `yaml:"format"`

	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the feature should be registered.
func (f FeatureConfig) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// IntakeTrack returns the track, defaulting to the feature name.
func (f FeatureConfig) IntakeTrack() string {
	if f.Track != "" {
		return f.Track
	}
	return f.Name
}

// Default returns the default configuration. It is the base the
// config file is decoded over, not a substitute for one.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Storage: StorageConfig{
			Directory: filepath.Join(homeDir, ".cache", "spool"),
			BatchSize: storage.BatchMedium,
		},
		Upload: UploadConfig{
			Frequency:       upload.FrequencyAverage,
			MinBatteryLevel: upload.DefaultMinBatteryLevel,
			RequestTimeout:  30 * time.Second,
		},
		Intake: IntakeConfig{
			Site:     intake.SiteUS1,
			Encoding: intake.EncodingIdentity,
			Source:   "go",
		},
		Encryption: EncryptionConfig{
			Mode: EncryptionNone,
		},
		Agent: AgentConfig{
			QueueSize: storage.DefaultQueueSize,
		},
	}
}

// Load loads configuration from the file named by SPOOL_CONFIG. There
// is no fallback when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your spool.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults and expands
// path variables. Callers should Validate the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".jsonc") {
		// JSON is a subset of YAML, so the same decoder serves both
		// once comments and trailing commas are gone.
		data = jsonc.ToJSON(data)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Storage.Directory = expandVars(c.Storage.Directory, vars)
	vars["SPOOL_ROOT"] = c.Storage.Directory

	c.Intake.Endpoint = expandVars(c.Intake.Endpoint, vars)
	c.Intake.ClientTokenFile = expandVars(c.Intake.ClientTokenFile, vars)
	c.Encryption.KeyFile = expandVars(c.Encryption.KeyFile, vars)
	c.Encryption.IdentityFile = expandVars(c.Encryption.IdentityFile, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		// Provided vars first, then the environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors and reports all of
// them at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Storage.Directory == "" {
		errs = append(errs, errors.New("storage.directory is required"))
	}
	if _, err := c.Storage.Performance(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if _, err := c.Upload.Delay(); err != nil {
		errs = append(errs, fmt.Errorf("upload: %w", err))
	}
	if err := c.Upload.Conditions().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("upload: %w", err))
	}
	if c.Upload.RequestTimeout <= 0 {
		errs = append(errs, errors.New("upload.request_timeout must be positive"))
	}

	if c.Intake.Endpoint == "" {
		if _, err := c.Intake.Site.Endpoint(); err != nil {
			errs = append(errs, fmt.Errorf("intake.site: %w", err))
		}
	}
	if c.Intake.ClientTokenFile == "" {
		errs = append(errs, errors.New("intake.client_token_file is required"))
	}

	switch c.Encryption.Mode {
	case EncryptionNone:
	case EncryptionAEAD:
		if c.Encryption.KeyFile == "" {
			errs = append(errs, errors.New("encryption.key_file is required in aead mode"))
		}
	case EncryptionAge:
		if c.Encryption.IdentityFile == "" {
			errs = append(errs, errors.New("encryption.identity_file is required in age mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("encryption.mode %q must be one of: none, aead, age", c.Encryption.Mode))
	}

	if c.Agent.QueueSize <= 0 {
		errs = append(errs, errors.New("agent.queue_size must be positive"))
	}

	if len(c.Features) == 0 {
		errs = append(errs, errors.New("at least one feature is required"))
	}
	seen := make(map[string]bool)
	for i, feature := range c.Features {
		switch {
		case feature.Name == "":
			errs = append(errs, fmt.Errorf("features[%d].name is required", i))
			continue
		case !validFeatureName.MatchString(feature.Name):
			errs = append(errs, fmt.Errorf("features[%d].name %q must be lowercase letters, digits, '-' or '_'", i, feature.Name))
		case seen[feature.Name]:
			errs = append(errs, fmt.Errorf("features[%d].name %q is a duplicate", i, feature.Name))
		}
		seen[feature.Name] = true
		if feature.Format != intake.FormatNDJSON && feature.Format != intake.FormatJSONArray {
			errs = append(errs, fmt.Errorf("features[%d].format %q must be ndjson or json_array", i, feature.Format))
		}
	}

	return errors.Join(errs...)
}

// validFeatureName keeps feature names safe as directory names and
// metric labels.
var validFeatureName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Performance resolves the batch size preset and applies overrides.
func (s StorageConfig) Performance() (storage.Performance, error) {
	performance, err := storage.PerformanceFor(s.BatchSize)
	if err != nil {
		return storage.Performance{}, err
	}
	if o := s.Overrides; o != nil {
		override(&performance.MaxFileSize, o.MaxFileSize)
		override(&performance.MaxDirectorySize, o.MaxDirectorySize)
		override(&performance.MaxFileAgeForWrite, o.MaxFileAgeForWrite)
		override(&performance.MinFileAgeForRead, o.MinFileAgeForRead)
		override(&performance.MaxFileAgeForRead, o.MaxFileAgeForRead)
		override(&performance.MaxObjectsInFile, o.MaxObjectsInFile)
		override(&performance.MaxObjectSize, o.MaxObjectSize)
		override(&performance.MinFreeDiskSpace, o.MinFreeDiskSpace)
	}
	if err := performance.Validate(); err != nil {
		return storage.Performance{}, err
	}
	return performance, nil
}

// FeatureDirectory is where a feature's batches live.
func (s StorageConfig) FeatureDirectory(feature string) string {
	return filepath.Join(s.Directory, feature)
}

// Delay resolves the upload frequency preset and applies overrides.
func (u UploadConfig) Delay() (upload.DelayConfig, error) {
	delay, err := upload.DelayFor(u.Frequency)
	if err != nil {
		return upload.DelayConfig{}, err
	}
	if o := u.Overrides; o != nil {
		override(&delay.Initial, o.Initial)
		override(&delay.Min, o.Min)
		override(&delay.Max, o.Max)
		override(&delay.ChangeRate, o.ChangeRate)
	}
	if err := delay.Validate(); err != nil {
		return upload.DelayConfig{}, err
	}
	return delay, nil
}

func override[T any](field *T, value *T) {
	if value != nil {
		*field = *value
	}
}

// Conditions returns the admission policy.
func (u UploadConfig) Conditions() upload.Conditions {
	return upload.Conditions{MinBatteryLevel: u.MinBatteryLevel}
}
