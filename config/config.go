// Package config loads the unpacker configuration.
//
// Configuration comes from a single YAML file named by the --config flag or,
// failing that, the ANS104_CONFIG environment variable. Without either the
// defaults apply. Command-line flags override file values. Unknown keys are
// rejected so that typos fail loudly.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"xdao.co/ans104/compliance"
	"xdao.co/ans104/source"
	"xdao.co/ans104/storage/casconfig"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "ANS104_CONFIG"

// Sink values select where extracted items are written.
const (
	SinkDir = "dir"
	SinkTar = "tar"
	SinkCAS = "cas"
)

// Config is the complete unpacker configuration.
type Config struct {
	// InputDir holds the bundle files. Default: bundles
	InputDir string `yaml:"input_dir"`

	// OutputDir receives one subdirectory (or archive) per bundle.
	// Default: output
	OutputDir string `yaml:"output_dir"`

	// Mode is permissive or strict. Strict stops a bundle at the first item
	// that fails verification.
	Mode compliance.Mode `yaml:"mode"`

	// Workers bounds concurrent item verification within a bundle.
	// Default: number of CPUs
	Workers int `yaml:"workers"`

	// ParallelBundles bounds how many bundles are unpacked at once. Default: 1
	ParallelBundles int `yaml:"parallel_bundles"`

	// MetadataTag is the tag name marking metadata items. Default: ArFS
	MetadataTag string `yaml:"metadata_tag"`

	// MaxMetadataBytes bounds metadata payloads parsed as JSON. Default: 1 MiB
	MaxMetadataBytes int64 `yaml:"max_metadata_bytes"`

	// MaxDecompressedBytes bounds .zst/.lz4 bundle inputs. Default: 4 GiB
	MaxDecompressedBytes int64 `yaml:"max_decompressed_bytes"`

	// IncludeUnverified writes items whose signature did not verify.
	IncludeUnverified bool `yaml:"include_unverified"`

	// Sink is dir, tar or cas. Default: dir
	Sink string `yaml:"sink"`

	// Store configures payload store backends for the cas sink.
	Store *casconfig.Config `yaml:"store,omitempty"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level"`
	// Format is text or json. Default: text
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		InputDir:             "bundles",
		OutputDir:            "output",
		Mode:                 compliance.Permissive,
		Workers:              runtime.NumCPU(),
		ParallelBundles:      1,
		MetadataTag:          "ArFS",
		MaxMetadataBytes:     1 << 20,
		MaxDecompressedBytes: source.DefaultMaxDecompressedBytes,
		Sink:                 SinkDir,
		Log:                  LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path, or the file named by ANS104_CONFIG when path is empty.
// With neither it returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.InputDir == "" {
		errs = append(errs, errors.New("input_dir is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.ParallelBundles < 1 {
		errs = append(errs, fmt.Errorf("parallel_bundles must be at least 1, got %d", c.ParallelBundles))
	}
	if c.MetadataTag == "" {
		errs = append(errs, errors.New("metadata_tag is required"))
	}
	if c.MaxMetadataBytes < 1 {
		errs = append(errs, errors.New("max_metadata_bytes must be positive"))
	}
	if c.MaxDecompressedBytes < 1 {
		errs = append(errs, errors.New("max_decompressed_bytes must be positive"))
	}
	switch c.Sink {
	case SinkDir, SinkTar:
	case SinkCAS:
		if c.Store == nil {
			errs = append(errs, errors.New("sink cas requires a store section"))
		} else if err := c.Store.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("invalid sink %q (want dir, tar or cas)", c.Sink))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log.format %q (want text or json)", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q", s)
	}
	return l, nil
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	c.InputDir = expandVars(c.InputDir)
	c.OutputDir = expandVars(c.OutputDir)
	if c.Store != nil {
		for i := range c.Store.Backends {
			for k, v := range c.Store.Backends[i].Config {
				c.Store.Backends[i].Config[k] = expandVars(v)
			}
		}
	}
}

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}
