package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Default tool timeouts. Optimisations dominate run time.
const (
	DefaultOptimiserTimeout = 30 * time.Minute
	DefaultOrienterTimeout  = 5 * time.Minute
	DefaultClustererTimeout = 5 * time.Minute

	DefaultMaximumSeeds = 8
)

// MaxRunNameLength bounds run.name, which becomes part of a Redis channel name.
const MaxRunNameLength = 63

// RunNamePattern matches valid run names: alphanumeric with inner '-', '_' or '.'.
var RunNamePattern = regexp.MustCompile(`^[A-Za-z0-9]([-_.A-Za-z0-9]*[A-Za-z0-9])?$`)

// Config represents the top-level accrete.yml (or accrete.toml) configuration
type Config struct {
	Version   string         `yaml:"version" toml:"version"`
	Run       RunConfig      `yaml:"run" toml:"run"`
	Optimiser ToolConfig     `yaml:"optimiser" toml:"optimiser"`
	Orienter  ToolConfig     `yaml:"orienter" toml:"orienter"`
	Clusterer ToolConfig     `yaml:"clusterer" toml:"clusterer"`
	QC        map[string]any `yaml:"qc,omitempty" toml:"qc,omitempty"` // Forwarded to the optimiser untouched
	Events    EventsConfig   `yaml:"events,omitempty" toml:"events,omitempty"`
	Ops       OpsConfig      `yaml:"ops,omitempty" toml:"ops,omitempty"`
	Log       LogConfig      `yaml:"log,omitempty" toml:"log,omitempty"`
}

// RunConfig controls the growth run itself
type RunConfig struct {
	Name             string       `yaml:"name,omitempty" toml:"name,omitempty"` // Event namespace; generated when empty
	Orientations     Orientations `yaml:"orientations,omitempty" toml:"orientations,omitempty"`
	MaximumSeeds     int          `yaml:"maximum_number_of_seeds,omitempty" toml:"maximum_number_of_seeds,omitempty"`
	FirstPathway     int          `yaml:"first_pathway,omitempty" toml:"first_pathway,omitempty"`
	NumberOfPathways int          `yaml:"number_of_pathways,omitempty" toml:"number_of_pathways,omitempty"` // 0 = all remaining
	OutputDir        string       `yaml:"output_dir,omitempty" toml:"output_dir,omitempty"`
}

// ToolConfig describes one external program
type ToolConfig struct {
	Command []string      `yaml:"command" toml:"command"`
	Timeout time.Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// EventsConfig points at the Redis instance growth events are published to
type EventsConfig struct {
	RedisURL string `yaml:"redis_url,omitempty" toml:"redis_url,omitempty"`
}

// OpsConfig enables the health and metrics listener
type OpsConfig struct {
	Addr string `yaml:"addr,omitempty" toml:"addr,omitempty"`
}

// LogConfig sets the log level
type LogConfig struct {
	Level string `yaml:"level,omitempty" toml:"level,omitempty"`
}

// Orientations is either "auto" or a fixed positive count.
type Orientations struct {
	Auto  bool
	Count int
}

// Auto returns the automatic orientation schedule.
func Auto() Orientations {
	return Orientations{Auto: true}
}

// Fixed returns a constant orientation count.
func Fixed(n int) Orientations {
	return Orientations{Count: n}
}

// IsZero reports whether the value was left unset.
func (o Orientations) IsZero() bool {
	return !o.Auto && o.Count == 0
}

func (o Orientations) String() string {
	if o.Auto {
		return "auto"
	}
	return strconv.Itoa(o.Count)
}

// ParseOrientations accepts "auto" or a decimal count.
func ParseOrientations(raw string) (Orientations, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "auto") {
		return Auto(), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return Orientations{}, fmt.Errorf("orientations must be 'auto' or an integer, got %q", raw)
	}
	return Fixed(n), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Orientations) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("orientations must be a scalar (line %d)", value.Line)
	}
	parsed, err := ParseOrientations(value.Value)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (o Orientations) MarshalYAML() (any, error) {
	if o.Auto {
		return "auto", nil
	}
	return o.Count, nil
}

// UnmarshalTOML implements toml.Unmarshaler.
func (o *Orientations) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		parsed, err := ParseOrientations(v)
		if err != nil {
			return err
		}
		*o = parsed
	case int64:
		*o = Fixed(int(v))
	default:
		return fmt.Errorf("orientations must be 'auto' or an integer, got %T", data)
	}
	return nil
}

// Validate performs strict validation on the configuration and fills in defaults
func (c *Config) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := c.Run.validate(); err != nil {
		return err
	}

	tools := []struct {
		name     string
		tool     *ToolConfig
		fallback time.Duration
	}{
		{"optimiser", &c.Optimiser, DefaultOptimiserTimeout},
		{"orienter", &c.Orienter, DefaultOrienterTimeout},
		{"clusterer", &c.Clusterer, DefaultClustererTimeout},
	}
	for _, t := range tools {
		if err := t.tool.validate(t.name, t.fallback); err != nil {
			return err
		}
	}

	if c.QC == nil {
		c.QC = map[string]any{}
	}
	return nil
}

func (r *RunConfig) validate() error {
	if r.Name == "" {
		r.Name = "run-" + uuid.New().String()[:8]
	}
	if len(r.Name) > MaxRunNameLength {
		return fmt.Errorf("run.name too long: %d characters (max: %d)", len(r.Name), MaxRunNameLength)
	}
	if !RunNamePattern.MatchString(r.Name) {
		return fmt.Errorf("invalid run.name %q: must be alphanumeric with '-', '_' or '.' (not at start/end)", r.Name)
	}

	if r.Orientations.IsZero() {
		r.Orientations = Auto()
	}
	if !r.Orientations.Auto && r.Orientations.Count < 1 {
		return fmt.Errorf("run.orientations must be 'auto' or >= 1, got %d", r.Orientations.Count)
	}

	if r.MaximumSeeds == 0 {
		r.MaximumSeeds = DefaultMaximumSeeds
	}
	if r.MaximumSeeds < 1 {
		return fmt.Errorf("run.maximum_number_of_seeds must be >= 1, got %d", r.MaximumSeeds)
	}
	if r.FirstPathway < 0 {
		return fmt.Errorf("run.first_pathway must be >= 0, got %d", r.FirstPathway)
	}
	if r.NumberOfPathways < 0 {
		return fmt.Errorf("run.number_of_pathways must be >= 0 (0 = all), got %d", r.NumberOfPathways)
	}

	if r.OutputDir == "" {
		r.OutputDir = "."
	}
	return nil
}

func (t *ToolConfig) validate(name string, fallback time.Duration) error {
	if len(t.Command) == 0 {
		return fmt.Errorf("%s: command is required", name)
	}
	if t.Timeout < 0 {
		return fmt.Errorf("%s: timeout must be positive, got %s", name, t.Timeout)
	}
	if t.Timeout == 0 {
		t.Timeout = fallback
	}
	return nil
}

// Load reads and validates a configuration file. Files ending in .toml are parsed as
// TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
