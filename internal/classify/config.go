package classify

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/franz/drone-catalog/internal/util"
)

// DefaultBayPattern matches bay codes such as "8D" or "8B-7F"
const DefaultBayPattern = `^\d+[A-Z](?:-\d+[A-Z])?$`

// DefaultBayIgnorePattern keeps resolution preset folders ("4K", "1080P")
// from being read as bays
const DefaultBayIgnorePattern = `^\d+[KP]$`

// TagValue maps a manufacturer tag value fragment to a mission
type TagValue struct {
	Match   string  `yaml:"match"`
	Mission Mission `yaml:"mission"`
}

// Override pins the classification of one file by its base name
type Override struct {
	Filename string  `yaml:"filename"`
	Mission  Mission `yaml:"mission"`
	Bay      string  `yaml:"bay,omitempty"`
	Note     string  `yaml:"note,omitempty"`
}

// Config drives the classifier. New copies it, so later changes to the
// caller's value have no effect.
type Config struct {
	BayPattern string `yaml:"bay_pattern"`

	// BayIgnorePattern excludes segments that match BayPattern but are
	// not bays. Empty disables it.
	BayIgnorePattern string `yaml:"bay_ignore_pattern"`

	SafetyKeywords []string `yaml:"safety_keywords"`

	// SafetyOverridesBay lets a safety keyword beat a bay segment.
	// Off by default: a path with both is classified BOX.
	SafetyOverridesBay bool `yaml:"safety_overrides_bay"`

	MissionTagKeys   []string   `yaml:"mission_tag_keys"`
	MissionTagValues []TagValue `yaml:"mission_tag_values"`

	Overrides []Override `yaml:"overrides"`
}

// DefaultConfig returns the built-in rule set
func DefaultConfig() Config {
	return Config{
		BayPattern:       DefaultBayPattern,
		BayIgnorePattern: DefaultBayIgnorePattern,
		SafetyKeywords:   []string{"safety", "hazard", "inspection", "check"},
		MissionTagKeys:   []string{"mission", "mission_type", "comment", "description", "title"},
		MissionTagValues: []TagValue{
			{Match: "box", Mission: MissionBox},
			{Match: "bay", Mission: MissionBox},
			{Match: "safety", Mission: MissionSafety},
			{Match: "hazard", Mission: MissionSafety},
		},
	}
}

// Validate checks the config and normalizes case
func (c *Config) Validate() error {
	var errs []error

	if c.BayPattern == "" {
		errs = append(errs, errors.New("bay_pattern is empty"))
	} else if _, err := regexp.Compile(c.BayPattern); err != nil {
		errs = append(errs, fmt.Errorf("bay_pattern: %w", err))
	}
	if c.BayIgnorePattern != "" {
		if _, err := regexp.Compile(c.BayIgnorePattern); err != nil {
			errs = append(errs, fmt.Errorf("bay_ignore_pattern: %w", err))
		}
	}

	for i, kw := range c.SafetyKeywords {
		c.SafetyKeywords[i] = strings.ToLower(strings.TrimSpace(kw))
		if c.SafetyKeywords[i] == "" {
			errs = append(errs, fmt.Errorf("safety_keywords[%d] is empty", i))
		}
	}
	for i, key := range c.MissionTagKeys {
		c.MissionTagKeys[i] = strings.ToLower(strings.TrimSpace(key))
	}
	for i := range c.MissionTagValues {
		tv := &c.MissionTagValues[i]
		tv.Match = strings.ToLower(strings.TrimSpace(tv.Match))
		m, err := ParseMission(string(tv.Mission))
		if err != nil {
			errs = append(errs, fmt.Errorf("mission_tag_values[%d]: %w", i, err))
			continue
		}
		tv.Mission = m
		if tv.Match == "" {
			errs = append(errs, fmt.Errorf("mission_tag_values[%d]: match is empty", i))
		}
	}

	seen := make(map[string]bool)
	for i := range c.Overrides {
		o := &c.Overrides[i]
		m, err := ParseMission(string(o.Mission))
		if err != nil {
			errs = append(errs, fmt.Errorf("overrides[%d]: %w", i, err))
			continue
		}
		o.Mission = m
		if o.Filename == "" {
			errs = append(errs, fmt.Errorf("overrides[%d]: filename is empty", i))
			continue
		}
		if seen[o.Filename] {
			errs = append(errs, fmt.Errorf("overrides[%d]: duplicate filename %q", i, o.Filename))
		}
		seen[o.Filename] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", util.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// clone deep-copies the slices so callers cannot mutate a live classifier
func (c Config) clone() Config {
	out := c
	out.SafetyKeywords = append([]string(nil), c.SafetyKeywords...)
	out.MissionTagKeys = append([]string(nil), c.MissionTagKeys...)
	out.MissionTagValues = append([]TagValue(nil), c.MissionTagValues...)
	out.Overrides = append([]Override(nil), c.Overrides...)
	return out
}

// LoadRules reads a YAML rule file. Keys absent from the file keep their
// default values.
func LoadRules(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules on top of DefaultConfig
func ParseRules(data []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: failed to parse rules: %w", util.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
