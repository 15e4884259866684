package classify

import (
	"regexp"

	"github.com/franz/drone-catalog/internal/meta"
)

// Classifier assigns a mission to each video by running its rules in order
// and taking the first match.
type Classifier struct {
	cfg   Config
	rules []Rule
}

// New builds a classifier. The config is validated and copied.
func New(cfg Config) (*Classifier, error) {
	cfg = cfg.clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bay := &bayMatcher{code: regexp.MustCompile(cfg.BayPattern)}
	if cfg.BayIgnorePattern != "" {
		bay.ignore = regexp.MustCompile(cfg.BayIgnorePattern)
	}

	var rules []Rule
	if len(cfg.Overrides) > 0 {
		byName := make(map[string]Override, len(cfg.Overrides))
		for _, o := range cfg.Overrides {
			byName[o.Filename] = o
		}
		rules = append(rules, &overrideRule{byName: byName, bay: bay})
	}
	rules = append(rules,
		&bayPatternRule{bay: bay, keywords: cfg.SafetyKeywords, deferToKeyword: cfg.SafetyOverridesBay},
		&keywordRule{keywords: cfg.SafetyKeywords, bay: bay},
		&metadataRule{keys: cfg.MissionTagKeys, values: cfg.MissionTagValues},
	)

	return &Classifier{cfg: cfg, rules: rules}, nil
}

// Classify never fails: no matching rule yields UNKNOWN
func (c *Classifier) Classify(rec *meta.VideoRecord, path string) Assignment {
	for _, r := range c.rules {
		if a, ok := r.Apply(rec, path); ok {
			return a
		}
	}
	return Unknown()
}

// Rules returns the evaluation order
func (c *Classifier) Rules() []Method {
	methods := make([]Method, 0, len(c.rules)+1)
	for _, r := range c.rules {
		methods = append(methods, r.Method())
	}
	return append(methods, MethodFallback)
}

// Config returns a copy of the active configuration
func (c *Classifier) Config() Config {
	return c.cfg.clone()
}
