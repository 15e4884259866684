package classify

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/franz/drone-catalog/internal/meta"
)

// Rule is one step of the ordered classification chain. Apply is pure:
// the same record and path always give the same answer.
type Rule interface {
	Method() Method
	Apply(rec *meta.VideoRecord, path string) (Assignment, bool)
}

// overrideRule pins files listed in the rules file
type overrideRule struct {
	byName map[string]Override
	bay    *bayMatcher
}

func (r *overrideRule) Method() Method { return MethodOverride }

func (r *overrideRule) Apply(_ *meta.VideoRecord, path string) (Assignment, bool) {
	o, ok := r.byName[baseName(path)]
	if !ok {
		return Assignment{}, false
	}
	bay := o.Bay
	if bay == "" {
		bay = findBay(r.bay, path)
	}
	a := newAssignment(o.Mission, OverrideConfidence, bay, MethodOverride)
	a.Note = o.Note
	return a, true
}

// bayPatternRule classifies BOX when a directory segment is a bay code
type bayPatternRule struct {
	bay            *bayMatcher
	keywords       []string
	deferToKeyword bool
}

func (r *bayPatternRule) Method() Method { return MethodBayPattern }

func (r *bayPatternRule) Apply(_ *meta.VideoRecord, path string) (Assignment, bool) {
	bay := findBay(r.bay, path)
	if bay == "" {
		return Assignment{}, false
	}
	if r.deferToKeyword && containsKeyword(path, r.keywords) {
		return Assignment{}, false
	}
	return newAssignment(MissionBox, BayConfidence, bay, MethodBayPattern), true
}

// keywordRule classifies SAFETY when the path names a safety keyword
type keywordRule struct {
	keywords []string
	bay      *bayMatcher
}

func (r *keywordRule) Method() Method { return MethodSafetyKeyword }

func (r *keywordRule) Apply(_ *meta.VideoRecord, path string) (Assignment, bool) {
	if !containsKeyword(path, r.keywords) {
		return Assignment{}, false
	}
	// A bay only reaches this rule when safety keywords take precedence
	return newAssignment(MissionSafety, KeywordConfidence, findBay(r.bay, path), MethodSafetyKeyword), true
}

// metadataRule reads mission hints from manufacturer tags
type metadataRule struct {
	keys   []string
	values []TagValue
}

func (r *metadataRule) Method() Method { return MethodMetadataTag }

func (r *metadataRule) Apply(rec *meta.VideoRecord, _ string) (Assignment, bool) {
	if rec == nil || len(rec.Tags) == 0 {
		return Assignment{}, false
	}
	for _, key := range r.keys {
		value := strings.ToLower(rec.Tags[key])
		if value == "" {
			continue
		}
		for _, tv := range r.values {
			if strings.Contains(value, tv.Match) {
				return newAssignment(tv.Mission, MetadataConfidence, "", MethodMetadataTag), true
			}
		}
	}
	return Assignment{}, false
}

// pathSegments returns the directory components of path. Both separators
// are accepted.
func pathSegments(path string) []string {
	dir := filepath.Dir(strings.ReplaceAll(path, `\`, "/"))
	var segs []string
	for _, s := range strings.Split(dir, "/") {
		if s != "" && s != "." {
			segs = append(segs, s)
		}
	}
	return segs
}

func baseName(path string) string {
	p := strings.ReplaceAll(path, `\`, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// bayMatcher recognizes bay code segments
type bayMatcher struct {
	code   *regexp.Regexp
	ignore *regexp.Regexp
}

func (m *bayMatcher) match(seg string) bool {
	if !m.code.MatchString(seg) {
		return false
	}
	return m.ignore == nil || !m.ignore.MatchString(seg)
}

// findBay returns the deepest directory segment that is a bay code
func findBay(m *bayMatcher, path string) string {
	segs := pathSegments(path)
	for i := len(segs) - 1; i >= 0; i-- {
		if m.match(segs[i]) {
			return segs[i]
		}
	}
	return ""
}

func containsKeyword(path string, keywords []string) bool {
	lower := strings.ToLower(path)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
