package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/drone-catalog/internal/meta"
	"github.com/franz/drone-catalog/internal/util"
)

func newDefault(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestClassify_BayPattern(t *testing.T) {
	c := newDefault(t)

	tests := []struct {
		path string
		bay  string
	}{
		{"/data/flights/8D/DJI_0593.MP4", "8D"},
		{"flights/8B-7F/clip.mp4", "8B-7F"},
		{"12A/DJI_0001.MP4", "12A"},
		{`D:\survey\3C\DJI_0002.MP4`, "3C"},
		{"/data/8D/extra/9E/clip.mp4", "9E"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			a := c.Classify(nil, tt.path)
			assert.Equal(t, MissionBox, a.Mission)
			assert.Equal(t, 0.92, a.Confidence)
			assert.Equal(t, tt.bay, a.Bay)
			assert.Equal(t, MethodBayPattern, a.Method)
		})
	}
}

func TestClassify_BayPatternIgnoresFilenameAndPartialSegments(t *testing.T) {
	c := newDefault(t)

	for _, path := range []string{
		"/data/8D.mp4",
		"/data/bay8D/clip.mp4",
		"/data/8d/clip.mp4",
		"/data/8D-/clip.mp4",
		"/footage/4K/DJI_0001.MP4",
		"/footage/2160P/clip.mp4",
	} {
		a := c.Classify(nil, path)
		assert.NotEqual(t, MissionBox, a.Mission, path)
		assert.False(t, a.HasBay(), path)
	}
}

func TestClassify_BayIgnorePattern(t *testing.T) {
	c := newDefault(t)
	a := c.Classify(nil, "/survey/8D/4K/DJI_0593.MP4")
	assert.Equal(t, MissionBox, a.Mission)
	assert.Equal(t, "8D", a.Bay, "the preset folder is skipped, the bay above it is found")

	cfg := DefaultConfig()
	cfg.BayIgnorePattern = ""
	c, err := New(cfg)
	require.NoError(t, err)
	a = c.Classify(nil, "/footage/4K/DJI_0001.MP4")
	assert.Equal(t, MissionBox, a.Mission)
	assert.Equal(t, "4K", a.Bay)
}

func TestClassify_SafetyKeyword(t *testing.T) {
	c := newDefault(t)

	for _, path := range []string{
		"/data/safety_check/clip1.mp4",
		"/data/Hazard Walk/clip.mp4",
		"/data/roof/INSPECTION_01.mp4",
		"/data/pre-flight-check.mov",
	} {
		t.Run(path, func(t *testing.T) {
			a := c.Classify(nil, path)
			assert.Equal(t, MissionSafety, a.Mission)
			assert.Equal(t, 0.8, a.Confidence)
			assert.Empty(t, a.Bay)
			assert.Equal(t, MethodSafetyKeyword, a.Method)
		})
	}
}

func TestClassify_BayWinsOverSafetyKeyword(t *testing.T) {
	c := newDefault(t)

	a := c.Classify(nil, "/data/safety/8D/clip.mp4")
	assert.Equal(t, MissionBox, a.Mission)
	assert.Equal(t, "8D", a.Bay)
}

func TestClassify_SafetyOverridesBay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SafetyOverridesBay = true
	c, err := New(cfg)
	require.NoError(t, err)

	a := c.Classify(nil, "/data/safety/8D/clip.mp4")
	assert.Equal(t, MissionSafety, a.Mission)
	assert.Equal(t, 0.8, a.Confidence)
	assert.Equal(t, "8D", a.Bay, "path-matched bay is kept on a safety assignment")

	a = c.Classify(nil, "/data/8D/clip.mp4")
	assert.Equal(t, MissionBox, a.Mission)
}

func TestClassify_MetadataTag(t *testing.T) {
	c := newDefault(t)

	rec := &meta.VideoRecord{Tags: map[string]string{"comment": "Box survey north face"}}
	a := c.Classify(rec, "/data/misc/clip.mp4")
	assert.Equal(t, MissionBox, a.Mission)
	assert.Equal(t, 0.6, a.Confidence)
	assert.Empty(t, a.Bay)
	assert.Equal(t, MethodMetadataTag, a.Method)

	rec = &meta.VideoRecord{Tags: map[string]string{"mission_type": "HAZARD"}}
	a = c.Classify(rec, "/data/misc/clip.mp4")
	assert.Equal(t, MissionSafety, a.Mission)

	// Keys outside mission_tag_keys are ignored
	rec = &meta.VideoRecord{Tags: map[string]string{"encoder": "box encoder"}}
	a = c.Classify(rec, "/data/misc/clip.mp4")
	assert.Equal(t, MissionUnknown, a.Mission)
}

func TestClassify_Fallback(t *testing.T) {
	c := newDefault(t)

	for _, rec := range []*meta.VideoRecord{nil, {}, {Tags: map[string]string{"title": "sunset"}}} {
		a := c.Classify(rec, "/data/misc/clip.mp4")
		assert.Equal(t, MissionUnknown, a.Mission)
		assert.Zero(t, a.Confidence)
		assert.Empty(t, a.Bay)
		assert.Equal(t, MethodFallback, a.Method)
	}
}

func TestClassify_Override(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Overrides = []Override{
		{Filename: "DJI_0593.MP4", Mission: MissionSafety, Note: "reviewed"},
		{Filename: "clip.mp4", Mission: "box", Bay: "4A"},
		{Filename: "junk.mp4", Mission: MissionUnknown, Bay: "4A"},
	}
	c, err := New(cfg)
	require.NoError(t, err)

	a := c.Classify(nil, "/data/8D/DJI_0593.MP4")
	assert.Equal(t, MissionSafety, a.Mission)
	assert.Equal(t, 1.0, a.Confidence)
	assert.Equal(t, "8D", a.Bay)
	assert.Equal(t, MethodOverride, a.Method)
	assert.Equal(t, "reviewed", a.Note)

	a = c.Classify(nil, "/data/misc/clip.mp4")
	assert.Equal(t, MissionBox, a.Mission)
	assert.Equal(t, "4A", a.Bay)

	a = c.Classify(nil, "/data/8D/junk.mp4")
	assert.Equal(t, MissionUnknown, a.Mission)
	assert.Zero(t, a.Confidence)
	assert.Empty(t, a.Bay)
}

func TestClassifier_RuleOrder(t *testing.T) {
	c := newDefault(t)
	assert.Equal(t,
		[]Method{MethodBayPattern, MethodSafetyKeyword, MethodMetadataTag, MethodFallback},
		c.Rules())

	cfg := DefaultConfig()
	cfg.Overrides = []Override{{Filename: "a.mp4", Mission: MissionBox}}
	c, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, MethodOverride, c.Rules()[0])
}

func TestClassifier_ConfigIsCopied(t *testing.T) {
	cfg := DefaultConfig()
	c, err := New(cfg)
	require.NoError(t, err)

	cfg.SafetyKeywords[0] = "nothing-matches-this"
	a := c.Classify(nil, "/data/safety/clip.mp4")
	assert.Equal(t, MissionSafety, a.Mission)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BayPattern = "([unclosed"
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.BayIgnorePattern = "(["
	_, err = New(cfg)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Overrides = []Override{{Filename: "a.mp4", Mission: "PATROL"}}
	_, err = New(cfg)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)
}

func TestAssignmentInvariants(t *testing.T) {
	c := newDefault(t)
	paths := []string{
		"/data/8D/a.mp4", "/data/safety/b.mp4", "/data/c.mp4", "/data/check/8B-7F/d.mp4",
	}
	for _, p := range paths {
		a := c.Classify(nil, p)
		assert.GreaterOrEqual(t, a.Confidence, 0.0)
		assert.LessOrEqual(t, a.Confidence, 1.0)
		if a.Mission == MissionUnknown {
			assert.Zero(t, a.Confidence)
			assert.Empty(t, a.Bay)
		}
	}
}

func TestMissionFolder(t *testing.T) {
	assert.Equal(t, "box", MissionBox.Folder())
	assert.Equal(t, "safety", MissionSafety.Folder())
	assert.Equal(t, "unclassified", MissionUnknown.Folder())
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
safety_keywords: [Safety, Walkdown]
safety_overrides_bay: true
overrides:
  - filename: DJI_0001.MP4
    mission: safety
    note: flagged by site lead
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultBayPattern, cfg.BayPattern, "absent keys keep defaults")
	assert.Equal(t, []string{"safety", "walkdown"}, cfg.SafetyKeywords)
	assert.True(t, cfg.SafetyOverridesBay)
	require.Len(t, cfg.Overrides, 1)
	assert.Equal(t, MissionSafety, cfg.Overrides[0].Mission)
	assert.Equal(t, DefaultConfig().MissionTagKeys, cfg.MissionTagKeys)
}

func TestParseRules_Errors(t *testing.T) {
	_, err := ParseRules([]byte("unknown_key: 1\n"))
	assert.ErrorIs(t, err, util.ErrInvalidConfig)

	_, err = ParseRules([]byte("mission_tag_values:\n  - match: ''\n    mission: BOX\n"))
	assert.ErrorIs(t, err, util.ErrInvalidConfig)

	cfg, err := ParseRules(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().SafetyKeywords, cfg.SafetyKeywords)
}

func TestLoadRules_MissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
