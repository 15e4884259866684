package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/franz/drone-catalog/internal/batch"
	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/meta"
	"github.com/franz/drone-catalog/internal/report"
	"github.com/franz/drone-catalog/internal/semantic"
	"github.com/franz/drone-catalog/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Exit codes
const (
	exitError    = 1
	exitFatal    = 2
	exitAborted  = 3
	exitNotFound = 4
)

var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_")

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (DCAT_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// GetConfigBool retrieves a bool config value
func GetConfigBool(key string) bool {
	return viper.GetBool(key)
}

// GetConfigStringSlice retrieves a string slice config value
func GetConfigStringSlice(key string) []string {
	return viper.GetStringSlice(key)
}

// bindFlags makes a command's own flags visible to viper. Run from RunE so
// commands sharing a flag name do not overwrite each other's binding.
func bindFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

func setupLogging() {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
	if viper.GetBool("no-color") {
		util.SetColors(false)
	}
}

// openEventLogger creates the JSONL event log, falling back to a logger
// that drops everything
func openEventLogger() *report.EventLogger {
	level := report.LevelInfo
	if viper.GetBool("quiet") {
		level = report.LevelWarning
	} else if viper.GetBool("verbose") {
		level = report.LevelDebug
	}

	logger, err := report.NewEventLogger(GetConfigString("events-dir", "artifacts"), level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}
	return logger
}

// classifyConfig loads the rules file if one is configured
func classifyConfig() (classify.Config, error) {
	path := viper.GetString("rules")
	if path == "" {
		return classify.DefaultConfig(), nil
	}
	cfg, err := classify.LoadRules(path)
	if err != nil {
		return classify.Config{}, fmt.Errorf("failed to load rules: %w", err)
	}
	util.InfoLog("Using classification rules: %s", path)
	return cfg, nil
}

// semanticConfig reads per-mission estimates from the estimates key. Each
// configured mission is decoded over its built-in estimate, so a partial
// entry only changes the fields it names.
func semanticConfig() (semantic.Config, error) {
	cfg := semantic.DefaultConfig()
	if !viper.IsSet("estimates") {
		return cfg, nil
	}

	names := make([]string, 0)
	for name := range viper.GetStringMap("estimates") {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m, err := classify.ParseMission(name)
		if err != nil {
			return cfg, err
		}
		est := cfg.Estimates[m]
		if err := viper.UnmarshalKey("estimates."+name, &est); err != nil {
			return cfg, fmt.Errorf("%w: estimates.%s: %v", util.ErrInvalidConfig, name, err)
		}
		cfg.Estimates[m] = est
	}
	return cfg, cfg.Validate()
}

// skipSources parses --skip-sources
func skipSources() ([]meta.Source, error) {
	var out []meta.Source
	for _, name := range GetConfigStringSlice("skip-sources") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		found := false
		for _, s := range meta.AllSources {
			if string(s) == name {
				out = append(out, s)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: unknown metadata source %q", util.ErrInvalidConfig, name)
		}
	}
	if !meta.CheckFFprobeAvailable() && !containsSource(out, meta.SourceFFprobe) {
		util.WarnLog("ffprobe not found in PATH - duration and resolution will be missing")
		util.WarnLog("Install ffmpeg for best results: https://ffmpeg.org/")
		out = append(out, meta.SourceFFprobe)
	}
	return out, nil
}

func containsSource(sources []meta.Source, s meta.Source) bool {
	for _, x := range sources {
		if x == s {
			return true
		}
	}
	return false
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	switch {
	case errors.Is(err, batch.ErrTooManyFailures):
		return exitAborted
	case util.IsFatal(err):
		return exitFatal
	case errors.Is(err, util.ErrNotFound):
		return exitNotFound
	}
	return exitError
}
