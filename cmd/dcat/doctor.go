package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/franz/drone-catalog/internal/classify"
	"github.com/franz/drone-catalog/internal/store"
	"github.com/franz/drone-catalog/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure dcat can operate correctly.

This command checks:
- Required tools (ffprobe)
- Optional tools (ffmpeg for thumbnails)
- SQLite version and catalog integrity
- Classification rules file
- Source folder readability and output root writability
- Disk space availability

Use this command to troubleshoot issues before running a batch.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().String("src", "", "source directory to check (optional)")
	doctorCmd.Flags().StringP("output", "o", "", "output root to check (optional)")
	doctorCmd.Flags().String("rules", "", "classification rules YAML to validate (optional)")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
	failMark = color.New(color.FgRed, color.Bold).SprintFunc()
)

func (r checkResult) symbol() string {
	switch {
	case r.error:
		return failMark("✗")
	case r.warning:
		return warnMark("⚠")
	}
	return okMark("✓")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}

	util.InfoLog("=== DCAT Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{
		checkFFprobe(),
		checkFFmpeg(),
		checkSQLite(),
		checkDatabase(viper.GetString("db")),
	}

	if rules := viper.GetString("rules"); rules != "" {
		results = append(results, checkRules(rules))
	}

	srcPath := viper.GetString("src")
	if srcPath != "" {
		results = append(results, checkSourceDirectory(srcPath))
	}

	outPath := viper.GetString("output")
	if outPath != "" {
		results = append(results, checkOutputDirectory(outPath))
		results = append(results, checkDiskSpace(outPath, "output"))
	}

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false
	for _, r := range results {
		line := fmt.Sprintf("[%s] %s", r.symbol(), r.name)
		if r.message != "" {
			line += ": " + r.message
		}

		switch {
		case r.error:
			hasErrors = true
			util.ErrorLog("%s", line)
		case r.warning:
			hasWarnings = true
			util.WarnLog("%s", line)
		default:
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Please resolve errors before running dcat.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed! System is ready for dcat batches.")
	}

	return nil
}

// toolVersion runs "<tool> -version" and returns the third word of the
// first line, which is the version for both ffprobe and ffmpeg
func toolVersion(tool string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, tool, "-version").CombinedOutput()
	if err != nil {
		return "", err
	}

	version := "unknown"
	first, _, _ := strings.Cut(string(output), "\n")
	if parts := strings.Fields(first); len(parts) >= 3 {
		version = parts[2]
	}
	return version, nil
}

// checkFFprobe verifies ffprobe is available and gets version
func checkFFprobe() checkResult {
	version, err := toolVersion("ffprobe")
	if err != nil {
		return checkResult{
			name:    "ffprobe",
			error:   true,
			message: "not found or not executable (required for duration, resolution and codec)",
		}
	}
	return checkResult{
		name:    "ffprobe",
		message: fmt.Sprintf("version %s", version),
	}
}

// checkFFmpeg verifies ffmpeg is available (optional)
func checkFFmpeg() checkResult {
	version, err := toolVersion("ffmpeg")
	if err != nil {
		return checkResult{
			name:    "ffmpeg (optional)",
			warning: true,
			message: "not found (thumbnails fall back to placeholders)",
		}
	}
	return checkResult{
		name:    "ffmpeg (optional)",
		message: fmt.Sprintf("version %s", version),
	}
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	// modernc.org/sqlite is compiled in; only check it answers
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}
	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies catalog file accessibility
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Catalog",
			warning: true,
			message: "no catalog path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Catalog",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Catalog",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Catalog",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Catalog",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Catalog",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	batches, _ := db.ListBatches()
	return checkResult{
		name:    "Catalog",
		message: fmt.Sprintf("%s (%s, %d batches)", dbPath, util.FormatBytes(info.Size()), len(batches)),
	}
}

// checkRules loads and validates a classification rules file
func checkRules(path string) checkResult {
	cfg, err := classify.LoadRules(path)
	if err != nil {
		return checkResult{
			name:    "Rules",
			error:   true,
			message: err.Error(),
		}
	}
	return checkResult{
		name: "Rules",
		message: fmt.Sprintf("%s (%d safety keywords, %d overrides, %d tag values)",
			path, len(cfg.SafetyKeywords), len(cfg.Overrides), len(cfg.MissionTagValues)),
	}
}

// checkSourceDirectory verifies source directory is readable
func checkSourceDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		return checkResult{
			name:    "Source directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Source directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return checkResult{
			name:    "Source directory",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	return checkResult{
		name:    "Source directory",
		message: fmt.Sprintf("%s (%d entries)", path, len(entries)),
	}
}

// checkOutputDirectory verifies the output root is writable
func checkOutputDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Output root",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Output root",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Output root",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Output root",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".dcat_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Output root",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Output root",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	availGB := float64(availBytes) / (1024 * 1024 * 1024)
	usedPercent := 0.0
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}

	warning := false
	warningMsg := ""
	if availGB < 10 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", util.FormatBytes(int64(availBytes)), warningMsg),
	}
}
