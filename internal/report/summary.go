package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/drone-catalog/internal/store"
	"github.com/franz/drone-catalog/internal/util"
)

// SummaryReport represents the organization summary of one batch
type SummaryReport struct {
	GeneratedAt time.Time
	Duration    time.Duration

	// Batch
	BatchID    string
	BatchName  string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	OutputRoot string
	Sources    []string

	// Video statistics
	VideosTotal   int
	VideosDone    int
	VideosFailed  int
	VideosPending int
	ExportSkipped int

	// Classification
	Missions        []Count
	Methods         []Count
	Bays            []string
	HighConfidence  int
	ConfidenceTotal float64

	// Output tree
	OutputsByKind []Count
	Folders       []Count
	BytesWritten  int64

	// Details
	TopErrors  []ErrorSummary
	Collisions []ConflictInfo
	Skips      []ConflictInfo

	// Metadata
	DatabasePath string
	EventLogPath string
}

// Count is a labelled tally
type Count struct {
	Name  string
	Count int
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// ConflictInfo represents a path collision or skipped video
type ConflictInfo struct {
	SrcPath  string
	DestPath string
	Reason   string
}

// AverageConfidence returns the mean confidence over done videos
func (r *SummaryReport) AverageConfidence() float64 {
	if r.VideosDone == 0 {
		return 0
	}
	return r.ConfidenceTotal / float64(r.VideosDone)
}

// GenerateSummaryReport creates a summary report for a batch from the
// catalog and, when eventLogPath is set, its event log
func GenerateSummaryReport(db *store.Store, batchID string, eventLogPath string) (*SummaryReport, error) {
	batch, err := db.GetBatch(batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, fmt.Errorf("%w: batch %s", util.ErrNotFound, batchID)
	}

	report := &SummaryReport{
		GeneratedAt:   time.Now(),
		BatchID:       batch.ID,
		BatchName:     batch.Name,
		Status:        batch.Status,
		StartedAt:     batch.StartedAt,
		FinishedAt:    batch.FinishedAt,
		OutputRoot:    batch.OutputRoot,
		Sources:       batch.Sources,
		VideosTotal:   batch.Total,
		ExportSkipped: batch.Skipped,
		EventLogPath:  eventLogPath,
	}
	if batch.FinishedAt != nil {
		report.Duration = batch.FinishedAt.Sub(batch.StartedAt)
	}

	// Gather video statistics
	statuses, err := db.CountVideosByStatus(batchID)
	if err != nil {
		return nil, err
	}
	report.VideosDone = statuses[store.VideoDone]
	report.VideosFailed = statuses[store.VideoFailed]
	report.VideosPending = statuses[store.VideoPending]
	if total := report.VideosDone + report.VideosFailed + report.VideosPending; total > report.VideosTotal {
		report.VideosTotal = total
	}

	// Gather classification statistics
	videos, err := db.GetVideos(batchID)
	if err != nil {
		return nil, err
	}
	missions := make(map[string]int)
	methods := make(map[string]int)
	bays := make(map[string]bool)
	errorCounts := make(map[string]int)
	for _, v := range videos {
		if v.Status == store.VideoFailed && v.Error != "" {
			errorCounts[v.Error]++
		}
		a := v.Assignment
		if a == nil || v.Status != store.VideoDone {
			continue
		}
		missions[a.Mission]++
		methods[a.Method]++
		if a.Bay != "" {
			bays[a.Bay] = true
		}
		report.ConfidenceTotal += a.Confidence
		if a.Confidence >= 0.7 {
			report.HighConfidence++
		}
	}
	report.Missions = sortedCounts(missions)
	report.Methods = sortedCounts(methods)
	for bay := range bays {
		report.Bays = append(report.Bays, bay)
	}
	sort.Strings(report.Bays)

	// Gather output statistics
	outputs, err := db.GetOutputs(batchID)
	if err != nil {
		return nil, err
	}
	kinds := make(map[string]int)
	folders := make(map[string]int)
	batchDir := filepath.Join(batch.OutputRoot, batch.Name)
	for _, o := range outputs {
		kinds[o.Kind]++
		report.BytesWritten += o.Bytes
		folders[topFolder(batchDir, o.Path)]++
	}
	report.OutputsByKind = sortedCounts(kinds)
	report.Folders = sortedCounts(folders)

	// Gather event details
	if eventLogPath != "" {
		events, err := ReadEvents(eventLogPath)
		if err != nil {
			util.WarnLog("Could not read event log %s: %v", eventLogPath, err)
		}
		for _, e := range events {
			if e.BatchID != "" && e.BatchID != batchID {
				continue
			}
			switch e.Event {
			case EventCollision:
				report.Collisions = append(report.Collisions, ConflictInfo{SrcPath: e.SrcPath, DestPath: e.DestPath, Reason: e.Reason})
			case EventSkip:
				report.Skips = append(report.Skips, ConflictInfo{SrcPath: e.SrcPath, Reason: e.Reason})
			case EventError:
				if e.Error != "" {
					errorCounts[e.Error]++
				}
			}
		}
	}

	report.TopErrors = topErrors(errorCounts, 10)

	return report, nil
}

// ReadEvents decodes a JSONL event log. Undecodable lines are skipped.
func ReadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}

// topFolder returns the first path element below the batch directory,
// "." for batch-level files
func topFolder(batchDir, path string) string {
	rel, err := filepath.Rel(batchDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "."
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) < 2 {
		return "."
	}
	return parts[0]
}

// sortedCounts orders by count descending, then name
func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for name, n := range m {
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// topErrors retrieves the most common errors
func topErrors(errorCounts map[string]int, limit int) []ErrorSummary {
	errors := make([]ErrorSummary, 0, len(errorCounts))
	for err, count := range errorCounts {
		errors = append(errors, ErrorSummary{
			Error: err,
			Count: count,
		})
	}

	// Sort by count (descending)
	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	// Limit results
	if len(errors) > limit {
		errors = errors[:limit]
	}

	return errors
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	// Create output directory
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(RenderMarkdownReport(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// RenderMarkdownReport renders the summary as Markdown
func RenderMarkdownReport(report *SummaryReport) string {
	var md strings.Builder

	// Header
	md.WriteString("# Drone Catalog - Organization Summary\n\n")
	md.WriteString(fmt.Sprintf("**Batch:** %s (`%s`)\n\n", report.BatchName, report.BatchID))
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	// Overview
	md.WriteString("## 📊 Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Status | %s |\n", report.Status))
	md.WriteString(fmt.Sprintf("| Started | %s |\n", report.StartedAt.Format("2006-01-02 15:04:05")))
	if report.Duration > 0 {
		md.WriteString(fmt.Sprintf("| Duration | %s |\n", report.Duration.Round(time.Second)))
	}
	md.WriteString(fmt.Sprintf("| Videos | %d |\n", report.VideosTotal))
	md.WriteString(fmt.Sprintf("| Processed | %d |\n", report.VideosDone))
	if report.VideosFailed > 0 {
		md.WriteString(fmt.Sprintf("| Failed | %d |\n", report.VideosFailed))
	}
	if report.VideosPending > 0 {
		md.WriteString(fmt.Sprintf("| Not Processed | %d |\n", report.VideosPending))
	}
	if report.ExportSkipped > 0 {
		md.WriteString(fmt.Sprintf("| Left Out of Semantic Model | %d |\n", report.ExportSkipped))
	}
	if len(report.Sources) > 0 {
		md.WriteString(fmt.Sprintf("| Sources | `%s` |\n", strings.Join(report.Sources, "`, `")))
	}
	if report.OutputRoot != "" {
		md.WriteString(fmt.Sprintf("| Output | `%s` |\n", filepath.Join(report.OutputRoot, report.BatchName)))
	}
	md.WriteString("\n")

	// Classification
	if len(report.Missions) > 0 {
		md.WriteString("## 🎯 Classification\n\n")
		md.WriteString("| Mission | Videos |\n")
		md.WriteString("|---------|--------|\n")
		for _, m := range report.Missions {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", m.Name, m.Count))
		}
		md.WriteString("\n")

		md.WriteString("| Method | Videos |\n")
		md.WriteString("|--------|--------|\n")
		for _, m := range report.Methods {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", m.Name, m.Count))
		}
		md.WriteString("\n")

		md.WriteString(fmt.Sprintf("- **Average confidence:** %.2f\n", report.AverageConfidence()))
		md.WriteString(fmt.Sprintf("- **High confidence (≥ 0.7):** %d of %d\n", report.HighConfidence, report.VideosDone))
		if len(report.Bays) > 0 {
			md.WriteString(fmt.Sprintf("- **Bays:** %s\n", strings.Join(report.Bays, ", ")))
		}
		md.WriteString("\n")
	}

	// Output tree
	if len(report.Folders) > 0 {
		md.WriteString("## 📁 Directory Structure\n\n")
		md.WriteString("| Folder | Files |\n")
		md.WriteString("|--------|-------|\n")
		for _, f := range report.Folders {
			name := f.Name + "/"
			if f.Name == "." {
				name = "(batch root)"
			}
			md.WriteString(fmt.Sprintf("| %s | %d |\n", name, f.Count))
		}
		md.WriteString("\n")

		md.WriteString("| Output | Files |\n")
		md.WriteString("|--------|-------|\n")
		for _, k := range report.OutputsByKind {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", k.Name, k.Count))
		}
		md.WriteString(fmt.Sprintf("\n**Bytes written:** %s\n\n", util.FormatBytes(report.BytesWritten)))
	}

	// Skipped
	if len(report.Skips) > 0 {
		md.WriteString("## ⏭️ Left Out of Semantic Model\n\n")
		md.WriteString("| Source | Reason |\n")
		md.WriteString("|--------|--------|\n")
		for _, s := range report.Skips {
			md.WriteString(fmt.Sprintf("| `%s` | %s |\n", truncatePath(s.SrcPath, 60), s.Reason))
		}
		md.WriteString("\n")
	}

	// Errors
	if len(report.TopErrors) > 0 {
		md.WriteString("## ⚠️ Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, err.Error))
		}
		md.WriteString("\n")
	}

	// Collisions
	if len(report.Collisions) > 0 {
		md.WriteString("## 🚨 Name Collisions\n\n")
		md.WriteString("| Source | Written As | Reason |\n")
		md.WriteString("|--------|------------|--------|\n")
		for _, c := range report.Collisions {
			md.WriteString(fmt.Sprintf("| `%s` | `%s` | %s |\n",
				truncatePath(c.SrcPath, 40),
				truncatePath(c.DestPath, 40),
				c.Reason))
		}
		md.WriteString("\n")
	}

	// Footer
	md.WriteString("---\n\n")
	md.WriteString("*Generated by dcat - Drone Catalog*\n")

	return md.String()
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
