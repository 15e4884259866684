package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventScan      EventType = "scan"
	EventExtract   EventType = "extract"
	EventClassify  EventType = "classify"
	EventExport    EventType = "export"
	EventSkip      EventType = "skip"
	EventCollision EventType = "collision"
	EventOutput    EventType = "output"
	EventPlace     EventType = "place"
	EventBatch     EventType = "batch"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event in the pipeline
type Event struct {
	Timestamp    time.Time         `json:"ts"`
	Level        EventLevel        `json:"level"`
	Event        EventType         `json:"event"`
	BatchID      string            `json:"batch_id,omitempty"`
	FileKey      string            `json:"file_key,omitempty"`
	SrcPath      string            `json:"src_path,omitempty"`
	DestPath     string            `json:"dest_path,omitempty"`
	Mission      string            `json:"mission,omitempty"`
	Confidence   float64           `json:"confidence,omitempty"`
	Bay          string            `json:"bay,omitempty"`
	Method       string            `json:"method,omitempty"`
	Action       string            `json:"action,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	BytesWritten int64             `json:"bytes_written,omitempty"`
	Duration     int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error        string            `json:"error,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
	batchID  string
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	// Create output directory if it doesn't exist
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Generate filename with timestamp
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	// Open file for writing
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	// Filter by minimum level
	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil // Skip events below minimum level
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.BatchID == "" {
		event.BatchID = l.batchID
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// SetBatchID stamps every following event with the batch id
func (l *EventLogger) SetBatchID(id string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batchID = id
}

// LogScan logs a file discovery event
func (l *EventLogger) LogScan(fileKey, srcPath string, sizeBytes int64) error {
	return l.Log(&Event{
		Level:   LevelDebug,
		Event:   EventScan,
		FileKey: fileKey,
		SrcPath: srcPath,
		Extra: map[string]string{
			"size_bytes": fmt.Sprintf("%d", sizeBytes),
		},
	})
}

// LogExtract logs a metadata extraction event. Failed sources raise the
// level to warning; the video is still processed.
func (l *EventLogger) LogExtract(fileKey, srcPath, codec string, sourceErrors map[string]string, missing []string) error {
	level := LevelInfo
	if len(sourceErrors) > 0 {
		level = LevelWarning
	}

	extra := map[string]string{"codec": codec}
	for src, msg := range sourceErrors {
		extra["failed_"+src] = msg
	}
	if len(missing) > 0 {
		extra["missing"] = strings.Join(missing, ",")
	}

	return l.Log(&Event{
		Level:   level,
		Event:   EventExtract,
		FileKey: fileKey,
		SrcPath: srcPath,
		Extra:   extra,
	})
}

// LogClassify logs a mission assignment
func (l *EventLogger) LogClassify(fileKey, srcPath, mission string, confidence float64, bay, method string) error {
	return l.Log(&Event{
		Level:      LevelInfo,
		Event:      EventClassify,
		FileKey:    fileKey,
		SrcPath:    srcPath,
		Mission:    mission,
		Confidence: confidence,
		Bay:        bay,
		Method:     method,
	})
}

// LogExportSkip logs a record excluded from the fact table
func (l *EventLogger) LogExportSkip(srcPath, reason string) error {
	return l.Log(&Event{
		Level:   LevelWarning,
		Event:   EventSkip,
		SrcPath: srcPath,
		Action:  "export",
		Reason:  reason,
	})
}

// LogExport logs a finished semantic export
func (l *EventLogger) LogExport(table string, rows int, destPath string) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventExport,
		DestPath: destPath,
		Extra: map[string]string{
			"table": table,
			"rows":  fmt.Sprintf("%d", rows),
		},
	})
}

// LogCollision logs an output name that was disambiguated
func (l *EventLogger) LogCollision(srcPath, requested, resolved string) error {
	return l.Log(&Event{
		Level:    LevelWarning,
		Event:    EventCollision,
		SrcPath:  srcPath,
		DestPath: resolved,
		Reason:   fmt.Sprintf("%s already claimed by another source", requested),
	})
}

// LogOutput logs an artifact written by a formatter
func (l *EventLogger) LogOutput(kind, srcPath, destPath string, bytesWritten int64) error {
	return l.Log(&Event{
		Level:        LevelDebug,
		Event:        EventOutput,
		SrcPath:      srcPath,
		DestPath:     destPath,
		Action:       kind,
		BytesWritten: bytesWritten,
	})
}

// LogPlace logs a source video copied, moved or linked into the tree
func (l *EventLogger) LogPlace(srcPath, destPath, action string, bytesWritten int64, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:        level,
		Event:        EventPlace,
		SrcPath:      srcPath,
		DestPath:     destPath,
		Action:       action,
		BytesWritten: bytesWritten,
		Duration:     duration.Milliseconds(),
		Error:        errMsg,
	})
}

// LogBatch logs a batch lifecycle transition (started, finished, aborted)
func (l *EventLogger) LogBatch(action string, extra map[string]string) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventBatch,
		Action: action,
		Extra:  extra,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, srcPath string, err error) error {
	return l.Log(&Event{
		Level:   LevelError,
		Event:   event,
		SrcPath: srcPath,
		Error:   err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
