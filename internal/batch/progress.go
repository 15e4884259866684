package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ProgressFileName is written at the batch root while a batch runs
const ProgressFileName = "batch_progress.json"

// Progress is the state persisted to batch_progress.json
type Progress struct {
	BatchID     string `json:"batch_id"`
	BatchName   string `json:"batch_name"`
	TotalVideos int    `json:"total_videos"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	Resumed     int    `json:"resumed"`
	Skipped     int    `json:"skipped"`
	InProgress  int    `json:"in_progress"`

	StartTime           time.Time  `json:"start_time"`
	LastUpdate          time.Time  `json:"last_update"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`

	SuccessRate          float64 `json:"success_rate"`
	CompletionPercentage float64 `json:"completion_percentage"`
	Status               string  `json:"status"`
}

// Processed counts videos that reached a final state in this run or an
// earlier one
func (p *Progress) Processed() int {
	return p.Completed + p.Failed + p.Resumed
}

// Remaining counts videos not yet started
func (p *Progress) Remaining() int {
	return max(p.TotalVideos-p.Processed()-p.InProgress, 0)
}

// ErrorRate is the failed share of processed videos in percent
func (p *Progress) ErrorRate() float64 {
	if p.Processed() == 0 {
		return 0
	}
	return float64(p.Failed) / float64(p.Processed()) * 100
}

// refresh recomputes the derived fields
func (p *Progress) refresh(now time.Time) {
	p.LastUpdate = now
	p.SuccessRate = 100
	if n := p.Processed(); n > 0 {
		p.SuccessRate = float64(p.Completed+p.Resumed) / float64(n) * 100
	}
	if p.TotalVideos > 0 {
		p.CompletionPercentage = float64(p.Processed()) / float64(p.TotalVideos) * 100
	}

	p.EstimatedCompletion = nil
	done := p.Completed + p.Failed
	if done == 0 || p.Remaining() == 0 {
		return
	}
	perVideo := now.Sub(p.StartTime) / time.Duration(done)
	eta := now.Add(perVideo * time.Duration(p.Remaining()))
	p.EstimatedCompletion = &eta
}

// progressFile serializes saves of one batch's progress
type progressFile struct {
	path string
	mu   sync.Mutex
}

// Save writes the progress atomically via a temp file and rename
func (f *progressFile) Save(p Progress) error {
	if f == nil || f.path == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	p.refresh(time.Now())
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".progress-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to save progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save progress: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// LoadProgress reads a progress file
func LoadProgress(path string) (*Progress, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode progress %s: %w", path, err)
	}
	return &p, nil
}
