package util

import (
	"fmt"
	"time"
)

// StorageTuning holds worker and retry settings adjusted to where videos
// are read from and written to
type StorageTuning struct {
	Workers      int // extraction workers
	PlaceWorkers int // concurrent placement copies
	CopyBuffer   int // placement copy buffer in bytes (0 = placer default)
	FSRetry      *RetryConfig

	Network bool
	Mount   *MountInfo // the network mount that triggered tuning
}

// Network storage limits
const (
	nasMaxWorkers      = 4
	nasPlaceWorkers    = 2
	nasCopyBuffer      = 4 << 20
	nasRetryAttempts   = 5
	nasRetryMaxWaitMin = 10 * time.Second
)

// TuneForStorage checks the sources and the output root for network mounts
// and lowers concurrency and raises retries when one is found. nasMode
// forces the decision when non-nil.
func TuneForStorage(sources []string, outputRoot string, nasMode *bool, workers int, fsRetry *RetryConfig) *StorageTuning {
	if fsRetry == nil {
		fsRetry = DefaultRetryConfig()
	}
	retry := *fsRetry
	t := &StorageTuning{
		Workers:      workers,
		PlaceWorkers: workers,
		FSRetry:      &retry,
	}

	if nasMode != nil {
		if *nasMode {
			InfoLog("NAS mode: explicitly enabled")
			t.applyNetwork()
		} else {
			DebugLog("NAS mode: explicitly disabled")
		}
		return t
	}

	paths := append([]string{outputRoot}, sources...)
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := DetectMount(p)
		if err != nil {
			DebugLog("Cannot detect filesystem of %s: %v", p, err)
			continue
		}
		if info.Network {
			InfoLog("Network filesystem detected: %s is on %s (%s)", p, info.FSType, info.MountPoint)
			t.Mount = info
			t.applyNetwork()
			InfoLog("  Workers: %d -> %d", workers, t.Workers)
			InfoLog("  Placement workers: %d", t.PlaceWorkers)
			InfoLog("  Output retries: %d attempts", t.FSRetry.MaxAttempts)
			InfoLog("TIP: Use --nas-mode=false to disable auto-tuning")
			return t
		}
	}
	DebugLog("Local filesystems - using standard settings")
	return t
}

func (t *StorageTuning) applyNetwork() {
	t.Network = true
	switch {
	case t.Workers <= 0:
		t.Workers = nasPlaceWorkers
	case t.Workers > nasMaxWorkers:
		t.Workers = nasMaxWorkers
	}
	t.PlaceWorkers = min(t.Workers, nasPlaceWorkers)
	t.CopyBuffer = nasCopyBuffer
	// A single attempt means retries were turned off
	if t.FSRetry.MaxAttempts > 1 {
		t.FSRetry.MaxAttempts = max(t.FSRetry.MaxAttempts, nasRetryAttempts)
		t.FSRetry.MaxWait = max(t.FSRetry.MaxWait, nasRetryMaxWaitMin)
	}
}

// String summarizes the tuning for logs
func (t *StorageTuning) String() string {
	if !t.Network {
		return fmt.Sprintf("local storage: %d workers", t.Workers)
	}
	where := "forced"
	if t.Mount != nil {
		where = fmt.Sprintf("%s at %s", t.Mount.FSType, t.Mount.MountPoint)
	}
	return fmt.Sprintf("network storage (%s): %d workers, %d placement workers, %s copy buffer, %d output attempts",
		where, t.Workers, t.PlaceWorkers, FormatBytes(int64(t.CopyBuffer)), t.FSRetry.MaxAttempts)
}
