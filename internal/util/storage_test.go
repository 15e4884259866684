package util

import (
	"testing"
	"time"
)

func TestTuneForStorage_Forced(t *testing.T) {
	on, off := true, false
	base := &RetryConfig{MaxAttempts: 3, InitialWait: 100 * time.Millisecond, MaxWait: 5 * time.Second}

	tuned := TuneForStorage(nil, t.TempDir(), &on, 16, base)
	if !tuned.Network {
		t.Fatal("expected network tuning when forced on")
	}
	if tuned.Workers != nasMaxWorkers {
		t.Errorf("expected workers capped at %d, got %d", nasMaxWorkers, tuned.Workers)
	}
	if tuned.PlaceWorkers != nasPlaceWorkers {
		t.Errorf("expected %d placement workers, got %d", nasPlaceWorkers, tuned.PlaceWorkers)
	}
	if tuned.FSRetry.MaxAttempts != nasRetryAttempts || tuned.FSRetry.MaxWait != nasRetryMaxWaitMin {
		t.Errorf("unexpected retry config %+v", tuned.FSRetry)
	}
	if base.MaxAttempts != 3 {
		t.Error("caller's retry config must not change")
	}

	tuned = TuneForStorage(nil, t.TempDir(), &off, 16, base)
	if tuned.Network || tuned.Workers != 16 || tuned.FSRetry.MaxAttempts != 3 {
		t.Errorf("expected untouched settings when forced off, got %+v", tuned)
	}
}

func TestTuneForStorage_SmallWorkerCounts(t *testing.T) {
	on := true
	if tuned := TuneForStorage(nil, "", &on, 0, nil); tuned.Workers != nasPlaceWorkers {
		t.Errorf("expected %d workers for unset count, got %d", nasPlaceWorkers, tuned.Workers)
	}
	if tuned := TuneForStorage(nil, "", &on, 1, nil); tuned.Workers != 1 || tuned.PlaceWorkers != 1 {
		t.Errorf("expected a single worker to stay single, got %+v", tuned)
	}
}

func TestTuneForStorage_Detect(t *testing.T) {
	dir := t.TempDir()
	tuned := TuneForStorage([]string{dir}, dir, nil, 8, nil)
	if IsNetworkPath(dir) != tuned.Network {
		t.Errorf("tuning disagrees with detection for %s", dir)
	}
	if tuned.String() == "" {
		t.Error("expected a description")
	}
}
