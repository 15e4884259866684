package place

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/drone-catalog/internal/util"
)

func createTestFile(t *testing.T, path string, content []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func newPlacer(t *testing.T, mode Mode, verify string) *Placer {
	t.Helper()
	p, err := New(&Config{Mode: mode, VerifyMode: verify, Concurrency: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeNone, false},
		{"none", ModeNone, false},
		{"COPY", ModeCopy, false},
		{" move ", ModeMove, false},
		{"hardlink", ModeHardlink, false},
		{"symlink", ModeSymlink, false},
		{"rsync", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if !errors.Is(err, util.ErrInvalidConfig) {
				t.Errorf("ParseMode(%q) error = %v, want ErrInvalidConfig", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestNewRejectsUnknownVerify(t *testing.T) {
	if _, err := New(&Config{Mode: ModeCopy, VerifyMode: "crc"}); err == nil {
		t.Error("Expected error for unknown verify mode")
	}
}

func TestPlaceCopy(t *testing.T) {
	tmpDir := t.TempDir()
	srcPath := filepath.Join(tmpDir, "flights", "8D", "DJI_0593.MP4")
	destPath := filepath.Join(tmpDir, "out", "box", "videos", "DJI_0593.MP4")
	content := []byte("fake video payload")
	createTestFile(t, srcPath, content)

	placer := newPlacer(t, ModeCopy, VerifyHash)

	n, skipped, err := placer.Place(context.Background(), srcPath, destPath, int64(len(content)))
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if skipped {
		t.Error("Expected first placement not to be skipped")
	}
	if n != int64(len(content)) {
		t.Errorf("Expected %d bytes written, got %d", len(content), n)
	}

	destContent, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("Failed to read destination file: %v", err)
	}
	if string(destContent) != string(content) {
		t.Errorf("Content mismatch: expected %q, got %q", content, destContent)
	}

	// Verify .part file was cleaned up
	if _, err := os.Stat(destPath + ".part"); !os.IsNotExist(err) {
		t.Errorf(".part file was not cleaned up")
	}

	// Source is untouched
	if _, err := os.Stat(srcPath); err != nil {
		t.Errorf("Source should still exist: %v", err)
	}

	// Second run leaves the identical copy alone
	_, skipped, err = placer.Place(context.Background(), srcPath, destPath, int64(len(content)))
	if err != nil {
		t.Fatalf("second Place failed: %v", err)
	}
	if !skipped {
		t.Error("Expected second placement to be skipped")
	}
}

func TestPlaceMove(t *testing.T) {
	tmpDir := t.TempDir()
	srcPath := filepath.Join(tmpDir, "src.mp4")
	destPath := filepath.Join(tmpDir, "out", "videos", "src.mp4")
	content := []byte("move me")
	createTestFile(t, srcPath, content)

	placer := newPlacer(t, ModeMove, VerifySize)

	if _, _, err := placer.Place(context.Background(), srcPath, destPath, int64(len(content))); err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if _, err := os.Stat(srcPath); !os.IsNotExist(err) {
		t.Error("Source file should have been moved")
	}
	if _, err := os.Stat(destPath); err != nil {
		t.Errorf("Destination file should exist: %v", err)
	}

	// A rerun sees the move already happened
	_, skipped, err := placer.Place(context.Background(), srcPath, destPath, int64(len(content)))
	if err != nil || !skipped {
		t.Errorf("Expected skipped rerun, got skipped=%v err=%v", skipped, err)
	}
}

func TestPlaceLinks(t *testing.T) {
	tmpDir := t.TempDir()
	srcPath := filepath.Join(tmpDir, "src.mp4")
	createTestFile(t, srcPath, []byte("linked"))

	hard := newPlacer(t, ModeHardlink, VerifyNone)
	hardDest := filepath.Join(tmpDir, "out", "hard.mp4")
	if _, _, err := hard.Place(context.Background(), srcPath, hardDest, 0); err != nil {
		t.Fatalf("hardlink failed: %v", err)
	}
	si, _ := os.Stat(srcPath)
	di, _ := os.Stat(hardDest)
	if !os.SameFile(si, di) {
		t.Error("Expected hardlink to share the inode")
	}

	sym := newPlacer(t, ModeSymlink, VerifyNone)
	symDest := filepath.Join(tmpDir, "out", "sym.mp4")
	if _, _, err := sym.Place(context.Background(), srcPath, symDest, 0); err != nil {
		t.Fatalf("symlink failed: %v", err)
	}
	target, err := os.Readlink(symDest)
	if err != nil {
		t.Fatalf("Expected symlink: %v", err)
	}
	if target != srcPath {
		t.Errorf("Symlink target = %s, want %s", target, srcPath)
	}

	_, skipped, err := sym.Place(context.Background(), srcPath, symDest, 0)
	if err != nil || !skipped {
		t.Errorf("Expected existing symlink to be kept, got skipped=%v err=%v", skipped, err)
	}
}

func TestPlaceAll(t *testing.T) {
	tmpDir := t.TempDir()
	var jobs []Job
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		src := filepath.Join(tmpDir, "src", name)
		createTestFile(t, src, []byte(name))
		jobs = append(jobs, Job{Src: src, Dest: filepath.Join(tmpDir, "out", name), Size: int64(len(name))})
	}
	jobs = append(jobs, Job{Src: filepath.Join(tmpDir, "src", "missing.mp4"), Dest: filepath.Join(tmpDir, "out", "missing.mp4")})

	placer := newPlacer(t, ModeCopy, VerifySize)
	result, err := placer.PlaceAll(context.Background(), jobs)
	if err != nil {
		t.Fatalf("PlaceAll failed: %v", err)
	}

	if result.Processed != 4 || result.Succeeded != 3 || result.Failed != 1 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if result.BytesWritten != 15 {
		t.Errorf("BytesWritten = %d, want 15", result.BytesWritten)
	}
	if result.Outcomes[3].Err == nil {
		t.Error("Expected error outcome for missing source")
	}
}

func TestPlaceAllDisabled(t *testing.T) {
	placer := newPlacer(t, ModeNone, "")
	result, err := placer.PlaceAll(context.Background(), []Job{{Src: "/nope", Dest: "/nope2"}})
	if err != nil {
		t.Fatalf("PlaceAll failed: %v", err)
	}
	if result.Processed != 0 {
		t.Errorf("Expected nothing processed, got %d", result.Processed)
	}
}

func TestDryRun(t *testing.T) {
	tmpDir := t.TempDir()
	srcPath := filepath.Join(tmpDir, "src.mp4")
	destPath := filepath.Join(tmpDir, "out", "src.mp4")
	createTestFile(t, srcPath, []byte("data"))

	placer, err := New(&Config{Mode: ModeMove, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := placer.Place(context.Background(), srcPath, destPath, 4); err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if _, err := os.Stat(destPath); !os.IsNotExist(err) {
		t.Error("Dry run must not create the destination")
	}
	if _, err := os.Stat(srcPath); err != nil {
		t.Error("Dry run must not move the source")
	}
}
