package cleanup

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestTrackAndCleanupFile(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path := filepath.Join(root, "scratch.jpg")
	writeTemp(t, path)
	id := m.TrackTempFile(path, TagOther)

	if err := m.CleanupFile(id); err != nil {
		t.Fatalf("CleanupFile: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected tracked file to be removed")
	}
}

func TestCleanupByTagOnlyRemovesMatchingTag(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	jpegPath := filepath.Join(root, "working.jpg")
	thumbPath := filepath.Join(root, "card.jpg")
	writeTemp(t, jpegPath)
	writeTemp(t, thumbPath)

	m.TrackTempFile(jpegPath, TagJPEGProcessing)
	m.TrackTempFile(thumbPath, TagThumbnails)

	if errs := m.CleanupByTag(TagJPEGProcessing); len(errs) != 0 {
		t.Fatalf("CleanupByTag: %v", errs)
	}
	if _, err := os.Stat(jpegPath); !os.IsNotExist(err) {
		t.Error("expected jpeg-processing file removed")
	}
	if _, err := os.Stat(thumbPath); err != nil {
		t.Error("expected thumbnail file to survive a different tag's cleanup")
	}
}

func TestReclaimWorkerTemporariesPreservesThumbnailsAndCompressed(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	other := filepath.Join(root, "other.tmp")
	compressed := filepath.Join(root, "compressed.jpg")
	thumb := filepath.Join(root, "thumb.jpg")
	writeTemp(t, other)
	writeTemp(t, compressed)
	writeTemp(t, thumb)

	m.TrackTempFile(other, TagOther)
	m.TrackTempFile(compressed, TagCompressed)
	m.TrackTempFile(thumb, TagThumbnails)

	if errs := m.ReclaimWorkerTemporaries(); len(errs) != 0 {
		t.Fatalf("ReclaimWorkerTemporaries: %v", errs)
	}

	if _, err := os.Stat(other); !os.IsNotExist(err) {
		t.Error("expected 'other'-tagged file to be reclaimed")
	}
	if _, err := os.Stat(compressed); err != nil {
		t.Error("expected compressed JPEG to survive worker-exit reclaim")
	}
	if _, err := os.Stat(thumb); err != nil {
		t.Error("expected thumbnail to survive worker-exit reclaim")
	}
}

func TestStartupCleanupReclaimsEverythingRegardlessOfTracking(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	untracked := filepath.Join(root, "leftover.jpg")
	writeTemp(t, untracked)

	if err := m.StartupCleanup(); err != nil {
		t.Fatalf("StartupCleanup: %v", err)
	}
	if _, err := os.Stat(untracked); !os.IsNotExist(err) {
		t.Error("expected untracked leftover file removed by startup cleanup")
	}
}

func TestGenerateTempPathProducesDistinctPathsAndTracksThem(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pathA, idA := m.GenerateTempPath("file1", "card", ".jpg", TagThumbnails)
	pathB, idB := m.GenerateTempPath("file1", "card", ".jpg", TagThumbnails)

	if pathA == pathB {
		t.Error("expected distinct generated paths")
	}
	if idA == idB {
		t.Error("expected distinct registry ids")
	}
}

func TestShouldPreserveMatchesSpecTags(t *testing.T) {
	if !ShouldPreserve(TagThumbnails) || !ShouldPreserve(TagCompressed) {
		t.Error("expected thumbnails and compressed to be preserved tags")
	}
	if ShouldPreserve(TagOther) || ShouldPreserve(TagJPEGProcessing) {
		t.Error("expected other/jpeg-processing tags to not be preserved")
	}
}
