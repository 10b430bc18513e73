package organizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/racetagger/pipeline/internal/config"
	"github.com/racetagger/pipeline/pkg/models"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
}

func TestPlaceUnknownGenericWhenNoNumberRecognized(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	writeTestFile(t, src, "data")

	cfg := config.DefaultOrganizerConfig()
	cfg.Enabled = true
	org := New(cfg, dir)

	result, err := org.Place(Placement{SourcePath: src, Recognitions: []models.VehicleRecognition{{HasNumber: false}}})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if result.UnknownKind != UnknownGeneric {
		t.Errorf("expected UnknownGeneric, got %v", result.UnknownKind)
	}
}

func TestPlaceUnknownNumberWhenRosterSuppliedButNoMatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	writeTestFile(t, src, "data")

	cfg := config.DefaultOrganizerConfig()
	cfg.Enabled = true
	org := New(cfg, dir)

	result, err := org.Place(Placement{
		SourcePath:   src,
		Recognitions: []models.VehicleRecognition{{HasNumber: true, RaceNumber: "99"}},
		Matches:      []models.MatchResult{{}},
		HasRoster:    true,
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if result.UnknownKind != UnknownNumber {
		t.Errorf("expected UnknownNumber, got %v", result.UnknownKind)
	}
}

func TestPlaceCopiesToMatchedNumberFolder(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	writeTestFile(t, src, "data")

	cfg := config.DefaultOrganizerConfig()
	cfg.Enabled = true
	cfg.Mode = "copy"
	org := New(cfg, dir)

	result, err := org.Place(Placement{
		SourcePath:   src,
		Recognitions: []models.VehicleRecognition{{HasNumber: true, RaceNumber: "7"}},
		Matches: []models.MatchResult{{Best: &models.MatchCandidate{
			Participant: models.Participant{Numero: "7"},
		}}},
		HasRoster: true,
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if len(result.Destinations) != 1 {
		t.Fatalf("expected 1 destination, got %d", len(result.Destinations))
	}
	if _, err := os.Stat(result.Destinations[0]); err != nil {
		t.Errorf("expected destination file to exist: %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("expected source to survive a copy-mode placement")
	}
}

func TestPlaceMoveRemovesSourceOnLastDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	writeTestFile(t, src, "data")

	cfg := config.DefaultOrganizerConfig()
	cfg.Enabled = true
	cfg.Mode = "move"
	org := New(cfg, dir)

	_, err := org.Place(Placement{
		SourcePath:   src,
		Recognitions: []models.VehicleRecognition{{HasNumber: true, RaceNumber: "7"}},
		Matches: []models.MatchResult{{Best: &models.MatchCandidate{
			Participant: models.Participant{Numero: "7"},
		}}},
		HasRoster: true,
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("expected source to be removed after a move-mode placement")
	}
}

func TestPlaceFansOutToMultipleVehiclesCopyForAllButLast(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	writeTestFile(t, src, "data")

	cfg := config.DefaultOrganizerConfig()
	cfg.Enabled = true
	cfg.Mode = "move"
	org := New(cfg, dir)

	result, err := org.Place(Placement{
		SourcePath: src,
		Recognitions: []models.VehicleRecognition{
			{HasNumber: true, RaceNumber: "7"},
			{HasNumber: true, RaceNumber: "12"},
		},
		Matches: []models.MatchResult{
			{Best: &models.MatchCandidate{Participant: models.Participant{Numero: "7"}}},
			{Best: &models.MatchCandidate{Participant: models.Participant{Numero: "12"}}},
		},
		HasRoster: true,
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if len(result.Destinations) != 2 {
		t.Fatalf("expected 2 destinations, got %d", len(result.Destinations))
	}
	// First destination is a copy (source must still exist after it).
	if _, err := os.Stat(result.Destinations[0]); err != nil {
		t.Errorf("expected first destination to exist: %v", err)
	}
	// After the final (move) destination, the source is gone.
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("expected source removed after the final move destination")
	}
}

func TestPlaceRenameStrategyAvoidsCollision(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	writeTestFile(t, src, "data")

	cfg := config.DefaultOrganizerConfig()
	cfg.Enabled = true
	cfg.Mode = "copy"
	cfg.ConflictStrategy = config.ConflictRename
	org := New(cfg, dir)

	placement := Placement{
		SourcePath:   src,
		Recognitions: []models.VehicleRecognition{{HasNumber: true, RaceNumber: "7"}},
		Matches: []models.MatchResult{{Best: &models.MatchCandidate{
			Participant: models.Participant{Numero: "7"},
		}}},
		HasRoster: true,
	}

	first, err := org.Place(placement)
	if err != nil {
		t.Fatalf("first Place: %v", err)
	}
	second, err := org.Place(placement)
	if err != nil {
		t.Fatalf("second Place: %v", err)
	}
	if first.Destinations[0] == second.Destinations[0] {
		t.Error("expected rename strategy to produce distinct destination paths on collision")
	}
}

func TestPlaceSkipStrategyDeclinesOnCollision(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	writeTestFile(t, src, "data")

	cfg := config.DefaultOrganizerConfig()
	cfg.Enabled = true
	cfg.Mode = "copy"
	cfg.ConflictStrategy = config.ConflictSkip
	org := New(cfg, dir)

	placement := Placement{
		SourcePath:   src,
		Recognitions: []models.VehicleRecognition{{HasNumber: true, RaceNumber: "7"}},
		Matches: []models.MatchResult{{Best: &models.MatchCandidate{
			Participant: models.Participant{Numero: "7"},
		}}},
		HasRoster: true,
	}

	if _, err := org.Place(placement); err != nil {
		t.Fatalf("first Place: %v", err)
	}
	second, err := org.Place(placement)
	if err != nil {
		t.Fatalf("second Place: %v", err)
	}
	if len(second.Destinations) != 0 {
		t.Errorf("expected skip strategy to produce no destination on collision, got %v", second.Destinations)
	}
}

func TestPlaceNumberNameFolderPattern(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	writeTestFile(t, src, "data")

	cfg := config.DefaultOrganizerConfig()
	cfg.Enabled = true
	cfg.Pattern = config.PatternNumberName
	org := New(cfg, dir)

	result, err := org.Place(Placement{
		SourcePath:   src,
		Recognitions: []models.VehicleRecognition{{HasNumber: true, RaceNumber: "7"}},
		Matches: []models.MatchResult{{Best: &models.MatchCandidate{
			Participant: models.Participant{Numero: "7", DriverNames: []string{"Marco Rossi"}},
		}}},
		HasRoster: true,
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if len(result.Destinations) != 1 {
		t.Fatalf("expected 1 destination, got %d", len(result.Destinations))
	}
	expectedDir := filepath.Join(dir, "Organized_Photos", "7_Marco Rossi")
	if filepath.Dir(result.Destinations[0]) != expectedDir {
		t.Errorf("expected destination dir %q, got %q", expectedDir, filepath.Dir(result.Destinations[0]))
	}
}

func TestPlaceDisabledReturnsEmptyResult(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	writeTestFile(t, src, "data")

	cfg := config.DefaultOrganizerConfig()
	cfg.Enabled = false
	org := New(cfg, dir)

	result, err := org.Place(Placement{SourcePath: src, Recognitions: []models.VehicleRecognition{{HasNumber: true, RaceNumber: "7"}}})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if len(result.Destinations) != 0 {
		t.Error("expected no destinations when organizer is disabled")
	}
}
