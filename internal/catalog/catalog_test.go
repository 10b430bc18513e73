package catalog

import (
	"testing"

	"github.com/racetagger/pipeline/pkg/models"
)

func TestLoadRosterAndByNumber(t *testing.T) {
	cat, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cat.Close()

	participants := []models.Participant{
		{Numero: "7", DriverNames: []string{"Alice", "Bob"}, Team: "Team X", Sponsors: []string{"Acme", "Shell"}},
		{Numero: "12", DriverNames: []string{"Carl"}, Team: "Team Y"},
		{Numero: "7", DriverNames: []string{"Dana"}, Team: "Team Z"}, // duplicate number, different round
	}
	if err := cat.LoadRoster(participants); err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}

	found, err := cat.ByNumber("7")
	if err != nil {
		t.Fatalf("ByNumber: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 entries for number 7, got %d", len(found))
	}
	if len(found[0].DriverNames) != 2 || found[0].DriverNames[1] != "Bob" {
		t.Errorf("unexpected driver names: %v", found[0].DriverNames)
	}
	if len(found[0].Sponsors) != 2 {
		t.Errorf("expected 2 sponsors, got %v", found[0].Sponsors)
	}

	unknown, err := cat.ByNumber("99")
	if err != nil {
		t.Fatalf("ByNumber unknown: %v", err)
	}
	if len(unknown) != 0 {
		t.Errorf("expected no entries for unknown number, got %d", len(unknown))
	}
}

func TestAllReturnsEveryParticipant(t *testing.T) {
	cat, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cat.Close()

	if err := cat.LoadRoster([]models.Participant{
		{Numero: "1", DriverNames: []string{"A"}},
		{Numero: "2", DriverNames: []string{"B"}},
	}); err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}

	all, err := cat.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(all))
	}
}

func TestRecordAndQueryOutcomes(t *testing.T) {
	cat, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cat.Close()

	if err := cat.RecordOutcome("a.jpg", "44", 0.92); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	outcomes, err := cat.OutcomesFor("a.jpg")
	if err != nil {
		t.Fatalf("OutcomesFor: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0] != "44" {
		t.Fatalf("unexpected outcomes: %v", outcomes)
	}

	none, err := cat.OutcomesFor("b.jpg")
	if err != nil {
		t.Fatalf("OutcomesFor b.jpg: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no outcomes for b.jpg, got %v", none)
	}
}

func TestUpdateStatsIsAtomic(t *testing.T) {
	cat, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cat.Close()

	cat.UpdateStats(func(s *models.BatchStats) {
		s.Total = 10
		s.Processed++
		s.Successful++
	})
	cat.UpdateStats(func(s *models.BatchStats) {
		s.Processed++
		s.Errors++
	})

	stats := cat.Stats()
	if stats.Total != 10 || stats.Processed != 2 || stats.Successful != 1 || stats.Errors != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
