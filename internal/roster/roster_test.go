package roster

import (
	"strings"
	"testing"
)

func TestParseStandardHeader(t *testing.T) {
	csv := `Number,Driver,Team,Category,Plate_Number,Sponsors,Metatag,Folder_1,Folder_2,Folder_3
12,Jane Smith,Acme Racing,Pro,XYZ123,RedBull;Shell,GT3,Podium,,
`
	participants, err := parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(participants) != 1 {
		t.Fatalf("expected 1 participant, got %d", len(participants))
	}
	p := participants[0]
	if p.Numero != "12" {
		t.Errorf("expected number 12, got %q", p.Numero)
	}
	if len(p.DriverNames) != 1 || p.DriverNames[0] != "Jane Smith" {
		t.Errorf("unexpected driver names: %v", p.DriverNames)
	}
	if p.Team != "Acme Racing" {
		t.Errorf("expected team Acme Racing, got %q", p.Team)
	}
	if len(p.Sponsors) != 2 || p.Sponsors[0] != "RedBull" || p.Sponsors[1] != "Shell" {
		t.Errorf("unexpected sponsors: %v", p.Sponsors)
	}
	if p.Folder1 != "Podium" {
		t.Errorf("expected folder1 Podium, got %q", p.Folder1)
	}
}

func TestParseLegacyMultiDriverColumns(t *testing.T) {
	csv := `numero,nome_pilota,nome_navigatore,squadra,metatag,folder_1
7,Alice,Bob,Team X,Rally,Winners
`
	participants, err := parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(participants) != 1 {
		t.Fatalf("expected 1 participant, got %d", len(participants))
	}
	p := participants[0]
	if len(p.DriverNames) != 2 || p.DriverNames[0] != "Alice" || p.DriverNames[1] != "Bob" {
		t.Errorf("unexpected driver names: %v", p.DriverNames)
	}
	if p.Team != "Team X" {
		t.Errorf("expected team Team X, got %q", p.Team)
	}
}

func TestParseSkipsEmptyRows(t *testing.T) {
	csv := `Number,Driver,Team
,,
8,Carl,Team Y
`
	participants, err := parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(participants) != 1 {
		t.Fatalf("expected empty row to be skipped, got %d participants", len(participants))
	}
	if participants[0].Numero != "8" {
		t.Errorf("expected number 8, got %q", participants[0].Numero)
	}
}

func TestParseUnknownColumnsGoToOverflow(t *testing.T) {
	csv := `Number,Driver,Notes
3,Dee,loud car
`
	participants, err := parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(participants) != 1 {
		t.Fatalf("expected 1 participant, got %d", len(participants))
	}
	if got := participants[0].Overflow["Notes"]; got != "loud car" {
		t.Errorf("expected overflow Notes=loud car, got %q", got)
	}
}
