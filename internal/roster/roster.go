// Package roster loads the participant list a batch run matches
// recognized vehicles against.
//
// A roster is a flat CSV export from a race-timing or entry-list system.
// Column names vary by organizer, so loading is permissive: a small set of
// known headers (and a legacy single-name variant) are recognized by
// case-insensitive, whitespace-trimmed match; everything else is kept in
// Participant.Overflow rather than rejected.
package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/racetagger/pipeline/pkg/models"
)

// Each *Columns slice lists the lower-cased header names that fill one
// field. Several aliases exist because organizers export under different names.
var driverColumns = []string{"nome_pilota", "driver", "nome"}
var coDriverColumns = []string{"nome_navigatore", "co_driver", "codriver"}
var thirdColumns = []string{"nome_terzo", "driver_3"}
var fourthColumns = []string{"nome_quarto", "driver_4"}

var numberColumns = []string{"numero", "number", "race_number", "plate_number"}
var teamColumns = []string{"squadra", "team"}
var metatagColumns = []string{"metatag", "category"}
var sponsorColumns = []string{"sponsors", "sponsor"}
var folder1Columns = []string{"folder_1", "folder1"}
var folder2Columns = []string{"folder_2", "folder2"}
var folder3Columns = []string{"folder_3", "folder3"}

// Header is the canonical CSV template header for a starter roster file.
// Load accepts it; this package has no function that writes it.
const Header = "Number,Driver,Team,Category,Plate_Number,Sponsors,Metatag,Folder_1,Folder_2,Folder_3"

// Load reads a roster CSV from path and returns one Participant per data
// row. A row with no number and no driver names is skipped: it carries no
// identifying evidence the matcher could ever use.
func Load(path string) ([]models.Participant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roster: opening %s: %w", path, err)
	}
	defer f.Close()

	return parse(f)
}

func parse(r io.Reader) ([]models.Participant, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("roster: reading header: %w", err)
	}
	index := buildIndex(header)

	var participants []models.Participant
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("roster: reading row: %w", err)
		}
		p := rowToParticipant(header, index, row)
		if p.Numero == "" && len(p.DriverNames) == 0 {
			continue
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// columnIndex maps a logical field name to its position in the header, or
// -1 when that field's column is absent from this roster.
type columnIndex struct {
	number, team, metatag                  int
	driver, coDriver, third, fourth         int
	sponsors, folder1, folder2, folder3     int
}

func buildIndex(header []string) columnIndex {
	idx := columnIndex{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}
	find := func(names []string) int {
		for i, h := range normalized {
			for _, n := range names {
				if h == n {
					return i
				}
			}
		}
		return -1
	}
	idx.number = find(numberColumns)
	idx.team = find(teamColumns)
	idx.metatag = find(metatagColumns)
	idx.driver = find(driverColumns)
	idx.coDriver = find(coDriverColumns)
	idx.third = find(thirdColumns)
	idx.fourth = find(fourthColumns)
	idx.sponsors = find(sponsorColumns)
	idx.folder1 = find(folder1Columns)
	idx.folder2 = find(folder2Columns)
	idx.folder3 = find(folder3Columns)
	return idx
}

func rowToParticipant(header []string, idx columnIndex, row []string) models.Participant {
	get := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	p := models.Participant{
		Numero:  get(idx.number),
		Team:    get(idx.team),
		Metatag: get(idx.metatag),
		Folder1: get(idx.folder1),
		Folder2: get(idx.folder2),
		Folder3: get(idx.folder3),
	}

	for _, i := range []int{idx.driver, idx.coDriver, idx.third, idx.fourth} {
		if name := get(i); name != "" {
			p.DriverNames = append(p.DriverNames, name)
		}
	}

	if sponsorField := get(idx.sponsors); sponsorField != "" {
		for _, s := range strings.Split(sponsorField, ";") {
			if s = strings.TrimSpace(s); s != "" {
				p.Sponsors = append(p.Sponsors, s)
			}
		}
	}

	claimed := map[int]bool{
		idx.number: true, idx.team: true, idx.metatag: true,
		idx.driver: true, idx.coDriver: true, idx.third: true, idx.fourth: true,
		idx.sponsors: true, idx.folder1: true, idx.folder2: true, idx.folder3: true,
	}
	for i, col := range header {
		if claimed[i] || i >= len(row) {
			continue
		}
		val := strings.TrimSpace(row[i])
		if val == "" {
			continue
		}
		if p.Overflow == nil {
			p.Overflow = make(map[string]string)
		}
		p.Overflow[col] = val
	}

	return p
}
