// Package catalog provides the pipeline's scratch store: a process-local,
// in-memory SQLite database holding one batch's roster index and match
// outcomes, plus live batch counters. It is deliberately not a durable,
// cross-run catalog — every Catalog is opened against ":memory:" and
// discarded with the batch that created it.
package catalog

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/racetagger/pipeline/pkg/models"
)

const schema = `
CREATE TABLE participants (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	numero TEXT NOT NULL,
	driver_names TEXT NOT NULL,
	team TEXT NOT NULL,
	sponsors TEXT NOT NULL,
	metatag TEXT NOT NULL,
	folder_1 TEXT NOT NULL,
	folder_2 TEXT NOT NULL,
	folder_3 TEXT NOT NULL
);

CREATE INDEX idx_participants_numero ON participants(numero);

CREATE TABLE match_outcomes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	image_path TEXT NOT NULL,
	numero TEXT NOT NULL,
	confidence REAL NOT NULL
);

CREATE INDEX idx_outcomes_path ON match_outcomes(image_path);

CREATE TABLE image_hashes (
	image_path TEXT PRIMARY KEY,
	hash TEXT NOT NULL
);
`

const sep = "\x1f" // unit separator; roster values never legitimately contain it

// Catalog is a per-batch scratch store: roster lookups by race number, and
// a running ledger of match outcomes used by the matcher's temporal bonus
// (has any neighboring frame already been matched to this number?).
type Catalog struct {
	db *sql.DB

	mu    sync.Mutex
	stats models.BatchStats
}

// Open creates a fresh in-memory catalog. The returned Catalog owns the
// connection and must be closed with Close when the batch finishes.
func Open() (*Catalog, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("catalog: opening scratch store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: creating schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close releases the in-memory database. Safe to call once per Catalog.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// LoadRoster indexes a roster's participants for lookup by race number.
// A race number may legitimately appear more than once (e.g. a
// co-driver-only entry sharing a car's number across rounds), so this is
// intentionally not a unique index.
func (c *Catalog) LoadRoster(participants []models.Participant) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("catalog: beginning roster load: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO participants (numero, driver_names, team, sponsors, metatag, folder_1, folder_2, folder_3)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("catalog: preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range participants {
		_, err := stmt.Exec(
			p.Numero,
			strings.Join(p.DriverNames, sep),
			p.Team,
			strings.Join(p.Sponsors, sep),
			p.Metatag,
			p.Folder1,
			p.Folder2,
			p.Folder3,
		)
		if err != nil {
			return fmt.Errorf("catalog: inserting participant %s: %w", p.Numero, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: committing roster load: %w", err)
	}
	return nil
}

// ByNumber returns every roster entry sharing the given race number.
// Returns an empty slice (not an error) when the number isn't on the
// roster — that's the expected "unknown number" case, not a failure.
func (c *Catalog) ByNumber(numero string) ([]models.Participant, error) {
	rows, err := c.db.Query(`
		SELECT numero, driver_names, team, sponsors, metatag, folder_1, folder_2, folder_3
		FROM participants WHERE numero = ?
	`, numero)
	if err != nil {
		return nil, fmt.Errorf("catalog: querying number %s: %w", numero, err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		var drivers, sponsors string
		if err := rows.Scan(&p.Numero, &drivers, &p.Team, &sponsors, &p.Metatag, &p.Folder1, &p.Folder2, &p.Folder3); err != nil {
			return nil, fmt.Errorf("catalog: scanning participant: %w", err)
		}
		p.DriverNames = splitNonEmpty(drivers)
		p.Sponsors = splitNonEmpty(sponsors)
		out = append(out, p)
	}
	return out, rows.Err()
}

// All returns every roster entry, used by the matcher when scoring
// against the full field (e.g. sponsor/driver fuzzy matching with no
// recognized number to narrow by).
func (c *Catalog) All() ([]models.Participant, error) {
	rows, err := c.db.Query(`SELECT numero, driver_names, team, sponsors, metatag, folder_1, folder_2, folder_3 FROM participants`)
	if err != nil {
		return nil, fmt.Errorf("catalog: querying all participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		var drivers, sponsors string
		if err := rows.Scan(&p.Numero, &drivers, &p.Team, &sponsors, &p.Metatag, &p.Folder1, &p.Folder2, &p.Folder3); err != nil {
			return nil, fmt.Errorf("catalog: scanning participant: %w", err)
		}
		p.DriverNames = splitNonEmpty(drivers)
		p.Sponsors = splitNonEmpty(sponsors)
		out = append(out, p)
	}
	return out, rows.Err()
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, sep)
}

// RecordOutcome logs a successful match for temporal-bonus lookups:
// later frames in the same burst consult RecordOutcome's ledger via
// OutcomesWithConfidence to see what nearby frames already resolved to.
func (c *Catalog) RecordOutcome(imagePath, numero string, confidence float64) error {
	_, err := c.db.Exec(`INSERT INTO match_outcomes (image_path, numero, confidence) VALUES (?, ?, ?)`,
		imagePath, numero, confidence)
	if err != nil {
		return fmt.Errorf("catalog: recording outcome for %s: %w", imagePath, err)
	}
	return nil
}

// OutcomesFor returns every recorded match outcome for a given image path
// (normally zero or one, but a frame may be re-matched across retries).
func (c *Catalog) OutcomesFor(imagePath string) ([]string, error) {
	rows, err := c.db.Query(`SELECT numero FROM match_outcomes WHERE image_path = ?`, imagePath)
	if err != nil {
		return nil, fmt.Errorf("catalog: querying outcomes for %s: %w", imagePath, err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("catalog: scanning outcome: %w", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// OutcomeConfidence pairs a recorded match outcome's race number with the
// confidence it was matched at, for the matcher's temporal-bonus lookup.
type OutcomeConfidence struct {
	Numero     string
	Confidence float64
}

// OutcomesWithConfidence is OutcomesFor plus the confidence each outcome
// was recorded at, consumed by the per-image worker when it assembles a
// recognized vehicle's temporal neighbor context.
func (c *Catalog) OutcomesWithConfidence(imagePath string) ([]OutcomeConfidence, error) {
	rows, err := c.db.Query(`SELECT numero, confidence FROM match_outcomes WHERE image_path = ?`, imagePath)
	if err != nil {
		return nil, fmt.Errorf("catalog: querying outcomes for %s: %w", imagePath, err)
	}
	defer rows.Close()

	var out []OutcomeConfidence
	for rows.Next() {
		var o OutcomeConfidence
		if err := rows.Scan(&o.Numero, &o.Confidence); err != nil {
			return nil, fmt.Errorf("catalog: scanning outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecordHash stores a processed image's perceptual hash for later
// near-duplicate comparison against its temporal neighbors.
func (c *Catalog) RecordHash(imagePath, hash string) error {
	_, err := c.db.Exec(`INSERT OR REPLACE INTO image_hashes (image_path, hash) VALUES (?, ?)`, imagePath, hash)
	if err != nil {
		return fmt.Errorf("catalog: recording hash for %s: %w", imagePath, err)
	}
	return nil
}

// HashFor returns a previously recorded perceptual hash for imagePath, or
// ok=false if none has been recorded yet (the neighbor hasn't finished
// processing, or has no decodable preview).
func (c *Catalog) HashFor(imagePath string) (hash string, ok bool, err error) {
	row := c.db.QueryRow(`SELECT hash FROM image_hashes WHERE image_path = ?`, imagePath)
	if err := row.Scan(&hash); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("catalog: querying hash for %s: %w", imagePath, err)
	}
	return hash, true, nil
}

// Stats returns a snapshot of the batch's live counters.
func (c *Catalog) Stats() models.BatchStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// UpdateStats mutates the batch counters under lock. Callers pass a
// closure so multi-field updates (e.g. Processed++ and Successful++
// together) stay atomic with respect to Stats snapshots.
func (c *Catalog) UpdateStats(fn func(*models.BatchStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.stats)
}
