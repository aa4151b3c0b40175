// Package constants resolves per-lake augmentation constants (surface
// area, percent developed, percent agricultural) from a local sqlite
// store keyed by lake id.
package constants

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lake id has no constants row. Absence
// is a hard per-item failure upstream.
var ErrNotFound = eris.New("constants: lake id not found")

// Values are the three constant-valued feature bands appended to every
// augmented raster, in band order.
type Values struct {
	AreaSqKm        float64
	PctDeveloped    float64
	PctAgricultural float64
}

// Source resolves constants for a lake id.
type Source interface {
	Get(ctx context.Context, lakeID int) (Values, error)
}

// Store is a sqlite-backed Source.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the constants database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "constants: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "constants: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS lake_constants (
	lagoslakeid      INTEGER PRIMARY KEY,
	surface_area_km2 REAL NOT NULL,
	pct_developed    REAL NOT NULL,
	pct_agricultural REAL NOT NULL
);
`

// Migrate creates the schema if needed.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "constants: migrate")
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the constants for a lake id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, lakeID int) (Values, error) {
	var v Values
	err := s.db.QueryRowContext(ctx,
		`SELECT surface_area_km2, pct_developed, pct_agricultural FROM lake_constants WHERE lagoslakeid = ?`,
		lakeID,
	).Scan(&v.AreaSqKm, &v.PctDeveloped, &v.PctAgricultural)
	if errors.Is(err, sql.ErrNoRows) {
		return Values{}, eris.Wrapf(ErrNotFound, "lagoslakeid %d", lakeID)
	}
	if err != nil {
		return Values{}, eris.Wrapf(err, "constants: get %d", lakeID)
	}
	return v, nil
}

// Put upserts the constants row for a lake id.
func (s *Store) Put(ctx context.Context, lakeID int, v Values) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lake_constants (lagoslakeid, surface_area_km2, pct_developed, pct_agricultural)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(lagoslakeid) DO UPDATE SET
		   surface_area_km2 = excluded.surface_area_km2,
		   pct_developed    = excluded.pct_developed,
		   pct_agricultural = excluded.pct_agricultural`,
		lakeID, v.AreaSqKm, v.PctDeveloped, v.PctAgricultural,
	)
	return eris.Wrapf(err, "constants: put %d", lakeID)
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lake_constants`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "constants: count")
	}
	return n, nil
}

// ImportCSV loads rows of the form lagoslakeid,surface_area_km2,
// pct_developed,pct_agricultural. A header row is detected and skipped.
// Returns the number of imported rows.
func (s *Store) ImportCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "constants: open csv %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 4

	var imported int
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, eris.Wrapf(err, "constants: read csv %s", path)
		}
		id, v, rowErr := parseRow(record)
		if rowErr != nil {
			if imported == 0 {
				continue // header row
			}
			return imported, eris.Wrapf(rowErr, "constants: csv row %v", record)
		}
		if err := s.Put(ctx, id, v); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// ImportXLSX loads the same four columns from the first sheet of an
// XLSX workbook, skipping the header row.
func (s *Store) ImportXLSX(ctx context.Context, path string) (int, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "constants: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return 0, eris.Errorf("constants: %s has no sheets", path)
	}

	var imported int
	for i, row := range f.Sheets[0].Rows {
		if len(row.Cells) < 4 {
			continue
		}
		cells := make([]string, 4)
		for j := 0; j < 4; j++ {
			cells[j] = row.Cells[j].String()
		}
		id, v, rowErr := parseRow(cells)
		if rowErr != nil {
			if i == 0 {
				continue // header row
			}
			return imported, eris.Wrapf(rowErr, "constants: xlsx row %d", i+1)
		}
		if err := s.Put(ctx, id, v); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func parseRow(cells []string) (int, Values, error) {
	if len(cells) < 4 {
		return 0, Values{}, eris.Errorf("want 4 columns, got %d", len(cells))
	}
	id, err := strconv.Atoi(cells[0])
	if err != nil {
		return 0, Values{}, eris.Wrap(err, "lake id")
	}
	var vals [3]float64
	for i := 0; i < 3; i++ {
		vals[i], err = strconv.ParseFloat(cells[i+1], 64)
		if err != nil {
			return 0, Values{}, eris.Wrapf(err, "column %d", i+2)
		}
	}
	return id, Values{AreaSqKm: vals[0], PctDeveloped: vals[1], PctAgricultural: vals[2]}, nil
}
