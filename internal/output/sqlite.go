package output

import (
	"context"
	"database/sql"
	"math"
	"os"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/model"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE units (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	level    TEXT NOT NULL,
	parent   TEXT,
	area_km2 REAL NOT NULL
);

CREATE TABLE lengths (
	unit         TEXT NOT NULL,
	level        TEXT NOT NULL,
	year         INTEGER NOT NULL,
	line_type    TEXT NOT NULL,
	gauge        TEXT NOT NULL,
	meters       REAL NOT NULL,
	added_meters REAL NOT NULL,
	PRIMARY KEY (unit, year, line_type, gauge)
);

CREATE TABLE distances (
	municipality    TEXT NOT NULL,
	year            INTEGER NOT NULL,
	meters          REAL,
	nearest_segment TEXT,
	PRIMARY KEY (municipality, year)
);

CREATE TABLE access (
	year   INTEGER NOT NULL,
	unit   TEXT NOT NULL,
	name   TEXT NOT NULL,
	kind   TEXT NOT NULL,
	meters REAL NOT NULL,
	PRIMARY KEY (year, unit, kind)
);

CREATE INDEX idx_lengths_year ON lengths(year);
CREATE INDEX idx_distances_year ON distances(year);
`

// writeSQLite recreates the database at path with the tables of b.
func writeSQLite(ctx context.Context, path string, b *Bundle) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "sqlite: remove previous database")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "sqlite: open")
	}
	defer db.Close() //nolint:errcheck

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "sqlite: create schema")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if b.Tree != nil {
		var rows [][]any
		for _, l := range model.Levels {
			for _, u := range b.Tree.AtLevel(l) {
				rows = append(rows, []any{u.ID, u.Name, string(u.Level), nullString(u.Parent), u.AreaKm2})
			}
		}
		if err := insertAll(ctx, tx, `INSERT INTO units VALUES (?, ?, ?, ?, ?)`, rows); err != nil {
			return eris.Wrap(err, "sqlite: insert units")
		}
	}

	rows := make([][]any, 0, len(b.Lengths))
	for _, r := range lengthRows(b.Lengths) {
		rows = append(rows, []any{r.UnitID, string(r.Level), r.Year, string(r.LineType), string(r.Gauge), r.Meters, r.AddedMeters})
	}
	if err := insertAll(ctx, tx, `INSERT INTO lengths VALUES (?, ?, ?, ?, ?, ?, ?)`, rows); err != nil {
		return eris.Wrap(err, "sqlite: insert lengths")
	}

	rows = rows[:0]
	for _, d := range b.Distances {
		var m any
		if d.Reachable && !math.IsInf(d.Meters, 1) {
			m = d.Meters
		}
		rows = append(rows, []any{d.MunicipalityID, d.Year, m, nullString(d.NearestSegmentID)})
	}
	if err := insertAll(ctx, tx, `INSERT INTO distances VALUES (?, ?, ?, ?)`, rows); err != nil {
		return eris.Wrap(err, "sqlite: insert distances")
	}

	rows = rows[:0]
	for _, a := range b.Access {
		rows = append(rows, []any{a.Year, a.UnitID, a.Name, string(a.Kind), a.Meters})
	}
	if err := insertAll(ctx, tx, `INSERT INTO access VALUES (?, ?, ?, ?, ?)`, rows); err != nil {
		return eris.Wrap(err, "sqlite: insert access")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func insertAll(ctx context.Context, tx *sql.Tx, query string, rows [][]any) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r...); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
