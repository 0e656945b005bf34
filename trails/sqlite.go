package trails

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS trails (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	description TEXT,
	difficulty TEXT,
	region TEXT,
	distance_km REAL,
	elevation_gain_m REAL,
	tags TEXT,
	status TEXT,
	latitude REAL,
	longitude REAL
);`

// OpenSQLite opens (creating if needed) the trail database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set sqlite busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create trails table: %w", err)
	}

	return db, nil
}

// LoadSQLite reads every trail row in insertion order. Tags are stored as a
// JSON array of strings; an unparseable tags column yields no tags.
func LoadSQLite(ctx context.Context, db *sql.DB) ([]Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, description, difficulty, region,
		distance_km, elevation_gain_m, tags, status, latitude, longitude
		FROM trails ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query trails: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			id, name                                sql.NullString
			description, difficulty, region, status sql.NullString
			tags                                    sql.NullString
			distance, elevation, lat, lon           sql.NullFloat64
		)
		if err := rows.Scan(&id, &name, &description, &difficulty, &region,
			&distance, &elevation, &tags, &status, &lat, &lon); err != nil {
			return nil, fmt.Errorf("scan trail: %w", err)
		}

		rec := Record{
			ID:          id.String,
			Name:        name.String,
			Description: description.String,
			Difficulty:  difficulty.String,
			Region:      region.String,
			Status:      ParseStatus(status.String),
		}
		if distance.Valid {
			rec.DistanceKm = Float(distance.Float64)
		}
		if elevation.Valid {
			rec.ElevationGainM = Float(elevation.Float64)
		}
		if lat.Valid && lon.Valid {
			rec.Location = &Location{Lat: lat.Float64, Lon: lon.Float64}
		}
		if tags.Valid && gjson.Valid(tags.String) {
			for _, tag := range gjson.Parse(tags.String).Array() {
				if tag.Type == gjson.String {
					rec.Tags = append(rec.Tags, tag.String())
				}
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trails: %w", err)
	}
	return records, nil
}
