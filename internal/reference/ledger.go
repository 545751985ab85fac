package reference

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Ledger is a small persistent table the remote provider consults before
// re-downloading a subtitle, surviving process restarts — unlike the
// in-memory subtitle cache, which does not.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if absent) the download ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open download ledger: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	const schema = `CREATE TABLE IF NOT EXISTS downloads (
		series  TEXT NOT NULL,
		season  INTEGER NOT NULL,
		episode INTEGER NOT NULL,
		path    TEXT NOT NULL,
		PRIMARY KEY (series, season, episode)
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create downloads table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Lookup returns the previously recorded local path for (series, season,
// episode), if any.
func (l *Ledger) Lookup(ctx context.Context, series string, season, episode int) (string, bool) {
	if l == nil {
		return "", false
	}
	var path string
	row := l.db.QueryRowContext(ctx,
		"SELECT path FROM downloads WHERE series = ? AND season = ? AND episode = ?", series, season, episode)
	if err := row.Scan(&path); err != nil {
		return "", false
	}
	return path, true
}

// Record stores the local path for (series, season, episode), overwriting
// any prior entry.
func (l *Ledger) Record(ctx context.Context, series string, season, episode int, path string) error {
	if l == nil {
		return nil
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO downloads (series, season, episode, path) VALUES (?, ?, ?, ?)
		 ON CONFLICT(series, season, episode) DO UPDATE SET path = excluded.path`,
		series, season, episode, path)
	return err
}
