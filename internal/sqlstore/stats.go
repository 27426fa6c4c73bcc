package sqlstore

import "database/sql"

// Stats is a snapshot of the cache's on-disk state, read directly
// without going through the worker: a plain read-mostly helper query
// alongside the main write-serializing path, the same way the teacher
// exposes GetExportHash without routing it through flush scheduling.
type Stats struct {
	RowCount        int64
	ExpiredRowCount int64
	LastVacuumAt    int64 // tick, 0 if VACUUM has never run
}

// Stats reads row counts and the last VACUUM time directly against the
// database. It takes no lock on the worker and may race with an
// in-flight chunk or vacuum; callers that need a consistent view should
// Flush first.
func (c *Conn) Stats(now int64) (Stats, error) {
	var s Stats
	row := c.db.QueryRow(`SELECT COUNT(*) FROM CacheElement`)
	if err := row.Scan(&s.RowCount); err != nil {
		return Stats{}, err
	}

	row = c.db.QueryRow(`SELECT COUNT(*) FROM CacheElement WHERE Expiration < ?`, now)
	if err := row.Scan(&s.ExpiredRowCount); err != nil {
		return Stats{}, err
	}

	row = c.db.QueryRow(`SELECT LastVacuumAt FROM CacheVacuumLog WHERE Id = 1`)
	if err := row.Scan(&s.LastVacuumAt); err != nil {
		if err != sql.ErrNoRows {
			return Stats{}, err
		}
		s.LastVacuumAt = 0
	}
	return s, nil
}
