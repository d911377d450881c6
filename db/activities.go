package db

import (
	"database/sql"

	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

const (
	activityColumns = `id, activity_uri, canonical_id, activity_type, actor_uri, object_uri, raw_json,
		local, from_relay, created_at`

	sqlInsertActivity = `INSERT INTO activities(` + activityColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?)`

	sqlSelectActivityByURI         = `SELECT ` + activityColumns + ` FROM activities WHERE activity_uri = ?`
	sqlSelectActivityByCanonicalID = `SELECT ` + activityColumns + ` FROM activities WHERE canonical_id = ?`
	sqlDeleteActivity              = `DELETE FROM activities WHERE id = ?`
)

func scanActivity(row interface{ Scan(...any) error }) (*domain.Activity, error) {
	var a domain.Activity
	var objectURI sql.NullString
	var local, fromRelay int
	if err := row.Scan(&a.Id, &a.ActivityURI, &a.CanonicalID, &a.ActivityType, &a.ActorURI, &objectURI,
		&a.RawJSON, &local, &fromRelay, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ObjectURI = objectURI.String
	a.Local = local != 0
	a.FromRelay = fromRelay != 0
	return &a, nil
}

// CreateActivity persists an activity verbatim, keyed by its canonical id.
// Activities are not owned by any entity; they are garbage-collected
// independently via DeleteActivity when unreachable.
func (d *DB) CreateActivity(a *domain.Activity) error {
	if a.Id == uuid.Nil {
		a.Id = uuid.New()
	}
	_, err := d.db.Exec(sqlInsertActivity,
		a.Id, a.ActivityURI, a.CanonicalID, a.ActivityType, a.ActorURI, nullString(a.ObjectURI),
		a.RawJSON, boolToInt(a.Local), boolToInt(a.FromRelay), timeOrNow(a.CreatedAt),
	)
	return err
}

func (d *DB) ReadActivityByURI(uri string) (error, *domain.Activity) {
	a, err := scanActivity(d.db.QueryRow(sqlSelectActivityByURI, uri))
	if err != nil {
		return err, nil
	}
	return nil, a
}

// ReadActivityByCanonicalID is the lookup used by idempotency checks (Create
// de-duplicates by canonical object id, per spec.md 4.F).
func (d *DB) ReadActivityByCanonicalID(canonicalID string) (error, *domain.Activity) {
	a, err := scanActivity(d.db.QueryRow(sqlSelectActivityByCanonicalID, canonicalID))
	if err != nil {
		return err, nil
	}
	return nil, a
}

func (d *DB) DeleteActivity(id uuid.UUID) error {
	_, err := d.db.Exec(sqlDeleteActivity, id.String())
	return err
}
