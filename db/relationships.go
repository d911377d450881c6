package db

import (
	"database/sql"
	"time"

	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertRelationship = `INSERT INTO relationships(id, source_id, target_id, kind, uri, created_at) VALUES (?,?,?,?,?,?)`
	sqlSelectRelationship = `SELECT id, source_id, target_id, kind, uri, created_at FROM relationships WHERE source_id = ? AND target_id = ? AND kind = ?`
	sqlSelectRelationshipByURI = `SELECT id, source_id, target_id, kind, uri, created_at FROM relationships WHERE uri = ?`
	sqlDeleteRelationship  = `DELETE FROM relationships WHERE source_id = ? AND target_id = ? AND kind = ?`
	sqlUpdateRelationshipKind = `UPDATE relationships SET kind = ? WHERE source_id = ? AND target_id = ? AND kind = ?`
	sqlSelectFollowers     = `SELECT id, source_id, target_id, kind, uri, created_at FROM relationships WHERE target_id = ? AND kind = 'follow'`
	sqlSelectFollowing     = `SELECT id, source_id, target_id, kind, uri, created_at FROM relationships WHERE source_id = ? AND kind = 'follow'`
	sqlSelectSubscribers   = `SELECT id, source_id, target_id, kind, uri, created_at FROM relationships WHERE target_id = ? AND kind = 'subscription'`
)

func scanRelationship(row interface{ Scan(...any) error }) (*domain.Relationship, error) {
	var r domain.Relationship
	var uri sql.NullString
	if err := row.Scan(&r.Id, &r.SourceId, &r.TargetId, &r.Kind, &uri, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.URI = uri.String
	return &r, nil
}

// Follow creates an accepted Follow edge: removes any reverse Reject edge
// and increments follower/following counts. It creates no follow
// notification and returns only an error.
func (d *DB) Follow(sourceId, targetId uuid.UUID, uri string) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteRelationship, targetId, sourceId, domain.RelReject); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlInsertRelationship, uuid.New(), sourceId, targetId, domain.RelFollow, nullString(uri), time.Now()); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlIncrementFollowerCount, targetId); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlIncrementFollowingCount, sourceId); err != nil {
			return err
		}
		return nil
	})
}

// CreateFollowRequest records a pending follow awaiting approval.
func (d *DB) CreateFollowRequest(sourceId, targetId uuid.UUID, uri string) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertRelationship, uuid.New(), sourceId, targetId, domain.RelFollowRequest, nullString(uri), time.Now())
		return err
	})
}

// AcceptFollowRequestByURI converts a pending FollowRequest into an accepted
// Follow edge, atomically, incrementing the follower/following counts.
func (d *DB) AcceptFollowRequestByURI(uri string) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(sqlSelectRelationshipByURI, uri)
		rel, err := scanRelationship(row)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(sqlUpdateRelationshipKind, domain.RelFollow, rel.SourceId, rel.TargetId, domain.RelFollowRequest); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlIncrementFollowerCount, rel.TargetId); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlIncrementFollowingCount, rel.SourceId); err != nil {
			return err
		}
		return nil
	})
}

// Unfollow deletes the Follow edge (and any pending FollowRequest), reverts
// counters, and clears the HideReposts/HideReplies flags that only make
// sense in the presence of a Follow.
func (d *DB) Unfollow(sourceId, targetId uuid.UUID) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		var existed bool
		row := tx.QueryRow(sqlSelectRelationship, sourceId, targetId, domain.RelFollow)
		if _, err := scanRelationship(row); err == nil {
			existed = true
		}

		if _, err := tx.Exec(sqlDeleteRelationship, sourceId, targetId, domain.RelFollow); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlDeleteRelationship, sourceId, targetId, domain.RelFollowRequest); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlDeleteRelationship, sourceId, targetId, domain.RelHideReposts); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlDeleteRelationship, sourceId, targetId, domain.RelHideReplies); err != nil {
			return err
		}

		if existed {
			if _, err := tx.Exec(sqlDecrementFollowerCount, targetId); err != nil {
				return err
			}
			if _, err := tx.Exec(sqlDecrementFollowingCount, sourceId); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) ReadRelationship(sourceId, targetId uuid.UUID, kind domain.RelationshipKind) (error, *domain.Relationship) {
	row := d.db.QueryRow(sqlSelectRelationship, sourceId, targetId, kind)
	r, err := scanRelationship(row)
	if err != nil {
		return err, nil
	}
	return nil, r
}

func (d *DB) ReadRelationshipByURI(uri string) (error, *domain.Relationship) {
	row := d.db.QueryRow(sqlSelectRelationshipByURI, uri)
	r, err := scanRelationship(row)
	if err != nil {
		return err, nil
	}
	return nil, r
}

func (d *DB) ReadFollowers(targetId uuid.UUID) (error, []domain.Relationship) {
	return d.queryRelationships(sqlSelectFollowers, targetId)
}

func (d *DB) ReadFollowing(sourceId uuid.UUID) (error, []domain.Relationship) {
	return d.queryRelationships(sqlSelectFollowing, sourceId)
}

func (d *DB) ReadSubscribers(targetId uuid.UUID) (error, []domain.Relationship) {
	return d.queryRelationships(sqlSelectSubscribers, targetId)
}

func (d *DB) queryRelationships(query string, arg uuid.UUID) (error, []domain.Relationship) {
	rows, err := d.db.Query(query, arg)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var out []domain.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return err, nil
		}
		out = append(out, *r)
	}
	return nil, out
}

// IsFollowing reports whether a Follow edge source->target exists.
func (d *DB) IsFollowing(sourceId, targetId uuid.UUID) (bool, error) {
	err, r := d.ReadRelationship(sourceId, targetId, domain.RelFollow)
	if err != nil {
		return false, nil
	}
	return r != nil, nil
}

// Mute creates a Mute edge (viewer mutes author); Reject creates a Reject
// edge (source rejects target's follow, deleting any Follow target->source).
func (d *DB) Mute(sourceId, targetId uuid.UUID) error {
	return d.insertSimpleRelationship(sourceId, targetId, domain.RelMute)
}

func (d *DB) Unmute(sourceId, targetId uuid.UUID) error {
	_, err := d.db.Exec(sqlDeleteRelationship, sourceId, targetId, domain.RelMute)
	return err
}

func (d *DB) Reject(sourceId, targetId uuid.UUID) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteRelationship, targetId, sourceId, domain.RelFollow); err != nil {
			return err
		}
		_, err := tx.Exec(sqlInsertRelationship, uuid.New(), sourceId, targetId, domain.RelReject, nil, time.Now())
		return err
	})
}

func (d *DB) HideReposts(sourceId, targetId uuid.UUID) error {
	return d.insertSimpleRelationship(sourceId, targetId, domain.RelHideReposts)
}

func (d *DB) HideReplies(sourceId, targetId uuid.UUID) error {
	return d.insertSimpleRelationship(sourceId, targetId, domain.RelHideReplies)
}

func (d *DB) Subscribe(sourceId, targetId uuid.UUID) error {
	return d.insertSimpleRelationship(sourceId, targetId, domain.RelSubscription)
}

func (d *DB) insertSimpleRelationship(sourceId, targetId uuid.UUID, kind domain.RelationshipKind) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertRelationship, uuid.New(), sourceId, targetId, kind, nil, time.Now())
		return err
	})
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
