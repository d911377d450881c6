package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

const (
	actorColumns = `id, username, kind, hostname, actor_uri, inbox_uri, shared_inbox_uri, outbox_uri, followers_uri,
		following_uri, subscribers_uri, featured_uri, display_name, summary, avatar_url, banner_url,
		manually_approves_followers, public_key_pem, private_key_pem, ed25519_public, ed25519_private,
		remote_json, alias_uris, is_admin, muted, post_count, follower_count, following_count,
		unreachable_since, created_at, last_fetched_at`

	sqlInsertActor = `INSERT INTO actors(` + actorColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	sqlSelectActorByURI      = `SELECT ` + actorColumns + ` FROM actors WHERE actor_uri = ?`
	sqlSelectActorById       = `SELECT ` + actorColumns + ` FROM actors WHERE id = ?`
	sqlSelectActorByUsername = `SELECT ` + actorColumns + ` FROM actors WHERE username = ? AND hostname IS NULL`
	sqlSelectActorByHandle   = `SELECT ` + actorColumns + ` FROM actors WHERE username = ? AND hostname = ?`
	sqlSelectActorByInboxURI = `SELECT ` + actorColumns + ` FROM actors WHERE inbox_uri = ? OR shared_inbox_uri = ? LIMIT 1`

	sqlUpdateActor = `UPDATE actors SET display_name=?, summary=?, avatar_url=?, banner_url=?, inbox_uri=?,
		shared_inbox_uri=?, outbox_uri=?, followers_uri=?, following_uri=?, subscribers_uri=?, public_key_pem=?, remote_json=?,
		alias_uris=?, last_fetched_at=? WHERE actor_uri=?`

	sqlDeleteActor = `DELETE FROM actors WHERE id = ?`

	sqlCountAccounts          = `SELECT COUNT(*) FROM actors WHERE hostname IS NULL`
	sqlCountActiveUsersMonth  = `SELECT COUNT(DISTINCT author_id) FROM posts INNER JOIN actors ON actors.id = posts.author_id WHERE actors.hostname IS NULL AND posts.created_at >= datetime('now','-30 days')`
	sqlCountActiveUsersHalf   = `SELECT COUNT(DISTINCT author_id) FROM posts INNER JOIN actors ON actors.id = posts.author_id WHERE actors.hostname IS NULL AND posts.created_at >= datetime('now','-180 days')`
	sqlCountLocalPosts        = `SELECT COUNT(*) FROM posts INNER JOIN actors ON actors.id = posts.author_id WHERE actors.hostname IS NULL`
	sqlMarkActorUnreachable   = `UPDATE actors SET unreachable_since = ? WHERE id = ?`
	sqlClearActorUnreachable  = `UPDATE actors SET unreachable_since = NULL WHERE id = ?`
	sqlIncrementFollowerCount = `UPDATE actors SET follower_count = follower_count + 1 WHERE id = ?`
	sqlDecrementFollowerCount = `UPDATE actors SET follower_count = MAX(follower_count - 1, 0) WHERE id = ?`
	sqlIncrementFollowingCount = `UPDATE actors SET following_count = following_count + 1 WHERE id = ?`
	sqlDecrementFollowingCount = `UPDATE actors SET following_count = MAX(following_count - 1, 0) WHERE id = ?`
	sqlIncrementPostCount     = `UPDATE actors SET post_count = post_count + 1 WHERE id = ?`
)

func scanActor(row interface{ Scan(...any) error }) (*domain.Actor, error) {
	var a domain.Actor
	var hostname, remoteJSON, aliasURIs sql.NullString
	var unreachableSince, lastFetchedAt sql.NullTime
	var manuallyApproves, isAdmin, muted int

	err := row.Scan(
		&a.Id, &a.Username, &a.Kind, &hostname, &a.ActorURI, &a.InboxURI, &a.SharedInboxURI, &a.OutboxURI,
		&a.FollowersURI, &a.FollowingURI, &a.SubscribersURI, &a.FeaturedURI,
		&a.DisplayName, &a.Summary, &a.AvatarURL, &a.BannerURL,
		&manuallyApproves, &a.PublicKeyPEM, &a.PrivateKeyPEM, &a.Ed25519Public, &a.Ed25519Private,
		&remoteJSON, &aliasURIs, &isAdmin, &muted,
		&a.PostCount, &a.FollowerCount, &a.FollowingCount,
		&unreachableSince, &a.CreatedAt, &lastFetchedAt,
	)
	if err != nil {
		return nil, err
	}

	if hostname.Valid && hostname.String != "" {
		h := hostname.String
		a.Hostname = &h
	}
	if remoteJSON.Valid && remoteJSON.String != "" {
		raw := json.RawMessage(remoteJSON.String)
		a.RemoteJSON = &raw
	}
	if aliasURIs.Valid && aliasURIs.String != "" {
		a.AliasURIs = strings.Split(aliasURIs.String, "\n")
	}
	if unreachableSince.Valid {
		a.UnreachableSince = &unreachableSince.Time
	}
	if lastFetchedAt.Valid {
		a.LastFetchedAt = lastFetchedAt.Time
	}
	a.ManuallyApprovesFollowers = manuallyApproves != 0
	a.IsAdmin = isAdmin != 0
	a.Muted = muted != 0
	return &a, nil
}

// CreateActor persists a new local or remote actor row.
func (d *DB) CreateActor(a *domain.Actor) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		var hostname any
		if a.Hostname != nil {
			hostname = *a.Hostname
		}
		var remoteJSON any
		if a.RemoteJSON != nil {
			remoteJSON = string(*a.RemoteJSON)
		}
		_, err := tx.Exec(sqlInsertActor,
			a.Id, a.Username, a.Kind, hostname, a.ActorURI, a.InboxURI, a.SharedInboxURI, a.OutboxURI,
			a.FollowersURI, a.FollowingURI, a.SubscribersURI, a.FeaturedURI,
			a.DisplayName, a.Summary, a.AvatarURL, a.BannerURL,
			boolToInt(a.ManuallyApprovesFollowers), a.PublicKeyPEM, a.PrivateKeyPEM, a.Ed25519Public, a.Ed25519Private,
			remoteJSON, strings.Join(a.AliasURIs, "\n"), boolToInt(a.IsAdmin), boolToInt(a.Muted),
			a.PostCount, a.FollowerCount, a.FollowingCount,
			nullTimePtr(a.UnreachableSince), timeOrNow(a.CreatedAt), nullTime(a.LastFetchedAt),
		)
		return err
	})
}

func (d *DB) ReadActorByURI(uri string) (error, *domain.Actor) {
	row := d.db.QueryRow(sqlSelectActorByURI, uri)
	a, err := scanActor(row)
	if err != nil {
		return err, nil
	}
	return nil, a
}

func (d *DB) ReadActorById(id uuid.UUID) (error, *domain.Actor) {
	row := d.db.QueryRow(sqlSelectActorById, id.String())
	a, err := scanActor(row)
	if err != nil {
		return err, nil
	}
	return nil, a
}

func (d *DB) ReadActorByUsername(username string) (error, *domain.Actor) {
	row := d.db.QueryRow(sqlSelectActorByUsername, username)
	a, err := scanActor(row)
	if err != nil {
		return err, nil
	}
	return nil, a
}

func (d *DB) ReadActorByHandle(username, hostname string) (error, *domain.Actor) {
	row := d.db.QueryRow(sqlSelectActorByHandle, username, hostname)
	a, err := scanActor(row)
	if err != nil {
		return err, nil
	}
	return nil, a
}

// ReadActorByInboxURI looks up whichever remote actor advertises uri as
// its inbox or sharedInbox, used by the Delivery Queue to attribute a
// delivery failure back to an actor for unreachable-streak tracking
// (spec.md 4.G) when a job only carries the inbox URL, not an actor id.
func (d *DB) ReadActorByInboxURI(uri string) (error, *domain.Actor) {
	row := d.db.QueryRow(sqlSelectActorByInboxURI, uri, uri)
	a, err := scanActor(row)
	if err != nil {
		return err, nil
	}
	return nil, a
}

// UpdateActor rewrites a remote actor's mutable profile fields after a
// re-fetch, per the Importer's actor-import conflict handling (§4.D).
func (d *DB) UpdateActor(a *domain.Actor) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		var remoteJSON any
		if a.RemoteJSON != nil {
			remoteJSON = string(*a.RemoteJSON)
		}
		_, err := tx.Exec(sqlUpdateActor,
			a.DisplayName, a.Summary, a.AvatarURL, a.BannerURL, a.InboxURI, a.SharedInboxURI, a.OutboxURI,
			a.FollowersURI, a.FollowingURI, a.SubscribersURI, a.PublicKeyPEM, remoteJSON,
			strings.Join(a.AliasURIs, "\n"), time.Now(), a.ActorURI,
		)
		return err
	})
}

func (d *DB) DeleteActor(id uuid.UUID) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteActor, id.String())
		return err
	})
}

func (d *DB) MarkActorUnreachable(id uuid.UUID, since time.Time) error {
	_, err := d.db.Exec(sqlMarkActorUnreachable, since, id.String())
	return err
}

func (d *DB) ClearActorUnreachable(id uuid.UUID) error {
	_, err := d.db.Exec(sqlClearActorUnreachable, id.String())
	return err
}

func (d *DB) CountAccounts() (int, error) {
	var n int
	err := d.db.QueryRow(sqlCountAccounts).Scan(&n)
	return n, err
}

func (d *DB) CountLocalPosts() (int, error) {
	var n int
	err := d.db.QueryRow(sqlCountLocalPosts).Scan(&n)
	return n, err
}

func (d *DB) CountActiveUsersMonth() (int, error) {
	var n int
	err := d.db.QueryRow(sqlCountActiveUsersMonth).Scan(&n)
	return n, err
}

func (d *DB) CountActiveUsersHalfYear() (int, error) {
	var n int
	err := d.db.QueryRow(sqlCountActiveUsersHalf).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
