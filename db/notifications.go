package db

import (
	"database/sql"

	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

const (
	notificationColumns = `id, actor_id, notification_type, source_actor_id, source_handle, post_id,
		post_uri, post_preview, read, created_at`

	sqlInsertNotification = `INSERT INTO notifications(` + notificationColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?)`

	sqlSelectNotificationsByActor = `SELECT ` + notificationColumns + ` FROM notifications
		WHERE actor_id = ? ORDER BY created_at DESC LIMIT ?`
	sqlMarkNotificationRead = `UPDATE notifications SET read = 1 WHERE id = ?`

	// sqlExistsNotification enforces "at-most-once per post" for a given
	// (actor, type, source, post) tuple, per spec.md 4.B CreatePost. A NULL
	// post_id never compares equal, so rows without a post never match.
	sqlExistsNotification = `SELECT COUNT(*) FROM notifications
		WHERE actor_id = ? AND notification_type = ? AND source_actor_id = ? AND post_id = ?`
)

func scanNotification(row interface{ Scan(...any) error }) (*domain.Notification, error) {
	var n domain.Notification
	var postId sql.NullString
	var postURI, postPreview sql.NullString
	var read int
	if err := row.Scan(&n.Id, &n.ActorId, &n.NotificationType, &n.SourceActorId, &n.SourceHandle,
		&postId, &postURI, &postPreview, &read, &n.CreatedAt); err != nil {
		return nil, err
	}
	if postId.Valid && postId.String != "" {
		id, err := uuid.Parse(postId.String)
		if err == nil {
			n.PostId = &id
		}
	}
	n.PostURI = postURI.String
	n.PostPreview = postPreview.String
	n.Read = read != 0
	return &n, nil
}

// CreateNotificationOnce inserts a notification unless an identical
// (actor, type, source, post) tuple already exists, satisfying the
// at-most-once-per-post rule spec.md 4.B requires for reply/repost/mention
// notifications. A notification with no post (PostId nil) is always
// inserted; it is not deduplicated.
func (d *DB) CreateNotificationOnce(n *domain.Notification) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		var postId any
		if n.PostId != nil {
			postId = n.PostId.String()
		}

		var count int
		if err := tx.QueryRow(sqlExistsNotification, n.ActorId, n.NotificationType, n.SourceActorId, postId).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		if n.Id == uuid.Nil {
			n.Id = uuid.New()
		}
		_, err := tx.Exec(sqlInsertNotification,
			n.Id, n.ActorId, n.NotificationType, n.SourceActorId, n.SourceHandle, postId,
			nullString(n.PostURI), nullString(n.PostPreview), boolToInt(n.Read), timeOrNow(n.CreatedAt),
		)
		return err
	})
}

func (d *DB) ReadNotifications(actorId uuid.UUID, limit int) (error, []domain.Notification) {
	rows, err := d.db.Query(sqlSelectNotificationsByActor, actorId.String(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return err, nil
		}
		out = append(out, *n)
	}
	return nil, out
}

func (d *DB) MarkNotificationRead(id uuid.UUID) error {
	_, err := d.db.Exec(sqlMarkNotificationRead, id.String())
	return err
}
