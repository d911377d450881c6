// Package db query surface: the common visibility predicate and the
// timeline queries that all apply it (spec.md 4.B "Queries"). Every
// query here is read-only and composes raw SQL fragments rather than an
// ORM, matching the rest of the package's convention.
package db

import (
	"database/sql"
	"strings"

	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

// visibilityPredicate is the WHERE-clause fragment implementing spec.md
// 4.B's six-way visibility rule for a given viewer. It is parameterized by
// repeating the viewer id as needed; callers must pass viewerID that many
// times as args, in the order the placeholders appear.
//
//  1. viewer is the author
//  2. visibility = public
//  3. viewer appears in the mention list
//  4. viewer is the author of the post's repost-of parent
//  5. viewer has a Follow edge (Followers) or Subscription edge (Subscribers)
//  6. visibility = conversation and the root of that conversation is visible
//     by rules 1-5 (approximated here as: the root's author is the viewer,
//     public, the viewer is a root mention, or the viewer follows/subscribes
//     to the root's author — evaluated via a correlated subquery)
const visibilityPredicate = `(
	posts.author_id = ?
	OR posts.visibility = 'public'
	OR EXISTS (SELECT 1 FROM mentions WHERE mentions.post_id = posts.id AND mentions.actor_id = ?)
	OR (posts.repost_of IS NOT NULL AND EXISTS (
		SELECT 1 FROM posts rp WHERE rp.id = posts.repost_of AND rp.author_id = ?
	))
	OR (posts.visibility = 'followers' AND EXISTS (
		SELECT 1 FROM relationships WHERE relationships.source_id = ? AND relationships.target_id = posts.author_id AND relationships.kind = 'follow'
	))
	OR (posts.visibility = 'subscribers' AND EXISTS (
		SELECT 1 FROM relationships WHERE relationships.source_id = ? AND relationships.target_id = posts.author_id AND relationships.kind = 'subscription'
	))
	OR (posts.visibility = 'conversation' AND EXISTS (
		SELECT 1 FROM posts root
		WHERE root.id = (SELECT root_post_id FROM conversations WHERE conversations.id = posts.conversation_id)
		AND (
			root.author_id = ?
			OR root.visibility = 'public'
			OR EXISTS (SELECT 1 FROM mentions m2 WHERE m2.post_id = root.id AND m2.actor_id = ?)
			OR EXISTS (SELECT 1 FROM relationships r2 WHERE r2.source_id = ? AND r2.target_id = root.author_id AND r2.kind IN ('follow', 'subscription'))
		)
	))
)`

// visibilityArgCount is how many times viewerID must be repeated to fill
// visibilityPredicate's placeholders.
const visibilityArgCount = 8

func visibilityArgs(viewerID uuid.UUID) []any {
	args := make([]any, visibilityArgCount)
	for i := range args {
		args[i] = viewerID
	}
	return args
}

func scanPostRows(rows *sql.Rows) ([]domain.Post, error) {
	var out []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ReadPublicTimeline returns every public post visible instance-wide,
// newest first.
func (d *DB) ReadPublicTimeline(limit int) (error, []domain.Post) {
	rows, err := d.db.Query(`SELECT `+postColumns+` FROM posts WHERE visibility = 'public' AND repost_of IS NULL ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	out, err := scanPostRows(rows)
	return err, out
}

// ReadHomeTimeline returns posts by followed actors (or the viewer's own),
// applying the visibility predicate, Follow+HideReposts/HideReplies
// masking, and omitting muted authors.
func (d *DB) ReadHomeTimeline(viewerID uuid.UUID, limit int) (error, []domain.Post) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE ` + visibilityPredicate + `
		AND (posts.author_id = ? OR EXISTS (
			SELECT 1 FROM relationships f WHERE f.source_id = ? AND f.target_id = posts.author_id AND f.kind = 'follow'
		))
		AND NOT EXISTS (
			SELECT 1 FROM relationships mu WHERE mu.source_id = ? AND mu.target_id = posts.author_id AND mu.kind = 'mute'
		)
		AND NOT (posts.repost_of IS NOT NULL AND EXISTS (
			SELECT 1 FROM relationships hr WHERE hr.source_id = ? AND hr.target_id = posts.author_id AND hr.kind = 'hide_reposts'
		))
		AND NOT (posts.in_reply_to IS NOT NULL AND EXISTS (
			SELECT 1 FROM relationships hy WHERE hy.source_id = ? AND hy.target_id = posts.author_id AND hy.kind = 'hide_replies'
		))
		ORDER BY posts.created_at DESC LIMIT ?`

	args := append(visibilityArgs(viewerID), viewerID, viewerID, viewerID, viewerID, viewerID, limit)
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	out, err := scanPostRows(rows)
	return err, out
}

// ReadDirectTimeline returns direct-addressed posts visible to viewer.
func (d *DB) ReadDirectTimeline(viewerID uuid.UUID, limit int) (error, []domain.Post) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE posts.visibility = 'direct' AND ` + visibilityPredicate + `
		ORDER BY posts.created_at DESC LIMIT ?`
	args := append(visibilityArgs(viewerID), limit)
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	out, err := scanPostRows(rows)
	return err, out
}

// ReadTagTimeline returns public posts carrying the given (already
// normalized) hashtag.
func (d *DB) ReadTagTimeline(tag string, limit int) (error, []domain.Post) {
	query := `SELECT ` + postColumns + ` FROM posts
		INNER JOIN post_hashtags ON post_hashtags.post_id = posts.id
		INNER JOIN hashtags ON hashtags.id = post_hashtags.hashtag_id
		WHERE hashtags.name = ? AND posts.visibility = 'public'
		ORDER BY posts.created_at DESC LIMIT ?`
	rows, err := d.db.Query(query, strings.ToLower(tag), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	out, err := scanPostRows(rows)
	return err, out
}

// ReadProfileTimeline returns an actor's posts visible to viewer (the
// outbox / profile page), newest first.
func (d *DB) ReadProfileTimeline(authorID, viewerID uuid.UUID, limit int) (error, []domain.Post) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE posts.author_id = ? AND ` + visibilityPredicate + `
		ORDER BY posts.created_at DESC LIMIT ?`
	args := append([]any{authorID}, append(visibilityArgs(viewerID), limit)...)
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	out, err := scanPostRows(rows)
	return err, out
}

// ThreadPost is one entry of a thread query: the post plus whether its
// in-reply-to chain crosses a hidden author (spec.md 4.B: "the thread query
// marks a post with parent_visible = false whenever its in-reply-to chain
// crosses a hidden author").
type ThreadPost struct {
	Post          domain.Post
	ParentVisible bool
}

// ReadThread walks the in_reply_to chain upward from postID, then reads
// postID's direct replies (one level; deeper descendants are not read),
// checking each with isVisibleTo and marking ParentVisible accordingly.
func (d *DB) ReadThread(postID, viewerID uuid.UUID) (error, []ThreadPost) {
	var chain []domain.Post
	cur := postID
	for {
		p, err := scanPost(d.db.QueryRow(sqlSelectPostById, cur.String()))
		if err != nil {
			break
		}
		chain = append([]domain.Post{*p}, chain...)
		if p.InReplyTo == nil {
			break
		}
		cur = *p.InReplyTo
	}

	replyRows, err := d.db.Query(`SELECT `+postColumns+` FROM posts WHERE in_reply_to = ? ORDER BY created_at ASC`, postID.String())
	if err != nil {
		return err, nil
	}
	replies, err := scanPostRows(replyRows)
	replyRows.Close()
	if err != nil {
		return err, nil
	}

	all := append(chain, replies...)
	out := make([]ThreadPost, 0, len(all))
	parentVisible := true
	for _, p := range all {
		visible := d.isVisibleTo(p, viewerID)
		if p.Id != postID && !visible {
			parentVisible = false
		}
		out = append(out, ThreadPost{Post: p, ParentVisible: parentVisible || p.Id == postID})
	}
	return nil, out
}

// isVisibleTo checks part of the visibility predicate for a single
// in-memory post, used by ReadThread's chain-walk which already has the
// rows loaded: author, Public, mention, and a Follow edge for Followers
// posts. The repost-of, Subscription and Conversation rules are not checked.
func (d *DB) isVisibleTo(p domain.Post, viewerID uuid.UUID) bool {
	if p.AuthorId == viewerID || p.Visibility == domain.VisibilityPublic {
		return true
	}
	var count int
	_ = d.db.QueryRow(`SELECT COUNT(*) FROM mentions WHERE post_id = ? AND actor_id = ?`, p.Id.String(), viewerID.String()).Scan(&count)
	if count > 0 {
		return true
	}
	if p.Visibility == domain.VisibilityFollowers {
		following, _ := d.IsFollowing(viewerID, p.AuthorId)
		return following
	}
	return false
}
