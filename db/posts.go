package db

import (
	"database/sql"
	"time"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

const (
	postColumns = `id, author_id, object_uri, content, content_source, language, visibility, is_sensitive,
		in_reply_to, repost_of, conversation_id, is_poll, poll_end_time, reply_count, repost_count,
		reaction_count, like_count, ipfs_cid, created_at, updated_at`

	sqlInsertPost = `INSERT INTO posts(` + postColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	sqlSelectPostById        = `SELECT ` + postColumns + ` FROM posts WHERE id = ?`
	sqlSelectDirectReplies   = `SELECT ` + postColumns + ` FROM posts WHERE in_reply_to = ? AND visibility = 'public' ORDER BY created_at ASC`
	sqlSelectPostByObjectURI = `SELECT ` + postColumns + ` FROM posts WHERE object_uri = ?`

	sqlUpdatePostFields = `UPDATE posts SET content=?, content_source=?, is_sensitive=?, language=?, updated_at=? WHERE id = ?`
	sqlDeletePostRow    = `DELETE FROM posts WHERE id = ?`

	sqlIncrementReplyCount  = `UPDATE posts SET reply_count = reply_count + 1 WHERE id = ?`
	sqlDecrementReplyCount  = `UPDATE posts SET reply_count = MAX(reply_count - 1, 0) WHERE id = ?`
	sqlIncrementRepostCount = `UPDATE posts SET repost_count = repost_count + 1 WHERE id = ?`
	sqlDecrementRepostCount = `UPDATE posts SET repost_count = MAX(repost_count - 1, 0) WHERE id = ?`

	sqlSelectDescendantIds = `WITH RECURSIVE descendants(id) AS (
		SELECT id FROM posts WHERE in_reply_to = ?
		UNION ALL
		SELECT posts.id FROM posts INNER JOIN descendants ON posts.in_reply_to = descendants.id
	) SELECT id FROM descendants`
	sqlSelectRepostIds = `SELECT id FROM posts WHERE repost_of = ?`

	sqlInsertConversation = `INSERT INTO conversations(id, root_post_id, audience) VALUES (?, ?, ?)`
	sqlSelectConversation = `SELECT id, root_post_id, audience FROM conversations WHERE id = ?`
	sqlDeleteConversation = `DELETE FROM conversations WHERE id = ?`
	sqlCountConversationPosts = `SELECT COUNT(*) FROM posts WHERE conversation_id = ?`

	sqlInsertAttachment = `INSERT INTO attachments(id, post_id, media_type, url, name, digest_multibase) VALUES (?,?,?,?,?,?)`
	sqlDeleteAttachmentsByPost = `DELETE FROM attachments WHERE post_id = ?`
	sqlSelectAttachmentsByPost = `SELECT id, post_id, media_type, url, name, digest_multibase FROM attachments WHERE post_id = ?`
	sqlSelectEmojisByPost      = `SELECT post_id, shortcode, icon_url, updated_at FROM post_emojis WHERE post_id = ?`
	sqlSelectEmojiByShortcode  = `SELECT post_id, shortcode, icon_url, updated_at FROM post_emojis WHERE shortcode = ? ORDER BY updated_at DESC LIMIT 1`

	sqlInsertMention         = `INSERT OR IGNORE INTO mentions(post_id, actor_id) VALUES (?, ?)`
	sqlDeleteMentionsByPost  = `DELETE FROM mentions WHERE post_id = ?`
	sqlSelectMentionsByPost  = `SELECT actor_id FROM mentions WHERE post_id = ?`

	sqlUpsertHashtag       = `INSERT INTO hashtags(name) VALUES (?) ON CONFLICT(name) DO UPDATE SET name = excluded.name RETURNING id`
	sqlInsertPostHashtag   = `INSERT OR IGNORE INTO post_hashtags(post_id, hashtag_id) VALUES (?, ?)`
	sqlDeletePostHashtags  = `DELETE FROM post_hashtags WHERE post_id = ?`
	sqlSelectHashtagsByPost = `SELECT hashtags.name FROM post_hashtags INNER JOIN hashtags ON hashtags.id = post_hashtags.hashtag_id WHERE post_hashtags.post_id = ?`

	sqlInsertLink        = `INSERT OR IGNORE INTO post_links(post_id, linked_post_id, position) VALUES (?, ?, ?)`
	sqlDeleteLinksByPost = `DELETE FROM post_links WHERE post_id = ?`
	sqlSelectLinksByPost = `SELECT linked_post_id FROM post_links WHERE post_id = ? ORDER BY position ASC`

	sqlInsertEmoji        = `INSERT OR REPLACE INTO post_emojis(post_id, shortcode, icon_url, updated_at) VALUES (?,?,?,?)`
	sqlDeleteEmojisByPost = `DELETE FROM post_emojis WHERE post_id = ?`
)

func scanPost(row interface{ Scan(...any) error }) (*domain.Post, error) {
	var p domain.Post
	var objectURI, language, ipfsCid sql.NullString
	var inReplyTo, repostOf sql.NullString
	var pollEndTime, updatedAt sql.NullTime
	var isSensitive, isPoll int

	err := row.Scan(
		&p.Id, &p.AuthorId, &objectURI, &p.Content, &p.ContentSource, &language, &p.Visibility, &isSensitive,
		&inReplyTo, &repostOf, &p.ConversationId, &isPoll, &pollEndTime, &p.ReplyCount, &p.RepostCount,
		&p.ReactionCount, &p.LikeCount, &ipfsCid, &p.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ObjectURI = objectURI.String
	p.Language = language.String
	p.IpfsCid = ipfsCid.String
	p.IsSensitive = isSensitive != 0
	p.IsPoll = isPoll != 0
	if inReplyTo.Valid && inReplyTo.String != "" {
		id, err := uuid.Parse(inReplyTo.String)
		if err == nil {
			p.InReplyTo = &id
		}
	}
	if repostOf.Valid && repostOf.String != "" {
		id, err := uuid.Parse(repostOf.String)
		if err == nil {
			p.RepostOf = &id
		}
	}
	if pollEndTime.Valid {
		p.PollEndTime = &pollEndTime.Time
	}
	if updatedAt.Valid {
		p.UpdatedAt = &updatedAt.Time
	}
	return &p, nil
}

// NewPostInput bundles the tag/attachment sets CreatePost inserts alongside
// the post row itself, all inside the same transaction.
type NewPostInput struct {
	Post        *domain.Post
	Mentions    []uuid.UUID
	Hashtags    []string
	Links       []uuid.UUID
	Emojis      []domain.EmojiRef
	Attachments []domain.Attachment
}

// CreatePost is transactional. It allocates/resolves the conversation,
// inserts the post row, inserts its tag sets atomically, enforces the
// reply-to-repost and repost-of-non-public invariants, and updates
// counters. Notification creation is the caller's responsibility (the
// Importer/Builder callers know which actors are local).
func (d *DB) CreatePost(in NewPostInput) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		p := in.Post
		if p.Id == uuid.Nil {
			p.Id = uuid.New()
		}

		if p.InReplyTo != nil {
			parent, err := scanPost(tx.QueryRow(sqlSelectPostById, p.InReplyTo.String()))
			if err != nil {
				return apperr.NotFound("in_reply_to target not found", err)
			}
			if parent.IsRepost() {
				return apperr.Validation("cannot reply to a repost", nil)
			}
			p.ConversationId = parent.ConversationId
			if _, err := tx.Exec(sqlIncrementReplyCount, p.InReplyTo.String()); err != nil {
				return err
			}
		} else if p.RepostOf != nil {
			target, err := scanPost(tx.QueryRow(sqlSelectPostById, p.RepostOf.String()))
			if err != nil {
				return apperr.NotFound("repost_of target not found", err)
			}
			if target.Visibility != domain.VisibilityPublic {
				return apperr.Validation("cannot repost a non-public post", nil)
			}
			p.ConversationId = target.ConversationId
			if _, err := tx.Exec(sqlIncrementRepostCount, p.RepostOf.String()); err != nil {
				return err
			}
		} else {
			convId := uuid.New()
			if _, err := tx.Exec(sqlInsertConversation, convId, p.Id, nil); err != nil {
				return err
			}
			p.ConversationId = convId
		}

		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now()
		}

		_, err := tx.Exec(sqlInsertPost,
			p.Id, p.AuthorId, nullString(p.ObjectURI), p.Content, p.ContentSource, nullString(p.Language),
			p.Visibility, boolToInt(p.IsSensitive), uuidPtrOrNil(p.InReplyTo), uuidPtrOrNil(p.RepostOf),
			p.ConversationId, boolToInt(p.IsPoll), nullTimePtr(p.PollEndTime), p.ReplyCount, p.RepostCount,
			p.ReactionCount, p.LikeCount, nullString(p.IpfsCid), p.CreatedAt, nullTimePtr(p.UpdatedAt),
		)
		if err != nil {
			return err
		}

		if err := insertPostTags(tx, p.Id, in.Mentions, in.Hashtags, in.Links, in.Emojis, in.Attachments); err != nil {
			return err
		}

		_, err = tx.Exec(sqlIncrementPostCount, p.AuthorId)
		return err
	})
}

func insertPostTags(tx *sql.Tx, postId uuid.UUID, mentions []uuid.UUID, hashtags []string, links []uuid.UUID, emojis []domain.EmojiRef, attachments []domain.Attachment) error {
	for _, actorId := range mentions {
		if _, err := tx.Exec(sqlInsertMention, postId, actorId); err != nil {
			return err
		}
	}
	for _, tag := range hashtags {
		var hashtagId int64
		if err := tx.QueryRow(sqlUpsertHashtag, tag).Scan(&hashtagId); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlInsertPostHashtag, postId, hashtagId); err != nil {
			return err
		}
	}
	for i, linkedId := range links {
		if _, err := tx.Exec(sqlInsertLink, postId, linkedId, i); err != nil {
			return err
		}
	}
	for _, e := range emojis {
		if _, err := tx.Exec(sqlInsertEmoji, postId, e.Shortcode, e.IconURL, e.UpdatedAt); err != nil {
			return err
		}
	}
	for _, att := range attachments {
		id := att.Id
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.Exec(sqlInsertAttachment, id, postId, att.MediaType, att.URL, att.Name, nullString(att.DigestMultibase)); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePost rewrites mutable fields and replaces the tag/attachment sets,
// returning the detached attachment file names for storage reclamation.
// Posts with a non-empty IpfsCid or that are reposts cannot be updated.
func (d *DB) UpdatePost(postId uuid.UUID, mut domain.PostMutation) (domain.DeletionQueue, error) {
	var dq domain.DeletionQueue
	err := d.wrapTransaction(func(tx *sql.Tx) error {
		existing, err := scanPost(tx.QueryRow(sqlSelectPostById, postId.String()))
		if err != nil {
			return apperr.NotFound("post not found", err)
		}
		if existing.Immutable() {
			return apperr.Validation("post is immutable", nil)
		}

		oldAttachments, err := readAttachments(tx, postId)
		if err != nil {
			return err
		}
		oldURLs := make(map[string]bool, len(oldAttachments))
		for _, a := range oldAttachments {
			oldURLs[a.URL] = true
		}
		newURLs := make(map[string]bool, len(mut.Attachments))
		for _, a := range mut.Attachments {
			newURLs[a.URL] = true
		}
		for url := range oldURLs {
			if !newURLs[url] {
				dq.FileNames = append(dq.FileNames, url)
			}
		}

		if _, err := tx.Exec(sqlUpdatePostFields, mut.Content, mut.ContentSource, boolToInt(mut.IsSensitive), nullString(mut.Language), time.Now(), postId); err != nil {
			return err
		}

		if _, err := tx.Exec(sqlDeleteMentionsByPost, postId); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlDeletePostHashtags, postId); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlDeleteLinksByPost, postId); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlDeleteEmojisByPost, postId); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlDeleteAttachmentsByPost, postId); err != nil {
			return err
		}

		return insertPostTags(tx, postId, mut.Mentions, mut.Hashtags, mut.Links, mut.Emojis, mut.Attachments)
	})
	return dq, err
}

// DeletePost computes {post} ∪ descendants ∪ reposts, decrements counters,
// deletes every row, and returns the files/CIDs eligible for reclamation.
func (d *DB) DeletePost(postId uuid.UUID) (domain.DeletionQueue, error) {
	var dq domain.DeletionQueue
	err := d.wrapTransaction(func(tx *sql.Tx) error {
		ids, err := collectTransitiveSet(tx, postId)
		if err != nil {
			return err
		}

		root, err := scanPost(tx.QueryRow(sqlSelectPostById, postId.String()))
		if err != nil {
			return apperr.NotFound("post not found", err)
		}

		for _, id := range ids {
			atts, err := readAttachments(tx, id)
			if err != nil {
				return err
			}
			for _, a := range atts {
				dq.FileNames = append(dq.FileNames, a.URL)
			}
			p, err := scanPost(tx.QueryRow(sqlSelectPostById, id.String()))
			if err == nil && p.IpfsCid != "" {
				dq.IpfsCids = append(dq.IpfsCids, p.IpfsCid)
			}
		}

		if root.InReplyTo != nil {
			if _, err := tx.Exec(sqlDecrementReplyCount, root.InReplyTo.String()); err != nil {
				return err
			}
		}
		if root.RepostOf != nil {
			if _, err := tx.Exec(sqlDecrementRepostCount, root.RepostOf.String()); err != nil {
				return err
			}
		}

		for _, id := range ids {
			if _, err := tx.Exec(sqlDeleteAttachmentsByPost, id); err != nil {
				return err
			}
			if _, err := tx.Exec(sqlDeleteMentionsByPost, id); err != nil {
				return err
			}
			if _, err := tx.Exec(sqlDeletePostHashtags, id); err != nil {
				return err
			}
			if _, err := tx.Exec(sqlDeleteLinksByPost, id); err != nil {
				return err
			}
			if _, err := tx.Exec(sqlDeleteEmojisByPost, id); err != nil {
				return err
			}
			if _, err := tx.Exec(sqlDeletePostRow, id); err != nil {
				return err
			}
		}

		var remaining int
		if err := tx.QueryRow(sqlCountConversationPosts, root.ConversationId).Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.Exec(sqlDeleteConversation, root.ConversationId); err != nil {
				return err
			}
		}

		return nil
	})
	return dq, err
}

func collectTransitiveSet(tx *sql.Tx, postId uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{postId}

	descRows, err := tx.Query(sqlSelectDescendantIds, postId.String())
	if err != nil {
		return nil, err
	}
	for descRows.Next() {
		var s string
		if err := descRows.Scan(&s); err != nil {
			descRows.Close()
			return nil, err
		}
		id, _ := uuid.Parse(s)
		ids = append(ids, id)
	}
	descRows.Close()

	repostRows, err := tx.Query(sqlSelectRepostIds, postId.String())
	if err != nil {
		return nil, err
	}
	for repostRows.Next() {
		var s string
		if err := repostRows.Scan(&s); err != nil {
			repostRows.Close()
			return nil, err
		}
		id, _ := uuid.Parse(s)
		ids = append(ids, id)
	}
	repostRows.Close()

	return ids, nil
}

func readAttachments(tx *sql.Tx, postId uuid.UUID) ([]domain.Attachment, error) {
	rows, err := tx.Query(sqlSelectAttachmentsByPost, postId.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		var digest sql.NullString
		if err := rows.Scan(&a.Id, &a.PostId, &a.MediaType, &a.URL, &a.Name, &digest); err != nil {
			return nil, err
		}
		a.DigestMultibase = digest.String
		out = append(out, a)
	}
	return out, nil
}

func (d *DB) ReadPostById(id uuid.UUID) (error, *domain.Post) {
	p, err := scanPost(d.db.QueryRow(sqlSelectPostById, id.String()))
	if err != nil {
		return err, nil
	}
	return nil, p
}

func (d *DB) ReadPostByObjectURI(uri string) (error, *domain.Post) {
	p, err := scanPost(d.db.QueryRow(sqlSelectPostByObjectURI, uri))
	if err != nil {
		return err, nil
	}
	return nil, p
}

// ReadDirectReplies returns a post's immediate public replies, oldest
// first, backing the /objects/{uuid}/replies collection (spec.md 6).
func (d *DB) ReadDirectReplies(postId uuid.UUID) (error, []domain.Post) {
	rows, err := d.db.Query(sqlSelectDirectReplies, postId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	out, err := scanPostRows(rows)
	return err, out
}

func (d *DB) ReadMentionsByPost(postId uuid.UUID) (error, []uuid.UUID) {
	rows, err := d.db.Query(sqlSelectMentionsByPost, postId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return err, nil
		}
		id, _ := uuid.Parse(s)
		out = append(out, id)
	}
	return nil, out
}

func (d *DB) ReadHashtagsByPost(postId uuid.UUID) (error, []string) {
	rows, err := d.db.Query(sqlSelectHashtagsByPost, postId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err, nil
		}
		out = append(out, name)
	}
	return nil, out
}

func (d *DB) ReadLinksByPost(postId uuid.UUID) (error, []uuid.UUID) {
	rows, err := d.db.Query(sqlSelectLinksByPost, postId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return err, nil
		}
		id, _ := uuid.Parse(s)
		out = append(out, id)
	}
	return nil, out
}

func (d *DB) ReadAttachmentsByPost(postId uuid.UUID) (error, []domain.Attachment) {
	rows, qerr := d.db.Query(sqlSelectAttachmentsByPost, postId.String())
	if qerr != nil {
		return qerr, nil
	}
	defer rows.Close()
	var out []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		var digest sql.NullString
		if err := rows.Scan(&a.Id, &a.PostId, &a.MediaType, &a.URL, &a.Name, &digest); err != nil {
			return err, nil
		}
		a.DigestMultibase = digest.String
		out = append(out, a)
	}
	return nil, out
}

func (d *DB) ReadEmojisByPost(postId uuid.UUID) (error, []domain.EmojiRef) {
	rows, err := d.db.Query(sqlSelectEmojisByPost, postId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	var out []domain.EmojiRef
	for rows.Next() {
		var e domain.EmojiRef
		var postIdStr string
		if err := rows.Scan(&postIdStr, &e.Shortcode, &e.IconURL, &e.UpdatedAt); err != nil {
			return err, nil
		}
		e.PostId = postId
		out = append(out, e)
	}
	return nil, out
}

// ReadEmojiByShortcode looks up the most recently used tag of a custom
// emoji by name, backing the standalone /objects/emojis/{name} object
// route (spec.md 6): a shortcode has no identity of its own beyond the
// posts that reference it, so the freshest tag stands in for it.
func (d *DB) ReadEmojiByShortcode(shortcode string) (error, *domain.EmojiRef) {
	row := d.db.QueryRow(sqlSelectEmojiByShortcode, shortcode)
	var e domain.EmojiRef
	var postIdStr string
	if err := row.Scan(&postIdStr, &e.Shortcode, &e.IconURL, &e.UpdatedAt); err != nil {
		return err, nil
	}
	if id, err := uuid.Parse(postIdStr); err == nil {
		e.PostId = id
	}
	return nil, &e
}

func uuidPtrOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
