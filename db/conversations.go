package db

import (
	"database/sql"

	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

func scanConversation(row interface{ Scan(...any) error }) (*domain.Conversation, error) {
	var c domain.Conversation
	var audience sql.NullString
	if err := row.Scan(&c.Id, &c.RootPostId, &audience); err != nil {
		return nil, err
	}
	if audience.Valid && audience.String != "" {
		a := audience.String
		c.Audience = &a
	}
	return &c, nil
}

func (d *DB) ReadConversationById(id uuid.UUID) (error, *domain.Conversation) {
	c, err := scanConversation(d.db.QueryRow(sqlSelectConversation, id.String()))
	if err != nil {
		return err, nil
	}
	return nil, c
}

// SetConversationAudience records the effective addressing for
// Conversation-visibility replies rooted at this thread, set once when the
// first such reply is built.
func (d *DB) SetConversationAudience(id uuid.UUID, audience string) error {
	_, err := d.db.Exec(`UPDATE conversations SET audience = ? WHERE id = ?`, audience, id.String())
	return err
}

// ReadConversationItems returns every post in the conversation, ordered by
// creation time, for the /collections/conversations/{uuid} endpoint.
func (d *DB) ReadConversationItems(id uuid.UUID) (error, []domain.Post) {
	rows, err := d.db.Query(`SELECT `+postColumns+` FROM posts WHERE conversation_id = ? ORDER BY created_at ASC`, id.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var out []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return err, nil
		}
		out = append(out, *p)
	}
	return nil, out
}

// ReadConversationParticipants returns every actor who authored or was
// addressed by a post in the conversation; used by the Delivery Queue's
// recipient computation for Conversation-visibility activities (spec.md
// 4.G: "every prior participant and recipient of any message in the
// conversation").
func (d *DB) ReadConversationParticipants(id uuid.UUID) (error, []uuid.UUID) {
	rows, err := d.db.Query(`
		SELECT DISTINCT author_id FROM posts WHERE conversation_id = ?
		UNION
		SELECT DISTINCT mentions.actor_id FROM mentions
			INNER JOIN posts ON posts.id = mentions.post_id
			WHERE posts.conversation_id = ?`, id.String(), id.String())
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
		parsed, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	return nil, out
}
