package db

import (
	"database/sql"
	"time"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

const (
	sqlSelectPollOptions = `SELECT name, votes FROM poll_options WHERE post_id = ? ORDER BY rowid ASC`
	sqlExistsVote        = `SELECT COUNT(*) FROM poll_votes WHERE post_id = ? AND voter_id = ?`
	sqlInsertVote        = `INSERT INTO poll_votes(post_id, option_name, voter_id, created_at) VALUES (?,?,?,?)`
	sqlIncrementVote     = `UPDATE poll_options SET votes = votes + 1 WHERE post_id = ? AND name = ?`
	sqlSelectVoters      = `SELECT voter_id FROM poll_votes WHERE post_id = ?`
)

// ReadPollOptions returns a poll post's options in insertion order, for the
// Builder's QuestionReplies rendering (spec.md S3).
func (d *DB) ReadPollOptions(postId uuid.UUID) (error, []domain.PollOption) {
	rows, err := d.db.Query(sqlSelectPollOptions, postId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var out []domain.PollOption
	for rows.Next() {
		var o domain.PollOption
		if err := rows.Scan(&o.Name, &o.Votes); err != nil {
			return err, nil
		}
		o.PostId = postId
		out = append(out, o)
	}
	return nil, out
}

// RecordVote records voterId's vote for optionName on a poll, once per
// voter (a second vote from the same actor is a Conflict, swallowed by the
// caller per apperr.KindConflict semantics), and increments the option's
// tally.
func (d *DB) RecordVote(postId uuid.UUID, optionName string, voterId uuid.UUID) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRow(sqlExistsVote, postId.String(), voterId.String()).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return apperr.Conflict("actor has already voted in this poll", nil)
		}

		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM poll_options WHERE post_id = ? AND name = ?`, postId.String(), optionName).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return apperr.Validation("unknown poll option", nil)
		}

		if _, err := tx.Exec(sqlInsertVote, postId.String(), optionName, voterId.String(), time.Now()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlIncrementVote, postId.String(), optionName)
		return err
	})
}

// GetVoters returns every actor who has voted in a poll, used by the
// Delivery Queue's recipient rule "always: ... the voters of a poll if
// applicable" (spec.md 4.G).
func (d *DB) GetVoters(postId uuid.UUID) (error, []uuid.UUID) {
	rows, err := d.db.Query(sqlSelectVoters, postId.String())
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
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return nil, out
}

// CreatePollOptions inserts the option rows for a newly created poll post,
// called by the Importer/Builder alongside CreatePost.
func (d *DB) CreatePollOptions(postId uuid.UUID, options []domain.PollOption) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		for _, o := range options {
			if _, err := tx.Exec(`INSERT INTO poll_options(post_id, name, votes) VALUES (?,?,?)`, postId.String(), o.Name, o.Votes); err != nil {
				return err
			}
		}
		return nil
	})
}
