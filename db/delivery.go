package db

import (
	"database/sql"
	"math/rand"
	"time"

	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

const (
	deliveryColumns = `id, actor_id, inbox_uri, activity_json, state, attempts, failure_reason,
		next_attempt_at, created_at`

	sqlInsertDeliveryJob = `INSERT INTO delivery_jobs(` + deliveryColumns + `) VALUES (?,?,?,?,?,?,?,?,?)`

	sqlSelectDueDeliveryJobs = `SELECT ` + deliveryColumns + ` FROM delivery_jobs
		WHERE state IN ('pending', 'retry') AND next_attempt_at <= ?
		ORDER BY created_at ASC LIMIT ?`

	sqlUpdateDeliveryJobState = `UPDATE delivery_jobs SET state=?, attempts=?, failure_reason=?, next_attempt_at=? WHERE id=?`
	sqlDeleteDeliveryJob      = `DELETE FROM delivery_jobs WHERE id = ?`
	sqlDeleteDeliveryJobGroup = `DELETE FROM delivery_jobs WHERE activity_json = ?`
	sqlCountNonTerminalGroup  = `SELECT COUNT(*) FROM delivery_jobs WHERE activity_json = ? AND state NOT IN ('delivered', 'abandoned')`
)

func scanDeliveryJob(row interface{ Scan(...any) error }) (*domain.DeliveryJob, error) {
	var j domain.DeliveryJob
	var failureReason sql.NullString
	if err := row.Scan(&j.Id, &j.ActorId, &j.InboxURI, &j.ActivityJSON, &j.State, &j.Attempts,
		&failureReason, &j.NextAttemptAt, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.FailureReason = failureReason.String
	return &j, nil
}

// EnqueueDeliveryJobs inserts one row per distinct non-empty recipient inbox,
// in a transaction of its own. The rows are not written in the transaction
// that saved the activity; no exported variant takes a caller's transaction.
func (d *DB) EnqueueDeliveryJobs(actorId uuid.UUID, activityJSON string, inboxes []string) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		return enqueueDeliveryJobsTx(tx, actorId, activityJSON, inboxes, time.Now())
	})
}

// EnqueueDeliveryJobsAt is EnqueueDeliveryJobs with an explicit first
// attempt time, used to throttle deliveries addressed to an inbox whose
// owning actor is currently marked unreachable (spec.md 4.G).
func (d *DB) EnqueueDeliveryJobsAt(actorId uuid.UUID, activityJSON string, inboxes []string, notBefore time.Time) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		return enqueueDeliveryJobsTx(tx, actorId, activityJSON, inboxes, notBefore)
	})
}

func enqueueDeliveryJobsTx(tx *sql.Tx, actorId uuid.UUID, activityJSON string, inboxes []string, notBefore time.Time) error {
	now := time.Now()
	seen := make(map[string]bool, len(inboxes))
	for _, inbox := range inboxes {
		if inbox == "" || seen[inbox] {
			continue
		}
		seen[inbox] = true
		_, err := tx.Exec(sqlInsertDeliveryJob,
			uuid.New(), actorId, inbox, activityJSON, domain.DeliveryPending, 0, nil, notBefore, now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadDueDeliveryJobs claims up to limit jobs whose next_attempt_at has
// passed, in FIFO order, for a worker to process. Claiming pushes each
// returned job's next_attempt_at one to two minutes ahead (a randomized
// lease), so later polls skip it while a worker holds it.
func (d *DB) ReadDueDeliveryJobs(limit int) (error, []domain.DeliveryJob) {
	rows, err := d.db.Query(sqlSelectDueDeliveryJobs, time.Now(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var out []domain.DeliveryJob
	for rows.Next() {
		j, err := scanDeliveryJob(rows)
		if err != nil {
			return err, nil
		}
		out = append(out, *j)
	}
	lease := time.Now().Add(time.Minute + time.Duration(rand.Int63n(int64(time.Minute))))
	for _, j := range out {
		if _, err := d.db.Exec(`UPDATE delivery_jobs SET next_attempt_at = ? WHERE id = ?`, lease, j.Id); err != nil {
			return err, nil
		}
	}
	return nil, out
}

// MarkDelivered transitions a job to its terminal success state and, if no
// sibling job for the same activity remains non-terminal, deletes the whole
// group's rows (spec.md 4.G: "When all recipients are terminal the job is
// deleted").
func (d *DB) MarkDelivered(job domain.DeliveryJob) error {
	return d.finishJob(job, domain.DeliveryDelivered, "")
}

// MarkAbandoned transitions a job to its terminal failure state after
// exhausting retries or receiving a non-retryable 4xx.
func (d *DB) MarkAbandoned(job domain.DeliveryJob, reason string) error {
	return d.finishJob(job, domain.DeliveryAbandoned, reason)
}

func (d *DB) finishJob(job domain.DeliveryJob, state domain.DeliveryState, reason string) error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlUpdateDeliveryJobState, state, job.Attempts, nullString(reason), job.NextAttemptAt, job.Id); err != nil {
			return err
		}
		var remaining int
		if err := tx.QueryRow(sqlCountNonTerminalGroup, job.ActivityJSON).Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.Exec(sqlDeleteDeliveryJobGroup, job.ActivityJSON); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScheduleRetry bumps the attempt counter and schedules the next attempt at
// the given time (exponential backoff is computed by the caller).
func (d *DB) ScheduleRetry(job domain.DeliveryJob, nextAttempt time.Time, reason string) error {
	_, err := d.db.Exec(sqlUpdateDeliveryJobState, domain.DeliveryRetry, job.Attempts, nullString(reason), nextAttempt, job.Id)
	return err
}
