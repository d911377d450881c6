package delivery

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"net/http"
	"time"

	"github.com/fediglade/fediglade/domain"
)

const (
	defaultWorkers       = 4
	defaultPollInterval  = 5 * time.Second
	defaultBatchSize     = 50
	defaultBaseBackoff   = 30 * time.Second
	defaultMaxBackoff    = 6 * time.Hour
	defaultMaxAttempts   = 16
	unreachableThreshold = 8 // consecutive retries before marking the recipient unreachable
)

// Queue drains due DeliveryJob rows with a bounded pool of workers,
// partitioned by inbox URI so that per-(actor→inbox) ordering is
// preserved: every job addressed to one inbox always lands on the same
// worker, processed in the FIFO order the dispatcher read it, while
// distinct inboxes deliver concurrently (spec.md 4.G, 5).
type Queue struct {
	DB     Database
	Client HTTPClient
	Sign   Signer

	Workers      int
	PollInterval time.Duration
	BatchSize    int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	MaxAttempts  int
}

// New builds a Queue using the production HTTP client and sane defaults.
func New(database Database, sign Signer) *Queue {
	return &Queue{
		DB:           database,
		Client:       NewDefaultHTTPClient(30 * time.Second),
		Sign:         sign,
		Workers:      defaultWorkers,
		PollInterval: defaultPollInterval,
		BatchSize:    defaultBatchSize,
		BaseBackoff:  defaultBaseBackoff,
		MaxBackoff:   defaultMaxBackoff,
		MaxAttempts:  defaultMaxAttempts,
	}
}

// Start runs the dispatcher and worker pool until ctx is canceled.
func (q *Queue) Start(ctx context.Context) {
	workers := q.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	lanes := make([]chan domain.DeliveryJob, workers)
	for i := range lanes {
		lanes[i] = make(chan domain.DeliveryJob, q.batchSize())
		go q.runWorker(lanes[i])
	}

	ticker := time.NewTicker(q.pollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, lane := range lanes {
				close(lane)
			}
			return
		case <-ticker.C:
			q.dispatch(ctx, lanes)
		}
	}
}

func (q *Queue) dispatch(ctx context.Context, lanes []chan domain.DeliveryJob) {
	err, jobs := q.DB.ReadDueDeliveryJobs(q.batchSize())
	if err != nil {
		log.Printf("delivery: reading due jobs: %v", err)
		return
	}
	for _, job := range jobs {
		lane := lanes[laneFor(job.InboxURI, len(lanes))]
		select {
		case lane <- job:
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) runWorker(jobs <-chan domain.DeliveryJob) {
	for job := range jobs {
		q.process(job)
	}
}

// process POSTs one job's activity to its inbox, signed with the sending
// actor's key, and classifies the response: 2xx delivers, a non-408/429
// 4xx abandons immediately, everything else (408/429/5xx/network error)
// schedules a retry with exponential backoff.
func (q *Queue) process(job domain.DeliveryJob) {
	req, err := http.NewRequest(http.MethodPost, job.InboxURI, bytes.NewReader([]byte(job.ActivityJSON)))
	if err != nil {
		q.abandon(job, fmt.Sprintf("building request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "fediglade/1.0 ActivityPub")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Host = req.URL.Host

	if err := q.Sign(req, job.ActorId); err != nil {
		q.abandon(job, fmt.Sprintf("signing: %v", err))
		return
	}

	resp, err := q.Client.Do(req)
	if err != nil {
		q.retry(job, fmt.Sprintf("request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		q.deliver(job)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		q.retry(job, fmt.Sprintf("remote returned %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		q.abandon(job, fmt.Sprintf("remote returned %d", resp.StatusCode))
	default:
		q.retry(job, fmt.Sprintf("remote returned %d", resp.StatusCode))
	}
}

func (q *Queue) deliver(job domain.DeliveryJob) {
	if err := q.DB.MarkDelivered(job); err != nil {
		log.Printf("delivery: marking %s delivered: %v", job.Id, err)
	}
	if err, actor := q.DB.ReadActorByInboxURI(job.InboxURI); err == nil && actor != nil && actor.UnreachableSince != nil {
		if err := q.DB.ClearActorUnreachable(actor.Id); err != nil {
			log.Printf("delivery: clearing unreachable for %s: %v", actor.ActorURI, err)
		}
	}
}

func (q *Queue) abandon(job domain.DeliveryJob, reason string) {
	job.Attempts++
	if err := q.DB.MarkAbandoned(job, reason); err != nil {
		log.Printf("delivery: abandoning %s: %v", job.Id, err)
	}
}

func (q *Queue) retry(job domain.DeliveryJob, reason string) {
	job.Attempts++
	if job.Attempts >= q.maxAttempts() {
		q.abandon(job, fmt.Sprintf("exceeded max attempts: %s", reason))
		return
	}

	next := time.Now().Add(backoff(job.Attempts, q.baseBackoff(), q.maxBackoff()))
	if err := q.DB.ScheduleRetry(job, next, reason); err != nil {
		log.Printf("delivery: scheduling retry for %s: %v", job.Id, err)
	}

	if job.Attempts >= unreachableThreshold {
		if err, actor := q.DB.ReadActorByInboxURI(job.InboxURI); err == nil && actor != nil && actor.UnreachableSince == nil {
			if err := q.DB.MarkActorUnreachable(actor.Id, time.Now()); err != nil {
				log.Printf("delivery: marking %s unreachable: %v", actor.ActorURI, err)
			}
		}
	}
}

// backoff computes an exponential delay capped at max, doubling per
// attempt from base.
func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

// laneFor hashes an inbox URI to a worker index so every job addressed to
// the same inbox is processed by the same worker.
func laneFor(inboxURI string, lanes int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(inboxURI))
	return int(h.Sum32()) % lanes
}

func (q *Queue) batchSize() int {
	if q.BatchSize > 0 {
		return q.BatchSize
	}
	return defaultBatchSize
}

func (q *Queue) pollInterval() time.Duration {
	if q.PollInterval > 0 {
		return q.PollInterval
	}
	return defaultPollInterval
}

func (q *Queue) baseBackoff() time.Duration {
	if q.BaseBackoff > 0 {
		return q.BaseBackoff
	}
	return defaultBaseBackoff
}

func (q *Queue) maxBackoff() time.Duration {
	if q.MaxBackoff > 0 {
		return q.MaxBackoff
	}
	return defaultMaxBackoff
}

func (q *Queue) maxAttempts() int {
	if q.MaxAttempts > 0 {
		return q.MaxAttempts
	}
	return defaultMaxAttempts
}
