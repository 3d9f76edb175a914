package enrich

import (
	"context"
	"sync"
	"time"

	"live-transcriber/internal/domain"
	"live-transcriber/internal/logging"
	"live-transcriber/internal/metrics"
)

// Target resolves and mutates whichever segment collection is currently
// authoritative: the live list while recording, or the viewed archived
// session afterwards. Apply methods are the single update path for segment
// fields, so enrichment results compose with any list changes in between.
type Target interface {
	Resolve(segmentID string) (domain.TranscriptionSegment, bool)
	Context(segmentID string, limit int) []domain.TranscriptionSegment
	BilingualActive() bool
	ApplyText(segmentID, text string)
	ApplyTranslation(segmentID, text string)
}

// Refiner performs one external refinement call without internal retries;
// the queue owns the retry and pacing policy.
type Refiner interface {
	Polish(ctx context.Context, text string, prior []domain.TranscriptionSegment) (string, error)
	Translate(ctx context.Context, text string) (string, error)
}

// Options contains queue retry and pacing parameters.
type Options struct {
	MaxRetries     int
	BackoffBase    time.Duration
	Cooldown       time.Duration
	CooldownMin    time.Duration
	CooldownMax    time.Duration
	CooldownGrow   float64
	CooldownShrink float64
	ContextWindow  int
}

// Queue is an ordered enrichment job queue drained by one background worker
// with at most one outstanding refinement call at any time. Failed jobs are
// re-enqueued through cancellable timers with exponential backoff and
// dropped permanently once retries are exhausted; between external calls
// the worker waits an adaptive cooldown clamped to a fixed band.
type Queue struct {
	opts    Options
	log     *logging.Logger
	met     *metrics.Metrics
	refiner Refiner
	target  Target

	mu       sync.Mutex
	pending  []Job
	busy     bool
	cooldown time.Duration
	timers   map[*time.Timer]struct{}
	closed   bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	// Injectable timing seams for tests.
	afterFunc    func(time.Duration, func()) *time.Timer
	waitCooldown func(time.Duration) bool
}

// NewQueue creates a queue; Start must be called to begin draining.
func NewQueue(opts Options, log *logging.Logger, met *metrics.Metrics, refiner Refiner, target Target) *Queue {
	q := &Queue{
		opts:     opts,
		log:      log,
		met:      met,
		refiner:  refiner,
		target:   target,
		cooldown: opts.Cooldown,
		timers:   make(map[*time.Timer]struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	q.afterFunc = time.AfterFunc
	q.waitCooldown = q.sleepCooldown
	return q
}

// Start launches the background worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Close stops the worker and cancels outstanding backoff timers. Pending
// jobs are abandoned; enrichment is best effort across process lifetime.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = make(map[*time.Timer]struct{})
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
}

// Enqueue appends one job in submission order. A job whose (segment, kind)
// identity is already pending is ignored, keeping at most one outstanding
// job per identity.
func (q *Queue) Enqueue(job Job) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	for _, pending := range q.pending {
		if pending.SegmentID == job.SegmentID && pending.Kind == job.Kind {
			q.mu.Unlock()
			return
		}
	}
	q.pending = append(q.pending, job)
	q.met.QueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Depth returns the number of pending jobs.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// run is the single worker loop; it drains FIFO and paces external calls.
func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}

		for {
			job, ok := q.pop()
			if !ok {
				break
			}

			called := q.process(job)
			q.clearBusy()

			if called && !q.waitCooldown(q.currentCooldown()) {
				return
			}
		}
	}
}

// pop removes the oldest pending job and marks the worker busy. The busy
// flag is what enforces the single-outstanding-call invariant; it is set
// before dispatch and cleared only after the call fully resolves.
func (q *Queue) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.busy || len(q.pending) == 0 {
		return Job{}, false
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	q.busy = true
	q.met.QueueDepth.Set(float64(len(q.pending)))
	return job, true
}

// process handles one job and reports whether an external call was made.
func (q *Queue) process(job Job) bool {
	segment, found := q.target.Resolve(job.SegmentID)
	if !found {
		// Session deleted or otherwise gone; the job is moot.
		q.log.Debug("dropping job for unresolved segment", "segment_id", job.SegmentID, "kind", job.Kind)
		return false
	}

	if job.Kind == KindTranslate && !q.target.BilingualActive() {
		// Bilingual mode was turned off after the job was enqueued.
		return false
	}

	q.met.EnrichmentRequests.Inc()

	var result string
	var err error
	switch job.Kind {
	case KindTranslate:
		result, err = q.refiner.Translate(context.Background(), segment.Text)
	default:
		prior := q.target.Context(job.SegmentID, q.opts.ContextWindow)
		result, err = q.refiner.Polish(context.Background(), segment.Text, prior)
	}

	if err != nil {
		q.met.EnrichmentFailures.Inc()
		q.growCooldown()
		q.scheduleRetry(job, err)
		return true
	}

	switch job.Kind {
	case KindTranslate:
		q.target.ApplyTranslation(job.SegmentID, result)
	default:
		q.target.ApplyText(job.SegmentID, result)
	}
	q.met.EnrichmentSuccesses.Inc()
	q.shrinkCooldown()
	return true
}

// scheduleRetry re-enqueues a failed job after exponential backoff, or drops
// it permanently once retries are exhausted. The failure stays invisible to
// the user; the segment simply keeps its unrefined text.
func (q *Queue) scheduleRetry(job Job, cause error) {
	if job.RetryCount >= q.opts.MaxRetries {
		q.met.EnrichmentDropped.Inc()
		q.log.Warn("dropping enrichment job after retry exhaustion",
			"segment_id", job.SegmentID,
			"kind", job.Kind,
			"retries", job.RetryCount,
			"error", cause,
		)
		return
	}

	retry := Job{SegmentID: job.SegmentID, Kind: job.Kind, RetryCount: job.RetryCount + 1}
	delay := q.opts.BackoffBase << uint(job.RetryCount)
	q.met.EnrichmentRetries.Inc()
	q.log.Debug("scheduling enrichment retry",
		"segment_id", job.SegmentID,
		"kind", job.Kind,
		"retry", retry.RetryCount,
		"delay", delay,
		"error", cause,
	)

	var timer *time.Timer
	timer = q.afterFunc(delay, func() {
		q.forgetTimer(timer)
		q.Enqueue(retry)
	})
	q.trackTimer(timer)
}

// clearBusy releases the single-flight flag.
func (q *Queue) clearBusy() {
	q.mu.Lock()
	q.busy = false
	q.mu.Unlock()
}

// currentCooldown returns the cooldown to apply after the last call.
func (q *Queue) currentCooldown() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cooldown
}

// shrinkCooldown eases pacing after a success, within the clamp band.
func (q *Queue) shrinkCooldown() {
	q.adjustCooldown(q.opts.CooldownShrink)
}

// growCooldown backs pacing off after a failure, within the clamp band.
func (q *Queue) growCooldown() {
	q.adjustCooldown(q.opts.CooldownGrow)
}

// adjustCooldown scales the cooldown and clamps it to [min, max].
func (q *Queue) adjustCooldown(factor float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := time.Duration(float64(q.cooldown) * factor)
	if next < q.opts.CooldownMin {
		next = q.opts.CooldownMin
	}
	if next > q.opts.CooldownMax {
		next = q.opts.CooldownMax
	}
	q.cooldown = next
	q.met.CooldownSeconds.Set(next.Seconds())
}

// sleepCooldown waits out the pacing delay; false means the queue closed.
func (q *Queue) sleepCooldown(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-q.done:
		return false
	case <-timer.C:
		return true
	}
}

// trackTimer records an outstanding backoff timer so Close can cancel it.
func (q *Queue) trackTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		timer.Stop()
		return
	}
	q.timers[timer] = struct{}{}
}

// forgetTimer drops bookkeeping for a fired backoff timer.
func (q *Queue) forgetTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.timers, timer)
}
