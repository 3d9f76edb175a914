package enrich

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"live-transcriber/internal/domain"
	"live-transcriber/internal/logging"
	"live-transcriber/internal/metrics"
)

func testOptions() Options {
	return Options{
		MaxRetries:     5,
		BackoffBase:    2000 * time.Millisecond,
		Cooldown:       3000 * time.Millisecond,
		CooldownMin:    1500 * time.Millisecond,
		CooldownMax:    10000 * time.Millisecond,
		CooldownGrow:   1.5,
		CooldownShrink: 0.9,
		ContextWindow:  3,
	}
}

// fakeTarget is an in-memory authoritative segment collection.
type fakeTarget struct {
	mu           sync.Mutex
	segments     map[string]domain.TranscriptionSegment
	bilingual    bool
	texts        map[string]string
	translations map[string]string
}

func newFakeTarget(bilingual bool, ids ...string) *fakeTarget {
	t := &fakeTarget{
		segments:     make(map[string]domain.TranscriptionSegment),
		bilingual:    bilingual,
		texts:        make(map[string]string),
		translations: make(map[string]string),
	}
	for _, id := range ids {
		t.segments[id] = domain.TranscriptionSegment{ID: id, Text: "raw " + id, IsFinal: true}
	}
	return t
}

func (t *fakeTarget) Resolve(id string) (domain.TranscriptionSegment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seg, ok := t.segments[id]
	return seg, ok
}

func (t *fakeTarget) Context(id string, limit int) []domain.TranscriptionSegment {
	return nil
}

func (t *fakeTarget) BilingualActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bilingual
}

func (t *fakeTarget) ApplyText(id, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.texts[id] = text
	seg := t.segments[id]
	seg.Text = text
	t.segments[id] = seg
}

func (t *fakeTarget) ApplyTranslation(id, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.translations[id] = text
}

func (t *fakeTarget) appliedText(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	text, ok := t.texts[id]
	return text, ok
}

// fakeRefiner scripts per-call outcomes and tracks concurrency.
type fakeRefiner struct {
	mu        sync.Mutex
	failures  int
	calls     []string
	delay     time.Duration
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func (r *fakeRefiner) Polish(ctx context.Context, text string, prior []domain.TranscriptionSegment) (string, error) {
	return r.call("polish", text)
}

func (r *fakeRefiner) Translate(ctx context.Context, text string) (string, error) {
	return r.call("translate", text)
}

func (r *fakeRefiner) call(task, text string) (string, error) {
	current := r.inFlight.Add(1)
	for {
		observed := r.maxFlight.Load()
		if current <= observed || r.maxFlight.CompareAndSwap(observed, current) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	defer r.inFlight.Add(-1)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, task+":"+text)
	if r.failures > 0 {
		r.failures--
		return "", errors.New("refine backend unavailable")
	}
	return "refined " + text, nil
}

func (r *fakeRefiner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRefiner) callList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// instantQueue builds a started queue whose timers fire immediately and
// whose cooldown waits are recorded instead of slept.
func instantQueue(t *testing.T, opts Options, refiner Refiner, target Target) (*Queue, *timings) {
	t.Helper()
	rec := &timings{}
	q := NewQueue(opts, logging.NewNop(), metrics.New(prometheus.NewRegistry()), refiner, target)
	q.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		rec.addBackoff(d)
		fn()
		return time.NewTimer(time.Hour)
	}
	q.waitCooldown = func(d time.Duration) bool {
		rec.addCooldown(d)
		return true
	}
	q.Start()
	t.Cleanup(q.Close)
	return q, rec
}

// timings records delays the queue would have waited.
type timings struct {
	mu        sync.Mutex
	backoffs  []time.Duration
	cooldowns []time.Duration
}

func (r *timings) addBackoff(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoffs = append(r.backoffs, d)
}

func (r *timings) addCooldown(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cooldowns = append(r.cooldowns, d)
}

func (r *timings) backoffList() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.backoffs...)
}

func (r *timings) cooldownList() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.cooldowns...)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// TestQueueAppliesPolishResult verifies the basic dispatch and apply path.
func TestQueueAppliesPolishResult(t *testing.T) {
	target := newFakeTarget(false, "s1")
	refiner := &fakeRefiner{}
	q, _ := instantQueue(t, testOptions(), refiner, target)

	q.Enqueue(Job{SegmentID: "s1", Kind: KindPolish})

	waitFor(t, func() bool {
		text, ok := target.appliedText("s1")
		return ok && text == "refined raw s1"
	})
	if got := refiner.callCount(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

// TestQueueRetryBackoffSequence verifies a job failing three times is
// retried with delays 2s, 4s, 8s and not re-enqueued after success.
func TestQueueRetryBackoffSequence(t *testing.T) {
	target := newFakeTarget(false, "s1")
	refiner := &fakeRefiner{failures: 3}
	q, rec := instantQueue(t, testOptions(), refiner, target)

	q.Enqueue(Job{SegmentID: "s1", Kind: KindPolish})

	waitFor(t, func() bool {
		_, ok := target.appliedText("s1")
		return ok
	})

	want := []time.Duration{2000 * time.Millisecond, 4000 * time.Millisecond, 8000 * time.Millisecond}
	got := rec.backoffList()
	if len(got) != len(want) {
		t.Fatalf("backoffs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("backoff[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if calls := refiner.callCount(); calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
	if depth := q.Depth(); depth != 0 {
		t.Fatalf("depth after success = %d, want 0", depth)
	}
}

// TestQueueDropsJobAfterRetryExhaustion verifies the retry cap and that the
// segment keeps its pre-enrichment text.
func TestQueueDropsJobAfterRetryExhaustion(t *testing.T) {
	target := newFakeTarget(false, "s1")
	refiner := &fakeRefiner{failures: 100}
	q, rec := instantQueue(t, testOptions(), refiner, target)

	q.Enqueue(Job{SegmentID: "s1", Kind: KindPolish})

	// Initial attempt plus five retries.
	waitFor(t, func() bool { return refiner.callCount() == 6 })
	waitFor(t, func() bool { return q.Depth() == 0 })

	if got := len(rec.backoffList()); got != 5 {
		t.Fatalf("retries scheduled = %d, want 5", got)
	}
	if _, ok := target.appliedText("s1"); ok {
		t.Fatal("dropped job must not mutate the segment")
	}
	seg, _ := target.Resolve("s1")
	if seg.Text != "raw s1" {
		t.Fatalf("segment text = %q, want unchanged", seg.Text)
	}
}

// TestQueueSingleFlight verifies no two refinement calls are ever
// outstanding simultaneously, for concurrent enqueuers.
func TestQueueSingleFlight(t *testing.T) {
	ids := []string{"s1", "s2", "s3", "s4", "s5"}
	target := newFakeTarget(false, ids...)
	refiner := &fakeRefiner{delay: 10 * time.Millisecond}
	q, _ := instantQueue(t, testOptions(), refiner, target)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			q.Enqueue(Job{SegmentID: id, Kind: KindPolish})
		}(id)
	}
	wg.Wait()

	waitFor(t, func() bool { return refiner.callCount() == len(ids) })
	if max := refiner.maxFlight.Load(); max != 1 {
		t.Fatalf("max in-flight calls = %d, want 1", max)
	}
}

// TestQueueDrainsFIFO verifies jobs dispatch in submission order.
func TestQueueDrainsFIFO(t *testing.T) {
	target := newFakeTarget(false, "s1", "s2", "s3")
	refiner := &fakeRefiner{}
	q, _ := instantQueue(t, testOptions(), refiner, target)

	q.Enqueue(Job{SegmentID: "s1", Kind: KindPolish})
	q.Enqueue(Job{SegmentID: "s2", Kind: KindPolish})
	q.Enqueue(Job{SegmentID: "s3", Kind: KindPolish})

	waitFor(t, func() bool { return refiner.callCount() == 3 })

	got := refiner.callList()
	want := []string{"polish:raw s1", "polish:raw s2", "polish:raw s3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call order = %v, want %v", got, want)
		}
	}
}

// TestQueueTranslateNoOpWhenBilingualOff verifies a stale translate job is
// treated as success without calling out.
func TestQueueTranslateNoOpWhenBilingualOff(t *testing.T) {
	target := newFakeTarget(false, "s1", "s2")
	refiner := &fakeRefiner{}
	q, _ := instantQueue(t, testOptions(), refiner, target)

	q.Enqueue(Job{SegmentID: "s1", Kind: KindTranslate})
	q.Enqueue(Job{SegmentID: "s2", Kind: KindPolish})

	// FIFO means the polish completing implies the translate was handled.
	waitFor(t, func() bool {
		_, ok := target.appliedText("s2")
		return ok
	})

	got := refiner.callList()
	if len(got) != 1 || got[0] != "polish:raw s2" {
		t.Fatalf("calls = %v, want only the polish", got)
	}
	target.mu.Lock()
	translated := len(target.translations)
	target.mu.Unlock()
	if translated != 0 {
		t.Fatal("translate no-op must not mutate segments")
	}
}

// TestQueueDiscardsUnresolvableSegment verifies jobs for deleted segments
// are dropped without a call and the queue keeps draining.
func TestQueueDiscardsUnresolvableSegment(t *testing.T) {
	target := newFakeTarget(false, "s2")
	refiner := &fakeRefiner{}
	q, _ := instantQueue(t, testOptions(), refiner, target)

	q.Enqueue(Job{SegmentID: "gone", Kind: KindPolish})
	q.Enqueue(Job{SegmentID: "s2", Kind: KindPolish})

	waitFor(t, func() bool {
		_, ok := target.appliedText("s2")
		return ok
	})
	if got := refiner.callList(); len(got) != 1 || got[0] != "polish:raw s2" {
		t.Fatalf("calls = %v, want only s2", got)
	}
}

// TestQueueDeduplicatesPendingIdentity verifies at most one pending job per
// (segment, kind) identity.
func TestQueueDeduplicatesPendingIdentity(t *testing.T) {
	target := newFakeTarget(true, "s1")
	q := NewQueue(testOptions(), logging.NewNop(), metrics.New(prometheus.NewRegistry()), &fakeRefiner{}, target)

	q.Enqueue(Job{SegmentID: "s1", Kind: KindPolish})
	q.Enqueue(Job{SegmentID: "s1", Kind: KindPolish})
	q.Enqueue(Job{SegmentID: "s1", Kind: KindTranslate})

	if got := q.Depth(); got != 2 {
		t.Fatalf("depth = %d, want 2", got)
	}
}

// TestQueueCooldownAdaptation verifies the cooldown shrinks on success,
// grows on failure, and stays clamped to the band.
func TestQueueCooldownAdaptation(t *testing.T) {
	target := newFakeTarget(false, "s1", "s2")
	refiner := &fakeRefiner{failures: 1}
	q, rec := instantQueue(t, testOptions(), refiner, target)

	// First attempt fails (grow to 4.5s), retry succeeds (shrink to 4.05s).
	q.Enqueue(Job{SegmentID: "s1", Kind: KindPolish})
	waitFor(t, func() bool {
		_, ok := target.appliedText("s1")
		return ok
	})

	cooldowns := rec.cooldownList()
	if len(cooldowns) < 2 {
		t.Fatalf("cooldowns = %v, want at least 2", cooldowns)
	}
	if cooldowns[0] != 4500*time.Millisecond {
		t.Fatalf("cooldown after failure = %v, want 4.5s", cooldowns[0])
	}
	if cooldowns[1] != 4050*time.Millisecond {
		t.Fatalf("cooldown after success = %v, want 4.05s", cooldowns[1])
	}

	for _, d := range cooldowns {
		if d < 1500*time.Millisecond || d > 10000*time.Millisecond {
			t.Fatalf("cooldown %v escaped clamp band", d)
		}
	}
}
