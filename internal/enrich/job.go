package enrich

// Kind selects which refinement a job requests.
type Kind string

const (
	KindPolish    Kind = "polish"
	KindTranslate Kind = "translate"
)

// Job is one queued enrichment request. Jobs are ephemeral and queue-only;
// identity is (SegmentID, Kind), and a retry reuses the same logical job
// with an incremented RetryCount.
type Job struct {
	SegmentID  string
	Kind       Kind
	RetryCount int
}
