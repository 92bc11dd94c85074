package generation

import "time"

// DefaultStaleAfter is how long a job may run without any output before it is
// presumed stuck.
const DefaultStaleAfter = 30 * time.Minute

// Bucket is the tab a record is listed under.
type Bucket string

const (
	BucketPending   Bucket = "pending"
	BucketFailed    Bucket = "failed"
	BucketCompleted Bucket = "completed"
)

// Buckets is a partition of a record collection. Each input record lands in
// exactly one list, in input order.
type Buckets struct {
	Pending   []Record `json:"pending"`
	Failed    []Record `json:"failed"`
	Completed []Record `json:"completed"`
}

func (b Buckets) Len() int {
	return len(b.Pending) + len(b.Failed) + len(b.Completed)
}

// Classifier derives display state from records. The zero value uses
// DefaultStaleAfter.
type Classifier struct {
	StaleAfter time.Duration
}

func (c Classifier) staleAfter() time.Duration {
	if c.StaleAfter <= 0 {
		return DefaultStaleAfter
	}
	return c.StaleAfter
}

// EffectiveStatus must be evaluated against the current time on every read;
// the stale cutoff moves with the clock.
func (c Classifier) EffectiveStatus(r Record, now time.Time) Status {
	if r.RawStatus == StatusFailed {
		return StatusFailed
	}
	if !r.HasAnyOutput() && now.Sub(r.CreatedAt) > c.staleAfter() {
		return StatusFailed
	}
	if r.RawStatus == "" {
		return StatusPending
	}
	return r.RawStatus
}

// Completed is the single completed predicate used by every view.
func Completed(r Record) bool {
	return r.RawStatus == StatusDone || r.HasAllOutputs()
}

// Bucket classifies a record. A reported failure wins over everything, a
// completed record is never reported stale.
func (c Classifier) Bucket(r Record, now time.Time) Bucket {
	switch {
	case r.RawStatus == StatusFailed:
		return BucketFailed
	case Completed(r):
		return BucketCompleted
	case c.EffectiveStatus(r, now) == StatusFailed:
		return BucketFailed
	default:
		return BucketPending
	}
}

func (c Classifier) Partition(records []Record, now time.Time) Buckets {
	ret := Buckets{
		Pending:   make([]Record, 0),
		Failed:    make([]Record, 0),
		Completed: make([]Record, 0),
	}
	for _, r := range records {
		switch c.Bucket(r, now) {
		case BucketFailed:
			ret.Failed = append(ret.Failed, r)
		case BucketCompleted:
			ret.Completed = append(ret.Completed, r)
		default:
			ret.Pending = append(ret.Pending, r)
		}
	}
	return ret
}

// EffectiveStatus uses DefaultStaleAfter.
func EffectiveStatus(r Record, now time.Time) Status {
	return Classifier{}.EffectiveStatus(r, now)
}

// Partition uses DefaultStaleAfter.
func Partition(records []Record, now time.Time) Buckets {
	return Classifier{}.Partition(records, now)
}
