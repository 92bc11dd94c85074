package generation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// recordGrid covers every raw status, output combination and a spread of ages.
func recordGrid() []Record {
	statuses := []Status{"", StatusPending, StatusStarted, StatusPromptsDone, StatusDone, StatusFailed, "queued"}
	ages := []time.Duration{0, 5 * time.Minute, 30 * time.Minute, 30*time.Minute + time.Second, 45 * time.Minute, 48 * time.Hour}
	outputs := [][2]string{{"", ""}, {"https://cdn.test/a.mp4", ""}, {"", "https://cdn.test/b.mp4"}, {"https://cdn.test/a.mp4", "https://cdn.test/b.mp4"}}

	ret := make([]Record, 0, len(statuses)*len(ages)*len(outputs))
	for _, st := range statuses {
		for _, age := range ages {
			for _, out := range outputs {
				ret = append(ret, Record{
					ID:        fmt.Sprintf("gen-%d", len(ret)+1),
					CreatedAt: refNow.Add(-age),
					RawStatus: st,
					Seedance:  Output{URL: out[0]},
					Kling:     Output{URL: out[1]},
				})
			}
		}
	}
	return ret
}

func TestEffectiveStatus_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   Status
	}{
		{
			name:   "fresh started job",
			record: Record{RawStatus: StatusStarted, CreatedAt: refNow.Add(-5 * time.Minute)},
			want:   StatusStarted,
		},
		{
			name:   "stuck started job",
			record: Record{RawStatus: StatusStarted, CreatedAt: refNow.Add(-45 * time.Minute)},
			want:   StatusFailed,
		},
		{
			name:   "absent status is pending",
			record: Record{CreatedAt: refNow.Add(-10 * time.Minute)},
			want:   StatusPending,
		},
		{
			name:   "exactly at threshold is not stale",
			record: Record{CreatedAt: refNow.Add(-30 * time.Minute)},
			want:   StatusPending,
		},
		{
			name:   "reported failure on a fresh job",
			record: Record{RawStatus: StatusFailed, CreatedAt: refNow},
			want:   StatusFailed,
		},
		{
			name: "old job with one output keeps raw status",
			record: Record{
				RawStatus: StatusPromptsDone,
				CreatedAt: refNow.Add(-2 * time.Hour),
				Kling:     Output{URL: "https://cdn.test/k.mp4"},
			},
			want: StatusPromptsDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveStatus(tt.record, refNow))
		})
	}
}

func TestEffectiveStatus_Properties(t *testing.T) {
	for _, r := range recordGrid() {
		first := EffectiveStatus(r, refNow)
		assert.Equal(t, first, EffectiveStatus(r, refNow), "not deterministic for %+v", r)

		if r.RawStatus == StatusFailed {
			assert.Equal(t, StatusFailed, first)
			assert.Equal(t, StatusFailed, EffectiveStatus(r, r.CreatedAt))
		}

		age := refNow.Sub(r.CreatedAt)
		if !r.HasAnyOutput() && age > 30*time.Minute && r.RawStatus != StatusFailed {
			assert.Equal(t, StatusFailed, first, "stale record %+v", r)
		}
		if !r.HasAnyOutput() && age <= 30*time.Minute && r.RawStatus == "" {
			assert.Equal(t, StatusPending, first, "fresh record %+v", r)
		}
	}
}

func TestEffectiveStatus_CrossesThresholdAsTimePasses(t *testing.T) {
	r := Record{RawStatus: StatusStarted, CreatedAt: refNow}

	assert.Equal(t, StatusStarted, EffectiveStatus(r, refNow.Add(29*time.Minute)))
	assert.Equal(t, StatusFailed, EffectiveStatus(r, refNow.Add(31*time.Minute)))
}

func TestClassifier_CustomThreshold(t *testing.T) {
	c := Classifier{StaleAfter: 10 * time.Minute}
	r := Record{RawStatus: StatusStarted, CreatedAt: refNow.Add(-15 * time.Minute)}

	assert.Equal(t, StatusFailed, c.EffectiveStatus(r, refNow))
	assert.Equal(t, StatusStarted, EffectiveStatus(r, refNow))
}

func TestPartition_IsAPartition(t *testing.T) {
	input := recordGrid()
	got := Partition(input, refNow)

	require.Equal(t, len(input), got.Len())

	seen := make(map[string]Bucket, len(input))
	mark := func(list []Record, b Bucket) {
		for _, r := range list {
			prev, dup := seen[r.ID]
			require.False(t, dup, "record %s in both %s and %s", r.ID, prev, b)
			seen[r.ID] = b
		}
	}
	mark(got.Pending, BucketPending)
	mark(got.Failed, BucketFailed)
	mark(got.Completed, BucketCompleted)

	for _, r := range input {
		_, ok := seen[r.ID]
		assert.True(t, ok, "record %s missing from partition", r.ID)
	}
}

func TestPartition_Scenarios(t *testing.T) {
	fresh := Record{ID: "fresh", RawStatus: StatusStarted, CreatedAt: refNow.Add(-5 * time.Minute)}
	stuck := Record{ID: "stuck", RawStatus: StatusStarted, CreatedAt: refNow.Add(-45 * time.Minute)}
	reported := Record{
		ID:        "reported",
		RawStatus: StatusFailed,
		CreatedAt: refNow,
		Seedance:  Output{URL: "https://cdn.test/a.mp4"},
		Kling:     Output{URL: "https://cdn.test/b.mp4"},
	}
	doneNoOutput := Record{ID: "done-old", RawStatus: StatusDone, CreatedAt: refNow.Add(-3 * time.Hour)}
	bothOutputs := Record{
		ID:        "both",
		RawStatus: StatusPromptsDone,
		CreatedAt: refNow.Add(-time.Minute),
		Seedance:  Output{URL: "https://cdn.test/a.mp4"},
		Kling:     Output{URL: "https://cdn.test/b.mp4"},
	}
	oneOutput := Record{
		ID:        "one",
		RawStatus: StatusPromptsDone,
		CreatedAt: refNow.Add(-2 * time.Hour),
		Seedance:  Output{URL: "https://cdn.test/a.mp4"},
	}

	got := Partition([]Record{fresh, stuck, reported, doneNoOutput, bothOutputs, oneOutput}, refNow)

	assert.Equal(t, []string{"fresh", "one"}, ids(got.Pending))
	assert.Equal(t, []string{"stuck", "reported"}, ids(got.Failed))
	assert.Equal(t, []string{"done-old", "both"}, ids(got.Completed))
}

func TestPartition_EmptyInput(t *testing.T) {
	got := Partition(nil, refNow)
	assert.NotNil(t, got.Pending)
	assert.NotNil(t, got.Failed)
	assert.NotNil(t, got.Completed)
	assert.Zero(t, got.Len())
}

func ids(records []Record) []string {
	ret := make([]string, 0, len(records))
	for _, r := range records {
		ret = append(ret, r.ID)
	}
	return ret
}
