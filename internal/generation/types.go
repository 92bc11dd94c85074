package generation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the generation status reported by the external pipeline.
type Status string

const (
	StatusPending     Status = "pending"
	StatusStarted     Status = "started"
	StatusPromptsDone Status = "prompts-done"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

// Variant names one of the two generation back-ends.
type Variant string

const (
	VariantA Variant = "seedance"
	VariantB Variant = "kling"
)

var Variants = []Variant{VariantA, VariantB}

func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantA:
		return VariantA, nil
	case VariantB:
		return VariantB, nil
	default:
		return "", fmt.Errorf("unknown variant %q", s)
	}
}

// Approval is the review state of one variant output.
type Approval int

const (
	Unreviewed Approval = iota
	Approved
	Rejected
)

func (a Approval) String() string {
	switch a {
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	default:
		return "unreviewed"
	}
}

func (a Approval) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Approval) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "approved":
		*a = Approved
	case "rejected":
		*a = Rejected
	case "unreviewed", "":
		*a = Unreviewed
	default:
		return fmt.Errorf("unknown approval %q", s)
	}
	return nil
}

// ApprovalFromNullable maps the store's nullable approved column.
func ApprovalFromNullable(v *bool) Approval {
	switch {
	case v == nil:
		return Unreviewed
	case *v:
		return Approved
	default:
		return Rejected
	}
}

// Nullable is the inverse of ApprovalFromNullable.
func (a Approval) Nullable() *bool {
	switch a {
	case Approved:
		v := true
		return &v
	case Rejected:
		v := false
		return &v
	default:
		return nil
	}
}

// Output is the render of one variant.
type Output struct {
	URL      string   `json:"url,omitempty"`
	Approval Approval `json:"approval"`
	Feedback string   `json:"feedback,omitempty"`
}

func (o Output) Ready() bool {
	return o.URL != ""
}

// Reviewable reports whether approve/reject controls apply.
func (o Output) Reviewable() bool {
	return o.Ready() && o.Approval == Unreviewed && o.Feedback == ""
}

// Record is one generation job.
type Record struct {
	ID             string     `json:"id"`
	CreatedAt      time.Time  `json:"created_at"`
	SourceVideoURL string     `json:"source_video_url,omitempty"`
	Title          string     `json:"video_title,omitempty"`
	RawStatus      Status     `json:"generation_status,omitempty"`
	Seedance       Output     `json:"seedance"`
	Kling          Output     `json:"kling"`
	Posted         bool       `json:"posted"`
	PostURL        string     `json:"post_url,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
}

func (r Record) Output(v Variant) (Output, bool) {
	switch v {
	case VariantA:
		return r.Seedance, true
	case VariantB:
		return r.Kling, true
	default:
		return Output{}, false
	}
}

func (r Record) withOutput(v Variant, o Output) Record {
	switch v {
	case VariantA:
		r.Seedance = o
	case VariantB:
		r.Kling = o
	}
	return r
}

// HasAnyOutput reports whether at least one variant finished rendering.
func (r Record) HasAnyOutput() bool {
	return r.Seedance.Ready() || r.Kling.Ready()
}

// HasAllOutputs reports whether both variants finished rendering.
func (r Record) HasAllOutputs() bool {
	return r.Seedance.Ready() && r.Kling.Ready()
}

// PublishFailed reports a portal upload that the workflow marked as failed.
func (r Record) PublishFailed() bool {
	return strings.Contains(r.PostURL, "upload-failed")
}
