package generation

import "time"

// Store column names of the generations collection.
const (
	ColumnCreatedAt = "created_at"
	ColumnStatus    = "generation_status"
)

func OutputURLColumn(v Variant) string { return string(v) + "_output_url" }
func ApprovedColumn(v Variant) string  { return string(v) + "_approved" }
func FeedbackColumn(v Variant) string  { return string(v) + "_feedback" }

// OutputPatch changes fields of one variant. Nil fields are left untouched,
// an empty string clears the field.
type OutputPatch struct {
	URL      *string
	Approval *Approval
	Feedback *string
}

// Patch is a partial update of a generation record.
type Patch struct {
	CreatedAt *time.Time
	RawStatus *Status
	Outputs   map[Variant]OutputPatch
}

func (p Patch) setOutput(v Variant, op OutputPatch) Patch {
	if p.Outputs == nil {
		p.Outputs = make(map[Variant]OutputPatch, len(Variants))
	}
	p.Outputs[v] = op
	return p
}

// Apply returns r with the patch applied.
func (p Patch) Apply(r Record) Record {
	if p.CreatedAt != nil {
		r.CreatedAt = *p.CreatedAt
	}
	if p.RawStatus != nil {
		r.RawStatus = *p.RawStatus
	}
	for _, v := range Variants {
		op, ok := p.Outputs[v]
		if !ok {
			continue
		}
		out, _ := r.Output(v)
		if op.URL != nil {
			out.URL = *op.URL
		}
		if op.Approval != nil {
			out.Approval = *op.Approval
		}
		if op.Feedback != nil {
			out.Feedback = *op.Feedback
		}
		r = r.withOutput(v, out)
	}
	return r
}

// Columns renders the patch as store column values. Cleared text fields and
// unreviewed approvals map to nil (SQL NULL).
func (p Patch) Columns() map[string]any {
	ret := make(map[string]any)
	if p.CreatedAt != nil {
		ret[ColumnCreatedAt] = p.CreatedAt.UTC()
	}
	if p.RawStatus != nil {
		ret[ColumnStatus] = string(*p.RawStatus)
	}
	for _, v := range Variants {
		op, ok := p.Outputs[v]
		if !ok {
			continue
		}
		if op.URL != nil {
			ret[OutputURLColumn(v)] = nullableString(*op.URL)
		}
		if op.Approval != nil {
			if b := op.Approval.Nullable(); b != nil {
				ret[ApprovedColumn(v)] = *b
			} else {
				ret[ApprovedColumn(v)] = nil
			}
		}
		if op.Feedback != nil {
			ret[FeedbackColumn(v)] = nullableString(*op.Feedback)
		}
	}
	return ret
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func approvalPatch(v Variant, a Approval, feedback *string) Patch {
	return Patch{}.setOutput(v, OutputPatch{Approval: &a, Feedback: feedback})
}

// resetPatch clears everything a regeneration produces, approvals included.
func resetPatch(now time.Time) Patch {
	status := StatusPending
	p := Patch{CreatedAt: &now, RawStatus: &status}
	for _, v := range Variants {
		empty := ""
		unreviewed := Unreviewed
		p = p.setOutput(v, OutputPatch{URL: &empty, Approval: &unreviewed, Feedback: &empty})
	}
	return p
}
