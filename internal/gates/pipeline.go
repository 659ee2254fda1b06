package gates

import (
	"context"
	"fmt"
)

// Gate names in evaluation order.
const (
	NameA = "A"
	NameB = "B"
	NameC = "C"
	NameD = "D"
)

// Check evaluates one gate. Checks may fetch the data they need, so they take
// a context and can fail independently of the verdict.
type Check func(ctx context.Context) (pass bool, reason string, err error)

// Outcome is the verdict of one evaluated gate.
type Outcome struct {
	Gate   string `json:"gate"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Report lists the gates that ran, in order. Gates after a rejection are
// absent.
type Report struct {
	Outcomes   []Outcome `json:"outcomes"`
	Passed     bool      `json:"passed"`
	RejectedBy string    `json:"rejected_by,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Map returns gate name to verdict for every gate that ran.
func (r Report) Map() map[string]bool {
	out := make(map[string]bool, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out[o.Gate] = o.Passed
	}
	return out
}

// Pipeline runs gates A, B, C and D in that order and stops at the first
// rejection or error.
type Pipeline struct {
	stages []stage
}

type stage struct {
	name  string
	check Check
}

// NewPipeline builds the fixed A to D pipeline.
func NewPipeline(a, b, c, d Check) *Pipeline {
	return &Pipeline{stages: []stage{
		{NameA, a},
		{NameB, b},
		{NameC, c},
		{NameD, d},
	}}
}

// Run evaluates the stages. A stage error aborts the run and is returned with
// the partial report.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var rep Report
	for _, st := range p.stages {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		pass, reason, err := st.check(ctx)
		if err != nil {
			return rep, fmt.Errorf("gate %s: %w", st.name, err)
		}
		rep.Outcomes = append(rep.Outcomes, Outcome{Gate: st.name, Passed: pass, Reason: reason})
		if !pass {
			rep.RejectedBy = st.name
			rep.Reason = reason
			return rep, nil
		}
	}
	rep.Passed = true
	return rep, nil
}
