package orchestrator

import (
	"time"

	"github.com/vk/flowsync/internal/engine"
)

// Status is the outcome of one section in a run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// SectionReport is the outcome of one section.
type SectionReport struct {
	Name            string        `json:"name"`
	Status          Status        `json:"status"`
	Instances       int           `json:"instances"`
	FailedInstances int           `json:"failed_instances"`
	Errors          []string      `json:"errors,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
}

// Report enumerates what a run did, section by section, in run order.
type Report struct {
	ID         string           `json:"id"`
	Op         string           `json:"op"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Sections   []*SectionReport `json:"sections"`
	// RunError is set when the run was aborted or the simulation run failed.
	RunError string `json:"run_error,omitempty"`
	// Ran reports whether the engine's run operation was triggered.
	Ran bool `json:"ran,omitempty"`
}

func newReport(id, op string) *Report {
	return &Report{ID: id, Op: op, StartedAt: time.Now().UTC()}
}

func (r *Report) skip(name, reason string) {
	r.Sections = append(r.Sections, &SectionReport{Name: name, Status: StatusSkipped, Reason: reason})
}

func (r *Report) add(res *engine.Result, d time.Duration) *SectionReport {
	sr := &SectionReport{
		Name:            res.Section,
		Status:          StatusOK,
		Instances:       res.Instances,
		FailedInstances: len(res.Failures),
		Duration:        d,
	}
	for _, f := range res.Failures {
		sr.Errors = append(sr.Errors, f.Error())
	}
	if res.Failed() {
		sr.Status = StatusFailed
	}
	r.Sections = append(r.Sections, sr)
	return sr
}

func (r *Report) finish(err error) {
	r.FinishedAt = time.Now().UTC()
	if err != nil {
		r.RunError = err.Error()
	}
}

// Section returns the report of one section, or nil.
func (r *Report) Section(name string) *SectionReport {
	for _, s := range r.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Failed lists the sections that had at least one failure, for selective
// retry.
func (r *Report) Failed() []string {
	var out []string
	for _, s := range r.Sections {
		if s.Status == StatusFailed {
			out = append(out, s.Name)
		}
	}
	return out
}

// OK reports whether nothing failed and the run was not aborted.
func (r *Report) OK() bool {
	return r.RunError == "" && len(r.Failed()) == 0
}
