package state

import (
	"errors"
	"time"
)

// CurrentVersion is the schema version written with every shared document.
// Version 0 (absent) documents stored the whole current case object.
const CurrentVersion = 1

var (
	// ErrUnknownCase is returned when an operation names a case id that does not resolve.
	ErrUnknownCase = errors.New("unknown case")
	// ErrUnknownType is returned for analysis result types outside the known set.
	ErrUnknownType = errors.New("unknown analysis type")
	// ErrNoWorkflow is returned when advancing before any workflow was recorded.
	ErrNoWorkflow = errors.New("no workflow recorded")
)

// AnalysisType classifies a stored analysis result.
type AnalysisType string

const (
	TypeEdital       AnalysisType = "edital"
	TypeRecurso      AnalysisType = "recurso"
	TypeContrarrazao AnalysisType = "contrarrazao"
	TypeDefesa       AnalysisType = "defesa"
)

// Valid reports whether t is a known analysis type.
func (t AnalysisType) Valid() bool {
	switch t {
	case TypeEdital, TypeRecurso, TypeContrarrazao, TypeDefesa:
		return true
	}
	return false
}

// IsDefense reports whether t counts towards the "defesas elaboradas" counter.
func (t AnalysisType) IsDefense() bool {
	return t == TypeRecurso || t == TypeContrarrazao || t == TypeDefesa
}

// SystemUser is recorded as the author when nobody is logged in.
const SystemUser = "Sistema"

// AnalysisResult is one stored analysis attached to a case.
type AnalysisResult struct {
	ID      int64        `json:"id"`
	CaseID  string       `json:"caseId"`
	Type    AnalysisType `json:"type"`
	Content string       `json:"content"`
	Date    string       `json:"date"`
	User    string       `json:"user"`
}

// WorkflowStep is a named step, optionally tied to a section.
type WorkflowStep struct {
	Name    string `json:"name"`
	Section string `json:"section,omitempty"`
}

// Workflow is the progress through a recorded list of steps.
type Workflow struct {
	Steps       []WorkflowStep `json:"steps,omitempty"`
	CurrentStep int            `json:"currentStep"`
	Completed   bool           `json:"completed"`
	StartDate   string         `json:"startDate,omitempty"`
}

// Recorded reports whether a workflow with at least one step exists.
func (w Workflow) Recorded() bool { return len(w.Steps) > 0 }

// Current returns the step the pointer is on.
func (w Workflow) Current() (WorkflowStep, bool) {
	if w.CurrentStep < 0 || w.CurrentStep >= len(w.Steps) {
		return WorkflowStep{}, false
	}
	return w.Steps[w.CurrentStep], true
}

// Document is the persisted shared cross-section state.
type Document struct {
	Version           int               `json:"version"`
	CurrentCaseID     string            `json:"currentCaseId,omitempty"`
	AnalysisResults   []AnalysisResult  `json:"analysisResults"`
	DocumentTemplates map[string]string `json:"documentTemplates"`
	WorkflowState     Workflow          `json:"workflowState"`
}

func emptyDocument() Document {
	return Document{
		Version:           CurrentVersion,
		AnalysisResults:   []AnalysisResult{},
		DocumentTemplates: map[string]string{},
	}
}

// clone deep-copies d so the copy can be mutated freely.
func (d Document) clone() Document {
	out := d
	out.AnalysisResults = make([]AnalysisResult, len(d.AnalysisResults))
	copy(out.AnalysisResults, d.AnalysisResults)
	out.DocumentTemplates = make(map[string]string, len(d.DocumentTemplates))
	for k, v := range d.DocumentTemplates {
		out.DocumentTemplates[k] = v
	}
	out.WorkflowState.Steps = append([]WorkflowStep(nil), d.WorkflowState.Steps...)
	return out
}

// isoLayout matches the millisecond UTC timestamps written by browsers.
const isoLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t the way stored dates are written.
func FormatTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseTime parses a stored date, accepting any RFC 3339 form.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(isoLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
