package state

import (
	"encoding/json"
	"strings"
)

// rawDocument accepts both the current layout and the legacy one, which
// embedded the whole current case and allowed arbitrary template values.
type rawDocument struct {
	Version           int                        `json:"version"`
	CurrentCaseID     string                     `json:"currentCaseId"`
	CurrentCase       json.RawMessage            `json:"currentCase"`
	AnalysisResults   []AnalysisResult           `json:"analysisResults"`
	DocumentTemplates map[string]json.RawMessage `json:"documentTemplates"`
	WorkflowState     Workflow                   `json:"workflowState"`
}

// migrate converts a decoded document of any version into the current layout.
func migrate(raw rawDocument) Document {
	doc := emptyDocument()
	doc.CurrentCaseID = raw.CurrentCaseID
	doc.WorkflowState = raw.WorkflowState
	if raw.AnalysisResults != nil {
		doc.AnalysisResults = raw.AnalysisResults
	}

	if raw.Version < 1 && doc.CurrentCaseID == "" {
		doc.CurrentCaseID = legacyCaseID(raw.CurrentCase)
	}

	for name, v := range raw.DocumentTemplates {
		doc.DocumentTemplates[name] = templateText(v)
	}

	if doc.WorkflowState.CurrentStep < 0 {
		doc.WorkflowState.CurrentStep = 0
	}
	return doc
}

// legacyCaseID extracts the id of an embedded case object; null or garbage yields "".
func legacyCaseID(msg json.RawMessage) string {
	if len(msg) == 0 {
		return ""
	}
	var embedded struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(msg, &embedded); err != nil || len(embedded.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(embedded.ID, &s); err == nil {
		return s
	}
	// Numeric ids were written by some older builds.
	return strings.TrimSpace(string(embedded.ID))
}

// templateText keeps string templates as-is and stores anything else as its JSON text.
func templateText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}
