// Package testjsonl provides shared JSONL fixture builders for
// clinic export files. Used by the server, cmd and testfixture
// packages.
package testjsonl

import (
	"encoding/json"
	"strings"
)

// Fields holds extra document fields merged over the defaults.
type Fields map[string]any

func merge(m map[string]any, extra []Fields) map[string]any {
	for _, f := range extra {
		for k, v := range f {
			if v == nil {
				delete(m, k)
				continue
			}
			m[k] = v
		}
	}
	return m
}

// HeaderJSON returns an export header declaring format.
func HeaderJSON(format string) string {
	return mustMarshal(map[string]any{
		"kind":   "header",
		"format": format,
	})
}

// SessionJSON returns a session document. A nil value in extra
// removes the field.
func SessionJSON(
	id, patientID, date string, extra ...Fields,
) string {
	m := map[string]any{
		"collection":     "sessions",
		"id":             id,
		"patientId":      patientID,
		"professionalId": "dr-a",
		"date":           date,
		"type":           "individual",
		"status":         "completed",
	}
	return mustMarshal(merge(m, extra))
}

// SessionWithAnalysisJSON returns a session whose tone and risk
// are nested under aiAnalysis, as the clinic app exports them.
func SessionWithAnalysisJSON(
	id, patientID, date, tone, risk string,
) string {
	return SessionJSON(id, patientID, date, Fields{
		"aiAnalysis": map[string]any{
			"emotionalTone": tone,
			"riskLevel":     risk,
		},
	})
}

// PatientJSON returns an active patient document.
func PatientJSON(id, createdAt string, extra ...Fields) string {
	m := map[string]any{
		"collection": "patients",
		"id":         id,
		"createdAt":  createdAt,
		"isActive":   true,
	}
	return mustMarshal(merge(m, extra))
}

// AlertJSON returns a pending alert document.
func AlertJSON(
	id, patientID, createdAt string, extra ...Fields,
) string {
	m := map[string]any{
		"collection": "alerts",
		"id":         id,
		"patientId":  patientID,
		"type":       "no-show",
		"urgency":    "medium",
		"status":     "pending",
		"createdAt":  createdAt,
	}
	return mustMarshal(merge(m, extra))
}

// JoinJSONL joins lines into a newline-terminated export.
func JoinJSONL(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// ExportBuilder accumulates export lines.
type ExportBuilder struct {
	lines []string
}

// NewExportBuilder returns a builder whose first line is a v1
// header.
func NewExportBuilder() *ExportBuilder {
	return &ExportBuilder{lines: []string{HeaderJSON("v1.0.0")}}
}

// AddSession appends a session document.
func (b *ExportBuilder) AddSession(
	id, patientID, date string, extra ...Fields,
) *ExportBuilder {
	b.lines = append(b.lines, SessionJSON(id, patientID, date, extra...))
	return b
}

// AddPatient appends a patient document.
func (b *ExportBuilder) AddPatient(
	id, createdAt string, extra ...Fields,
) *ExportBuilder {
	b.lines = append(b.lines, PatientJSON(id, createdAt, extra...))
	return b
}

// AddAlert appends an alert document.
func (b *ExportBuilder) AddAlert(
	id, patientID, createdAt string, extra ...Fields,
) *ExportBuilder {
	b.lines = append(b.lines, AlertJSON(id, patientID, createdAt, extra...))
	return b
}

// AddRaw appends a line verbatim.
func (b *ExportBuilder) AddRaw(line string) *ExportBuilder {
	b.lines = append(b.lines, line)
	return b
}

// Len returns the number of lines, header included.
func (b *ExportBuilder) Len() int {
	return len(b.lines)
}

// String returns the export with a trailing newline.
func (b *ExportBuilder) String() string {
	return JoinJSONL(b.lines...)
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
