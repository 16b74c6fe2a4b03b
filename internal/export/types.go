// Package export renders a checklist audit report and prints it to PDF.
package export

import (
	"errors"
	"time"
)

var ErrPDFDependencyMissing = errors.New("pdf export dependency missing")

// Report is the flattened audit summary handed to the renderer.
type Report struct {
	ChecklistPublicID string
	TemplateName      string
	ProducerName      string
	Status            string
	GeneratedAt       time.Time
	Sections          []ReportSection
}

// ReportSection groups report rows under the (possibly field-suffixed)
// section display name.
type ReportSection struct {
	Name string
	Rows []ReportRow
}

// ReportRow is one answered (or unanswered) item.
type ReportRow struct {
	ItemName        string
	Answer          string
	Quantity        string
	Observation     string
	FileURL         string
	Status          string
	RejectionReason string
	IsInternal      bool
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}
