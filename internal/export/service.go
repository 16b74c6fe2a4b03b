package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"fieldbook/api/internal/checklist"
	"fieldbook/api/internal/store"
)

// BuildReport flattens a materialized sequence plus its canonical responses
// into the report structure, preserving the sequence order and section
// grouping the producer saw.
func BuildReport(cl store.Checklist, templateName, producerName string, items []checklist.MaterializedItem, responses checklist.ResponseMap) Report {
	report := Report{
		ChecklistPublicID: cl.PublicID,
		TemplateName:      templateName,
		ProducerName:      producerName,
		Status:            cl.Status,
		GeneratedAt:       time.Now().UTC(),
	}

	var current *ReportSection
	for _, item := range items {
		if current == nil || current.Name != item.SectionName {
			report.Sections = append(report.Sections, ReportSection{Name: item.SectionName})
			current = &report.Sections[len(report.Sections)-1]
		}

		resp := responses[item.ID]
		row := ReportRow{
			ItemName:        item.Name,
			Answer:          renderAnswer(resp.Answer),
			Observation:     resp.ObservationValue,
			FileURL:         resp.FileURL,
			Status:          string(resp.Status),
			RejectionReason: resp.RejectionReason,
			IsInternal:      resp.IsInternal,
		}
		if resp.Status == "" {
			row.Status = string(checklist.StatusMissing)
		}
		if resp.Quantity != nil {
			row.Quantity = strconv.FormatFloat(*resp.Quantity, 'f', -1, 64)
		}
		current.Rows = append(current.Rows, row)
	}

	return report
}

func renderAnswer(answer any) string {
	switch v := answer.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return joinStrings(v)
	case []any:
		return joinStrings(checklist.AnswerStrings(answer))
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return ""
	}
	return string(raw)
}

func joinStrings(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

// ExportPDF renders the report HTML and prints it through headless Chrome.
func ExportPDF(report Report) (*Result, error) {
	html, err := RenderReportHTML(report)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return exportPDF(html, report.TemplateName+" "+report.ChecklistPublicID)
}
