package export

import (
	"strings"
	"testing"

	"fieldbook/api/internal/checklist"
	"fieldbook/api/internal/store"
)

func sampleItems() []checklist.MaterializedItem {
	return []checklist.MaterializedItem{
		{ID: "it_prod::f1", ItemID: "it_prod", FieldID: "f1", Name: "Produto aplicado", SectionID: "sec_apl::f1", SectionName: "Aplicações - Talhão Norte"},
		{ID: "it_dose::f1", ItemID: "it_dose", FieldID: "f1", Name: "Dose", SectionID: "sec_apl::f1", SectionName: "Aplicações - Talhão Norte"},
		{ID: "it_notes", ItemID: "it_notes", Name: "Observações", SectionID: "sec_gen", SectionName: "Geral"},
	}
}

func TestBuildReportGroupsBySectionInSequenceOrder(t *testing.T) {
	qty := 2.5
	responses := checklist.ResponseMap{
		"it_prod::f1": {ItemID: "it_prod", FieldID: "f1", Answer: "Glifosato 480", Quantity: &qty, Status: checklist.StatusApproved},
		"it_notes":    {ItemID: "it_notes", Answer: "sem ocorrências", Status: checklist.StatusRejected, RejectionReason: "too vague"},
	}
	cl := store.Checklist{PublicID: "CHK-001", Status: "FINALIZED"}

	report := BuildReport(cl, "Auditoria Anual", "Fazenda Boa Vista", sampleItems(), responses)

	if len(report.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(report.Sections))
	}
	if report.Sections[0].Name != "Aplicações - Talhão Norte" || report.Sections[1].Name != "Geral" {
		t.Fatalf("unexpected section order: %v, %v", report.Sections[0].Name, report.Sections[1].Name)
	}
	if len(report.Sections[0].Rows) != 2 {
		t.Fatalf("expected 2 rows in first section, got %d", len(report.Sections[0].Rows))
	}

	first := report.Sections[0].Rows[0]
	if first.Answer != "Glifosato 480" || first.Quantity != "2.5" || first.Status != "APPROVED" {
		t.Fatalf("unexpected first row: %+v", first)
	}
	// Unanswered items still appear, marked missing.
	if got := report.Sections[0].Rows[1].Status; got != "MISSING" {
		t.Fatalf("expected MISSING for unanswered item, got %q", got)
	}
	rejected := report.Sections[1].Rows[0]
	if rejected.Status != "REJECTED" || rejected.RejectionReason != "too vague" {
		t.Fatalf("unexpected rejected row: %+v", rejected)
	}
}

func TestRenderAnswerShapes(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{name: "nil", input: nil, expected: ""},
		{name: "string", input: "Soja", expected: "Soja"},
		{name: "string slice", input: []string{"Soja", "Milho"}, expected: "Soja, Milho"},
		{name: "json array", input: []any{"Soja", "Milho"}, expected: "Soja, Milho"},
		{name: "number", input: 42.5, expected: "42.5"},
		{name: "bool", input: true, expected: "true"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := renderAnswer(tc.input); got != tc.expected {
				t.Errorf("renderAnswer(%v) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestRenderReportHTML(t *testing.T) {
	responses := checklist.ResponseMap{
		"it_prod::f1": {ItemID: "it_prod", FieldID: "f1", Answer: "Glifosato 480", Status: checklist.StatusApproved},
	}
	cl := store.Checklist{PublicID: "CHK-001", Status: "FINALIZED"}
	report := BuildReport(cl, "Auditoria Anual", "Fazenda Boa Vista", sampleItems(), responses)

	html, err := RenderReportHTML(report)
	if err != nil {
		t.Fatalf("RenderReportHTML() error = %v", err)
	}
	for _, want := range []string{
		"Auditoria Anual",
		"CHK-001",
		"Fazenda Boa Vista",
		"Aplicações - Talhão Norte",
		"Glifosato 480",
		"approved",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("expected rendered report to contain %q", want)
		}
	}
}
