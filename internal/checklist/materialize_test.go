package checklist

import (
	"reflect"
	"testing"

	"fieldbook/api/internal/store"
)

func expansionSections() []store.Section {
	return []store.Section{
		{
			ID:                "sec_apl",
			Name:              "Aplicações",
			IterateOverFields: true,
			Items: []store.Item{
				{ID: "it_prod", SectionID: "sec_apl", Name: "Produto aplicado", Type: "database_dropdown"},
				{ID: "it_dose", SectionID: "sec_apl", Name: "Dose", Type: "number"},
			},
		},
		{
			ID:   "sec_gen",
			Name: "Geral",
			Items: []store.Item{
				{ID: "it_notes", SectionID: "sec_gen", Name: "Observações", Type: "text"},
			},
		},
	}
}

func TestMaterializeExpansionOrdering(t *testing.T) {
	names := map[string]string{"f1": "Talhão Norte", "f2": "Talhão Sul"}
	out := Materialize(expansionSections(), names, []string{"f1", "f2"}, false, nil)

	gotIDs := make([]string, 0, len(out))
	for _, item := range out {
		gotIDs = append(gotIDs, item.ID)
	}
	wantIDs := []string{
		"it_prod::f1", "it_dose::f1",
		"it_prod::f2", "it_dose::f2",
		"it_notes",
	}
	if !reflect.DeepEqual(gotIDs, wantIDs) {
		t.Fatalf("expected section-major, field-minor, item-minor ordering %v, got %v", wantIDs, gotIDs)
	}

	if out[0].SectionID != "sec_apl::f1" {
		t.Fatalf("expected suffixed section id, got %q", out[0].SectionID)
	}
	if out[0].SectionName != "Aplicações - Talhão Norte" {
		t.Fatalf("expected field display name in section name, got %q", out[0].SectionName)
	}
	if out[4].SectionID != "sec_gen" {
		t.Fatalf("expected plain section untouched, got %q", out[4].SectionID)
	}
}

func TestMaterializeFieldNameFallsBackToID(t *testing.T) {
	out := Materialize(expansionSections(), map[string]string{}, []string{"f9"}, false, nil)
	if out[0].SectionName != "Aplicações - f9" {
		t.Fatalf("expected field id fallback in section name, got %q", out[0].SectionName)
	}
}

func TestMaterializeChildFiltersByParentResponses(t *testing.T) {
	names := map[string]string{"f1": "Talhão Norte"}
	responses := map[string]struct{}{"it_dose": {}}

	out := Materialize(expansionSections(), names, []string{"f1"}, true, responses)

	gotIDs := make([]string, 0, len(out))
	for _, item := range out {
		gotIDs = append(gotIDs, item.ID)
	}
	// Only it_dose had a response; the filter matches on the unsuffixed id
	// and the emptied Geral section is simply absent.
	if !reflect.DeepEqual(gotIDs, []string{"it_dose::f1"}) {
		t.Fatalf("expected child sequence [it_dose::f1], got %v", gotIDs)
	}
}

func TestMaterializeIsDeterministic(t *testing.T) {
	names := map[string]string{"f1": "Talhão Norte", "f2": "Talhão Sul"}
	first := Materialize(expansionSections(), names, []string{"f1", "f2"}, false, nil)
	second := Materialize(expansionSections(), names, []string{"f1", "f2"}, false, nil)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical sequences for identical inputs")
	}
}

func TestResponseItemIDsSkipsReservedKey(t *testing.T) {
	m := ResponseMap{
		SelectedFieldsKey: {ItemID: SelectedFieldsKey},
		"it_prod::f1":     {ItemID: "it_prod", FieldID: "f1"},
		"it_notes":        {ItemID: "it_notes"},
	}
	got := ResponseItemIDs(m)
	want := map[string]struct{}{"it_prod": {}, "it_notes": {}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
