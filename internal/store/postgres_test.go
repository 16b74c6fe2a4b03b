package store

import (
	"reflect"
	"testing"
)

func TestParsePgTextArray(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty array", input: "{}", expected: nil},
		{name: "not an array", input: "plain", expected: nil},
		{name: "simple", input: "{Soja,Milho}", expected: []string{"Soja", "Milho"}},
		{name: "quoted with spaces", input: `{Soja,"Milho verde"}`, expected: []string{"Soja", "Milho verde"}},
		{name: "quoted comma", input: `{"a,b",c}`, expected: []string{"a,b", "c"}},
		{name: "escaped quote", input: `{"diz \"oi\""}`, expected: []string{`diz "oi"`}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := parsePgTextArray([]byte(tc.input)); !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("parsePgTextArray(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestValidChecklistStatus(t *testing.T) {
	for _, status := range []string{"SENT", "IN_PROGRESS", "FINALIZED"} {
		if !ValidChecklistStatus(status) {
			t.Errorf("expected %q to be valid", status)
		}
	}
	if ValidChecklistStatus("DRAFT") {
		t.Errorf("expected DRAFT to be invalid")
	}
}
