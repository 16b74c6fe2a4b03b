// Package checklist implements the response reconciliation and section
// materialization engine: merging cached drafts with server responses,
// expanding per-field sections into answerable items, and driving the
// per-response status state machine.
package checklist

import (
	"encoding/json"
	"strings"
)

type Status string

const (
	StatusMissing  Status = "MISSING"
	StatusPending  Status = "PENDING_VERIFICATION"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

const (
	// SelectedFieldsKey is a reserved response key, never a real item id.
	// Its answer holds the ordered field ids chosen at selection time.
	SelectedFieldsKey = "__selected_fields"

	// KeySeparator joins item/section ids with a field id suffix.
	KeySeparator = "::"

	// globalFieldID is the legacy sentinel some server rows carry instead
	// of an empty field id. It means "not field-bound".
	globalFieldID = "global"
)

// Response is one entry of the canonical response map. The producer owns
// Answer/Quantity/ObservationValue/FileURL, the auditor owns
// Status/RejectionReason.
type Response struct {
	ItemID           string            `json:"itemId"`
	FieldID          string            `json:"fieldId,omitempty"`
	Answer           any               `json:"answer,omitempty"`
	Quantity         *float64          `json:"quantity,omitempty"`
	ObservationValue string            `json:"observationValue,omitempty"`
	FileURL          string            `json:"fileUrl,omitempty"`
	Status           Status            `json:"status"`
	RejectionReason  string            `json:"rejectionReason,omitempty"`
	IsInternal       bool              `json:"isInternal,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// ResponseMap is the canonical, reconciled response set keyed by
// itemId or itemId::fieldId.
type ResponseMap map[string]Response

func (m ResponseMap) Clone() ResponseMap {
	out := make(ResponseMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CanonicalKey computes the map key for an (item, field) pair. The legacy
// "global" field sentinel collapses to the bare item id.
func CanonicalKey(itemID, fieldID string) string {
	if fieldID == "" || fieldID == globalFieldID {
		return itemID
	}
	return itemID + KeySeparator + fieldID
}

// SplitKey is the inverse of CanonicalKey: it returns the unsuffixed item id
// and the field id (empty when the key is not field-bound).
func SplitKey(key string) (itemID, fieldID string) {
	idx := strings.Index(key, KeySeparator)
	if idx < 0 {
		return key, ""
	}
	return key[:idx], key[idx+len(KeySeparator):]
}

// HasAnswer reports whether a response carries a usable answer. An empty
// array counts as no answer, which is what required-field validation needs.
func (r Response) HasAnswer() bool {
	if r.Answer == nil {
		return false
	}
	switch v := r.Answer.(type) {
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	}
	return true
}

// answersEqual compares two answers by their canonical JSON encodings.
// encoding/json emits map keys in sorted order, so the comparison is
// deterministic across runs.
func answersEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

// AnswerStrings coerces an answer into a string slice. JSON round-trips
// turn arrays into []any, so both shapes are accepted.
func AnswerStrings(answer any) []string {
	switch v := answer.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
