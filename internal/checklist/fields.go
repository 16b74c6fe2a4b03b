package checklist

import (
	"fmt"
	"sort"

	"fieldbook/api/internal/store"
)

// FieldSelection is the resolved set of spatial fields a checklist reports
// on. While SelectionRequired is true no materialized sequence exists; the
// caller must confirm a non-empty selection first.
type FieldSelection struct {
	FieldIDs          []string
	SelectionRequired bool
}

// ResolveFields recovers the active field set from the canonical map. An
// explicit prior __selected_fields choice wins outright; otherwise the set is
// derived from the field suffixes present on canonical keys. Derivation walks
// keys in sorted order and keeps first occurrence, the deterministic
// equivalent of the original first-seen traversal.
func ResolveFields(m ResponseMap, sections []store.Section) FieldSelection {
	if sel, ok := m[SelectedFieldsKey]; ok {
		if ids := AnswerStrings(sel.Answer); len(ids) > 0 {
			return FieldSelection{FieldIDs: ids}
		}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		if k == SelectedFieldsKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := map[string]struct{}{}
	var derived []string
	for _, k := range keys {
		_, fieldID := SplitKey(k)
		if fieldID == "" {
			continue
		}
		if _, dup := seen[fieldID]; dup {
			continue
		}
		seen[fieldID] = struct{}{}
		derived = append(derived, fieldID)
	}

	required := len(derived) == 0 && anySectionIterates(sections)
	return FieldSelection{FieldIDs: derived, SelectionRequired: required}
}

func anySectionIterates(sections []store.Section) bool {
	for _, sec := range sections {
		if sec.IterateOverFields {
			return true
		}
	}
	return false
}

// ErrEmptySelection rejects a field-selection confirmation with no fields.
var ErrEmptySelection = fmt.Errorf("field selection must contain at least one field")

// ConfirmFieldSelection records the chosen field ids under the reserved key.
// The entry is born APPROVED: the selection itself is never audited.
// Confirmation is idempotent and replaces any prior selection.
func ConfirmFieldSelection(m ResponseMap, fieldIDs []string) error {
	if len(fieldIDs) == 0 {
		return ErrEmptySelection
	}
	ids := make([]string, len(fieldIDs))
	copy(ids, fieldIDs)
	m[SelectedFieldsKey] = Response{
		ItemID: SelectedFieldsKey,
		Answer: ids,
		Status: StatusApproved,
	}
	return nil
}
