package checklist

import "fieldbook/api/internal/store"

// MaterializedItem is a view entity, never persisted: a template item cloned
// and re-keyed with a field suffix when its section iterates. Its ID maps
// one-to-one onto a canonical response key.
type MaterializedItem struct {
	ID             string
	ItemID         string
	FieldID        string
	Name           string
	Type           string
	Required       bool
	AskForQuantity bool
	DatabaseSource string
	Options        []string
	SectionID      string
	SectionName    string
}

// Materialize expands template sections into the flat, ordered sequence of
// answerable items. Ordering is section-major, field-minor, item-minor and
// reproducible for identical inputs.
//
// Iterating sections are cloned once per selected field id, suffixing both
// the section and item ids. Child checklists (corrections/completions) keep
// only items whose unsuffixed id already has a response on the parent side;
// a section or field-expansion left empty by that filter is dropped, not
// emitted empty.
func Materialize(sections []store.Section, fieldNames map[string]string, fieldIDs []string, isChild bool, responseItemIDs map[string]struct{}) []MaterializedItem {
	var out []MaterializedItem

	for _, sec := range sections {
		if sec.IterateOverFields {
			for _, fieldID := range fieldIDs {
				sectionName := sec.Name + " - " + fieldDisplayName(fieldNames, fieldID)
				sectionID := sec.ID + KeySeparator + fieldID
				for _, item := range sec.Items {
					if isChild && !hasResponse(responseItemIDs, item.ID) {
						continue
					}
					out = append(out, cloneItem(item, fieldID, sectionID, sectionName))
				}
			}
			continue
		}

		for _, item := range sec.Items {
			if isChild && !hasResponse(responseItemIDs, item.ID) {
				continue
			}
			out = append(out, cloneItem(item, "", sec.ID, sec.Name))
		}
	}

	return out
}

func cloneItem(item store.Item, fieldID, sectionID, sectionName string) MaterializedItem {
	id := item.ID
	if fieldID != "" {
		id = item.ID + KeySeparator + fieldID
	}
	options := make([]string, len(item.Options))
	copy(options, item.Options)
	if len(options) == 0 {
		options = nil
	}
	return MaterializedItem{
		ID:             id,
		ItemID:         item.ID,
		FieldID:        fieldID,
		Name:           item.Name,
		Type:           item.Type,
		Required:       item.Required,
		AskForQuantity: item.AskForQuantity,
		DatabaseSource: item.DatabaseSource,
		Options:        options,
		SectionID:      sectionID,
		SectionName:    sectionName,
	}
}

func hasResponse(responseItemIDs map[string]struct{}, itemID string) bool {
	_, ok := responseItemIDs[itemID]
	return ok
}

func fieldDisplayName(fieldNames map[string]string, fieldID string) string {
	if name, ok := fieldNames[fieldID]; ok && name != "" {
		return name
	}
	return fieldID
}

// ResponseItemIDs collects the unsuffixed item ids that have any canonical
// response. Child checklists use it to narrow the parent template down to
// the items the producer is being asked to revisit.
func ResponseItemIDs(m ResponseMap) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		if k == SelectedFieldsKey {
			continue
		}
		itemID, _ := SplitKey(k)
		out[itemID] = struct{}{}
	}
	return out
}
