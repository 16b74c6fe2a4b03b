package checklist

import "strings"

// Cross-item propagation matches sibling items by display name. The string
// heuristics are kept for compatibility with existing templates but live
// behind named predicates so an explicit item-role tag can replace them
// without touching the propagation algorithm.

func isCompositionItem(name string) bool {
	return strings.Contains(strings.ToLower(name), "composição")
}

func isDoseUnitItem(name string) bool {
	return strings.Contains(strings.ToLower(name), "unidade de dose")
}

// Metadata keys a database-backed dropdown answer may carry.
const (
	metaComposition = "composition"
	metaUnit        = "unit"
)

type propagation struct {
	target MaterializedItem
	answer string
}

// propagations computes the sibling updates implied by an answer that
// carries composition/unit metadata. Only items inside the same section
// instance (same possibly-suffixed section id) are ever touched.
func propagations(items []MaterializedItem, source MaterializedItem, metadata map[string]string) []propagation {
	if len(metadata) == 0 {
		return nil
	}
	composition := metadata[metaComposition]
	unit := metadata[metaUnit]
	if composition == "" && unit == "" {
		return nil
	}

	var out []propagation
	for _, item := range items {
		if item.SectionID != source.SectionID || item.ID == source.ID {
			continue
		}
		if composition != "" && isCompositionItem(item.Name) {
			out = append(out, propagation{target: item, answer: composition})
		}
		if unit != "" && isDoseUnitItem(item.Name) {
			out = append(out, propagation{target: item, answer: unit})
		}
	}
	return out
}
