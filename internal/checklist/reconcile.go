package checklist

import (
	"encoding/json"

	"fieldbook/api/internal/store"
)

// Reconcile merges a possibly-stale draft with the server's authoritative
// response records into one canonical map. It is a pure function: no clock,
// no randomness, same inputs produce the same output.
//
// The draft is the base. Each server record is merged at its canonical key
// and wins on every populated field except status, where the correction rule
// applies: a REJECTED server record whose local answer was already edited
// comes back as PENDING_VERIFICATION, because the producer started correcting
// offline. Draft-only keys survive untouched, which is what keeps
// offline-first editing of not-yet-submitted items working.
func Reconcile(draft ResponseMap, server []store.ResponseRecord) ResponseMap {
	out := make(ResponseMap, len(draft)+len(server))
	for k, v := range draft {
		out[k] = v
	}

	for _, rec := range server {
		key := CanonicalKey(rec.ItemID, rec.FieldID)
		local, hasLocal := out[key]

		merged := local
		merged.ItemID = rec.ItemID
		if _, fieldID := SplitKey(key); fieldID != "" {
			merged.FieldID = fieldID
		} else {
			merged.FieldID = ""
		}

		serverAnswer := decodeAnswer(rec.Answer)
		if serverAnswer != nil {
			merged.Answer = serverAnswer
		}
		if rec.Quantity != nil {
			merged.Quantity = rec.Quantity
		}
		if rec.ObservationValue != "" {
			merged.ObservationValue = rec.ObservationValue
		}
		if rec.FileURL != "" {
			merged.FileURL = rec.FileURL
		}
		if meta := decodeMetadata(rec.Metadata); meta != nil {
			merged.Metadata = meta
		}
		merged.IsInternal = rec.IsInternal
		merged.RejectionReason = rec.RejectionReason

		status := Status(rec.Status)
		if status == StatusRejected && hasLocal && local.HasAnswer() && !answersEqual(local.Answer, serverAnswer) {
			status = StatusPending
		}
		merged.Status = status

		out[key] = merged
	}

	return out
}

func decodeAnswer(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// A malformed stored answer degrades to the raw text rather than
		// dropping the producer's data.
		return string(raw)
	}
	return v
}

func decodeMetadata(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
