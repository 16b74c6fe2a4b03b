package checklist

// txn is the snapshot half of the optimistic-update protocol: snapshot,
// apply, persist, then commit or roll back. Map entries are value types and
// are always replaced wholesale, so a per-key copy is a sufficient snapshot.
type txn struct {
	snapshot ResponseMap
}

func begin(m ResponseMap) txn {
	return txn{snapshot: m.Clone()}
}

// rollback returns the pre-mutation state. Callers swap it back in atomically
// from their perspective; no partially-reverted map is ever observable.
func (t txn) rollback() ResponseMap {
	return t.snapshot.Clone()
}
