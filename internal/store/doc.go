// Package store is the SQLite build ledger.
//
// Every successful `vault compile` or `vault build` run with a ledger
// configured appends one record: source and archive digests, dependency
// names, engine and format versions, and a per-vault summary. Values are
// never written to the ledger, secure or not.
//
// The ledger is append-only. Records are ordered by a logical clock (seq)
// rather than wall time, so `vault history` output is stable even when
// the system clock moves backwards.
//
// Usage:
//
//	s, err := store.Open(".vault/ledger.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	b, err := store.NewBuild(src, srcBytes, out, encoded, arc, kr)
//	...
//	err = s.RecordBuild(ctx, b)
package store
