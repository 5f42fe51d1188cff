// Package store provides persistent storage for parley using SQLite.
//
// # Data Models
//
//   - AgentRecord: a configured agent key and the remote assistant created for it
//
// Only the agent directory is stored. Session transcripts live in memory for
// the lifetime of the process.
//
// # Implementations
//
// SQLiteStore uses modernc.org/sqlite (pure Go, no cgo). The schema is created
// on open and older databases are migrated in place. Timestamps are stored as
// RFC3339 text in UTC.
//
//	s, err := store.NewSQLiteStore("~/.local/share/parley/parley.db")
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
// MockStore is an in-memory implementation for tests with the same
// not-found and duplicate semantics.
//
// # Errors
//
//   - ErrNotFound: no row for the requested key or id
//   - ErrDuplicateAgent: the assistant id is already recorded under another key
package store
