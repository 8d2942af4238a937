package database

import "database/sql"

var Rebind = rebind

// Handle exposes the live connection so tests can simulate its loss.
func (s *Store) Handle() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}
